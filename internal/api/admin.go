package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/concord-chat/livechat/internal/models"
)

type userListResponse struct {
	Users []models.User `json:"users"`
}

type channelListResponse struct {
	Channel []models.Channel `json:"channel"`
}

type userChannelResponse struct {
	UserInfo []models.UserChannelInfo `json:"UserInfo"`
}

// ListUsers returns every user known to the backend
func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var resp userListResponse
	if err := c.do(ctx, http.MethodGet, "/admin/get_user_list", nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// ListChannels returns every channel
func (c *Client) ListChannels(ctx context.Context) ([]models.Channel, error) {
	var resp channelListResponse
	if err := c.do(ctx, http.MethodGet, "/admin/get_channel_list", nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Channel, nil
}

// ListChannelMembers returns the user/channel membership table
func (c *Client) ListChannelMembers(ctx context.Context) ([]models.UserChannelInfo, error) {
	var resp userChannelResponse
	if err := c.do(ctx, http.MethodGet, "/admin/get_userinfo_at_channel", nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.UserInfo, nil
}

// GetUser returns one user's profile
func (c *Client) GetUser(ctx context.Context, id string) (*models.User, error) {
	if id == "" {
		return nil, fmt.Errorf("user id is required")
	}
	var user models.User
	if err := c.do(ctx, http.MethodGet, "/admin/user/"+url.PathEscape(id), nil, &user, true); err != nil {
		return nil, err
	}
	return &user, nil
}

// AddUser validates and creates a user
func (c *Client) AddUser(ctx context.Context, req models.AddUserRequest) error {
	if err := c.validate.Struct(req); err != nil {
		return fmt.Errorf("invalid user: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/admin/add_user", req, nil, true)
}

// AddChannel validates and creates a channel
func (c *Client) AddChannel(ctx context.Context, req models.AddChannelRequest) error {
	if req.Status == "" {
		req.Status = models.ChannelActive
	}
	if err := c.validate.Struct(req); err != nil {
		return fmt.Errorf("invalid channel: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/admin/add_channel", req, nil, true)
}
