// Package api is the REST client for the chat backend: login, token
// test and the admin console endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/concord-chat/livechat/internal/models"
	"github.com/concord-chat/livechat/internal/observ"
	"github.com/concord-chat/livechat/internal/session"
	"github.com/concord-chat/livechat/pkg/crypto"
)

var (
	// ErrAuthFailure means the backend rejected the credentials or token.
	// The session has been cleared when it is returned.
	ErrAuthFailure = errors.New("authentication failed")

	// ErrUnreachable means every attempt failed before a response arrived
	ErrUnreachable = errors.New("could not reach the server")

	// ErrInvalidResponse means the backend answered with an unexpected body
	ErrInvalidResponse = errors.New("invalid server response")
)

// HTTPError is a non-2xx response from a reachable backend
type HTTPError struct {
	StatusCode int
	Detail     string
}

func (e *HTTPError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("HTTP error! Status: %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Detail)
}

// Client calls the backend's REST endpoints
type Client struct {
	baseURL  string
	http     *http.Client
	session  *session.Context
	retry    *RetryStrategy
	validate *validator.Validate
	logger   *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetry sets the retry strategy for network failures
func WithRetry(rs *RetryStrategy) Option {
	return func(c *Client) { c.retry = rs }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for baseURL bound to sess
func NewClient(baseURL string, sess *session.Context, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		http:     &http.Client{Timeout: 10 * time.Second},
		session:  sess,
		retry:    DefaultRetryStrategy(),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = observ.OrNop(c.logger).Named("api")
	return c
}

// Session returns the session the client authenticates with
func (c *Client) Session() *session.Context {
	return c.session
}

// Credentials is the login form
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginResponse is the body of a successful login. Older backends
// return the token as "token".
type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	Token       string       `json:"token"`
	User        *models.User `json:"user"`
}

// LoginResult is what a successful login produced
type LoginResult struct {
	User     *models.User
	Identity *session.Identity
}

// Landing returns where the user should go after login
func (r *LoginResult) Landing() string {
	role := r.Identity.Role
	if r.User != nil && r.User.RoleName() != "" {
		role = r.User.RoleName()
	}
	switch {
	case models.IsAdminRole(role):
		return "admin"
	case role == models.RoleTeacher:
		return "teacher"
	default:
		return "chat"
	}
}

// Login validates creds, authenticates and starts the session
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	if err := c.validate.Struct(creds); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", err)
	}

	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, "/login", creds, &resp, false); err != nil {
		return nil, err
	}

	token := resp.AccessToken
	if token == "" {
		token = resp.Token
	}
	if token == "" {
		return nil, errors.Wrap(ErrInvalidResponse, "login response has no token")
	}

	identity, err := c.session.Init(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("token received but could not be used: %w", err)
	}

	c.logger.Info("logged in",
		zap.String("user_id", identity.Subject),
		zap.String("role", identity.Role),
		zap.String("token", crypto.Fingerprint(token)))

	return &LoginResult{User: resp.User, Identity: identity}, nil
}

// Logout clears the session. Pins and other client state are kept.
func (c *Client) Logout(ctx context.Context) error {
	return c.session.Clear(ctx)
}

// ProtectedResponse is the body of the token test endpoint
type ProtectedResponse struct {
	Message string `json:"message"`
}

// TestToken calls the protected route with the current token. A
// rejected token clears the session.
func (c *Client) TestToken(ctx context.Context) (*ProtectedResponse, error) {
	var resp ProtectedResponse
	if err := c.do(ctx, http.MethodPost, "/protected", nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do performs one API call, retrying network failures. HTTP error
// statuses are returned at once.
func (c *Client) do(ctx context.Context, method, path string, body, out any, authed bool) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return errors.Wrapf(err, "encode %s %s", method, path)
		}
	}

	token := ""
	if authed {
		token = c.session.Token()
		if token == "" {
			return session.ErrNoSession
		}
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		status, data, err := c.roundTrip(ctx, method, path, payload, token)
		if err == nil {
			return c.handleResponse(ctx, method, path, status, data, out)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = err
		if !c.retry.ShouldRetry(attempt) {
			break
		}
		delay := c.retry.NextDelay(attempt)
		c.logger.Warn("request failed, retrying",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := wait(ctx, delay); err != nil {
			return err
		}
	}

	c.logger.Error("server unreachable", zap.String("path", path), zap.Error(lastErr))
	return fmt.Errorf("%w at %s: %w", ErrUnreachable, c.baseURL, lastErr)
}

// roundTrip sends one request. A returned error means no response was received.
func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, token string) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "build %s %s", method, path)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "read %s %s", method, path)
	}
	return resp.StatusCode, data, nil
}

// handleResponse maps a status and body onto out or an error
func (c *Client) handleResponse(ctx context.Context, method, path string, status int, data []byte, out any) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		c.logger.Warn("request rejected, clearing session",
			zap.String("path", path),
			zap.Int("status", status))
		if err := c.session.Clear(ctx); err != nil {
			c.logger.Error("failed to clear session", zap.Error(err))
		}
		return fmt.Errorf("%w: %w", ErrAuthFailure, &HTTPError{StatusCode: status, Detail: detail(data)})
	}

	if status < 200 || status > 299 {
		if status == http.StatusMethodNotAllowed {
			return &HTTPError{StatusCode: status, Detail: fmt.Sprintf("Method Not Allowed. Check HTTP method for %s.", path)}
		}
		return &HTTPError{StatusCode: status, Detail: detail(data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrInvalidResponse, method, path, err)
	}
	return nil
}

// detail extracts a readable error message from an error body
func detail(data []byte) string {
	text := strings.TrimSpace(string(data))
	if strings.HasPrefix(text, "{") {
		var body struct {
			Detail any    `json:"detail"`
			Error  string `json:"error"`
		}
		if json.Unmarshal(data, &body) == nil {
			switch d := body.Detail.(type) {
			case string:
				return d
			case nil:
			default:
				if b, err := json.Marshal(d); err == nil {
					return string(b)
				}
			}
			if body.Error != "" {
				return body.Error
			}
		}
	}
	return text
}
