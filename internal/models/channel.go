package models

import (
	"github.com/google/uuid"
)

// Default channels offered by the chat view
const (
	ChannelGeneral = "general"
	ChannelRandom  = "random"
)

// DefaultChannels returns the channels shown when none are configured
func DefaultChannels() []string {
	return []string{ChannelGeneral, ChannelRandom}
}

// ChannelStatus is the admin-controlled availability of a channel
type ChannelStatus string

const (
	ChannelActive   ChannelStatus = "active"
	ChannelInactive ChannelStatus = "inactive"
)

// Channel represents a chat channel as returned by the admin endpoints
type Channel struct {
	ID     ID            `json:"id"`
	Name   string        `json:"name"`
	Status ChannelStatus `json:"status"`
}

// NewChannel creates an active channel with a generated id
func NewChannel(name string) *Channel {
	return &Channel{
		ID:     ID(uuid.NewString()),
		Name:   name,
		Status: ChannelActive,
	}
}

// AddChannelRequest is the payload of POST /admin/add_channel
type AddChannelRequest struct {
	Name   string        `json:"name" validate:"required,min=1,max=64"`
	Status ChannelStatus `json:"status" validate:"required,oneof=active inactive"`
}
