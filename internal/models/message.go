package models

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// SenderKind classifies who authored a message
type SenderKind int

const (
	SenderSelf   SenderKind = iota // Sent from this client (local echo)
	SenderRemote                   // Received from another user
	SenderSystem                   // Generated by the client itself
)

// String returns a human-readable string representation of the sender kind
func (k SenderKind) String() string {
	switch k {
	case SenderSelf:
		return "self"
	case SenderRemote:
		return "remote"
	case SenderSystem:
		return "system"
	default:
		return "unknown"
	}
}

// UnknownRemote labels a remote sender whose frame carried no id
const UnknownRemote = "unknown"

// Sender identifies the author of a message
type Sender struct {
	Kind SenderKind `json:"kind"`
	Name string     `json:"name,omitempty"`
}

// Self returns the sender used for local echoes
func Self() Sender {
	return Sender{Kind: SenderSelf, Name: "You"}
}

// System returns the sender used for client-generated notices
func System() Sender {
	return Sender{Kind: SenderSystem, Name: "System"}
}

// Remote returns a remote sender, falling back to UnknownRemote for an empty id
func Remote(id string) Sender {
	if id == "" {
		id = UnknownRemote
	}
	return Sender{Kind: SenderRemote, Name: id}
}

// DisplayName returns the label shown next to the message
func (s Sender) DisplayName() string {
	switch s.Kind {
	case SenderSelf:
		return "You"
	case SenderSystem:
		return "System"
	default:
		return "User " + s.Name
	}
}

// seq orders messages created by this process
var seq atomic.Uint64

// Message is a canonical, render-ready chat message
type Message struct {
	ID        string    `json:"id"`
	Seq       uint64    `json:"seq"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Channel   string    `json:"channel"`
	CreatedAt time.Time `json:"created_at"`
	NonJSON   bool      `json:"non_json,omitempty"` // Inbound frame was not a JSON object
}

// NewMessage creates a message with a fresh id and the next sequence number
func NewMessage(sender Sender, channel, text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Seq:       seq.Add(1),
		Sender:    sender,
		Text:      text,
		Channel:   channel,
		CreatedAt: time.Now(),
	}
}

// NewSystemMessage creates a client-generated notice for a channel
func NewSystemMessage(channel, text string) Message {
	return NewMessage(System(), channel, text)
}

// IsOwn returns true if the message was authored by this client
func (m Message) IsOwn() bool {
	return m.Sender.Kind == SenderSelf
}

// IsSystemMessage returns true if this is a client-generated notice
func (m Message) IsSystemMessage() bool {
	return m.Sender.Kind == SenderSystem
}

// PinnedMessage is the snapshot of a message kept in the pin set.
// Messages themselves are not persisted, so the snapshot carries what
// is needed to show the pin after a restart.
type PinnedMessage struct {
	ID       string    `json:"id"`
	Channel  string    `json:"channel"`
	Sender   Sender    `json:"sender"`
	Text     string    `json:"text"`
	PinnedAt time.Time `json:"pinned_at"`
}

// Snapshot returns the pin snapshot of a message
func (m Message) Snapshot() PinnedMessage {
	return PinnedMessage{
		ID:       m.ID,
		Channel:  m.Channel,
		Sender:   m.Sender,
		Text:     m.Text,
		PinnedAt: time.Now(),
	}
}
