package protocol

import (
	"encoding/json"
	"strings"
)

// FrameKind tags the shape of a raw inbound frame
type FrameKind int

const (
	FramePlainText  FrameKind = iota // Not JSON, or JSON that is neither object nor string
	FrameJSONObject                  // A JSON object
	FrameJSONText                    // A JSON-encoded string
)

// String returns a human-readable string representation of the frame kind
func (k FrameKind) String() string {
	switch k {
	case FramePlainText:
		return "plain"
	case FrameJSONObject:
		return "object"
	case FrameJSONText:
		return "json-text"
	default:
		return "unknown"
	}
}

// RawFrame is one inbound frame classified by shape.
// Exactly one of Object or Text is meaningful, depending on Kind.
// Raw always holds the frame as received.
type RawFrame struct {
	Kind   FrameKind
	Object map[string]any
	Text   string
	Raw    string
}

// ParseFrame classifies a raw frame. It never fails.
func ParseFrame(raw string) RawFrame {
	frame := RawFrame{Kind: FramePlainText, Text: raw, Raw: raw}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return frame
	}

	switch v := value.(type) {
	case map[string]any:
		frame.Kind = FrameJSONObject
		frame.Object = v
		frame.Text = ""
	case string:
		frame.Kind = FrameJSONText
		frame.Text = v
	}
	return frame
}

// OutboundFrame is the payload written for a chat send
type OutboundFrame struct {
	Text    string `json:"text"`
	Channel string `json:"channel"`
}

// NewOutboundFrame encodes a send payload
func NewOutboundFrame(text, channel string) ([]byte, error) {
	return json.Marshal(OutboundFrame{Text: text, Channel: channel})
}

// DecodeOutboundFrame decodes a send payload; used by the dev backend
func DecodeOutboundFrame(data []byte) (*OutboundFrame, error) {
	var frame OutboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, err
	}
	frame.Channel = strings.TrimSpace(frame.Channel)
	return &frame, nil
}

// BroadcastFrame is what the dev backend relays to other connected users
type BroadcastFrame struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Channel string `json:"channel,omitempty"`
}
