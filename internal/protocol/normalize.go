package protocol

import (
	"encoding/json"
	"strconv"

	"github.com/concord-chat/livechat/internal/models"
)

// Normalized is the canonical result of normalizing one inbound frame
type Normalized struct {
	Text    string
	Sender  models.Sender
	Kind    FrameKind
	Literal bool // Text is the raw frame because no text field could be extracted
}

// NonJSON reports whether the frame was not a structured JSON object.
// Such frames are not errors but indicate protocol drift.
func (n Normalized) NonJSON() bool {
	return n.Kind != FrameJSONObject
}

// Normalize maps a raw frame to canonical text and a sender.
//
// Object frames use a string "text" field, then a nested "text.text"
// string, and otherwise the raw frame verbatim. JSON string frames use
// the "text" field of the object they encode, if any, else the decoded
// string. Anything else is taken literally. Senders are always remote,
// named by the object's "id" field when present.
func Normalize(raw string) Normalized {
	return NormalizeFrame(ParseFrame(raw))
}

// NormalizeFrame is Normalize over an already classified frame
func NormalizeFrame(frame RawFrame) Normalized {
	switch frame.Kind {
	case FrameJSONObject:
		n := Normalized{Kind: frame.Kind, Sender: models.Remote(idField(frame.Object))}
		if text, ok := textField(frame.Object); ok {
			n.Text = text
			return n
		}
		n.Text = frame.Raw
		n.Literal = true
		return n

	case FrameJSONText:
		n := Normalized{Kind: frame.Kind, Sender: models.Remote("")}
		var inner map[string]any
		if err := json.Unmarshal([]byte(frame.Text), &inner); err == nil {
			if text, ok := inner["text"].(string); ok {
				n.Text = text
				return n
			}
		}
		n.Text = frame.Text
		return n

	default:
		return Normalized{
			Text:    frame.Raw,
			Sender:  models.Remote(""),
			Kind:    FramePlainText,
			Literal: true,
		}
	}
}

// textField extracts "text" or the double-wrapped "text.text"
func textField(obj map[string]any) (string, bool) {
	switch v := obj["text"].(type) {
	case string:
		return v, true
	case map[string]any:
		if inner, ok := v["text"].(string); ok {
			return inner, true
		}
	}
	return "", false
}

// idField returns the sender id of an object frame, if any
func idField(obj map[string]any) string {
	switch v := obj["id"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
