// Package server defines the event payloads exchanged with chat clients and
// the helpers that build them.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event type tags sent to clients.
const (
	EventUserJoined = "user_joined"
	EventUserLeft   = "user_left"
	EventMessage    = "message"
)

// ErrMalformedPayload reports an inbound frame that could not be parsed as a
// JSON object. The connection stays open; the frame is discarded.
var ErrMalformedPayload = errors.New("malformed payload")

// Event is the outbound payload broadcast to every member of a room.
// Chat events carry Content and RoomID; join/leave notices carry a
// human-readable Message instead.
type Event struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	RoomID    int64  `json:"room_id,omitempty"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message,omitempty"`
}

func newJoinedEvent(s Session) Event {
	return Event{
		Type:      EventUserJoined,
		UserID:    s.UserID,
		Username:  s.Username,
		Timestamp: time.Now().Format(time.RFC3339),
		Message:   fmt.Sprintf("%s joined the room :)", s.Username),
	}
}

func newLeftEvent(s Session) Event {
	return Event{
		Type:      EventUserLeft,
		UserID:    s.UserID,
		Username:  s.Username,
		Timestamp: time.Now().Format(time.RFC3339),
		Message:   fmt.Sprintf("%s left the room :(", s.Username),
	}
}

func newChatEvent(s Session, content string) Event {
	return Event{
		Type:      EventMessage,
		Content:   content,
		UserID:    s.UserID,
		Username:  s.Username,
		RoomID:    s.RoomID,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// parseInbound extracts the trimmed content field from a raw client frame.
// Unknown fields are ignored; a missing or non-string content comes back as
// the empty string, which callers drop. A frame that is not a JSON object at
// all is ErrMalformedPayload.
func parseInbound(raw []byte) (string, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	content, _ := fields["content"].(string)
	return strings.TrimSpace(content), nil
}
