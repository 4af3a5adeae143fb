// Package history defines the persisted message model and the Redis-backed
// durable message store. Messages are immutable once created except for
// deletion; history is read back in fixed-size windows per room or
// conversation.
package history

import (
	"time"

	"github.com/google/uuid"

	"github.com/parley/chat-app/internal/route"
)

// Message kinds.
const (
	KindText = "text"
	KindFile = "file"
)

// WindowSize is the number of messages in a history window.
const WindowSize = 50

// FileInfo describes an uploaded file attached to a kind=file message.
type FileInfo struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
}

// Message is a single chat message. Exactly one of Text/File is populated,
// matching Kind, and exactly one of Room/ConvoID is set, matching the
// destination. The ID is assigned at creation and is globally unique.
type Message struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Room      string    `json:"room,omitempty"`
	ConvoID   string    `json:"convo_id,omitempty"`
	From      string    `json:"from"`
	To        string    `json:"to,omitempty"`
	Text      string    `json:"text,omitempty"`
	File      *FileInfo `json:"file,omitempty"`
	Timestamp string    `json:"ts"`
}

// PartitionKey returns the history partition this message belongs to: the
// room name for room messages, the conversation key for direct messages.
func (m *Message) PartitionKey() string {
	if m.Room != "" {
		return m.Room
	}
	return m.ConvoID
}

// IsDirect reports whether the message belongs to a two-party conversation.
func (m *Message) IsDirect() bool {
	return m.Room == ""
}

// NewRoomText creates a text message addressed to a room.
func NewRoomText(from, room, text string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Kind:      KindText,
		Room:      room,
		From:      from,
		Text:      text,
		Timestamp: Timestamp(),
	}
}

// NewDirectText creates a text message for the two-party conversation
// between from and to.
func NewDirectText(from, to, text string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Kind:      KindText,
		ConvoID:   route.ConversationKey(from, to),
		From:      from,
		To:        to,
		Text:      text,
		Timestamp: Timestamp(),
	}
}

// NewRoomFile creates a file message addressed to a room.
func NewRoomFile(from, room string, fi FileInfo) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Kind:      KindFile,
		Room:      room,
		From:      from,
		File:      &fi,
		Timestamp: Timestamp(),
	}
}

// NewDirectFile creates a file message for a two-party conversation.
func NewDirectFile(from, to string, fi FileInfo) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Kind:      KindFile,
		ConvoID:   route.ConversationKey(from, to),
		From:      from,
		To:        to,
		File:      &fi,
		Timestamp: Timestamp(),
	}
}

// displayLocation pins timestamps to a fixed timezone so that a message reads
// the same wherever the server runs. Falls back to UTC when the tz database
// is unavailable.
var displayLocation = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// Timestamp renders the current time as the human-readable string stored on
// every message, e.g. "2 Jan 2006, 3:04 pm".
func Timestamp() string {
	return time.Now().In(displayLocation).Format("2 Jan 2006, 3:04 pm")
}
