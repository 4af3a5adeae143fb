// Package protocol defines the WebSocket event types and structures exchanged
// between the chat client and server. All events are serialized as JSON and
// follow a consistent envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Event type constants
// ---------------------------------------------------------------------------

// Client -> Server event types.
const (
	TypeAuthenticate  = "authenticate"
	TypeJoinRoom      = "join_room"
	TypeLoadDMHistory = "load_dm_history"
	TypeChatMessage   = "chat_message"
	TypePrivateMsg    = "private_message"
	TypeDeleteMessage = "delete_message"
	TypePing          = "ping"
)

// Server -> Client event types. TypeChatMessage and TypePrivateMsg are used in
// both directions: inbound they carry the text to send, outbound the full
// persisted message.
const (
	TypeAuthError      = "auth_error"
	TypeSystemMessage  = "system_message"
	TypeLoadHistory    = "load_history"
	TypeMessageDeleted = "message_deleted"
	TypeUserDirectory  = "user_directory"
	TypeUserSettings   = "user_settings"
	TypeProfileUpdated = "profile_updated"
	TypeError          = "error"
	TypePong           = "pong"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the event type and the raw JSON payload for deferred parsing
// into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server event structs
// ---------------------------------------------------------------------------

// AuthenticateMsg binds a freshly opened connection to an identity using the
// signed token obtained from the login endpoint.
type AuthenticateMsg struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// JoinRoomMsg switches the connection's active room.
type JoinRoomMsg struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

// LoadDMHistoryMsg requests the recent conversation window with another user.
type LoadDMHistoryMsg struct {
	Type string `json:"type"`
	User string `json:"user"`
}

// ChatMessageMsg is a text message for the connection's current room.
type ChatMessageMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// PrivateMessageMsg is a direct text message to another user.
type PrivateMessageMsg struct {
	Type string `json:"type"`
	To   string `json:"to"`
	Text string `json:"text"`
}

// DeleteMessageMsg asks the server to delete one of the caller's own
// messages. Target names the room (with sigil) or the other conversation
// participant; it is accepted for wire compatibility with existing clients
// but ignored, since the server derives the audience from the stored
// message itself.
type DeleteMessageMsg struct {
	Type   string `json:"type"`
	Target string `json:"target"`
	ID     string `json:"id"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client event structs
// ---------------------------------------------------------------------------

// AuthErrorMsg is sent before the server terminates a connection whose
// authenticate failed. The client is expected to discard its stored token.
type AuthErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// SystemMessageMsg is a human-readable notice (welcome, join, leave).
type SystemMessageMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// LoadHistoryMsg delivers a history window, oldest first. The elements are
// full message objects as persisted.
type LoadHistoryMsg struct {
	Type     string            `json:"type"`
	Messages []json.RawMessage `json:"messages"`
}

// ChatEventMsg wraps a persisted message for live delivery. It serves both
// chat_message (room) and private_message (conversation) outbound events.
type ChatEventMsg struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
}

// MessageDeletedMsg notifies the audience of a message that it was deleted.
type MessageDeletedMsg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// DirectoryEntry is one user in the directory snapshot.
type DirectoryEntry struct {
	Username  string `json:"username"`
	Status    string `json:"status"`
	AvatarURL string `json:"avatar_url"`
	IsOnline  bool   `json:"is_online"`
}

// UserDirectoryMsg carries the full directory snapshot, online users first,
// each group sorted by name.
type UserDirectoryMsg struct {
	Type  string           `json:"type"`
	Users []DirectoryEntry `json:"users"`
}

// UserSettingsMsg pushes the caller's persisted preferences right after a
// successful authenticate.
type UserSettingsMsg struct {
	Type       string `json:"type"`
	Background string `json:"background"`
}

// ProfileUpdatedMsg announces a profile change to every connection.
type ProfileUpdatedMsg struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	Status    string `json:"status"`
	AvatarURL string `json:"avatar_url"`
}

// ErrorMsg is sent by the server to communicate a non-fatal error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client event.
// It returns the event type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only event types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeAuthenticate:
		var m AuthenticateMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeJoinRoom:
		var m JoinRoomMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLoadDMHistory:
		var m LoadDMHistoryMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeChatMessage:
		var m ChatMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePrivateMsg:
		var m PrivateMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeDeleteMessage:
		var m DeleteMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server event.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the *Msg structs; this function marshals it to JSON,
// injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
