package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseClientMessage_Authenticate(t *testing.T) {
	data := []byte(`{"type":"authenticate","token":"abc.def.ghi"}`)

	msgType, msg, err := ParseClientMessage(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeAuthenticate {
		t.Errorf("expected type %q, got %q", TypeAuthenticate, msgType)
	}
	m, ok := msg.(AuthenticateMsg)
	if !ok {
		t.Fatalf("expected AuthenticateMsg, got %T", msg)
	}
	if m.Token != "abc.def.ghi" {
		t.Errorf("expected token abc.def.ghi, got %q", m.Token)
	}
}

func TestParseClientMessage_AllTypes(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantType string
	}{
		{"join_room", `{"type":"join_room","room":"#random"}`, TypeJoinRoom},
		{"load_dm_history", `{"type":"load_dm_history","user":"bob"}`, TypeLoadDMHistory},
		{"chat_message", `{"type":"chat_message","text":"hi"}`, TypeChatMessage},
		{"private_message", `{"type":"private_message","to":"bob","text":"hi"}`, TypePrivateMsg},
		{"delete_message", `{"type":"delete_message","target":"#general","id":"m1"}`, TypeDeleteMessage},
		{"ping", `{"type":"ping"}`, TypePing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgType, msg, err := ParseClientMessage([]byte(tt.data))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msgType != tt.wantType {
				t.Errorf("expected type %q, got %q", tt.wantType, msgType)
			}
			if msg == nil {
				t.Error("expected non-nil decoded message")
			}
		})
	}
}

func TestParseClientMessage_FieldDecoding(t *testing.T) {
	_, msg, err := ParseClientMessage([]byte(`{"type":"private_message","to":"bob","text":"hello there"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := msg.(PrivateMessageMsg)
	if m.To != "bob" || m.Text != "hello there" {
		t.Errorf("unexpected fields: %+v", m)
	}
}

func TestParseClientMessage_UnknownType(t *testing.T) {
	_, _, err := ParseClientMessage([]byte(`{"type":"user_directory"}`))
	if err == nil {
		t.Fatal("expected error for server-only type, got nil")
	}
	if !strings.Contains(err.Error(), "unknown client message type") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseClientMessage_InvalidJSON(t *testing.T) {
	_, _, err := ParseClientMessage([]byte(`{not json`))
	if err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

func TestParseClientMessage_MissingType(t *testing.T) {
	_, _, err := ParseClientMessage([]byte(`{"text":"hi"}`))
	if err == nil {
		t.Fatal("expected error for missing type, got nil")
	}
}

func TestNewServerMessage_InjectsType(t *testing.T) {
	data, err := NewServerMessage(TypeSystemMessage, SystemMessageMsg{Text: "Welcome, alice!"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["type"] != TypeSystemMessage {
		t.Errorf("expected type %q, got %v", TypeSystemMessage, decoded["type"])
	}
	if decoded["text"] != "Welcome, alice!" {
		t.Errorf("expected text to survive, got %v", decoded["text"])
	}
}

func TestNewServerMessage_OverridesWrongType(t *testing.T) {
	// A stale Type field on the payload struct must not leak through.
	data, err := NewServerMessage(TypePong, PongMsg{Type: "something_else"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["type"] != TypePong {
		t.Errorf("expected type %q, got %v", TypePong, decoded["type"])
	}
}

func TestNewServerMessage_Directory(t *testing.T) {
	payload := UserDirectoryMsg{
		Users: []DirectoryEntry{
			{Username: "alice", Status: "Available", IsOnline: true},
			{Username: "bob", Status: "Away", IsOnline: false},
		},
	}
	data, err := NewServerMessage(TypeUserDirectory, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded UserDirectoryMsg
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if len(decoded.Users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(decoded.Users))
	}
	if decoded.Users[0].Username != "alice" || !decoded.Users[0].IsOnline {
		t.Errorf("unexpected first entry: %+v", decoded.Users[0])
	}
}
