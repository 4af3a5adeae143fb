package route

import "testing"

func TestConversationKeySymmetric(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"bob", "alice"},
		{"zed", "amy"},
		{"a", "a"},
	}
	for _, p := range pairs {
		if ConversationKey(p[0], p[1]) != ConversationKey(p[1], p[0]) {
			t.Errorf("key not symmetric for %q/%q", p[0], p[1])
		}
	}
	if got := ConversationKey("bob", "alice"); got != "alice-bob" {
		t.Errorf("expected alice-bob, got %q", got)
	}
}

func TestIsRoom(t *testing.T) {
	if !IsRoom("#general") {
		t.Error("expected #general to be a room")
	}
	if IsRoom("alice") {
		t.Error("expected alice not to be a room")
	}
}

func TestResolveRoom(t *testing.T) {
	d, err := Resolve("alice", "#general")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Kind != KindRoom {
		t.Fatalf("expected KindRoom, got %v", d.Kind)
	}
	if d.Room != "#general" {
		t.Errorf("expected room #general, got %q", d.Room)
	}
}

func TestResolveConversation(t *testing.T) {
	d, err := Resolve("bob", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Kind != KindConversation {
		t.Fatalf("expected KindConversation, got %v", d.Kind)
	}
	if d.ConvoKey != "alice-bob" {
		t.Errorf("expected key alice-bob, got %q", d.ConvoKey)
	}
	if d.Participants != [2]string{"bob", "alice"} {
		t.Errorf("unexpected participants: %v", d.Participants)
	}
}

func TestResolveInvalid(t *testing.T) {
	tests := []struct {
		name string
		dest string
	}{
		{"empty", ""},
		{"bare sigil", "#"},
		{"room with space", "#general room"},
		{"room with dot", "#gen.eral"},
		{"uppercase user", "Alice"},
		{"short user", "ab"},
		{"user with dot", "a.lice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Resolve("alice", tt.dest); err == nil {
				t.Errorf("expected error for %q, got nil", tt.dest)
			}
		})
	}
}

func TestValidNames(t *testing.T) {
	if !ValidRoomName("#general") || !ValidRoomName("#dev-team_1") {
		t.Error("expected valid room names to pass")
	}
	if ValidRoomName("general") {
		t.Error("expected sigil-less name to fail")
	}
	if !ValidUsername("alice_99") {
		t.Error("expected alice_99 to be valid")
	}
	if ValidUsername("#alice") {
		t.Error("expected #alice to be invalid")
	}
}
