package history

import (
	"encoding/json"
	"regexp"
	"testing"
)

func TestNewRoomText(t *testing.T) {
	msg := NewRoomText("alice", "#general", "hi")

	if msg.ID == "" {
		t.Error("expected a generated ID")
	}
	if msg.Kind != KindText {
		t.Errorf("expected kind text, got %q", msg.Kind)
	}
	if msg.Room != "#general" || msg.ConvoID != "" {
		t.Errorf("expected room partition only, got room=%q convo=%q", msg.Room, msg.ConvoID)
	}
	if msg.Text != "hi" || msg.File != nil {
		t.Error("expected text populated and file empty")
	}
	if msg.PartitionKey() != "#general" {
		t.Errorf("unexpected partition key %q", msg.PartitionKey())
	}
	if msg.IsDirect() {
		t.Error("room message reported as direct")
	}
}

func TestNewDirectText(t *testing.T) {
	msg := NewDirectText("bob", "alice", "hello")

	if msg.ConvoID != "alice-bob" {
		t.Errorf("expected convo key alice-bob, got %q", msg.ConvoID)
	}
	if msg.Room != "" {
		t.Errorf("expected no room, got %q", msg.Room)
	}
	if msg.To != "alice" || msg.From != "bob" {
		t.Errorf("unexpected endpoints from=%q to=%q", msg.From, msg.To)
	}
	if !msg.IsDirect() {
		t.Error("direct message not reported as direct")
	}
	if msg.PartitionKey() != "alice-bob" {
		t.Errorf("unexpected partition key %q", msg.PartitionKey())
	}
}

func TestNewFileMessages(t *testing.T) {
	fi := FileInfo{URL: "/uploads/a.png", Name: "a.png", MimeType: "image/png"}

	room := NewRoomFile("alice", "#general", fi)
	if room.Kind != KindFile || room.File == nil || room.Text != "" {
		t.Error("expected file populated and text empty on room file message")
	}
	if room.File.URL != "/uploads/a.png" {
		t.Errorf("unexpected file url %q", room.File.URL)
	}

	dm := NewDirectFile("alice", "bob", fi)
	if dm.ConvoID != "alice-bob" || dm.To != "bob" {
		t.Errorf("unexpected direct file message: %+v", dm)
	}
}

func TestMessageJSONShape(t *testing.T) {
	msg := NewRoomText("alice", "#general", "hi")
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	// Empty optional fields must be omitted entirely.
	for _, absent := range []string{"convo_id", "to", "file"} {
		if _, ok := m[absent]; ok {
			t.Errorf("expected %q to be omitted, got %v", absent, m[absent])
		}
	}
	for _, present := range []string{"id", "kind", "room", "from", "text", "ts"} {
		if _, ok := m[present]; !ok {
			t.Errorf("expected %q to be present", present)
		}
	}
}

func TestTimestampFormat(t *testing.T) {
	ts := Timestamp()
	// e.g. "31 Aug 2026, 11:42 pm"
	pattern := regexp.MustCompile(`^\d{1,2} [A-Z][a-z]{2} \d{4}, \d{1,2}:\d{2} (am|pm)$`)
	if !pattern.MatchString(ts) {
		t.Errorf("timestamp %q does not match expected shape", ts)
	}
}

func TestUniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		msg := NewRoomText("alice", "#general", "x")
		if seen[msg.ID] {
			t.Fatalf("duplicate ID %q", msg.ID)
		}
		seen[msg.ID] = true
	}
}
