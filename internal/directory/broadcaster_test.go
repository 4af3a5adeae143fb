package directory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"github.com/parley/chat-app/internal/identity"
	"github.com/parley/chat-app/internal/presence"
	"github.com/parley/chat-app/internal/protocol"
)

type fakeProfiles struct {
	profiles []identity.Profile
}

func (f *fakeProfiles) ListProfiles(ctx context.Context) ([]identity.Profile, error) {
	return f.profiles, nil
}

type capturePublisher struct {
	last []byte
}

func (p *capturePublisher) PublishBroadcast(data []byte) error {
	p.last = data
	return nil
}

func TestSnapshotOrdering(t *testing.T) {
	users := &fakeProfiles{profiles: []identity.Profile{
		{Username: "alice", Status: "Available"},
		{Username: "bob", Status: "Busy"},
		{Username: "carol", Status: "Available"},
		{Username: "dave", Status: "Away"},
	}}
	reg := presence.NewRegistry()
	reg.Register("carol", "conn-1")
	reg.Register("dave", "conn-2")

	b := NewBroadcaster(users, reg, &capturePublisher{}, zerolog.Nop())

	entries, err := b.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}

	want := []struct {
		username string
		online   bool
	}{
		{"carol", true},
		{"dave", true},
		{"alice", false},
		{"bob", false},
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, w := range want {
		if entries[i].Username != w.username || entries[i].IsOnline != w.online {
			t.Errorf("entry %d: got %s/online=%v, want %s/online=%v",
				i, entries[i].Username, entries[i].IsOnline, w.username, w.online)
		}
	}
}

func TestPublishBroadcastsDirectory(t *testing.T) {
	users := &fakeProfiles{profiles: []identity.Profile{
		{Username: "alice", Status: "Available", AvatarURL: "http://a/x.png"},
	}}
	reg := presence.NewRegistry()
	reg.Register("alice", "conn-1")
	pub := &capturePublisher{}

	b := NewBroadcaster(users, reg, pub, zerolog.Nop())
	if err := b.Publish(context.Background()); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if pub.last == nil {
		t.Fatal("expected a broadcast payload")
	}

	var msg protocol.UserDirectoryMsg
	if err := json.Unmarshal(pub.last, &msg); err != nil {
		t.Fatalf("unmarshal broadcast: %v", err)
	}
	if msg.Type != protocol.TypeUserDirectory {
		t.Errorf("unexpected type %q", msg.Type)
	}
	if len(msg.Users) != 1 || !msg.Users[0].IsOnline || msg.Users[0].AvatarURL != "http://a/x.png" {
		t.Errorf("unexpected directory payload: %+v", msg.Users)
	}
}

func TestSnapshotEmpty(t *testing.T) {
	b := NewBroadcaster(&fakeProfiles{}, presence.NewRegistry(), &capturePublisher{}, zerolog.Nop())

	entries, err := b.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty directory, got %d", len(entries))
	}
}
