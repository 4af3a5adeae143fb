package history

import (
	"context"
	"fmt"
	"testing"

	"github.com/redis/go-redis/v9"
)

// newTestStore creates a Store connected to a local Redis instance and wipes
// test keys before and after. Tests that call this helper require a running
// Redis on localhost:6379 and are skipped otherwise.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	clean := func() {
		for _, pattern := range []string{messagePrefix + "*", partitionPrefix + "test_*"} {
			iter := client.Scan(ctx, 0, pattern, 100).Iterator()
			for iter.Next(ctx) {
				client.Del(ctx, iter.Val())
			}
		}
	}
	clean()
	t.Cleanup(func() {
		clean()
		client.Close()
	})
	return NewStoreWithClient(client)
}

func TestAppendAndWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		msg := NewRoomText("alice", "test_room", fmt.Sprintf("msg-%d", i))
		if err := store.Append(ctx, msg); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	window, err := store.Window(ctx, "test_room", WindowSize)
	if err != nil {
		t.Fatalf("Window() error: %v", err)
	}
	if len(window) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(window))
	}
	// Newest first.
	if window[0].Text != "msg-3" || window[2].Text != "msg-1" {
		t.Errorf("window not newest-first: %q ... %q", window[0].Text, window[2].Text)
	}
}

func TestWindowLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < WindowSize+10; i++ {
		msg := NewRoomText("alice", "test_big", fmt.Sprintf("msg-%d", i))
		if err := store.Append(ctx, msg); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	window, err := store.Window(ctx, "test_big", WindowSize)
	if err != nil {
		t.Fatalf("Window() error: %v", err)
	}
	if len(window) != WindowSize {
		t.Fatalf("expected %d messages, got %d", WindowSize, len(window))
	}
	// The newest message must be first, the oldest 10 dropped.
	if window[0].Text != fmt.Sprintf("msg-%d", WindowSize+9) {
		t.Errorf("unexpected newest message %q", window[0].Text)
	}
	if window[len(window)-1].Text != "msg-10" {
		t.Errorf("unexpected oldest retained message %q", window[len(window)-1].Text)
	}
}

func TestWindowEmptyPartition(t *testing.T) {
	store := newTestStore(t)

	window, err := store.Window(context.Background(), "test_nothing_here", WindowSize)
	if err != nil {
		t.Fatalf("Window() error: %v", err)
	}
	if len(window) != 0 {
		t.Errorf("expected empty window, got %d entries", len(window))
	}
}

func TestFindByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	msg := NewDirectText("alice", "bob", "secret")
	if err := store.Append(ctx, msg); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	found, err := store.FindByID(ctx, msg.ID)
	if err != nil {
		t.Fatalf("FindByID() error: %v", err)
	}
	if found == nil {
		t.Fatal("expected message, got nil")
	}
	if found.Text != "secret" || found.ConvoID != "alice-bob" {
		t.Errorf("unexpected message: %+v", found)
	}

	missing, err := store.FindByID(ctx, "no-such-id")
	if err != nil {
		t.Fatalf("FindByID() error for missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing message, got %+v", missing)
	}
}

func TestDeleteByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	msg := NewRoomText("alice", "test_del", "doomed")
	if err := store.Append(ctx, msg); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	if err := store.DeleteByID(ctx, msg.ID); err != nil {
		t.Fatalf("DeleteByID() error: %v", err)
	}

	found, err := store.FindByID(ctx, msg.ID)
	if err != nil {
		t.Fatalf("FindByID() after delete error: %v", err)
	}
	if found != nil {
		t.Error("expected message gone after delete")
	}

	window, err := store.Window(ctx, "test_del", WindowSize)
	if err != nil {
		t.Fatalf("Window() after delete error: %v", err)
	}
	if len(window) != 0 {
		t.Errorf("expected empty window after delete, got %d", len(window))
	}

	// Deleting again is a no-op.
	if err := store.DeleteByID(ctx, msg.ID); err != nil {
		t.Errorf("repeat DeleteByID() error: %v", err)
	}
}
