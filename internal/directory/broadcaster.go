// Package directory builds and broadcasts the user directory: every known
// account merged with live presence, pushed to all connections whenever
// someone comes online, goes offline, or changes their profile.
package directory

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/parley/chat-app/internal/identity"
	"github.com/parley/chat-app/internal/metrics"
	"github.com/parley/chat-app/internal/presence"
	"github.com/parley/chat-app/internal/protocol"
)

// ProfileSource lists every registered user's profile.
type ProfileSource interface {
	ListProfiles(ctx context.Context) ([]identity.Profile, error)
}

// Publisher delivers a payload to every connection on every instance.
type Publisher interface {
	PublishBroadcast(data []byte) error
}

// Broadcaster assembles directory snapshots and pushes them out.
type Broadcaster struct {
	users    ProfileSource
	presence *presence.Registry
	bus      Publisher
	log      zerolog.Logger
}

// NewBroadcaster wires a directory broadcaster.
func NewBroadcaster(users ProfileSource, reg *presence.Registry, bus Publisher, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{users: users, presence: reg, bus: bus, log: log}
}

// Snapshot builds the current directory: all registered users with their
// online flag, online users first, each group sorted by username.
func (b *Broadcaster) Snapshot(ctx context.Context) ([]protocol.DirectoryEntry, error) {
	profiles, err := b.users.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("directory: list profiles: %w", err)
	}
	online := b.presence.Snapshot()

	entries := make([]protocol.DirectoryEntry, 0, len(profiles))
	for _, p := range profiles {
		_, isOnline := online[p.Username]
		entries = append(entries, protocol.DirectoryEntry{
			Username:  p.Username,
			Status:    p.Status,
			AvatarURL: p.AvatarURL,
			IsOnline:  isOnline,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsOnline != entries[j].IsOnline {
			return entries[i].IsOnline
		}
		return entries[i].Username < entries[j].Username
	})
	return entries, nil
}

// Publish builds a snapshot and broadcasts it to every connection. Failures
// are logged and returned; a missed directory push is recoverable since the
// next presence change triggers another.
func (b *Broadcaster) Publish(ctx context.Context) error {
	entries, err := b.Snapshot(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("directory snapshot failed")
		return err
	}

	data, err := protocol.NewServerMessage(protocol.TypeUserDirectory, protocol.UserDirectoryMsg{
		Users: entries,
	})
	if err != nil {
		return fmt.Errorf("directory: build message: %w", err)
	}

	if err := b.bus.PublishBroadcast(data); err != nil {
		b.log.Error().Err(err).Msg("directory broadcast failed")
		return fmt.Errorf("directory: broadcast: %w", err)
	}

	metrics.DirectoryBroadcasts.Inc()
	metrics.OnlineUsers.Set(float64(b.presence.Count()))
	return nil
}
