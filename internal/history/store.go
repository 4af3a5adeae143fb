package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// messagePrefix keys one JSON document per message ID.
	messagePrefix = "message:"
	// partitionPrefix keys the per-room/per-conversation ordered index.
	partitionPrefix = "history:"
	// seqKey is the global append counter used as the sorted-set score, so
	// ordering is stable even when many messages share a timestamp.
	seqKey = "history:seq"
)

// Store persists messages in Redis: one document per message plus a sorted
// set per partition ordered by append sequence. No TTL is applied; messages
// live until explicitly deleted.
type Store struct {
	client *redis.Client
}

// NewStore creates a message store connected to Redis at addr.
func NewStore(addr string) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("history: redis connection failed: %w", err)
	}

	return &Store{client: client}, nil
}

// NewStoreWithClient wraps an existing Redis client. Used when the process
// shares one client across stores.
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Append persists a message. The message must carry its ID and partition;
// appending the same ID twice overwrites the document but keeps a single
// index entry.
func (s *Store) Append(ctx context.Context, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("history: marshal message: %w", err)
	}

	seq, err := s.client.Incr(ctx, seqKey).Result()
	if err != nil {
		return fmt.Errorf("history: next sequence: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, messagePrefix+msg.ID, data, 0)
	pipe.ZAdd(ctx, partitionPrefix+msg.PartitionKey(), redis.Z{
		Score:  float64(seq),
		Member: msg.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

// FindByID retrieves a message by ID. Returns nil if not found.
func (s *Store) FindByID(ctx context.Context, id string) (*Message, error) {
	data, err := s.client.Get(ctx, messagePrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: find %s: %w", id, err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("history: unmarshal %s: %w", id, err)
	}
	return &msg, nil
}

// DeleteByID permanently removes a message and its index entry. Deleting a
// message that does not exist is a no-op.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	msg, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if msg == nil {
		return nil
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, messagePrefix+id)
	pipe.ZRem(ctx, partitionPrefix+msg.PartitionKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("history: delete %s: %w", id, err)
	}
	return nil
}

// Window returns up to limit of the most recent messages in a partition,
// newest first. Callers reverse to oldest-first before delivery. An unknown
// partition yields an empty slice, not an error.
func (s *Store) Window(ctx context.Context, partition string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = WindowSize
	}

	ids, err := s.client.ZRevRange(ctx, partitionPrefix+partition, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("history: window %s: %w", partition, err)
	}
	if len(ids) == 0 {
		return []Message{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = messagePrefix + id
	}
	docs, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("history: window fetch %s: %w", partition, err)
	}

	messages := make([]Message, 0, len(docs))
	for _, doc := range docs {
		str, ok := doc.(string)
		if !ok {
			continue // index entry without a document; skip
		}
		var msg Message
		if err := json.Unmarshal([]byte(str), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Close closes the underlying Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client exposes the Redis client for sharing with other stores.
func (s *Store) Client() *redis.Client {
	return s.client
}
