// Package messaging provides a NATS client wrapper for fanning chat traffic
// out across server instances. Every room message, direct message, and
// directory update travels through NATS so that any number of socket servers
// can share one logical chat service.
package messaging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATS subject patterns.
const (
	SubjectRoomPrefix = "room." // + <room name without sigil>
	SubjectUserPrefix = "user." // + <username>
	SubjectBroadcast  = "broadcast"
)

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	log  zerolog.Logger
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "parley",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig, log zerolog.Logger) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Info().Str("url", nc.ConnectedUrl()).Msg("nats connected")

	return &NATSClient{
		conn: nc,
		log:  log,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// roomSubject maps a room name to its subject. The leading "#" sigil is
// stripped; the remaining characters are already subject-safe because room
// names exclude '.', '*', '>' and whitespace.
func roomSubject(room string) string {
	return SubjectRoomPrefix + strings.TrimPrefix(room, "#")
}

// PublishRoom publishes data to a room's subject.
func (c *NATSClient) PublishRoom(room string, data []byte) error {
	return c.conn.Publish(roomSubject(room), data)
}

// PublishUser publishes data to a user's subject. The message is delivered
// on whichever server instance currently holds that user's connection.
func (c *NATSClient) PublishUser(username string, data []byte) error {
	return c.conn.Publish(SubjectUserPrefix+username, data)
}

// PublishBroadcast publishes data to every connection on every instance.
func (c *NATSClient) PublishBroadcast(data []byte) error {
	return c.conn.Publish(SubjectBroadcast, data)
}

// SubscribeRooms subscribes to all room traffic with a single wildcard
// subscription. The handler receives the room name (sigil restored) and the
// raw payload.
func (c *NATSClient) SubscribeRooms(handler func(room string, data []byte)) error {
	subject := SubjectRoomPrefix + ">"
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		room := "#" + strings.TrimPrefix(msg.Subject, SubjectRoomPrefix)
		handler(room, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()
	return nil
}

// SubscribeUser subscribes to a user's subject. Subscriptions are keyed by
// username; subscribing again for the same username replaces the previous
// subscription, which is what a reconnecting user needs.
func (c *NATSClient) SubscribeUser(username string, handler func(data []byte)) error {
	subject := SubjectUserPrefix + username
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	if prev, ok := c.subs[subject]; ok {
		prev.Unsubscribe()
	}
	c.subs[subject] = sub
	c.mu.Unlock()
	return nil
}

// UnsubscribeUser drops a user's subject subscription. Unsubscribing a user
// with no active subscription is a no-op.
func (c *NATSClient) UnsubscribeUser(username string) error {
	subject := SubjectUserPrefix + username

	c.mu.Lock()
	sub, ok := c.subs[subject]
	delete(c.subs, subject)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", subject, err)
	}
	return nil
}

// SubscribeBroadcast subscribes to the broadcast subject.
func (c *NATSClient) SubscribeBroadcast(handler func(data []byte)) error {
	sub, err := c.conn.Subscribe(SubjectBroadcast, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", SubjectBroadcast, err)
	}

	c.mu.Lock()
	c.subs[SubjectBroadcast] = sub
	c.mu.Unlock()
	return nil
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			c.log.Warn().Err(err).Str("subject", subject).Msg("nats drain failed")
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		c.log.Warn().Err(err).Msg("nats connection drain failed")
	}

	c.log.Info().Msg("nats client closed")
}
