// Package session is the application core: it binds authenticated identities
// to live connections, routes chat traffic between rooms and conversations,
// persists every message before fan-out, and keeps presence, membership, and
// the user directory in sync as connections come and go.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/parley/chat-app/internal/history"
	"github.com/parley/chat-app/internal/identity"
	"github.com/parley/chat-app/internal/metrics"
	"github.com/parley/chat-app/internal/presence"
	"github.com/parley/chat-app/internal/protocol"
	"github.com/parley/chat-app/internal/route"
)

// DefaultRoom is where every connection lands after authenticating.
const DefaultRoom = "#general"

// storeTimeout bounds every store call made from a message handler.
const storeTimeout = 3 * time.Second

// Sender delivers payloads to local connections and evicts them.
type Sender interface {
	SendMessage(connID string, data []byte) error
	CloseConnection(connID string)
}

// Bus is the cross-instance fan-out transport.
type Bus interface {
	PublishRoom(room string, data []byte) error
	PublishUser(username string, data []byte) error
	PublishBroadcast(data []byte) error
	SubscribeRooms(handler func(room string, data []byte)) error
	SubscribeUser(username string, handler func(data []byte)) error
	UnsubscribeUser(username string) error
	SubscribeBroadcast(handler func(data []byte)) error
}

// MessageStore is the durable message collaborator.
type MessageStore interface {
	Append(ctx context.Context, msg *history.Message) error
	FindByID(ctx context.Context, id string) (*history.Message, error)
	DeleteByID(ctx context.Context, id string) error
	Window(ctx context.Context, partition string, limit int) ([]history.Message, error)
}

// ProfileSource resolves a username to its stored profile.
type ProfileSource interface {
	GetProfile(ctx context.Context, username string) (*identity.Profile, error)
}

// TokenValidator checks a credential token and returns the identity it was
// issued for.
type TokenValidator interface {
	Validate(token string) (string, error)
}

// DirectoryPublisher pushes a fresh user directory to every connection.
type DirectoryPublisher interface {
	Publish(ctx context.Context) error
}

// roomEnvelope wraps a payload published to a room subject. Exclude names a
// connection that must not receive the payload (typically the sender of a
// join notice).
type roomEnvelope struct {
	Exclude string          `json:"exclude,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Hub coordinates everything that happens after a socket is upgraded:
// authentication, room membership, message routing, history windows,
// deletion, and disconnect cleanup.
type Hub struct {
	sender   Sender
	bus      Bus
	store    MessageStore
	users    ProfileSource
	tokens   TokenValidator
	dir      DirectoryPublisher
	presence *presence.Registry
	rooms    *Rooms
	ident    *identities
	log      zerolog.Logger
}

// NewHub wires a Hub from its collaborators.
func NewHub(sender Sender, bus Bus, store MessageStore, users ProfileSource,
	tokens TokenValidator, dir DirectoryPublisher, reg *presence.Registry,
	log zerolog.Logger) *Hub {
	return &Hub{
		sender:   sender,
		bus:      bus,
		store:    store,
		users:    users,
		tokens:   tokens,
		dir:      dir,
		presence: reg,
		rooms:    NewRooms(),
		ident:    newIdentities(),
		log:      log,
	}
}

// Start subscribes the hub to the fan-out subjects it consumes. Room traffic
// arrives on a single wildcard subscription; broadcast traffic goes to every
// authenticated connection on this instance.
func (h *Hub) Start() error {
	if err := h.bus.SubscribeRooms(h.handleRoomEvent); err != nil {
		return fmt.Errorf("session: subscribe rooms: %w", err)
	}
	if err := h.bus.SubscribeBroadcast(h.handleBroadcast); err != nil {
		return fmt.Errorf("session: subscribe broadcast: %w", err)
	}
	return nil
}

// handleRoomEvent delivers a room payload to every local member of the room,
// skipping the excluded connection if one is named.
func (h *Hub) handleRoomEvent(room string, data []byte) {
	var env roomEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.log.Warn().Err(err).Str("room", room).Msg("bad room envelope")
		return
	}

	for _, connID := range h.rooms.Members(room) {
		if connID == env.Exclude {
			continue
		}
		_ = h.sender.SendMessage(connID, env.Payload)
	}
}

// handleBroadcast delivers a payload to every authenticated local connection.
func (h *Hub) handleBroadcast(data []byte) {
	for _, connID := range h.ident.ConnIDs() {
		_ = h.sender.SendMessage(connID, data)
	}
}

// handleUserEvent delivers a user-addressed payload to whichever connection
// currently belongs to the username. Presence is consulted at delivery time,
// so a reconnect between publish and delivery still lands on the live
// connection.
func (h *Hub) handleUserEvent(username string) func(data []byte) {
	return func(data []byte) {
		connID, ok := h.presence.Lookup(username)
		if !ok {
			return
		}
		_ = h.sender.SendMessage(connID, data)
	}
}

// Authenticate binds a connection to the identity named by the token. On
// success the connection joins the default room and receives, in order, its
// settings, a welcome notice, and the room's history window; everyone else
// sees a join notice and a fresh directory. On failure the connection gets
// auth_error and is closed.
func (h *Hub) Authenticate(connID, token string) {
	username, err := h.tokens.Validate(token)
	if err != nil {
		h.rejectAuth(connID, "invalid or expired token")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	profile, err := h.users.GetProfile(ctx, username)
	if err != nil || profile == nil {
		h.rejectAuth(connID, "unknown account")
		return
	}

	// Last writer wins: a second login displaces the first connection.
	if prior := h.presence.Register(username, connID); prior != "" && prior != connID {
		h.evict(prior)
	}
	h.ident.Bind(connID, username)
	h.rooms.Join(connID, DefaultRoom)

	if err := h.bus.SubscribeUser(username, h.handleUserEvent(username)); err != nil {
		h.log.Error().Err(err).Str("user", username).Msg("user subscription failed")
	}

	h.sendEvent(connID, protocol.TypeUserSettings, protocol.UserSettingsMsg{
		Background: profile.Background,
	})
	h.sendEvent(connID, protocol.TypeSystemMessage, protocol.SystemMessageMsg{
		Text: fmt.Sprintf("Welcome, %s!", username),
	})
	h.sendHistoryWindow(connID, DefaultRoom)

	h.publishRoomNotice(DefaultRoom, connID,
		fmt.Sprintf("%s has joined the chat.", username))

	if err := h.dir.Publish(ctx); err != nil {
		h.log.Warn().Err(err).Msg("directory publish after login failed")
	}

	h.log.Info().Str("conn", connID).Str("user", username).Msg("authenticated")
}

// rejectAuth tells the connection why authentication failed, then closes it.
func (h *Hub) rejectAuth(connID, reason string) {
	h.sendEvent(connID, protocol.TypeAuthError, protocol.AuthErrorMsg{Message: reason})
	h.sender.CloseConnection(connID)
	h.log.Info().Str("conn", connID).Str("reason", reason).Msg("authentication rejected")
}

// evict notifies a displaced connection and closes it. Its disconnect
// cleanup runs through HandleDisconnect as usual; the conditional presence
// unregister there keeps it from clobbering the replacement entry.
func (h *Hub) evict(connID string) {
	h.sendEvent(connID, protocol.TypeSystemMessage, protocol.SystemMessageMsg{
		Text: "You have been signed out because your account connected from another device.",
	})
	h.sender.CloseConnection(connID)
	h.log.Info().Str("conn", connID).Msg("displaced by newer login")
}

// JoinRoom switches the connection's active room. Rejoining the current room
// is allowed and resends the history window.
func (h *Hub) JoinRoom(connID, room string) {
	username, ok := h.ident.Username(connID)
	if !ok {
		h.sendError(connID, "not_authenticated", "authenticate first")
		return
	}
	if !route.ValidRoomName(room) {
		h.sendError(connID, "invalid_room", "invalid room name")
		return
	}

	h.rooms.Join(connID, room)

	h.sendEvent(connID, protocol.TypeSystemMessage, protocol.SystemMessageMsg{
		Text: fmt.Sprintf("You joined the %s room.", strings.TrimPrefix(room, route.RoomSigil)),
	})
	h.sendHistoryWindow(connID, room)

	h.publishRoomNotice(room, connID,
		fmt.Sprintf("%s has joined this room.", username))
}

// LoadDMHistory sends the caller its recent conversation window with another
// user, oldest first.
func (h *Hub) LoadDMHistory(connID, other string) {
	username, ok := h.ident.Username(connID)
	if !ok {
		h.sendError(connID, "not_authenticated", "authenticate first")
		return
	}
	if !route.ValidUsername(other) {
		h.sendError(connID, "invalid_user", "invalid username")
		return
	}

	h.sendHistoryWindow(connID, route.ConversationKey(username, other))
}

// SendRoomMessage persists a text message to the connection's current room
// and fans it out to every member, sender included.
func (h *Hub) SendRoomMessage(connID, text string) {
	started := time.Now()

	username, ok := h.ident.Username(connID)
	if !ok {
		h.sendError(connID, "not_authenticated", "authenticate first")
		return
	}
	room, ok := h.rooms.Room(connID)
	if !ok {
		h.sendError(connID, "no_room", "join a room first")
		return
	}
	if strings.TrimSpace(text) == "" {
		return
	}
	if err := history.ValidateText(text); err != nil {
		h.sendError(connID, "invalid_message", err.Error())
		return
	}

	msg := history.NewRoomText(username, room, text)
	payload, err := h.persistAndWrap(msg, protocol.TypeChatMessage)
	if err != nil {
		h.sendError(connID, "send_failed", "message could not be delivered")
		return
	}

	if err := h.publishToRoom(room, "", payload); err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("room publish failed")
		h.sendError(connID, "send_failed", "message could not be delivered")
		return
	}

	metrics.MessagesTotal.WithLabelValues("room").Inc()
	metrics.MessageLatency.Observe(time.Since(started).Seconds())
}

// SendDirectMessage persists a text message for a two-party conversation and
// delivers it to both participants' live connections. An offline recipient
// still gets the message later through the conversation window.
func (h *Hub) SendDirectMessage(connID, to, text string) {
	started := time.Now()

	username, ok := h.ident.Username(connID)
	if !ok {
		h.sendError(connID, "not_authenticated", "authenticate first")
		return
	}
	if !route.ValidUsername(to) {
		h.sendError(connID, "invalid_user", "invalid username")
		return
	}
	if strings.TrimSpace(text) == "" {
		return
	}
	if err := history.ValidateText(text); err != nil {
		h.sendError(connID, "invalid_message", err.Error())
		return
	}

	msg := history.NewDirectText(username, to, text)
	payload, err := h.persistAndWrap(msg, protocol.TypePrivateMsg)
	if err != nil {
		h.sendError(connID, "send_failed", "message could not be delivered")
		return
	}

	h.publishToUsers(payload, to, username)

	metrics.MessagesTotal.WithLabelValues("direct").Inc()
	metrics.MessageLatency.Observe(time.Since(started).Seconds())
}

// DeleteMessage removes one of the caller's own messages and notifies the
// message's audience. Unknown IDs and other people's messages are silently
// ignored; repeating a delete is a no-op.
func (h *Hub) DeleteMessage(connID, id string) {
	username, ok := h.ident.Username(connID)
	if !ok {
		h.sendError(connID, "not_authenticated", "authenticate first")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	msg, err := h.store.FindByID(ctx, id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("delete lookup failed")
		return
	}
	if msg == nil || msg.From != username {
		return
	}

	if err := h.store.DeleteByID(ctx, id); err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("delete failed")
		return
	}

	payload, err := protocol.NewServerMessage(protocol.TypeMessageDeleted, protocol.MessageDeletedMsg{ID: id})
	if err != nil {
		return
	}

	// The audience comes from the message itself, not from the caller's
	// current room.
	if msg.Room != "" {
		if err := h.publishToRoom(msg.Room, "", payload); err != nil {
			h.log.Error().Err(err).Str("room", msg.Room).Msg("delete notice publish failed")
		}
	} else {
		h.publishToUsers(payload, msg.To, msg.From)
	}

	metrics.MessagesTotal.WithLabelValues("deleted").Inc()
}

// PostFile persists a file message for a room or conversation and fans it
// out. Called by the HTTP upload endpoint after the blob is stored.
func (h *Hub) PostFile(from, target string, fi history.FileInfo) (*history.Message, error) {
	delivery, err := route.Resolve(from, target)
	if err != nil {
		return nil, err
	}

	var msg *history.Message
	var eventType string
	switch delivery.Kind {
	case route.KindRoom:
		msg = history.NewRoomFile(from, delivery.Room, fi)
		eventType = protocol.TypeChatMessage
	case route.KindConversation:
		msg = history.NewDirectFile(from, delivery.Participants[1], fi)
		eventType = protocol.TypePrivateMsg
	}

	payload, err := h.persistAndWrap(msg, eventType)
	if err != nil {
		return nil, err
	}

	if delivery.Kind == route.KindRoom {
		if err := h.publishToRoom(delivery.Room, "", payload); err != nil {
			return nil, err
		}
	} else {
		h.publishToUsers(payload, msg.To, msg.From)
	}

	metrics.MessagesTotal.WithLabelValues("file").Inc()
	return msg, nil
}

// ProfileUpdated announces a profile change to every connection and refreshes
// the directory. Called by the HTTP profile endpoint after a write.
func (h *Hub) ProfileUpdated(ctx context.Context, username string) error {
	profile, err := h.users.GetProfile(ctx, username)
	if err != nil {
		return fmt.Errorf("session: profile lookup: %w", err)
	}
	if profile == nil {
		return nil
	}

	data, err := protocol.NewServerMessage(protocol.TypeProfileUpdated, protocol.ProfileUpdatedMsg{
		Username:  profile.Username,
		Status:    profile.Status,
		AvatarURL: profile.AvatarURL,
	})
	if err != nil {
		return err
	}
	if err := h.bus.PublishBroadcast(data); err != nil {
		return fmt.Errorf("session: profile broadcast: %w", err)
	}
	return h.dir.Publish(ctx)
}

// HandleDisconnect cleans up after a connection goes away: membership,
// identity binding, presence, the user subscription, and a leave notice. A
// displaced connection whose presence entry already points elsewhere cleans
// up only its local state.
func (h *Hub) HandleDisconnect(connID string) {
	h.rooms.Leave(connID)
	username, ok := h.ident.Unbind(connID)
	if !ok {
		return
	}

	if !h.presence.Unregister(username, connID) {
		// A newer connection owns this identity now.
		return
	}
	if err := h.bus.UnsubscribeUser(username); err != nil {
		h.log.Warn().Err(err).Str("user", username).Msg("user unsubscribe failed")
	}

	notice, err := protocol.NewServerMessage(protocol.TypeSystemMessage, protocol.SystemMessageMsg{
		Text: fmt.Sprintf("%s has left the chat.", username),
	})
	if err == nil {
		if err := h.bus.PublishBroadcast(notice); err != nil {
			h.log.Warn().Err(err).Msg("leave notice publish failed")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.dir.Publish(ctx); err != nil {
		h.log.Warn().Err(err).Msg("directory publish after disconnect failed")
	}

	h.log.Info().Str("conn", connID).Str("user", username).Msg("user offline")
}

// persistAndWrap appends a message to the store and returns the wire payload
// that carries it. Persistence failing means nothing is delivered.
func (h *Hub) persistAndWrap(msg *history.Message, eventType string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := h.store.Append(ctx, msg); err != nil {
		h.log.Error().Err(err).Str("id", msg.ID).Msg("message persist failed")
		return nil, err
	}

	doc, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("session: marshal message: %w", err)
	}
	return protocol.NewServerMessage(eventType, protocol.ChatEventMsg{Message: doc})
}

// publishToRoom wraps a payload in a room envelope and publishes it.
func (h *Hub) publishToRoom(room, exclude string, payload []byte) error {
	data, err := json.Marshal(roomEnvelope{Exclude: exclude, Payload: payload})
	if err != nil {
		return fmt.Errorf("session: marshal room envelope: %w", err)
	}
	return h.bus.PublishRoom(room, data)
}

// publishToUsers delivers a payload to both participants of a conversation,
// once if they are the same user.
func (h *Hub) publishToUsers(payload []byte, users ...string) {
	seen := make(map[string]struct{}, len(users))
	for _, u := range users {
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		if err := h.bus.PublishUser(u, payload); err != nil {
			h.log.Warn().Err(err).Str("user", u).Msg("user publish failed")
		}
	}
}

// publishRoomNotice sends a system notice to a room, excluding one
// connection.
func (h *Hub) publishRoomNotice(room, exclude, text string) {
	data, err := protocol.NewServerMessage(protocol.TypeSystemMessage, protocol.SystemMessageMsg{Text: text})
	if err != nil {
		return
	}
	if err := h.publishToRoom(room, exclude, data); err != nil {
		h.log.Warn().Err(err).Str("room", room).Msg("room notice publish failed")
	}
}

// sendHistoryWindow delivers the recent window for a partition to one
// connection, oldest first.
func (h *Hub) sendHistoryWindow(connID, partition string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	window, err := h.store.Window(ctx, partition, history.WindowSize)
	if err != nil {
		h.log.Error().Err(err).Str("partition", partition).Msg("history window failed")
		h.sendError(connID, "history_failed", "history unavailable")
		return
	}

	// The store returns newest first; clients render top to bottom.
	docs := make([]json.RawMessage, 0, len(window))
	for i := len(window) - 1; i >= 0; i-- {
		doc, err := json.Marshal(window[i])
		if err != nil {
			continue
		}
		docs = append(docs, doc)
	}

	h.sendEvent(connID, protocol.TypeLoadHistory, protocol.LoadHistoryMsg{Messages: docs})
}

// sendEvent builds and sends a server event to one connection.
func (h *Hub) sendEvent(connID, eventType string, payload interface{}) {
	data, err := protocol.NewServerMessage(eventType, payload)
	if err != nil {
		h.log.Error().Err(err).Str("type", eventType).Msg("failed to build event")
		return
	}
	if err := h.sender.SendMessage(connID, data); err != nil {
		h.log.Debug().Err(err).Str("conn", connID).Str("type", eventType).Msg("send failed")
	}
}

// sendError sends a structured error event to one connection.
func (h *Hub) sendError(connID, code, message string) {
	h.sendEvent(connID, protocol.TypeError, protocol.ErrorMsg{Code: code, Message: message})
}
