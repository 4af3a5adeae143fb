package ws

import (
	"github.com/rs/zerolog"

	"github.com/parley/chat-app/internal/protocol"
)

// MessageHandler is the callback signature for handling a parsed client
// message. The msg parameter is the concrete struct returned by
// protocol.ParseClientMessage (e.g., protocol.ChatMessageMsg).
type MessageHandler func(conn *Connection, msg interface{})

// MessageDispatcher routes incoming WebSocket messages to registered handlers
// based on the message type. It handles the built-in ping/pong keepalive
// internally and sends structured error responses for malformed or
// unsupported messages.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	server   *Server
	log      zerolog.Logger
}

// NewMessageDispatcher creates a MessageDispatcher bound to the given server.
func NewMessageDispatcher(server *Server, log zerolog.Logger) *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		server:   server,
		log:      log,
	}
}

// SetServer assigns the Server reference on the dispatcher. Supports the
// initialization pattern where the dispatcher is created before the server.
func (d *MessageDispatcher) SetServer(server *Server) {
	d.server = server
}

// Register associates a MessageHandler with a message type. If a handler was
// already registered for the given type, it is silently replaced.
func (d *MessageDispatcher) Register(msgType string, handler MessageHandler) {
	d.handlers[msgType] = handler
}

// Dispatch is the onMessage callback implementation. It parses the raw bytes
// into a typed message, handles ping internally, and routes all other types
// to the registered handler. Parse errors and unregistered types result in an
// error message sent back to the client.
func (d *MessageDispatcher) Dispatch(conn *Connection, data []byte) {
	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		d.log.Warn().Err(err).Str("conn", conn.ID).Msg("dispatch parse error")
		d.sendError(conn, "parse_error", "invalid message format")
		return
	}

	// Built-in ping handler; respond immediately without requiring
	// registration.
	if msgType == protocol.TypePing {
		d.sendPong(conn)
		return
	}

	handler, ok := d.handlers[msgType]
	if !ok {
		d.log.Warn().Str("type", msgType).Str("conn", conn.ID).Msg("unsupported message type")
		d.sendError(conn, "unsupported_type", "unsupported message type")
		return
	}

	handler(conn, msg)
}

// sendError sends a structured error message back to the client. Errors
// during message construction or transmission are logged but not propagated.
func (d *MessageDispatcher) sendError(conn *Connection, code string, message string) {
	data, err := protocol.NewServerMessage(protocol.TypeError, protocol.ErrorMsg{
		Code:    code,
		Message: message,
	})
	if err != nil {
		d.log.Error().Err(err).Str("conn", conn.ID).Msg("failed to build error message")
		return
	}

	if err := conn.WriteMessage(data); err != nil {
		d.log.Warn().Err(err).Str("conn", conn.ID).Msg("failed to send error message")
	}
}

// sendPong responds to a client ping with a pong message and records the
// keepalive as connection activity.
func (d *MessageDispatcher) sendPong(conn *Connection) {
	conn.Touch()

	data, err := protocol.NewServerMessage(protocol.TypePong, protocol.PongMsg{})
	if err != nil {
		d.log.Error().Err(err).Str("conn", conn.ID).Msg("failed to build pong")
		return
	}

	if err := conn.WriteMessage(data); err != nil {
		d.log.Warn().Err(err).Str("conn", conn.ID).Msg("failed to send pong")
	}
}
