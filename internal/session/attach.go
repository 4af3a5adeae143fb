package session

import (
	"github.com/parley/chat-app/internal/protocol"
	"github.com/parley/chat-app/internal/ws"
)

// Attach registers the hub's handlers on the socket dispatcher. Each handler
// is a thin adapter from the transport's connection to the hub's
// connection-ID based operations.
func (h *Hub) Attach(d *ws.MessageDispatcher) {
	d.Register(protocol.TypeAuthenticate, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.AuthenticateMsg); ok {
			h.Authenticate(conn.ID, m.Token)
		}
	})

	d.Register(protocol.TypeJoinRoom, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.JoinRoomMsg); ok {
			h.JoinRoom(conn.ID, m.Room)
		}
	})

	d.Register(protocol.TypeLoadDMHistory, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.LoadDMHistoryMsg); ok {
			h.LoadDMHistory(conn.ID, m.User)
		}
	})

	d.Register(protocol.TypeChatMessage, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.ChatMessageMsg); ok {
			h.SendRoomMessage(conn.ID, m.Text)
		}
	})

	d.Register(protocol.TypePrivateMsg, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.PrivateMessageMsg); ok {
			h.SendDirectMessage(conn.ID, m.To, m.Text)
		}
	})

	d.Register(protocol.TypeDeleteMessage, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.DeleteMessageMsg); ok {
			h.DeleteMessage(conn.ID, m.ID)
		}
	})
}
