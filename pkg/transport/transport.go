// Package transport defines the Transport contract the chat engine uses
// to accept socket connections, register them into channels (rooms and
// per-user echo channels), and fan out notifications, plus a
// gorilla/websocket-backed implementation mounted on a chi router.
package transport

import "context"

// Socket is one connected client connection. Only the instance that
// accepted it may emit to it or close it.
type Socket interface {
	ID() string
	// Emit sends a single named event with its arguments to this socket.
	Emit(ctx context.Context, event string, args ...any) error
	Close(reason string) error
}

// ConnectHandler is invoked once per accepted connection, with the raw
// bytes the client opened the connection with available for an onConnect
// hook to authenticate (e.g. a header or first frame).
type ConnectHandler func(ctx context.Context, socket Socket, authPayload []byte)

// MessageHandler is invoked for every frame received from a socket after
// it has connected.
type MessageHandler func(ctx context.Context, socketID string, frame []byte)

// DisconnectHandler is invoked once a socket's connection ends, for any
// reason (client close, server-initiated disconnect, transport error).
type DisconnectHandler func(ctx context.Context, socketID string)

// Transport is the full Transport contract: a per-socket registry, named
// channel membership, and targeted/broadcast emit.
type Transport interface {
	// Start begins accepting connections; OnConnect/OnMessage/OnDisconnect
	// must be registered before Start is called.
	Start(ctx context.Context) error
	// Stop stops accepting new connections. It does not forcibly close
	// existing sockets; callers that need to drain do so via GetSocket
	// and Socket.Close.
	Stop(ctx context.Context) error

	OnConnect(handler ConnectHandler)
	OnMessage(handler MessageHandler)
	OnDisconnect(handler DisconnectHandler)

	GetSocket(id string) (Socket, bool)
	Disconnect(ctx context.Context, socketID, reason string) error

	JoinChannel(ctx context.Context, socketID, channel string) error
	LeaveChannel(ctx context.Context, socketID, channel string) error

	// EmitToChannel sends to every socket joined to channel.
	EmitToChannel(ctx context.Context, channel, event string, args ...any) error
	// SendToChannel is a broadcast to channel excluding one socket
	// (typically the sender, which already has its own echo).
	SendToChannel(ctx context.Context, excludeSocketID, channel, event string, args ...any) error
}
