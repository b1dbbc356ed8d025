package user

import (
	"context"
	"sync"

	"github.com/concord-chat/concord/pkg/transport"
)

// fakeTransport is a minimal in-process transport.Transport for testing
// Manager without a real websocket connection.
type fakeTransport struct {
	mu       sync.Mutex
	sockets  map[string]*fakeSocket
	channels map[string]map[string]struct{} // channel -> socketIDs

	emitsToChannel []channelEmit
	sendsToChannel []channelEmit
}

type channelEmit struct {
	Channel string
	Event   string
	Exclude string
	Args    []any
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sockets:  make(map[string]*fakeSocket),
		channels: make(map[string]map[string]struct{}),
	}
}

func (f *fakeTransport) addSocket(id string) *fakeSocket {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSocket{id: id}
	f.sockets[id] = s
	return s
}

func (f *fakeTransport) Start(ctx context.Context) error { return nil }
func (f *fakeTransport) Stop(ctx context.Context) error  { return nil }

func (f *fakeTransport) OnConnect(transport.ConnectHandler)       {}
func (f *fakeTransport) OnMessage(transport.MessageHandler)       {}
func (f *fakeTransport) OnDisconnect(transport.DisconnectHandler) {}

func (f *fakeTransport) GetSocket(id string) (transport.Socket, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sockets[id]
	if !ok {
		return nil, false
	}
	return s, true
}

func (f *fakeTransport) Disconnect(ctx context.Context, socketID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sockets[socketID]; ok {
		s.closed = true
		s.closeReason = reason
	}
	return nil
}

func (f *fakeTransport) JoinChannel(ctx context.Context, socketID, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.channels[channel] == nil {
		f.channels[channel] = make(map[string]struct{})
	}
	f.channels[channel][socketID] = struct{}{}
	return nil
}

func (f *fakeTransport) LeaveChannel(ctx context.Context, socketID, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels[channel], socketID)
	return nil
}

func (f *fakeTransport) EmitToChannel(ctx context.Context, channel, event string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitsToChannel = append(f.emitsToChannel, channelEmit{Channel: channel, Event: event, Args: args})
	return nil
}

func (f *fakeTransport) SendToChannel(ctx context.Context, excludeSocketID, channel, event string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendsToChannel = append(f.sendsToChannel, channelEmit{Channel: channel, Event: event, Exclude: excludeSocketID, Args: args})
	return nil
}

type fakeSocket struct {
	id          string
	closed      bool
	closeReason string
	emitted     []emittedEvent
}

type emittedEvent struct {
	Event string
	Args  []any
}

func (s *fakeSocket) ID() string { return s.id }

func (s *fakeSocket) Emit(ctx context.Context, event string, args ...any) error {
	s.emitted = append(s.emitted, emittedEvent{Event: event, Args: args})
	return nil
}

func (s *fakeSocket) Close(reason string) error {
	s.closed = true
	s.closeReason = reason
	return nil
}
