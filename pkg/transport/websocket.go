package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"

	"github.com/concord-chat/concord/internal/logging"
)

// Options configures the websocket Transport.
type Options struct {
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	Logger          *logging.Logger
}

// DefaultOptions returns the options the teacher's websocket transport
// shipped with, before any caller overrides.
func DefaultOptions() Options {
	return Options{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  512 * 1024,
	}
}

// WebsocketTransport implements Transport over gorilla/websocket. It is
// mounted as an http.Handler, typically behind a chi route.
type WebsocketTransport struct {
	upgrader websocket.Upgrader
	opts     Options
	logger   *logging.Logger

	onConnect    ConnectHandler
	onMessage    MessageHandler
	onDisconnect DisconnectHandler

	mu        sync.RWMutex
	sockets   map[string]*wsSocket
	channels  map[string]map[string]struct{} // channel -> socketIDs
	memberOf  map[string]map[string]struct{} // socketID -> channels
	accepting bool
}

// NewWebsocketTransport creates a Transport ready to be mounted as an
// http.Handler once Start has been called.
func NewWebsocketTransport(opts Options) *WebsocketTransport {
	return &WebsocketTransport{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  opts.ReadBufferSize,
			WriteBufferSize: opts.WriteBufferSize,
			CheckOrigin:     opts.CheckOrigin,
		},
		opts:     opts,
		logger:   opts.Logger,
		sockets:  make(map[string]*wsSocket),
		channels: make(map[string]map[string]struct{}),
		memberOf: make(map[string]map[string]struct{}),
	}
}

func (t *WebsocketTransport) OnConnect(h ConnectHandler)       { t.onConnect = h }
func (t *WebsocketTransport) OnMessage(h MessageHandler)       { t.onMessage = h }
func (t *WebsocketTransport) OnDisconnect(h DisconnectHandler) { t.onDisconnect = h }

func (t *WebsocketTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	t.accepting = true
	t.mu.Unlock()
	t.logger.Info("websocket transport started")
	return nil
}

func (t *WebsocketTransport) Stop(ctx context.Context) error {
	t.mu.Lock()
	t.accepting = false
	t.mu.Unlock()
	t.logger.Info("websocket transport stopped accepting connections")
	return nil
}

// ServeHTTP implements http.Handler, upgrading the connection and running
// its read/write pumps until it disconnects.
func (t *WebsocketTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.mu.RLock()
	accepting := t.accepting
	t.mu.RUnlock()
	if !accepting {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Error("websocket upgrade error", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	id := xid.New().String()
	sock := newWSSocket(id, conn, t.opts, t.logger.WithFields(map[string]any{"socket_id": id}))

	t.mu.Lock()
	t.sockets[id] = sock
	t.mu.Unlock()

	authPayload := []byte(r.Header.Get("Authorization"))

	sock.start(func(frame []byte) {
		if t.onMessage != nil {
			t.onMessage(r.Context(), id, frame)
		}
	})

	if t.onConnect != nil {
		t.onConnect(r.Context(), sock, authPayload)
	}

	<-sock.ctx.Done()

	t.removeSocket(id)
	if t.onDisconnect != nil {
		t.onDisconnect(context.Background(), id)
	}
}

func (t *WebsocketTransport) removeSocket(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.sockets, id)
	for ch := range t.memberOf[id] {
		delete(t.channels[ch], id)
		if len(t.channels[ch]) == 0 {
			delete(t.channels, ch)
		}
	}
	delete(t.memberOf, id)
}

func (t *WebsocketTransport) GetSocket(id string) (Socket, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sockets[id]
	return s, ok
}

func (t *WebsocketTransport) Disconnect(ctx context.Context, socketID, reason string) error {
	t.mu.RLock()
	s, ok := t.sockets[socketID]
	t.mu.RUnlock()
	if !ok {
		return nil
	}
	return s.Close(reason)
}

func (t *WebsocketTransport) JoinChannel(ctx context.Context, socketID, channel string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.sockets[socketID]; !ok {
		return &NoSocketError{SocketID: socketID}
	}

	if t.channels[channel] == nil {
		t.channels[channel] = make(map[string]struct{})
	}
	t.channels[channel][socketID] = struct{}{}

	if t.memberOf[socketID] == nil {
		t.memberOf[socketID] = make(map[string]struct{})
	}
	t.memberOf[socketID][channel] = struct{}{}
	return nil
}

func (t *WebsocketTransport) LeaveChannel(ctx context.Context, socketID, channel string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if members, ok := t.channels[channel]; ok {
		delete(members, socketID)
		if len(members) == 0 {
			delete(t.channels, channel)
		}
	}
	if chans, ok := t.memberOf[socketID]; ok {
		delete(chans, channel)
	}
	return nil
}

func (t *WebsocketTransport) EmitToChannel(ctx context.Context, channel, event string, args ...any) error {
	return t.SendToChannel(ctx, "", channel, event, args...)
}

func (t *WebsocketTransport) SendToChannel(ctx context.Context, excludeSocketID, channel, event string, args ...any) error {
	t.mu.RLock()
	members := make([]string, 0, len(t.channels[channel]))
	for id := range t.channels[channel] {
		if id != excludeSocketID {
			members = append(members, id)
		}
	}
	sockets := make([]*wsSocket, 0, len(members))
	for _, id := range members {
		if s, ok := t.sockets[id]; ok {
			sockets = append(sockets, s)
		}
	}
	t.mu.RUnlock()

	var firstErr error
	for _, s := range sockets {
		if err := s.Emit(ctx, event, args...); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NoSocketError is returned when an operation references a socket ID the
// transport does not currently hold.
type NoSocketError struct {
	SocketID string
}

func (e *NoSocketError) Error() string {
	return "transport: no such socket " + e.SocketID
}

// frame is the wire format for a single emitted event.
type frame struct {
	Event string `json:"event"`
	Args  []any  `json:"args,omitempty"`
}

type wsSocket struct {
	id       string
	conn     *websocket.Conn
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *logging.Logger
	opts     Options
	sendChan chan []byte
	mu       sync.RWMutex
	closed   bool
	wg       sync.WaitGroup
}

func newWSSocket(id string, conn *websocket.Conn, opts Options, logger *logging.Logger) *wsSocket {
	ctx, cancel := context.WithCancel(context.Background())
	return &wsSocket{
		id:       id,
		conn:     conn,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		opts:     opts,
		sendChan: make(chan []byte, 256),
	}
}

func (s *wsSocket) ID() string { return s.id }

func (s *wsSocket) Emit(ctx context.Context, event string, args ...any) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return &SocketClosedError{SocketID: s.id}
	}
	s.mu.RUnlock()

	data, err := json.Marshal(frame{Event: event, Args: args})
	if err != nil {
		return err
	}

	select {
	case s.sendChan <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return &SocketClosedError{SocketID: s.id}
	}
}

func (s *wsSocket) Close(reason string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	close(s.sendChan)
	err := s.conn.Close()
	s.wg.Wait()
	return err
}

func (s *wsSocket) start(handleFrame func(frame []byte)) {
	s.wg.Add(2)
	go s.readPump(handleFrame)
	go s.writePump()
}

func (s *wsSocket) readPump(handleFrame func(frame []byte)) {
	defer s.wg.Done()
	defer s.Close("read pump stopped")

	s.conn.SetReadLimit(s.opts.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		return nil
	})

	for {
		mt, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Error("websocket read error", "error", err)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		handleFrame(message)
	}
}

func (s *wsSocket) writePump() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case message, ok := <-s.sendChan:
			s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Error("websocket write error", "error", err)
				return
			}

			n := len(s.sendChan)
			for i := 0; i < n; i++ {
				select {
				case msg := <-s.sendChan:
					if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
						s.logger.Error("websocket write error", "error", err)
						return
					}
				default:
				}
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Error("websocket ping error", "error", err)
				return
			}
		}
	}
}

// SocketClosedError is returned by Emit once a socket has closed.
type SocketClosedError struct {
	SocketID string
}

func (e *SocketClosedError) Error() string {
	return "transport: socket closed " + e.SocketID
}
