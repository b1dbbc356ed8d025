// Package chatservice implements the ChatService facade (C8): it binds
// the State store, Transport, command pipeline, and internal event bus
// into one running service, and exposes the server-side API
// (addUser/addRoom/removeRoom/disconnectUserSockets) that bypasses
// client-facing admission checks.
package chatservice

import (
	"context"
	"net/http"

	"github.com/rs/xid"

	"github.com/concord-chat/concord/internal/config"
	"github.com/concord-chat/concord/internal/eventbus"
	"github.com/concord-chat/concord/internal/logging"
	"github.com/concord-chat/concord/pkg/chaterr"
	"github.com/concord-chat/concord/pkg/command"
	"github.com/concord-chat/concord/pkg/domain"
	"github.com/concord-chat/concord/pkg/room"
	"github.com/concord-chat/concord/pkg/state"
	"github.com/concord-chat/concord/pkg/transport"
	"github.com/concord-chat/concord/pkg/user"
)

// Options bundles the Go-value hooks and checkers the spec's
// configuration table names — these are not serializable, so they are
// supplied by the process embedding Service rather than loaded from
// cfg's file/env sources.
type Options struct {
	// OnConnect runs after a socket is accepted and registered, before
	// loginConfirmed is emitted.
	OnConnect func(ctx context.Context, userName, socketID string)
	// OnStart runs once the transport has started accepting connections.
	OnStart func(ctx context.Context)
	// OnClose runs after the transport stops accepting connections and
	// before the Store is closed.
	OnClose func(ctx context.Context)

	// DirectMessageChecker, if set, runs before directMessage dispatches
	// and may reject the payload by returning a non-nil error.
	DirectMessageChecker func(sender, recipient string, payload any) error
	// RoomMessageChecker, if set, runs before roomMessage dispatches.
	RoomMessageChecker func(sender, roomName, text string, extensions map[string]any) error

	Before map[domain.CommandName]domain.BeforeHook
	After  map[domain.CommandName]domain.AfterHook
}

// Service is the running chat engine instance: one Store, one Transport,
// one command Binder, bound together and exposed as a server-side API.
type Service struct {
	cfg    *config.Config
	opts   Options
	logger *logging.Logger

	store     state.Store
	transport transport.Transport
	bus       eventbus.Bus
	manager   *user.Manager
	binder    *command.Binder

	errorHandler chaterr.Handler
	instanceUID  string
}

// New constructs a Service from cfg and opts. It does not start
// accepting connections; call Start for that.
func New(cfg *config.Config, opts Options) (*Service, error) {
	logger := logging.New(cfg.Logging)

	store, err := state.New(cfg.State.Kind, map[string]string{
		"addr":     cfg.State.Addr,
		"password": cfg.State.Password,
	})
	if err != nil {
		return nil, err
	}

	ws := transport.NewWebsocketTransport(withLogger(transport.DefaultOptions(), logger))

	bus := eventbus.NewInMemoryBus(256)
	instanceUID := xid.New().String()

	manager := user.New(user.Deps{
		Store:     store,
		Transport: ws,
		Logger:    logger,
		Bus:       bus,
		InstanceUID: instanceUID,
		RoomConfig: room.Config{
			LockTTL:               cfg.Chat.LockTTL,
			HistoryMaxSize:        cfg.Chat.HistoryMaxMessages,
			HistoryMaxGetMessages: cfg.Chat.HistoryMaxGetMessages,
		},
		EnableUserlistUpdates:    cfg.Chat.EnableUserlistUpdates,
		EnableAccessListsUpdates: cfg.Chat.EnableAccessListsUpdates,
		EnableDirectMessages:     cfg.Chat.EnableDirectMessages,
		EnableRoomsManagement:    cfg.Chat.EnableRoomsManagement,
		LockTTL:                 cfg.Chat.LockTTL,
		BusAckTimeout:           cfg.Chat.BusAckTimeout,
	})

	binder := command.New(manager, logger)
	for cmd, hook := range opts.Before {
		binder.Before(cmd, hook)
	}
	for cmd, hook := range opts.After {
		binder.After(cmd, hook)
	}
	if opts.DirectMessageChecker != nil {
		binder.Before(domain.CmdDirectMessage, checkerBeforeHook(func(call *domain.Call) error {
			return opts.DirectMessageChecker(call.UserName, call.Args[0].(string), call.Args[1])
		}))
	}
	if opts.RoomMessageChecker != nil {
		binder.Before(domain.CmdRoomMessage, checkerBeforeHook(func(call *domain.Call) error {
			text, extensions := splitMessagePayloadForCheck(call.Args[1])
			return opts.RoomMessageChecker(call.UserName, call.Args[0].(string), text, extensions)
		}))
	}

	s := &Service{
		cfg:          cfg,
		opts:         opts,
		logger:       logger,
		store:        store,
		transport:    ws,
		bus:          bus,
		manager:      manager,
		binder:       binder,
		errorHandler: chaterr.NewDefaultHandler(logger.Logger),
		instanceUID:  instanceUID,
	}

	ws.OnConnect(s.onConnect)
	ws.OnMessage(s.onMessage)
	ws.OnDisconnect(s.onDisconnect)

	return s, nil
}

func withLogger(opts transport.Options, logger *logging.Logger) transport.Options {
	opts.Logger = logger
	return opts
}

// checkerBeforeHook adapts a simple validation function into a
// domain.BeforeHook that short-circuits dispatch with the function's
// error, if any, and otherwise lets the call proceed unchanged.
func checkerBeforeHook(check func(call *domain.Call) error) domain.BeforeHook {
	return func(ctx context.Context, call *domain.Call) (bool, domain.Results, error) {
		if err := check(call); err != nil {
			return true, nil, err
		}
		return false, nil, nil
	}
}

func splitMessagePayloadForCheck(v any) (string, map[string]any) {
	switch vv := v.(type) {
	case string:
		return vv, nil
	case map[string]any:
		text, _ := vv["textMessage"].(string)
		return text, vv
	default:
		return "", nil
	}
}

// Transport exposes the underlying Transport, for callers needing direct
// access to it (e.g. tests).
func (s *Service) Transport() transport.Transport { return s.transport }

// Handler returns the websocket upgrade endpoint as an http.Handler, for
// mounting on a router.
func (s *Service) Handler() http.Handler {
	if h, ok := s.transport.(http.Handler); ok {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "transport does not support HTTP upgrade", http.StatusNotImplemented)
	})
}

// InstanceUID returns this Service's unique instance identifier.
func (s *Service) InstanceUID() string { return s.instanceUID }

// Start starts the internal event bus, the cross-instance cluster
// listener, and the Transport's accept loop, then runs OnStart.
func (s *Service) Start(ctx context.Context) error {
	s.bus.Start(ctx)

	if err := s.manager.StartClusterListener(ctx); err != nil {
		return err
	}

	if err := s.transport.Start(ctx); err != nil {
		return err
	}

	if s.opts.OnStart != nil {
		s.opts.OnStart(ctx)
	}

	s.logger.Info("chatservice started", "instance", s.instanceUID)
	return nil
}

// Close stops accepting new sockets, waits until closeTimeout elapses
// (or ctx ends), runs OnClose, then stops the cluster listener, the
// event bus, and the Store. The wait does not end early when sockets
// disconnect, and Close does not disconnect sockets still open.
func (s *Service) Close(ctx context.Context) error {
	if err := s.transport.Stop(ctx); err != nil {
		s.logger.Warn("transport stop error", "error", err)
	}

	closeCtx, cancel := context.WithTimeout(ctx, s.cfg.Chat.CloseTimeout)
	defer cancel()
	<-closeCtx.Done()
	if closeCtx.Err() == context.DeadlineExceeded {
		s.logger.Warn("close timeout elapsed waiting for sockets to drain")
	}

	if s.opts.OnClose != nil {
		s.opts.OnClose(ctx)
	}

	s.manager.StopClusterListener()
	s.bus.Stop()

	if err := s.store.Close(); err != nil {
		return err
	}

	s.logger.Info("chatservice closed", "instance", s.instanceUID)
	return nil
}

// onConnect implements the Transport ConnectHandler: it decodes the auth
// payload as {userName}, registers the socket, and emits
// loginConfirmed/loginRejected per the client protocol.
func (s *Service) onConnect(ctx context.Context, sock transport.Socket, authPayload []byte) {
	userName, err := decodeConnectPayload(authPayload)
	if err != nil {
		_ = sock.Emit(ctx, string(domain.NotifyLoginRejected), s.serialize(err))
		sock.Close("invalid auth payload")
		return
	}

	if _, err := s.manager.RegisterSocket(ctx, userName, sock.ID()); err != nil {
		_ = sock.Emit(ctx, string(domain.NotifyLoginRejected), s.serialize(err))
		sock.Close("login rejected")
		return
	}

	if s.opts.OnConnect != nil {
		s.opts.OnConnect(ctx, userName, sock.ID())
	}

	_ = sock.Emit(ctx, string(domain.NotifyLoginConfirmed), userName, map[string]string{"id": sock.ID()})
}

func decodeConnectPayload(raw []byte) (string, error) {
	p, err := parseConnectPayload(raw)
	if err != nil {
		return "", chaterr.New(chaterr.KindBadArgument, "connect")
	}
	if !domain.ValidName(p.UserName) {
		return "", chaterr.New(chaterr.KindInvalidName, "connect")
	}
	return p.UserName, nil
}

func (s *Service) onMessage(ctx context.Context, socketID string, frame []byte) {
	s.handleFrame(ctx, socketID, frame)
}

func (s *Service) onDisconnect(ctx context.Context, socketID string) {
	userName, ok := s.manager.UserNameForSocket(socketID)
	if !ok {
		return
	}
	if err := s.manager.RemoveSocket(ctx, userName, socketID); err != nil {
		s.logger.Warn("remove socket on disconnect failed", "socket", socketID, "error", err)
	}
}
