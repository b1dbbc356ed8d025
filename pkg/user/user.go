// Package user implements User and UserAssociations (C6): per-user
// socket bookkeeping, the distributed join/leave protocol for rooms,
// and the cross-instance eviction path a Room access-list mutation
// triggers. A Manager holds every user known to this instance; each
// User is the socket-lifecycle handle for one userName.
package user

import (
	"context"
	"sync"
	"time"

	"github.com/concord-chat/concord/internal/eventbus"
	"github.com/concord-chat/concord/internal/logging"
	"github.com/concord-chat/concord/pkg/chaterr"
	"github.com/concord-chat/concord/pkg/directmessage"
	"github.com/concord-chat/concord/pkg/domain"
	"github.com/concord-chat/concord/pkg/room"
	"github.com/concord-chat/concord/pkg/state"
	"github.com/concord-chat/concord/pkg/transport"
)

// Deps bundles a Manager's collaborators, threaded in by pkg/chatservice
// at construction. None of these are owned by Manager; it closes none
// of them.
type Deps struct {
	Store                 state.Store
	Transport             transport.Transport
	Logger                *logging.Logger
	Bus                   eventbus.Bus
	InstanceUID           string
	RoomConfig               room.Config
	EnableUserlistUpdates    bool
	EnableAccessListsUpdates bool
	EnableDirectMessages     bool
	EnableRoomsManagement    bool
	LockTTL                  time.Duration
	BusAckTimeout            time.Duration
}

// Manager holds every User known to this instance and runs the
// cross-instance eviction listener shared by all of them.
type Manager struct {
	deps Deps

	mu      sync.RWMutex
	users   map[string]*User
	sockets map[string]string // socketID -> userName, this instance only

	clusterCancel context.CancelFunc
	clusterDone   chan struct{}
}

// New constructs a Manager. Callers should call StartClusterListener
// before accepting traffic and StopClusterListener on shutdown.
func New(deps Deps) *Manager {
	return &Manager{
		deps:    deps,
		users:   make(map[string]*User),
		sockets: make(map[string]string),
	}
}

// UserNameForSocket returns the userName a socket registered as on this
// instance, used by the frame handler to attribute an incoming command.
func (m *Manager) UserNameForSocket(socketID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.sockets[socketID]
	return name, ok
}

// User is one user's socket-lifecycle handle: its DirectMessaging
// record and the local cache of which rooms each of its sockets, on
// this instance, has joined.
type User struct {
	name string
	dm   *directmessage.DirectMessaging

	mu     sync.Mutex
	local  map[string]map[string]struct{} // socketID -> joined room names, this instance only
}

// Name returns the user's name.
func (u *User) Name() string { return u.name }

// DirectMessaging returns the user's DirectMessaging record.
func (u *User) DirectMessaging() *directmessage.DirectMessaging { return u.dm }

// AddUser creates a brand-new user, failing with userExists if the name
// is already registered on this instance.
func (m *Manager) AddUser(name string) (*User, error) {
	if !domain.ValidName(name) {
		return nil, chaterr.New(chaterr.KindInvalidName, "addUser")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[name]; ok {
		return nil, chaterr.New(chaterr.KindUserExists, "addUser")
	}

	u := &User{name: name, dm: directmessage.New(m.deps.Store, name), local: make(map[string]map[string]struct{})}
	m.users[name] = u
	return u, nil
}

// EnsureUser returns the existing User for name, or creates one if this
// is the first time this instance has seen it (used by onConnect when it
// supplies a name not yet backed by an explicit addUser call).
func (m *Manager) EnsureUser(name string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[name]; ok {
		return u, nil
	}
	if !domain.ValidName(name) {
		return nil, chaterr.New(chaterr.KindInvalidName, "connect")
	}

	u := &User{name: name, dm: directmessage.New(m.deps.Store, name), local: make(map[string]map[string]struct{})}
	m.users[name] = u
	return u, nil
}

// Get returns the User for name, if known to this instance.
func (m *Manager) Get(name string) (*User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[name]
	return u, ok
}

// echoChannel is the per-user transport channel every socket of a user
// joins to receive self-echoes.
func echoChannel(userName string) string {
	return "echo:" + userName
}

func userSocketsKey(userName string) string {
	return "user:" + userName + ":sockets"
}

func socketUserKey(socketID string) string {
	return "socket:" + socketID + ":user"
}

func socketInstanceKey(socketID string) string {
	return "socket:" + socketID + ":instance"
}

// RegisterSocket binds a freshly-accepted socket to userName: it
// records (socketId, userName) and (socketId, instanceUID) cluster-wide,
// adds the socket to the user's local set, joins the socket to the
// user's echo channel, and emits socketConnectEcho to that user's other
// sockets. Failing to find the socket in the Transport (the client
// already disconnected) unwinds nothing — nothing has been written yet
// — and fails with noSocket.
func (m *Manager) RegisterSocket(ctx context.Context, userName, socketID string) (int, error) {
	if _, ok := m.deps.Transport.GetSocket(socketID); !ok {
		return 0, chaterr.New(chaterr.KindNoSocket, "connect")
	}

	u, err := m.EnsureUser(userName)
	if err != nil {
		return 0, err
	}

	if err := m.deps.Store.Set(ctx, socketUserKey(socketID), userName); err != nil {
		return 0, chaterr.Wrap(err, "connect")
	}
	if err := m.deps.Store.Set(ctx, socketInstanceKey(socketID), m.deps.InstanceUID); err != nil {
		return 0, chaterr.Wrap(err, "connect")
	}
	if err := m.deps.Store.SAdd(ctx, userSocketsKey(userName), socketID); err != nil {
		return 0, chaterr.Wrap(err, "connect")
	}

	u.mu.Lock()
	u.local[socketID] = make(map[string]struct{})
	u.mu.Unlock()

	m.mu.Lock()
	m.sockets[socketID] = userName
	m.mu.Unlock()

	if err := m.deps.Transport.JoinChannel(ctx, socketID, echoChannel(userName)); err != nil {
		return 0, chaterr.Wrap(err, "connect")
	}

	nConnected, err := m.deps.Store.SCard(ctx, userSocketsKey(userName))
	if err != nil {
		return 0, chaterr.Wrap(err, "connect")
	}

	_ = m.sendToChannel(ctx, socketID, echoChannel(userName), string(domain.NotifySocketConnectEcho), socketID, nConnected)
	m.deps.Bus.PublishAsync(eventbus.NewEvent(eventbus.EventSocketConnected, userName, socketID))

	return nConnected, nil
}

// RemoveSocket unwinds a disconnected socket: it leaves every room the
// socket had joined, then drops the socket from local and cluster
// state, and emits socketDisconnectEcho.
func (m *Manager) RemoveSocket(ctx context.Context, userName, socketID string) error {
	u, ok := m.Get(userName)
	if !ok {
		return nil
	}

	u.mu.Lock()
	rooms := make([]string, 0, len(u.local[socketID]))
	for r := range u.local[socketID] {
		rooms = append(rooms, r)
	}
	delete(u.local, socketID)
	u.mu.Unlock()

	m.mu.Lock()
	delete(m.sockets, socketID)
	m.mu.Unlock()

	for _, roomName := range rooms {
		if err := m.LeaveSocketFromRoom(ctx, userName, socketID, roomName); err != nil {
			m.deps.Logger.Warn("leave on disconnect failed", "user", userName, "socket", socketID, "room", roomName, "error", err)
		}
	}

	if err := m.deps.Store.SRem(ctx, userSocketsKey(userName), socketID); err != nil {
		m.deps.Logger.Error("failed to remove socket from cluster state", "socket", socketID, "error", err)
	}
	_ = m.deps.Store.Delete(ctx, socketUserKey(socketID))
	_ = m.deps.Store.Delete(ctx, socketInstanceKey(socketID))

	nConnected, err := m.deps.Store.SCard(ctx, userSocketsKey(userName))
	if err != nil {
		nConnected = 0
	}

	_ = m.emitToChannel(ctx, echoChannel(userName), string(domain.NotifySocketDisconnect), socketID, nConnected)
	m.deps.Bus.PublishAsync(eventbus.NewEvent(eventbus.EventSocketDisconnected, userName, socketID))
	return nil
}

// DisconnectInstanceSockets forcibly disconnects every local socket of
// userName, bounded to a small number of concurrent disconnects so a
// user with many sockets can't starve other work.
func (m *Manager) DisconnectInstanceSockets(ctx context.Context, userName string) error {
	u, ok := m.Get(userName)
	if !ok {
		return nil
	}

	u.mu.Lock()
	ids := make([]string, 0, len(u.local))
	for id := range u.local {
		ids = append(ids, id)
	}
	u.mu.Unlock()

	const maxConcurrent = 8
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	for _, id := range ids {
		sem <- struct{}{}
		wg.Add(1)
		go func(socketID string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := m.deps.Transport.Disconnect(ctx, socketID, "removed by server"); err != nil {
				m.deps.Logger.Warn("forced disconnect failed", "socket", socketID, "error", err)
			}
		}(id)
	}

	wg.Wait()
	return nil
}

// ListJoinedSockets returns, for the calling socket's user, every
// (socketId, roomName) pair joined on this instance.
func (m *Manager) ListJoinedSockets(userName string) map[string][]string {
	u, ok := m.Get(userName)
	if !ok {
		return nil
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	out := make(map[string][]string, len(u.local))
	for socketID, rooms := range u.local {
		names := make([]string, 0, len(rooms))
		for r := range rooms {
			names = append(names, r)
		}
		out[socketID] = names
	}
	return out
}
