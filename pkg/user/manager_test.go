package user

import (
	"context"
	"testing"
	"time"

	"github.com/concord-chat/concord/internal/eventbus"
	"github.com/concord-chat/concord/internal/logging"
	"github.com/concord-chat/concord/pkg/chaterr"
	"github.com/concord-chat/concord/pkg/room"
	"github.com/concord-chat/concord/pkg/state"
)

func newTestManager(t *testing.T, ft *fakeTransport) *Manager {
	t.Helper()
	store := state.NewMemoryStore()
	m := New(Deps{
		Store:                    store,
		Transport:                ft,
		Logger:                   logging.New(logging.Config{Level: "error"}),
		Bus:                      eventbus.NewInMemoryBus(64),
		InstanceUID:              "test-instance",
		RoomConfig:               room.Config{LockTTL: time.Second, HistoryMaxSize: 100, HistoryMaxGetMessages: 100},
		EnableUserlistUpdates:    true,
		EnableAccessListsUpdates: true,
		EnableDirectMessages:     true,
		EnableRoomsManagement:    true,
		LockTTL:                  time.Second,
		BusAckTimeout:            50 * time.Millisecond,
	})
	if err := m.StartClusterListener(context.Background()); err != nil {
		t.Fatalf("StartClusterListener: %v", err)
	}
	t.Cleanup(m.StopClusterListener)
	return m
}

func TestAddUserRejectsDuplicate(t *testing.T) {
	m := newTestManager(t, newFakeTransport())

	if _, err := m.AddUser("alice"); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	_, err := m.AddUser("alice")
	if kind, ok := chaterr.KindOf(err); !ok || kind != chaterr.KindUserExists {
		t.Fatalf("AddUser(duplicate) = %v, want userExists", err)
	}
}

func TestAddUserRejectsInvalidName(t *testing.T) {
	m := newTestManager(t, newFakeTransport())
	_, err := m.AddUser("")
	if kind, ok := chaterr.KindOf(err); !ok || kind != chaterr.KindInvalidName {
		t.Fatalf("AddUser(invalid) = %v, want invalidName", err)
	}
}

func TestRegisterSocketRequiresLiveSocket(t *testing.T) {
	m := newTestManager(t, newFakeTransport())
	_, err := m.RegisterSocket(context.Background(), "alice", "sock-1")
	if kind, ok := chaterr.KindOf(err); !ok || kind != chaterr.KindNoSocket {
		t.Fatalf("RegisterSocket(unknown socket) = %v, want noSocket", err)
	}
}

func TestRegisterSocketTracksConnectedCount(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTransport()
	m := newTestManager(t, ft)

	ft.addSocket("sock-1")
	n, err := m.RegisterSocket(ctx, "alice", "sock-1")
	if err != nil {
		t.Fatalf("RegisterSocket: %v", err)
	}
	if n != 1 {
		t.Fatalf("RegisterSocket first socket count = %d, want 1", n)
	}

	ft.addSocket("sock-2")
	n, err = m.RegisterSocket(ctx, "alice", "sock-2")
	if err != nil {
		t.Fatalf("RegisterSocket: %v", err)
	}
	if n != 2 {
		t.Fatalf("RegisterSocket second socket count = %d, want 2", n)
	}

	if name, ok := m.UserNameForSocket("sock-2"); !ok || name != "alice" {
		t.Fatalf("UserNameForSocket(sock-2) = (%q, %v), want (alice, true)", name, ok)
	}
}

func TestRemoveSocketUnregisters(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTransport()
	m := newTestManager(t, ft)

	ft.addSocket("sock-1")
	if _, err := m.RegisterSocket(ctx, "alice", "sock-1"); err != nil {
		t.Fatalf("RegisterSocket: %v", err)
	}

	if err := m.RemoveSocket(ctx, "alice", "sock-1"); err != nil {
		t.Fatalf("RemoveSocket: %v", err)
	}

	if _, ok := m.UserNameForSocket("sock-1"); ok {
		t.Fatalf("UserNameForSocket(sock-1) after RemoveSocket, want not found")
	}
}

func TestRemoveSocketLeavesJoinedRooms(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTransport()
	m := newTestManager(t, ft)

	if err := m.RoomCreate(ctx, "alice", true, "general", false); err != nil {
		t.Fatalf("RoomCreate: %v", err)
	}

	ft.addSocket("sock-1")
	if _, err := m.RegisterSocket(ctx, "alice", "sock-1"); err != nil {
		t.Fatalf("RegisterSocket: %v", err)
	}
	if _, err := m.JoinSocketToRoom(ctx, "alice", "sock-1", "general", false); err != nil {
		t.Fatalf("JoinSocketToRoom: %v", err)
	}

	if err := m.RemoveSocket(ctx, "alice", "sock-1"); err != nil {
		t.Fatalf("RemoveSocket: %v", err)
	}

	rm := room.Load(m.deps.Store, "general", m.deps.RoomConfig)
	isMember, err := rm.IsMember(ctx, "alice")
	if err != nil {
		t.Fatalf("IsMember: %v", err)
	}
	if isMember {
		t.Fatalf("IsMember(alice) after disconnect = true, want false")
	}
}

func TestDisconnectInstanceSocketsClosesAll(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTransport()
	m := newTestManager(t, ft)

	s1 := ft.addSocket("sock-1")
	s2 := ft.addSocket("sock-2")
	if _, err := m.RegisterSocket(ctx, "alice", "sock-1"); err != nil {
		t.Fatalf("RegisterSocket: %v", err)
	}
	if _, err := m.RegisterSocket(ctx, "alice", "sock-2"); err != nil {
		t.Fatalf("RegisterSocket: %v", err)
	}

	if err := m.DisconnectInstanceSockets(ctx, "alice"); err != nil {
		t.Fatalf("DisconnectInstanceSockets: %v", err)
	}

	if !s1.closed || !s2.closed {
		t.Fatalf("DisconnectInstanceSockets left sockets open: s1.closed=%v s2.closed=%v", s1.closed, s2.closed)
	}
}

func TestListJoinedSockets(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTransport()
	m := newTestManager(t, ft)

	if err := m.RoomCreate(ctx, "alice", true, "general", false); err != nil {
		t.Fatalf("RoomCreate: %v", err)
	}
	ft.addSocket("sock-1")
	if _, err := m.RegisterSocket(ctx, "alice", "sock-1"); err != nil {
		t.Fatalf("RegisterSocket: %v", err)
	}
	if _, err := m.JoinSocketToRoom(ctx, "alice", "sock-1", "general", false); err != nil {
		t.Fatalf("JoinSocketToRoom: %v", err)
	}

	joined := m.ListJoinedSockets("alice")
	rooms, ok := joined["sock-1"]
	if !ok || len(rooms) != 1 || rooms[0] != "general" {
		t.Fatalf("ListJoinedSockets = %v, want sock-1 -> [general]", joined)
	}
}
