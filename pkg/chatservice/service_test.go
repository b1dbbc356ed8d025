package chatservice

import (
	"context"
	"testing"

	"github.com/concord-chat/concord/internal/config"
	"github.com/concord-chat/concord/pkg/chaterr"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := config.Default()
	cfg.Logging.Level = "error"

	svc, err := New(cfg, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func TestAddUserRegistersOnceOnly(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.AddUser(ctx, "alice"); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	err := svc.AddUser(ctx, "alice")
	if kind, ok := chaterr.KindOf(err); !ok || kind != chaterr.KindUserExists {
		t.Fatalf("AddUser(duplicate) = %v, want userExists", err)
	}
}

func TestAddRoomThenRoomExists(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if ok, err := svc.RoomExists(ctx, "general"); err != nil || ok {
		t.Fatalf("RoomExists(before create) = (%v, %v), want (false, nil)", ok, err)
	}

	if err := svc.AddRoom(ctx, "general", "alice", false); err != nil {
		t.Fatalf("AddRoom: %v", err)
	}

	ok, err := svc.RoomExists(ctx, "general")
	if err != nil || !ok {
		t.Fatalf("RoomExists(after create) = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestRemoveRoomDropsExistence(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.AddRoom(ctx, "general", "alice", false); err != nil {
		t.Fatalf("AddRoom: %v", err)
	}
	if err := svc.RemoveRoom(ctx, "general"); err != nil {
		t.Fatalf("RemoveRoom: %v", err)
	}

	ok, err := svc.RoomExists(ctx, "general")
	if err != nil || ok {
		t.Fatalf("RoomExists(after remove) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestDisconnectUserSocketsWithNoSocketsIsNoop(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.AddUser(ctx, "alice"); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if err := svc.DisconnectUserSockets(ctx, "alice"); err != nil {
		t.Fatalf("DisconnectUserSockets: %v", err)
	}
}

func TestInstanceUIDIsStable(t *testing.T) {
	svc := newTestService(t)
	if svc.InstanceUID() == "" {
		t.Fatalf("InstanceUID() = \"\", want non-empty")
	}
	if svc.InstanceUID() != svc.InstanceUID() {
		t.Fatalf("InstanceUID() is not stable across calls")
	}
}
