package user

import (
	"context"
	"testing"

	"github.com/concord-chat/concord/pkg/room"
)

// TestRoomDeleteTearsDownJoinState reproduces the recreate-with-same-name
// scenario: a joined socket must lose its room channel membership and its
// cluster-wide join record when the room is deleted, so that a later room
// of the same name starts from a clean slate.
func TestRoomDeleteTearsDownJoinState(t *testing.T) {
	ft := newFakeTransport()
	m := newTestManager(t, ft)
	ctx := context.Background()

	if _, err := m.AddUser("alice"); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if err := m.RoomCreate(ctx, "alice", true, "r", false); err != nil {
		t.Fatalf("RoomCreate: %v", err)
	}

	sock := ft.addSocket("sock-1")
	if _, err := m.JoinSocketToRoom(ctx, "alice", sock.ID(), "r", false); err != nil {
		t.Fatalf("JoinSocketToRoom: %v", err)
	}

	if err := m.RoomDelete(ctx, "alice", true, "r"); err != nil {
		t.Fatalf("RoomDelete: %v", err)
	}

	if _, ok := ft.channels["r"]["sock-1"]; ok {
		t.Fatalf("socket sock-1 still a member of channel %q after room delete", "r")
	}

	key := roomSocketsKey("alice", "r")
	card, err := m.deps.Store.SCard(ctx, key)
	if err != nil {
		t.Fatalf("SCard: %v", err)
	}
	if card != 0 {
		t.Fatalf("roomSocketsKey(alice, r) still has %d members after room delete, want 0", card)
	}

	if u, ok := m.Get("alice"); ok {
		u.mu.Lock()
		_, stillJoined := u.local["sock-1"]["r"]
		u.mu.Unlock()
		if stillJoined {
			t.Fatalf("local join cache still marks sock-1 joined to %q after room delete", "r")
		}
	}

	if err := m.RoomCreate(ctx, "alice", true, "r", false); err != nil {
		t.Fatalf("RoomCreate (recreate): %v", err)
	}

	sock2 := ft.addSocket("sock-2")
	ft.emitsToChannel = nil
	njoined, err := m.JoinSocketToRoom(ctx, "alice", sock2.ID(), "r", false)
	if err != nil {
		t.Fatalf("JoinSocketToRoom (recreated room): %v", err)
	}
	if njoined != 1 {
		t.Fatalf("JoinSocketToRoom (recreated room) njoined = %d, want 1", njoined)
	}

	waitForCondition(t, func() bool {
		ft.mu.Lock()
		defer ft.mu.Unlock()
		for _, emit := range ft.emitsToChannel {
			if emit.Channel == "r" && emit.Event == "roomUserJoined" {
				return true
			}
		}
		return false
	})

	exists, err := room.Exists(ctx, m.deps.Store, "r")
	if err != nil || !exists {
		t.Fatalf("room.Exists(r) = (%v, %v), want (true, nil)", exists, err)
	}
}
