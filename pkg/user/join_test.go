package user

import (
	"context"
	"testing"

	"github.com/concord-chat/concord/pkg/chaterr"
)

func TestJoinSocketToRoomEmitsUserJoinedOnFirstSocket(t *testing.T) {
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

	njoined, err := m.JoinSocketToRoom(ctx, "alice", "sock-1", "general", false)
	if err != nil {
		t.Fatalf("JoinSocketToRoom: %v", err)
	}
	if njoined != 1 {
		t.Fatalf("JoinSocketToRoom njoined = %d, want 1", njoined)
	}

	waitForCondition(t, func() bool {
		ft.mu.Lock()
		defer ft.mu.Unlock()
		for _, e := range ft.emitsToChannel {
			if e.Channel == "general" && e.Event == "roomUserJoined" {
				return true
			}
		}
		return false
	})
}

func TestJoinSocketToRoomRejectsEmptySocketID(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, newFakeTransport())

	if err := m.RoomCreate(ctx, "alice", true, "general", false); err != nil {
		t.Fatalf("RoomCreate: %v", err)
	}

	_, err := m.JoinSocketToRoom(ctx, "alice", "", "general", false)
	if kind, ok := chaterr.KindOf(err); !ok || kind != chaterr.KindNoSocket {
		t.Fatalf("JoinSocketToRoom(empty socket) = %v, want noSocket", err)
	}
}

func TestLeaveSocketFromRoomOnLastSocket(t *testing.T) {
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

	if err := m.LeaveSocketFromRoom(ctx, "alice", "sock-1", "general"); err != nil {
		t.Fatalf("LeaveSocketFromRoom: %v", err)
	}

	waitForCondition(t, func() bool {
		ft.mu.Lock()
		defer ft.mu.Unlock()
		for _, e := range ft.emitsToChannel {
			if e.Channel == "general" && e.Event == "roomUserLeft" {
				return true
			}
		}
		return false
	})
}
