package user

import (
	"context"
	"testing"
	"time"

	"github.com/concord-chat/concord/pkg/domain"
)

func TestEvictFromRoomDisconnectsJoinedSocket(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTransport()
	m := newTestManager(t, ft)

	if err := m.RoomCreate(ctx, "alice", true, "general", false); err != nil {
		t.Fatalf("RoomCreate: %v", err)
	}
	sock := ft.addSocket("sock-1")
	if _, err := m.RegisterSocket(ctx, "bob", "sock-1"); err != nil {
		t.Fatalf("RegisterSocket: %v", err)
	}
	if _, err := m.JoinSocketToRoom(ctx, "bob", "sock-1", "general", true); err != nil {
		t.Fatalf("JoinSocketToRoom: %v", err)
	}

	m.EvictFromRoom(ctx, "general", []string{"bob"})

	waitForCondition(t, func() bool {
		for _, e := range sock.emitted {
			if e.Event == string(domain.NotifyRoomAccessRemoved) {
				return true
			}
		}
		return false
	})
}

func TestEvictFromRoomWithNoJoinedSocketsDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, newFakeTransport())

	// bob never joined "general" on this instance; EvictFromRoom must
	// still return once busAckTimeout elapses, logging a consistency
	// failure rather than hanging, since no instance will ack.
	done := make(chan struct{})
	go func() {
		m.EvictFromRoom(ctx, "general", []string{"bob"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("EvictFromRoom did not return within 2s")
	}
}
