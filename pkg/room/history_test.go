package room

import (
	"context"
	"testing"

	"github.com/concord-chat/concord/pkg/chaterr"
	"github.com/concord-chat/concord/pkg/state"
)

func TestMessageRequiresMembershipUnlessBypass(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	r, err := Create(ctx, store, "general", "alice", false, testConfig())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = r.Message(ctx, "bob", false, "hi", nil)
	if kind, ok := chaterr.KindOf(err); !ok || kind != chaterr.KindNotAllowed {
		t.Fatalf("Message(non-member) = %v, want notAllowed", err)
	}

	if err := r.Join(ctx, "bob", false); err != nil {
		t.Fatalf("Join: %v", err)
	}
	msg, err := r.Message(ctx, "bob", false, "hi", nil)
	if err != nil {
		t.Fatalf("Message(member): %v", err)
	}
	if msg.ID != 1 || msg.Author != "bob" || msg.TextMessage != "hi" {
		t.Fatalf("Message = %+v, unexpected", msg)
	}
}

func TestMessageAssignsMonotonicIDs(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	r, err := Create(ctx, store, "general", "alice", false, testConfig())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 3; i++ {
		msg, err := r.Message(ctx, "alice", true, "msg", nil)
		if err != nil {
			t.Fatalf("Message: %v", err)
		}
		if msg.ID != uint64(i+1) {
			t.Fatalf("Message %d.ID = %d, want %d", i, msg.ID, i+1)
		}
	}
}

func TestMessageTrimsHistoryFIFO(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	cfg := Config{LockTTL: testConfig().LockTTL, HistoryMaxSize: 2, HistoryMaxGetMessages: 10}
	r, err := Create(ctx, store, "general", "alice", false, cfg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := r.Message(ctx, "alice", true, "msg", nil); err != nil {
			t.Fatalf("Message: %v", err)
		}
	}

	msgs, err := r.GetMessages(ctx, 0, 0)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("GetMessages after trim = %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != 2 || msgs[1].ID != 3 {
		t.Fatalf("GetMessages after trim = %+v, want IDs [2,3]", msgs)
	}
}

func TestGetRecentMessagesCapsAtHistoryMaxGetMessages(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	cfg := Config{LockTTL: testConfig().LockTTL, HistoryMaxSize: 100, HistoryMaxGetMessages: 2}
	r, err := Create(ctx, store, "general", "alice", false, cfg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := r.Message(ctx, "alice", true, "msg", nil); err != nil {
			t.Fatalf("Message: %v", err)
		}
	}

	msgs, err := r.GetRecentMessages(ctx)
	if err != nil {
		t.Fatalf("GetRecentMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("GetRecentMessages = %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != 4 || msgs[1].ID != 5 {
		t.Fatalf("GetRecentMessages = %+v, want IDs [4,5]", msgs)
	}
}

func TestGetMessagesFromID(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	r, err := Create(ctx, store, "general", "alice", false, testConfig())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := r.Message(ctx, "alice", true, "msg", nil); err != nil {
			t.Fatalf("Message: %v", err)
		}
	}

	msgs, err := r.GetMessages(ctx, 3, 10)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("GetMessages(from=3) = %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != 4 || msgs[1].ID != 5 {
		t.Fatalf("GetMessages(from=3) = %+v, want IDs [4,5]", msgs)
	}
}

func TestGetHistoryInfoReportsWatermarks(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	cfg := Config{LockTTL: testConfig().LockTTL, HistoryMaxSize: 10, HistoryMaxGetMessages: 5}
	r, err := Create(ctx, store, "general", "alice", false, cfg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := r.Message(ctx, "alice", true, "msg", nil); err != nil {
		t.Fatalf("Message: %v", err)
	}

	info, err := r.GetHistoryInfo(ctx)
	if err != nil {
		t.Fatalf("GetHistoryInfo: %v", err)
	}
	if info.LastID != 1 || info.HistoryMaxSize != 10 || info.HistoryMaxGetMessages != 5 {
		t.Fatalf("GetHistoryInfo = %+v, unexpected", info)
	}
}
