package room

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/concord-chat/concord/pkg/chaterr"
	"github.com/concord-chat/concord/pkg/domain"
)

// Message admits sender == current member unless bypass, assigns the
// room's next monotonic ID via the Store's atomic counter, appends to
// history, trims to historyMaxSize FIFO, and returns the materialized
// message.
func (r *Room) Message(ctx context.Context, sender string, bypass bool, text string, extensions map[string]any) (domain.ChatMessage, error) {
	meta, err := r.readMeta(ctx)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	if err := r.requireNotRemoving(meta); err != nil {
		return domain.ChatMessage{}, err
	}

	if !bypass {
		isMember, err := r.IsMember(ctx, sender)
		if err != nil {
			return domain.ChatMessage{}, err
		}
		if !isMember {
			return domain.ChatMessage{}, chaterr.New(chaterr.KindNotAllowed, "roomMessage")
		}
	}

	_, _, _, _, _, _, historyKey, counterKey := keys(r.name)

	newID, err := r.store.Incr(ctx, counterKey)
	if err != nil {
		return domain.ChatMessage{}, chaterr.Wrap(err, "roomMessage")
	}

	msg := domain.ChatMessage{
		ID:          newID,
		Timestamp:   time.Now().UnixMilli(),
		Author:      sender,
		TextMessage: text,
		Extensions:  extensions,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return domain.ChatMessage{}, chaterr.Wrap(err, "roomMessage")
	}
	if err := r.store.HSet(ctx, historyKey, formatID(newID), string(data)); err != nil {
		return domain.ChatMessage{}, chaterr.Wrap(err, "roomMessage")
	}

	// IDs are contiguous starting at 1, so the oldest retained entry at
	// any point is exactly newID-historyMaxSize; trimming it is all FIFO
	// eviction requires, with no separate size counter to keep in sync.
	if r.historyMaxSize > 0 && newID > uint64(r.historyMaxSize) {
		oldest := newID - uint64(r.historyMaxSize)
		if err := r.store.HDel(ctx, historyKey, formatID(oldest)); err != nil {
			return domain.ChatMessage{}, chaterr.Wrap(err, "roomMessage")
		}
	}

	return msg, nil
}

// GetRecentMessages returns up to historyMaxGetMessages of the most
// recent messages, oldest first.
func (r *Room) GetRecentMessages(ctx context.Context) ([]domain.ChatMessage, error) {
	lastID, err := r.lastMessageID(ctx)
	if err != nil {
		return nil, err
	}
	if lastID == 0 {
		return nil, nil
	}

	limit := uint64(r.historyMaxGetMessages)
	from := uint64(0)
	if lastID > limit {
		from = lastID - limit
	}
	return r.fetchRange(ctx, from, lastID)
}

// GetMessages returns up to min(limit, historyMaxGetMessages) messages
// with id > fromID, oldest first.
func (r *Room) GetMessages(ctx context.Context, fromID uint64, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 || limit > r.historyMaxGetMessages {
		limit = r.historyMaxGetMessages
	}

	lastID, err := r.lastMessageID(ctx)
	if err != nil {
		return nil, err
	}
	if lastID <= fromID {
		return nil, nil
	}

	to := fromID + uint64(limit)
	if to > lastID {
		to = lastID
	}
	return r.fetchRange(ctx, fromID, to)
}

// GetHistoryInfo reports the room's current history watermarks.
func (r *Room) GetHistoryInfo(ctx context.Context) (domain.HistoryInfo, error) {
	lastID, err := r.lastMessageID(ctx)
	if err != nil {
		return domain.HistoryInfo{}, err
	}
	return domain.HistoryInfo{
		LastID:                lastID,
		HistoryMaxGetMessages: r.historyMaxGetMessages,
		HistoryMaxSize:        r.historyMaxSize,
	}, nil
}

func (r *Room) lastMessageID(ctx context.Context) (uint64, error) {
	_, _, _, _, _, _, _, counterKey := keys(r.name)
	raw, ok, err := r.store.Get(ctx, counterKey)
	if err != nil {
		return 0, chaterr.Wrap(err, "room")
	}
	if !ok {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, chaterr.Wrap(err, "room")
	}
	return v, nil
}

// fetchRange returns messages with id in (from, to], skipping any id
// already trimmed from history.
func (r *Room) fetchRange(ctx context.Context, from, to uint64) ([]domain.ChatMessage, error) {
	_, _, _, _, _, _, historyKey, _ := keys(r.name)

	var out []domain.ChatMessage
	for id := from + 1; id <= to; id++ {
		raw, ok, err := r.store.HGet(ctx, historyKey, formatID(id))
		if err != nil {
			return nil, chaterr.Wrap(err, "room")
		}
		if !ok {
			continue
		}
		var msg domain.ChatMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, chaterr.Wrap(err, "room")
		}
		out = append(out, msg)
	}
	return out, nil
}
