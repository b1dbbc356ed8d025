package user

import (
	"context"

	"github.com/concord-chat/concord/internal/eventbus"
	"github.com/concord-chat/concord/pkg/chaterr"
	"github.com/concord-chat/concord/pkg/directmessage"
	"github.com/concord-chat/concord/pkg/domain"
	"github.com/concord-chat/concord/pkg/room"
)

// DirectAddToList implements the directAddToList command.
func (m *Manager) DirectAddToList(ctx context.Context, userName string, listName domain.ListName, values []string) error {
	u, ok := m.Get(userName)
	if !ok {
		return chaterr.New(chaterr.KindNoUserOnline, "directAddToList")
	}
	return u.dm.AddToList(ctx, listName, values)
}

// DirectRemoveFromList implements the directRemoveFromList command.
func (m *Manager) DirectRemoveFromList(ctx context.Context, userName string, listName domain.ListName, values []string) error {
	u, ok := m.Get(userName)
	if !ok {
		return chaterr.New(chaterr.KindNoUserOnline, "directRemoveFromList")
	}
	return u.dm.RemoveFromList(ctx, listName, values)
}

// DirectGetAccessList implements the directGetAccessList command.
func (m *Manager) DirectGetAccessList(ctx context.Context, userName string, listName domain.ListName) ([]string, error) {
	u, ok := m.Get(userName)
	if !ok {
		return nil, chaterr.New(chaterr.KindNoUserOnline, "directGetAccessList")
	}
	return u.dm.GetList(ctx, listName)
}

// DirectGetWhitelistMode implements the directGetWhitelistMode command.
func (m *Manager) DirectGetWhitelistMode(ctx context.Context, userName string) (bool, error) {
	u, ok := m.Get(userName)
	if !ok {
		return false, chaterr.New(chaterr.KindNoUserOnline, "directGetWhitelistMode")
	}
	return u.dm.GetMode(ctx)
}

// DirectSetWhitelistMode implements the directSetWhitelistMode command.
func (m *Manager) DirectSetWhitelistMode(ctx context.Context, userName string, mode bool) error {
	u, ok := m.Get(userName)
	if !ok {
		return chaterr.New(chaterr.KindNoUserOnline, "directSetWhitelistMode")
	}
	return u.dm.ChangeMode(ctx, mode)
}

// DirectMessage implements the directMessage command: admission is
// checked against the recipient's DirectMessaging record (persisted in
// the Store, so this works even when the recipient's sockets are on a
// different instance), and delivery requires the recipient to have at
// least one socket online anywhere in the cluster.
func (m *Manager) DirectMessage(ctx context.Context, sender, recipient string, payload any, bypass bool) error {
	if !m.deps.EnableDirectMessages {
		return chaterr.New(chaterr.KindNotAllowed, "directMessage")
	}

	nConnected, err := m.deps.Store.SCard(ctx, userSocketsKey(recipient))
	if err != nil {
		return chaterr.Wrap(err, "directMessage")
	}
	if nConnected == 0 {
		return chaterr.New(chaterr.KindNoUserOnline, "directMessage")
	}

	recipientDM := directmessage.New(m.deps.Store, recipient)
	if err := recipientDM.Message(ctx, sender, bypass); err != nil {
		return err
	}

	if err := m.emitToChannel(ctx, echoChannel(recipient), string(domain.NotifyDirectMessage), sender, payload); err != nil {
		return err
	}
	if err := m.emitToChannel(ctx, echoChannel(sender), string(domain.NotifyDirectMessageEcho), recipient, payload); err != nil {
		return err
	}

	m.deps.Bus.PublishAsync(eventbus.NewEvent(eventbus.EventDirectMessageSent, sender, map[string]any{"to": recipient}))
	return nil
}

// ListRooms implements the listRooms command.
func (m *Manager) ListRooms(ctx context.Context) ([]string, error) {
	names, err := m.deps.Store.SMembers(ctx, roomIndexKey)
	if err != nil {
		return nil, chaterr.Wrap(err, "listRooms")
	}
	return names, nil
}

const roomIndexKey = "rooms:index"

// RoomCreate implements the roomCreate command, gated by
// enableRoomsManagement for client-originated calls.
func (m *Manager) RoomCreate(ctx context.Context, caller string, bypass bool, name string, whitelistOnly bool) error {
	if !bypass && !m.deps.EnableRoomsManagement {
		return chaterr.New(chaterr.KindNotAllowed, "roomCreate")
	}

	if _, err := room.Create(ctx, m.deps.Store, name, caller, whitelistOnly, m.deps.RoomConfig); err != nil {
		return err
	}
	if err := m.deps.Store.SAdd(ctx, roomIndexKey, name); err != nil {
		return chaterr.Wrap(err, "roomCreate")
	}

	m.deps.Bus.PublishAsync(eventbus.NewEvent(eventbus.EventRoomCreated, caller, name))
	return nil
}

// RoomDelete implements the roomDelete command (and the server-side
// removeRoom API via bypass=true): it starts removal, evicts every
// currently-joined user, then drops the room's state.
func (m *Manager) RoomDelete(ctx context.Context, caller string, bypass bool, name string) error {
	rm := room.Load(m.deps.Store, name, m.deps.RoomConfig)

	if !bypass {
		isOwner, err := rm.CheckIsOwner(ctx, caller)
		if err != nil {
			return err
		}
		if !isOwner {
			return chaterr.New(chaterr.KindNotAllowed, "roomDelete")
		}
	}

	if err := rm.StartRemoving(ctx); err != nil {
		return err
	}

	members, err := rm.Members(ctx)
	if err != nil {
		return err
	}

	for _, member := range members {
		m.leaveAllSocketsFromRoom(ctx, member, name)
		if err := m.emitToChannel(ctx, echoChannel(member), string(domain.NotifyRoomAccessRemoved), name); err != nil {
			m.deps.Logger.Warn("roomDelete: failed to notify member", "room", name, "user", member, "error", err)
		}
	}

	if err := rm.Drop(ctx); err != nil {
		return err
	}
	if err := m.deps.Store.SRem(ctx, roomIndexKey, name); err != nil {
		return chaterr.Wrap(err, "roomDelete")
	}

	m.deps.Bus.PublishAsync(eventbus.NewEvent(eventbus.EventRoomRemoved, caller, name))
	return nil
}

// RoomAddToList implements roomAddToList, evicting any user the
// mutation drops admission for (locally via the room lock, then
// cross-instance via EvictFromRoom).
func (m *Manager) RoomAddToList(ctx context.Context, caller string, bypass bool, name string, listName domain.ListName, values []string) error {
	rm := room.Load(m.deps.Store, name, m.deps.RoomConfig)
	evicted, err := rm.AddToList(ctx, caller, bypass, listName, values)
	if err != nil {
		return err
	}

	if m.deps.EnableAccessListsUpdates {
		_ = m.emitToChannel(ctx, name, string(domain.NotifyRoomAccessAdded), name, string(listName), values)
	}

	m.EvictFromRoom(ctx, name, evicted)
	return nil
}

// RoomRemoveFromList implements roomRemoveFromList, symmetric to
// RoomAddToList.
func (m *Manager) RoomRemoveFromList(ctx context.Context, caller string, bypass bool, name string, listName domain.ListName, values []string) error {
	rm := room.Load(m.deps.Store, name, m.deps.RoomConfig)
	evicted, err := rm.RemoveFromList(ctx, caller, bypass, listName, values)
	if err != nil {
		return err
	}

	if m.deps.EnableAccessListsUpdates {
		_ = m.emitToChannel(ctx, name, string(domain.NotifyRoomAccessDeleted), name, string(listName), values)
	}

	m.EvictFromRoom(ctx, name, evicted)
	return nil
}

// RoomSetWhitelistMode implements roomSetWhitelistMode.
func (m *Manager) RoomSetWhitelistMode(ctx context.Context, caller string, bypass bool, name string, mode bool) error {
	rm := room.Load(m.deps.Store, name, m.deps.RoomConfig)
	evicted, err := rm.ChangeMode(ctx, caller, bypass, mode)
	if err != nil {
		return err
	}

	if m.deps.EnableAccessListsUpdates {
		_ = m.emitToChannel(ctx, name, string(domain.NotifyRoomModeChanged), name, mode)
	}

	m.EvictFromRoom(ctx, name, evicted)
	return nil
}

// RoomGetAccessList implements roomGetAccessList.
func (m *Manager) RoomGetAccessList(ctx context.Context, caller string, bypass bool, name string, listName domain.ListName) ([]string, error) {
	rm := room.Load(m.deps.Store, name, m.deps.RoomConfig)
	return rm.GetList(ctx, caller, bypass, listName)
}

// RoomGetOwner implements roomGetOwner.
func (m *Manager) RoomGetOwner(ctx context.Context, name string) (string, error) {
	rm := room.Load(m.deps.Store, name, m.deps.RoomConfig)
	return rm.GetOwner(ctx)
}

// RoomGetWhitelistMode implements roomGetWhitelistMode.
func (m *Manager) RoomGetWhitelistMode(ctx context.Context, caller string, bypass bool, name string) (bool, error) {
	rm := room.Load(m.deps.Store, name, m.deps.RoomConfig)
	return rm.GetMode(ctx, caller, bypass)
}

// RoomUserSeen implements roomUserSeen.
func (m *Manager) RoomUserSeen(ctx context.Context, caller string, bypass bool, name, target string) (domain.UserSeen, error) {
	rm := room.Load(m.deps.Store, name, m.deps.RoomConfig)
	return rm.UserSeen(ctx, caller, bypass, target)
}

// RoomHistoryInfo implements roomHistoryInfo.
func (m *Manager) RoomHistoryInfo(ctx context.Context, name string) (domain.HistoryInfo, error) {
	rm := room.Load(m.deps.Store, name, m.deps.RoomConfig)
	return rm.GetHistoryInfo(ctx)
}

// RoomRecentHistory implements roomRecentHistory.
func (m *Manager) RoomRecentHistory(ctx context.Context, name string) ([]domain.ChatMessage, error) {
	rm := room.Load(m.deps.Store, name, m.deps.RoomConfig)
	return rm.GetRecentMessages(ctx)
}

// RoomHistoryGet implements roomHistoryGet.
func (m *Manager) RoomHistoryGet(ctx context.Context, name string, fromID uint64, limit int) ([]domain.ChatMessage, error) {
	rm := room.Load(m.deps.Store, name, m.deps.RoomConfig)
	return rm.GetMessages(ctx, fromID, limit)
}

// RoomMessage implements roomMessage: the sender must currently be
// joined unless bypass, per Room.Message.
func (m *Manager) RoomMessage(ctx context.Context, sender string, bypass bool, name, text string, extensions map[string]any) (domain.ChatMessage, error) {
	rm := room.Load(m.deps.Store, name, m.deps.RoomConfig)
	msg, err := rm.Message(ctx, sender, bypass, text, extensions)
	if err != nil {
		return domain.ChatMessage{}, err
	}

	_ = m.emitToChannel(ctx, name, string(domain.NotifyRoomMessage), name, msg)
	m.deps.Bus.PublishAsync(eventbus.NewEvent(eventbus.EventMessageSent, sender, map[string]any{"room": name, "id": msg.ID}))
	return msg, nil
}

// SystemMessage implements the systemMessage command: a server-side
// broadcast with no admission check, delivered on the echo channel of
// every user known to this instance.
func (m *Manager) SystemMessage(ctx context.Context, payload any) error {
	m.mu.RLock()
	names := make([]string, 0, len(m.users))
	for name := range m.users {
		names = append(names, name)
	}
	m.mu.RUnlock()

	for _, name := range names {
		if err := m.emitToChannel(ctx, echoChannel(name), string(domain.NotifySystemMessage), payload); err != nil {
			return err
		}
	}
	return nil
}
