package user

import (
	"context"

	"github.com/concord-chat/concord/internal/eventbus"
	"github.com/concord-chat/concord/pkg/chaterr"
	"github.com/concord-chat/concord/pkg/domain"
	"github.com/concord-chat/concord/pkg/room"
)

func joinLockName(userName, roomName string) string {
	return "joinlock:" + userName + ":" + roomName
}

func roomSocketsKey(userName, roomName string) string {
	return "user:" + userName + ":room:" + roomName + ":sockets"
}

// JoinSocketToRoom runs the room-join protocol (§4.4): under the
// per-(user,room) join lock, it checks admission via Room.Join, records
// the join cluster-wide, joins the transport channel, and emits
// roomUserJoined (on the user's first cluster-wide join) and roomJoinedEcho.
// It returns njoined, the number of this user's sockets — on any
// instance — currently joined to roomName.
func (m *Manager) JoinSocketToRoom(ctx context.Context, userName, socketID, roomName string, bypass bool) (int, error) {
	if socketID == "" {
		return 0, chaterr.New(chaterr.KindNoSocket, "roomJoin")
	}

	lk, err := m.deps.Store.Lock(ctx, joinLockName(userName, roomName), m.deps.LockTTL)
	if err != nil {
		return 0, chaterr.Wrap(err, "roomJoin")
	}
	defer lk.Release(ctx)

	rm := room.Load(m.deps.Store, roomName, m.deps.RoomConfig)
	if err := rm.Join(ctx, userName, bypass); err != nil {
		return 0, err
	}

	key := roomSocketsKey(userName, roomName)
	before, err := m.deps.Store.SCard(ctx, key)
	if err != nil {
		return 0, chaterr.Wrap(err, "roomJoin")
	}
	if err := m.deps.Store.SAdd(ctx, key, socketID); err != nil {
		return 0, chaterr.Wrap(err, "roomJoin")
	}

	u, ok := m.Get(userName)
	if ok {
		u.mu.Lock()
		if u.local[socketID] == nil {
			u.local[socketID] = make(map[string]struct{})
		}
		u.local[socketID][roomName] = struct{}{}
		u.mu.Unlock()
	}

	if err := m.deps.Transport.JoinChannel(ctx, socketID, roomName); err != nil {
		return 0, chaterr.Wrap(err, "roomJoin")
	}

	if before == 0 && m.deps.EnableUserlistUpdates {
		_ = m.emitToChannel(ctx, roomName, string(domain.NotifyRoomUserJoined), roomName, userName)
	}

	njoined, err := m.deps.Store.SCard(ctx, key)
	if err != nil {
		return 0, chaterr.Wrap(err, "roomJoin")
	}

	_ = m.sendToChannel(ctx, socketID, echoChannel(userName), string(domain.NotifyRoomJoinedEcho), roomName, socketID, njoined)
	m.deps.Bus.PublishAsync(eventbus.NewEvent(eventbus.EventUserJoined, userName, map[string]any{"room": roomName, "socket": socketID}))

	return njoined, nil
}

// leaveAllSocketsFromRoom tears down userName's join state for roomName
// across every socket, on every instance, without running Room.Leave —
// used by RoomDelete, where the room's own state is about to be dropped
// wholesale and there is no userlist left to update. It clears the
// cluster-wide roomSocketsKey set, this instance's local join cache for
// each socket it holds, and the socket's Transport channel membership.
func (m *Manager) leaveAllSocketsFromRoom(ctx context.Context, userName, roomName string) {
	lk, err := m.deps.Store.Lock(ctx, joinLockName(userName, roomName), m.deps.LockTTL)
	if err != nil {
		m.deps.Logger.Warn("roomDelete: failed to acquire join lock", "room", roomName, "user", userName, "error", err)
		return
	}
	defer lk.Release(ctx)

	key := roomSocketsKey(userName, roomName)
	socketIDs, err := m.deps.Store.SMembers(ctx, key)
	if err != nil {
		m.deps.Logger.Warn("roomDelete: failed to list joined sockets", "room", roomName, "user", userName, "error", err)
		return
	}

	u, hasLocal := m.Get(userName)
	for _, socketID := range socketIDs {
		if err := m.deps.Store.SRem(ctx, key, socketID); err != nil {
			m.deps.Logger.Warn("roomDelete: failed to clear joined socket", "room", roomName, "user", userName, "socket", socketID, "error", err)
		}
		if hasLocal {
			u.mu.Lock()
			delete(u.local[socketID], roomName)
			u.mu.Unlock()
		}
		if err := m.deps.Transport.LeaveChannel(ctx, socketID, roomName); err != nil {
			m.deps.Logger.Warn("roomDelete: failed to leave channel", "room", roomName, "user", userName, "socket", socketID, "error", err)
		}
	}
}

// LeaveSocketFromRoom is the symmetric leave protocol: on the last
// socket of userName leaving roomName (on any instance), it runs
// Room.Leave and emits roomUserLeft; it always emits roomLeftEcho.
func (m *Manager) LeaveSocketFromRoom(ctx context.Context, userName, socketID, roomName string) error {
	if socketID == "" {
		return chaterr.New(chaterr.KindNoSocket, "roomLeave")
	}

	lk, err := m.deps.Store.Lock(ctx, joinLockName(userName, roomName), m.deps.LockTTL)
	if err != nil {
		return chaterr.Wrap(err, "roomLeave")
	}
	defer lk.Release(ctx)

	key := roomSocketsKey(userName, roomName)
	if err := m.deps.Store.SRem(ctx, key, socketID); err != nil {
		return chaterr.Wrap(err, "roomLeave")
	}

	if u, ok := m.Get(userName); ok {
		u.mu.Lock()
		delete(u.local[socketID], roomName)
		u.mu.Unlock()
	}

	_ = m.deps.Transport.LeaveChannel(ctx, socketID, roomName)

	remaining, err := m.deps.Store.SCard(ctx, key)
	if err != nil {
		return chaterr.Wrap(err, "roomLeave")
	}

	_ = m.sendToChannel(ctx, socketID, echoChannel(userName), string(domain.NotifyRoomLeftEcho), roomName, socketID, remaining)

	if remaining == 0 {
		rm := room.Load(m.deps.Store, roomName, m.deps.RoomConfig)
		if err := rm.Leave(ctx, userName); err != nil {
			return err
		}
		if m.deps.EnableUserlistUpdates {
			_ = m.emitToChannel(ctx, roomName, string(domain.NotifyRoomUserLeft), roomName, userName)
		}
	}

	m.deps.Bus.PublishAsync(eventbus.NewEvent(eventbus.EventUserLeft, userName, map[string]any{"room": roomName, "socket": socketID}))
	return nil
}
