package user

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/xid"

	"github.com/concord-chat/concord/internal/eventbus"
	"github.com/concord-chat/concord/pkg/chaterr"
	"github.com/concord-chat/concord/pkg/domain"
)

const clusterBusTopic = "concord:cluster:evict"

func ackTopic(requestID string) string {
	return "concord:cluster:evict:ack:" + requestID
}

type evictMessage struct {
	Type      string `json:"type"`
	User      string `json:"user"`
	Room      string `json:"room"`
	RequestID string `json:"requestId"`
}

type evictAck struct {
	RequestID string `json:"requestId"`
	Instance  string `json:"instance"`
}

// StartClusterListener subscribes to the cluster-bus eviction and relay
// topics and must be running on every instance before any room
// access-list mutation or channel broadcast can reliably reach sockets
// on other instances.
func (m *Manager) StartClusterListener(ctx context.Context) error {
	evictSub, err := m.deps.Store.Subscribe(ctx, clusterBusTopic)
	if err != nil {
		return chaterr.Wrap(err, "clusterListener")
	}
	relaySub, err := m.deps.Store.Subscribe(ctx, clusterRelayTopic)
	if err != nil {
		evictSub.Close()
		return chaterr.Wrap(err, "clusterListener")
	}

	listenCtx, cancel := context.WithCancel(ctx)
	m.clusterCancel = cancel
	m.clusterDone = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer evictSub.Close()
		for {
			select {
			case <-listenCtx.Done():
				return
			case msg, ok := <-evictSub.Channel():
				if !ok {
					return
				}
				m.handleClusterMessage(listenCtx, msg.Payload)
			}
		}
	}()

	go func() {
		defer wg.Done()
		defer relaySub.Close()
		for {
			select {
			case <-listenCtx.Done():
				return
			case msg, ok := <-relaySub.Channel():
				if !ok {
					return
				}
				m.handleRelayMessage(listenCtx, msg.Payload)
			}
		}
	}()

	go func() {
		wg.Wait()
		close(m.clusterDone)
	}()

	return nil
}

// StopClusterListener stops the listener started by StartClusterListener
// and waits for it to finish.
func (m *Manager) StopClusterListener() {
	if m.clusterCancel == nil {
		return
	}
	m.clusterCancel()
	<-m.clusterDone
}

func (m *Manager) handleClusterMessage(ctx context.Context, payload []byte) {
	var msg evictMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		m.deps.Logger.Warn("malformed cluster bus message", "error", err)
		return
	}
	if msg.Type != "disconnectUserFromRoom" {
		return
	}

	u, ok := m.Get(msg.User)
	if !ok {
		return
	}

	u.mu.Lock()
	var sockets []string
	for socketID, rooms := range u.local {
		if _, joined := rooms[msg.Room]; joined {
			sockets = append(sockets, socketID)
		}
	}
	u.mu.Unlock()

	if len(sockets) == 0 {
		return
	}

	for _, socketID := range sockets {
		if err := m.LeaveSocketFromRoom(ctx, msg.User, socketID, msg.Room); err != nil {
			m.deps.Logger.Warn("eviction leave failed", "user", msg.User, "room", msg.Room, "socket", socketID, "error", err)
			continue
		}
		if sock, ok := m.deps.Transport.GetSocket(socketID); ok {
			_ = sock.Emit(ctx, string(domain.NotifyRoomAccessRemoved), msg.Room)
		}
	}

	ack, err := json.Marshal(evictAck{RequestID: msg.RequestID, Instance: m.deps.InstanceUID})
	if err == nil {
		_ = m.deps.Store.Publish(ctx, ackTopic(msg.RequestID), ack)
	}
}

// EvictFromRoom implements the cross-instance eviction half of the
// access-list mutation algorithm (§4.4): it publishes a cluster-bus
// message per evicted user and waits up to busAckTimeout for at least
// one instance to confirm it ran the leave protocol. A timeout never
// fails the triggering command — it only reports transportConsistencyFailure,
// since the list mutation that caused the eviction already committed.
func (m *Manager) EvictFromRoom(ctx context.Context, roomName string, evicted []string) {
	for _, userName := range evicted {
		m.evictOne(ctx, roomName, userName)
	}
}

func (m *Manager) evictOne(ctx context.Context, roomName, userName string) {
	requestID := xid.New().String()

	ackCtx, cancel := context.WithTimeout(ctx, m.deps.BusAckTimeout)
	defer cancel()

	sub, err := m.deps.Store.Subscribe(ackCtx, ackTopic(requestID))
	if err != nil {
		m.deps.Logger.Error("failed to subscribe to eviction ack topic", "error", err)
		return
	}
	defer sub.Close()

	payload, err := json.Marshal(evictMessage{Type: "disconnectUserFromRoom", User: userName, Room: roomName, RequestID: requestID})
	if err != nil {
		m.deps.Logger.Error("failed to marshal eviction message", "error", err)
		return
	}
	if err := m.deps.Store.Publish(ctx, clusterBusTopic, payload); err != nil {
		m.deps.Logger.Error("failed to publish eviction message", "error", err)
		return
	}

	select {
	case <-sub.Channel():
		return
	case <-ackCtx.Done():
		m.reportConsistencyFailure(ctx, userName, roomName)
	}
}

func (m *Manager) reportConsistencyFailure(ctx context.Context, userName, roomName string) {
	m.deps.Logger.Warn("transport consistency failure: no instance acked eviction within busAckTimeout",
		"user", userName, "room", roomName, "event", chaterr.EventTransportConsistencyFailure)
	m.deps.Bus.PublishAsync(eventbus.NewEvent(eventbus.EventConsistencyFailure, userName, map[string]any{
		"room": roomName,
		"kind": chaterr.EventTransportConsistencyFailure,
	}))
}
