package user

import (
	"context"
	"encoding/json"
)

// clusterRelayTopic carries every room/echo-channel notification through
// the cluster bus so that every instance's own local Transport — which
// only ever holds the sockets it itself accepted — performs the actual
// per-socket emit. A channel emit naturally reaches only the sockets an
// instance owns, so relaying unconditionally to all instances is
// equivalent to "emit to every socket in this channel, wherever it
// lives" without the engine needing to track which instance owns which
// channel member.
const clusterRelayTopic = "concord:cluster:relay"

type relayMessage struct {
	Mode    string `json:"mode"` // "channel" or "channelExclude"
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Exclude string `json:"exclude,omitempty"`
	Args    []any  `json:"args,omitempty"`
}

// emitToChannel relays an EmitToChannel broadcast through the cluster
// bus so every instance's local Transport delivers to the members it
// owns.
func (m *Manager) emitToChannel(ctx context.Context, channel, event string, args ...any) error {
	return m.relay(ctx, relayMessage{Mode: "channel", Channel: channel, Event: event, Args: args})
}

// sendToChannel relays a SendToChannel broadcast (one exclusion) through
// the cluster bus.
func (m *Manager) sendToChannel(ctx context.Context, exclude, channel, event string, args ...any) error {
	return m.relay(ctx, relayMessage{Mode: "channelExclude", Channel: channel, Event: event, Exclude: exclude, Args: args})
}

func (m *Manager) relay(ctx context.Context, msg relayMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return m.deps.Store.Publish(ctx, clusterRelayTopic, data)
}

func (m *Manager) handleRelayMessage(ctx context.Context, payload []byte) {
	var msg relayMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		m.deps.Logger.Warn("malformed cluster relay message", "error", err)
		return
	}

	switch msg.Mode {
	case "channel":
		_ = m.deps.Transport.EmitToChannel(ctx, msg.Channel, msg.Event, msg.Args...)
	case "channelExclude":
		_ = m.deps.Transport.SendToChannel(ctx, msg.Exclude, msg.Channel, msg.Event, msg.Args...)
	}
}
