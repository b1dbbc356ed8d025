package chatservice

import (
	"context"
	"encoding/json"

	"github.com/concord-chat/concord/pkg/chaterr"
	"github.com/concord-chat/concord/pkg/domain"
)

// connectPayload is the JSON body a client sends as its connection auth
// payload: the userName it wants to connect as.
type connectPayload struct {
	UserName string `json:"userName"`
}

func parseConnectPayload(raw []byte) (connectPayload, error) {
	var p connectPayload
	if len(raw) == 0 {
		return p, chaterr.New(chaterr.KindBadArgument, "connect")
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, chaterr.Wrap(err, "connect")
	}
	return p, nil
}

// commandFrame is the wire shape of a single client-issued command.
// AckID, if present, is echoed back on ackFrame so the client can
// correlate the response with this request over the single connection.
type commandFrame struct {
	AckID   string `json:"ackId,omitempty"`
	Command string `json:"command"`
	Args    []any  `json:"args,omitempty"`
}

// ackFrame is the wire shape of a command's outcome, matching the
// "(error, data...)" client-protocol shape.
type ackFrame struct {
	AckID   string `json:"ackId,omitempty"`
	Error   any    `json:"error,omitempty"`
	Results []any  `json:"results,omitempty"`
}

// handleFrame decodes one raw client frame and runs it through the
// command pipeline, writing an ackFrame back to the originating socket.
func (s *Service) handleFrame(ctx context.Context, socketID string, raw []byte) {
	var in commandFrame
	if err := json.Unmarshal(raw, &in); err != nil {
		s.emitAck(ctx, socketID, ackFrame{Error: s.serialize(chaterr.New(chaterr.KindBadArgument, "frame"))})
		return
	}

	userName, ok := s.manager.UserNameForSocket(socketID)
	if !ok {
		s.emitAck(ctx, socketID, ackFrame{AckID: in.AckID, Error: s.serialize(chaterr.New(chaterr.KindNoSocket, in.Command))})
		return
	}

	call := &domain.Call{
		Command:  domain.CommandName(in.Command),
		UserName: userName,
		SocketID: socketID,
		Args:     in.Args,
	}

	results, err := s.binder.Exec(ctx, call)
	if err != nil {
		s.errorHandler.Handle(ctx, err)
		s.emitAck(ctx, socketID, ackFrame{AckID: in.AckID, Error: s.serialize(err)})
		return
	}

	s.emitAck(ctx, socketID, ackFrame{AckID: in.AckID, Results: results})
}

func (s *Service) emitAck(ctx context.Context, socketID string, ack ackFrame) {
	sock, ok := s.transport.GetSocket(socketID)
	if !ok {
		return
	}
	if err := sock.Emit(ctx, "ack", ack); err != nil {
		s.logger.Warn("failed to emit ack", "socket", socketID, "error", err)
	}
}

func (s *Service) serialize(err error) any {
	return chaterr.Serialize(err, s.cfg.Chat.UseRawErrorObjects)
}
