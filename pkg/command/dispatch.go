package command

import (
	"context"

	"github.com/concord-chat/concord/pkg/chaterr"
	"github.com/concord-chat/concord/pkg/domain"
)

// dispatch invokes the bound method on the Manager for call.Command.
// Argument shapes have already been checked by ArgumentsValidator, so
// type assertions here are expected to hold.
func (b *Binder) dispatch(ctx context.Context, call *domain.Call) (domain.Results, error) {
	m := b.manager
	a := call.Args

	switch call.Command {

	case domain.CmdDirectAddToList:
		if err := m.DirectAddToList(ctx, call.UserName, domain.ListName(a[0].(string)), stringSlice(a[1])); err != nil {
			return nil, err
		}
		return nil, nil

	case domain.CmdDirectRemoveFromList:
		if err := m.DirectRemoveFromList(ctx, call.UserName, domain.ListName(a[0].(string)), stringSlice(a[1])); err != nil {
			return nil, err
		}
		return nil, nil

	case domain.CmdDirectGetAccessList:
		list, err := m.DirectGetAccessList(ctx, call.UserName, domain.ListName(a[0].(string)))
		if err != nil {
			return nil, err
		}
		return domain.Results{list}, nil

	case domain.CmdDirectGetWhitelistMode:
		mode, err := m.DirectGetWhitelistMode(ctx, call.UserName)
		if err != nil {
			return nil, err
		}
		return domain.Results{mode}, nil

	case domain.CmdDirectSetWhitelistMode:
		if err := m.DirectSetWhitelistMode(ctx, call.UserName, a[0].(bool)); err != nil {
			return nil, err
		}
		return nil, nil

	case domain.CmdDirectMessage:
		recipient := a[0].(string)
		if err := m.DirectMessage(ctx, call.UserName, recipient, a[1], call.BypassPermissions); err != nil {
			return nil, err
		}
		return nil, nil

	case domain.CmdListJoinedSockets:
		return domain.Results{m.ListJoinedSockets(call.UserName)}, nil

	case domain.CmdListRooms:
		names, err := m.ListRooms(ctx)
		if err != nil {
			return nil, err
		}
		return domain.Results{names}, nil

	case domain.CmdRoomCreate:
		whitelistOnly := false
		if len(a) > 1 {
			whitelistOnly = a[1].(bool)
		}
		if err := m.RoomCreate(ctx, call.UserName, call.BypassPermissions, a[0].(string), whitelistOnly); err != nil {
			return nil, err
		}
		return nil, nil

	case domain.CmdRoomDelete:
		if err := m.RoomDelete(ctx, call.UserName, call.BypassPermissions, a[0].(string)); err != nil {
			return nil, err
		}
		return nil, nil

	case domain.CmdRoomAddToList:
		if err := m.RoomAddToList(ctx, call.UserName, call.BypassPermissions, a[0].(string), domain.ListName(a[1].(string)), stringSlice(a[2])); err != nil {
			return nil, err
		}
		return nil, nil

	case domain.CmdRoomRemoveFromList:
		if err := m.RoomRemoveFromList(ctx, call.UserName, call.BypassPermissions, a[0].(string), domain.ListName(a[1].(string)), stringSlice(a[2])); err != nil {
			return nil, err
		}
		return nil, nil

	case domain.CmdRoomGetAccessList:
		list, err := m.RoomGetAccessList(ctx, call.UserName, call.BypassPermissions, a[0].(string), domain.ListName(a[1].(string)))
		if err != nil {
			return nil, err
		}
		return domain.Results{list}, nil

	case domain.CmdRoomGetOwner:
		owner, err := m.RoomGetOwner(ctx, a[0].(string))
		if err != nil {
			return nil, err
		}
		return domain.Results{owner}, nil

	case domain.CmdRoomGetWhitelistMode:
		mode, err := m.RoomGetWhitelistMode(ctx, call.UserName, call.BypassPermissions, a[0].(string))
		if err != nil {
			return nil, err
		}
		return domain.Results{mode}, nil

	case domain.CmdRoomSetWhitelistMode:
		if err := m.RoomSetWhitelistMode(ctx, call.UserName, call.BypassPermissions, a[0].(string), a[1].(bool)); err != nil {
			return nil, err
		}
		return nil, nil

	case domain.CmdRoomUserSeen:
		seen, err := m.RoomUserSeen(ctx, call.UserName, call.BypassPermissions, a[0].(string), a[1].(string))
		if err != nil {
			return nil, err
		}
		return domain.Results{seen}, nil

	case domain.CmdRoomHistoryInfo:
		info, err := m.RoomHistoryInfo(ctx, a[0].(string))
		if err != nil {
			return nil, err
		}
		return domain.Results{info}, nil

	case domain.CmdRoomRecentHistory:
		messages, err := m.RoomRecentHistory(ctx, a[0].(string))
		if err != nil {
			return nil, err
		}
		return domain.Results{messages}, nil

	case domain.CmdRoomHistoryGet:
		limit := 0
		if len(a) > 2 {
			limit = toInt(a[2])
		}
		messages, err := m.RoomHistoryGet(ctx, a[0].(string), toUint64(a[1]), limit)
		if err != nil {
			return nil, err
		}
		return domain.Results{messages}, nil

	case domain.CmdRoomJoin:
		njoined, err := m.JoinSocketToRoom(ctx, call.UserName, call.SocketID, a[0].(string), call.BypassPermissions)
		if err != nil {
			return nil, err
		}
		return domain.Results{njoined}, nil

	case domain.CmdRoomLeave:
		if err := m.LeaveSocketFromRoom(ctx, call.UserName, call.SocketID, a[0].(string)); err != nil {
			return nil, err
		}
		return nil, nil

	case domain.CmdRoomMessage:
		text, extensions := splitMessagePayload(a[1])
		msg, err := m.RoomMessage(ctx, call.UserName, call.BypassPermissions, a[0].(string), text, extensions)
		if err != nil {
			return nil, err
		}
		return domain.Results{msg}, nil

	case domain.CmdSystemMessage:
		if err := m.SystemMessage(ctx, a[0]); err != nil {
			return nil, err
		}
		return nil, nil

	default:
		return nil, chaterr.New(chaterr.KindNoCommand, string(call.Command))
	}
}

func stringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func toUint64(v any) uint64 {
	switch vv := v.(type) {
	case uint64:
		return vv
	case int:
		return uint64(vv)
	case int64:
		return uint64(vv)
	case float64:
		return uint64(vv)
	default:
		return 0
	}
}

func toInt(v any) int {
	switch vv := v.(type) {
	case int:
		return vv
	case int64:
		return int(vv)
	case float64:
		return int(vv)
	default:
		return 0
	}
}

// splitMessagePayload accepts either a plain string (textMessage only)
// or a {textMessage, ...extensions} map, matching roomMessage's payload
// argument across both wire shapes client libraries commonly send.
func splitMessagePayload(v any) (string, map[string]any) {
	switch vv := v.(type) {
	case string:
		return vv, nil
	case map[string]any:
		text, _ := vv["textMessage"].(string)
		extensions := make(map[string]any, len(vv))
		for k, val := range vv {
			if k != "textMessage" {
				extensions[k] = val
			}
		}
		if len(extensions) == 0 {
			extensions = nil
		}
		return text, extensions
	default:
		return "", nil
	}
}
