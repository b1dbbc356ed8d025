package chatservice

import (
	"context"

	"github.com/concord-chat/concord/pkg/room"
)

// AddUser registers userName with the Manager ahead of any socket
// connecting as it, failing with userExists if already registered on
// this instance.
func (s *Service) AddUser(ctx context.Context, userName string) error {
	_, err := s.manager.AddUser(userName)
	return err
}

// AddRoom creates roomName owned by owner, bypassing enableRoomsManagement
// — the server-side equivalent of a client roomCreate call.
func (s *Service) AddRoom(ctx context.Context, roomName, owner string, whitelistOnly bool) error {
	return s.manager.RoomCreate(ctx, owner, true, roomName, whitelistOnly)
}

// RemoveRoom evicts every joined user and drops roomName's state,
// bypassing ownership checks.
func (s *Service) RemoveRoom(ctx context.Context, roomName string) error {
	return s.manager.RoomDelete(ctx, "", true, roomName)
}

// DisconnectUserSockets forcibly disconnects every socket of userName
// registered on this instance.
func (s *Service) DisconnectUserSockets(ctx context.Context, userName string) error {
	return s.manager.DisconnectInstanceSockets(ctx, userName)
}

// RoomExists reports whether roomName currently exists.
func (s *Service) RoomExists(ctx context.Context, roomName string) (bool, error) {
	return room.Exists(ctx, s.store, roomName)
}
