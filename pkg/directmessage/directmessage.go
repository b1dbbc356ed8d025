// Package directmessage implements the per-user allow/deny list and
// whitelist-only mode that gate 1:1 messages between users (C4). State
// is persisted in the State store, not held in process memory, so the
// instance handling a directMessage command can check the recipient's
// lists even when the recipient's own sockets are connected to a
// different instance.
package directmessage

import (
	"context"
	"encoding/json"

	"github.com/concord-chat/concord/pkg/chaterr"
	"github.com/concord-chat/concord/pkg/domain"
	"github.com/concord-chat/concord/pkg/state"
)

// DirectMessaging is a handle to one user's DM lists and mode in the
// Store. Like room.Room, it holds no state of its own.
type DirectMessaging struct {
	owner string
	store state.Store
}

func keys(owner string) (whitelist, blacklist, meta string) {
	base := "dm:" + owner
	return base + ":whitelist", base + ":blacklist", base + ":meta"
}

// New returns a handle over owner's DM record.
func New(store state.Store, owner string) *DirectMessaging {
	return &DirectMessaging{owner: owner, store: store}
}

type metaRecord struct {
	WhitelistOnly bool `json:"whitelistOnly"`
}

func (d *DirectMessaging) readMeta(ctx context.Context) (metaRecord, error) {
	_, _, metaKey := keys(d.owner)
	raw, ok, err := d.store.Get(ctx, metaKey)
	if err != nil {
		return metaRecord{}, chaterr.Wrap(err, "directMessage")
	}
	if !ok {
		return metaRecord{}, nil
	}
	var meta metaRecord
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return metaRecord{}, chaterr.Wrap(err, "directMessage")
	}
	return meta, nil
}

func (d *DirectMessaging) listKey(listName domain.ListName) (string, error) {
	if !domain.DirectListNames[listName] {
		return "", chaterr.New(chaterr.KindNoList, string(listName))
	}
	whitelist, blacklist, _ := keys(d.owner)
	if listName == domain.ListWhitelist {
		return whitelist, nil
	}
	return blacklist, nil
}

// AddToList adds values to whitelist or blacklist, idempotently. Writing
// the owner's own name into their own list is rejected with notAllowed.
func (d *DirectMessaging) AddToList(ctx context.Context, listName domain.ListName, values []string) error {
	listKey, err := d.listKey(listName)
	if err != nil {
		return err
	}
	for _, v := range values {
		if v == d.owner {
			return chaterr.New(chaterr.KindNotAllowed, "directAddToList")
		}
	}
	if err := d.store.SAdd(ctx, listKey, values...); err != nil {
		return chaterr.Wrap(err, "directAddToList")
	}
	return nil
}

// RemoveFromList removes values from whitelist or blacklist, idempotently.
func (d *DirectMessaging) RemoveFromList(ctx context.Context, listName domain.ListName, values []string) error {
	listKey, err := d.listKey(listName)
	if err != nil {
		return err
	}
	if err := d.store.SRem(ctx, listKey, values...); err != nil {
		return chaterr.Wrap(err, "directRemoveFromList")
	}
	return nil
}

// GetList returns the current members of whitelist or blacklist.
func (d *DirectMessaging) GetList(ctx context.Context, listName domain.ListName) ([]string, error) {
	listKey, err := d.listKey(listName)
	if err != nil {
		return nil, err
	}
	members, err := d.store.SMembers(ctx, listKey)
	if err != nil {
		return nil, chaterr.Wrap(err, "directGetAccessList")
	}
	return members, nil
}

// GetMode reports whether whitelist-only mode is enabled.
func (d *DirectMessaging) GetMode(ctx context.Context) (bool, error) {
	meta, err := d.readMeta(ctx)
	if err != nil {
		return false, err
	}
	return meta.WhitelistOnly, nil
}

// ChangeMode sets whitelist-only mode.
func (d *DirectMessaging) ChangeMode(ctx context.Context, mode bool) error {
	_, _, metaKey := keys(d.owner)
	data, err := json.Marshal(metaRecord{WhitelistOnly: mode})
	if err != nil {
		return chaterr.Wrap(err, "directSetWhitelistMode")
	}
	if err := d.store.Set(ctx, metaKey, string(data)); err != nil {
		return chaterr.Wrap(err, "directSetWhitelistMode")
	}
	return nil
}

// Message checks whether sender may direct-message this user. Admission
// = bypassPermissions OR (sender not in blacklist AND (not whitelistOnly
// OR sender in whitelist)).
func (d *DirectMessaging) Message(ctx context.Context, sender string, bypassPermissions bool) error {
	if bypassPermissions {
		return nil
	}

	whitelist, blacklist, _ := keys(d.owner)

	blacklisted, err := d.store.SIsMember(ctx, blacklist, sender)
	if err != nil {
		return chaterr.Wrap(err, "directMessage")
	}
	if blacklisted {
		return chaterr.New(chaterr.KindNotAllowed, "directMessage")
	}

	meta, err := d.readMeta(ctx)
	if err != nil {
		return err
	}
	if !meta.WhitelistOnly {
		return nil
	}

	whitelisted, err := d.store.SIsMember(ctx, whitelist, sender)
	if err != nil {
		return chaterr.Wrap(err, "directMessage")
	}
	if !whitelisted {
		return chaterr.New(chaterr.KindNotAllowed, "directMessage")
	}
	return nil
}
