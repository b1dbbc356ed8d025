// Package room implements the per-room access-list state machine (C5):
// owner, whitelist/blacklist/adminlist, whitelist-only mode, bounded
// message history with monotonic IDs, and per-user seen timestamps. All
// durable state lives in the State store so every instance observes the
// same room; Room itself is a stateless handle over a room name.
package room

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/concord-chat/concord/pkg/chaterr"
	"github.com/concord-chat/concord/pkg/domain"
	"github.com/concord-chat/concord/pkg/state"
)

// Room is a handle to a room's durable state in the Store. Multiple
// Room values for the same name are interchangeable; none hold
// in-process state of their own.
type Room struct {
	name                  string
	store                 state.Store
	lockTTL               time.Duration
	historyMaxSize        int
	historyMaxGetMessages int
}

// Config bundles the per-room tunables ChatService threads from its own
// configuration into every Room it constructs or loads.
type Config struct {
	LockTTL               time.Duration
	HistoryMaxSize        int
	HistoryMaxGetMessages int
}

func keys(name string) (meta, whitelist, blacklist, adminlist, userlist, seen, history, counter string) {
	base := "room:" + name
	return base + ":meta", base + ":whitelist", base + ":blacklist", base + ":adminlist",
		base + ":userlist", base + ":seen", base + ":history", base + ":counter"
}

// Create persists a brand-new room's meta, failing with roomExists if
// the name is already taken.
func Create(ctx context.Context, store state.Store, name, owner string, whitelistOnly bool, cfg Config) (*Room, error) {
	if !domain.ValidName(name) {
		return nil, chaterr.New(chaterr.KindInvalidName, "roomCreate")
	}

	metaKey, _, _, _, _, _, _, _ := keys(name)

	if _, ok, err := store.Get(ctx, metaKey); err != nil {
		return nil, chaterr.Wrap(err, "roomCreate")
	} else if ok {
		return nil, chaterr.New(chaterr.KindRoomExists, "roomCreate")
	}

	meta := metaRecord{Owner: owner, WhitelistOnly: whitelistOnly}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, chaterr.Wrap(err, "roomCreate")
	}
	if err := store.Set(ctx, metaKey, string(data)); err != nil {
		return nil, chaterr.Wrap(err, "roomCreate")
	}

	return Load(store, name, cfg), nil
}

// Load returns a handle over an existing (or not-yet-existing) room
// name. It performs no I/O; callers wanting existence confirmed should
// follow with GetOwner, GetMode, or another read.
func Load(store state.Store, name string, cfg Config) *Room {
	return &Room{
		name:                  name,
		store:                 store,
		lockTTL:               cfg.LockTTL,
		historyMaxSize:        cfg.HistoryMaxSize,
		historyMaxGetMessages: cfg.HistoryMaxGetMessages,
	}
}

// Exists reports whether the room's meta record is present in the Store.
func Exists(ctx context.Context, store state.Store, name string) (bool, error) {
	metaKey, _, _, _, _, _, _, _ := keys(name)
	_, ok, err := store.Get(ctx, metaKey)
	return ok, err
}

// Name returns the room's name.
func (r *Room) Name() string { return r.name }

type metaRecord struct {
	Owner         string `json:"owner"`
	WhitelistOnly bool   `json:"whitelistOnly"`
	Removing      bool   `json:"removing"`
}

func (r *Room) readMeta(ctx context.Context) (metaRecord, error) {
	metaKey, _, _, _, _, _, _, _ := keys(r.name)
	raw, ok, err := r.store.Get(ctx, metaKey)
	if err != nil {
		return metaRecord{}, chaterr.Wrap(err, "room")
	}
	if !ok {
		return metaRecord{}, chaterr.New(chaterr.KindNoRoom, r.name)
	}
	var meta metaRecord
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return metaRecord{}, chaterr.Wrap(err, "room")
	}
	return meta, nil
}

func (r *Room) writeMeta(ctx context.Context, meta metaRecord) error {
	metaKey, _, _, _, _, _, _, _ := keys(r.name)
	data, err := json.Marshal(meta)
	if err != nil {
		return chaterr.Wrap(err, "room")
	}
	return r.store.Set(ctx, metaKey, string(data))
}

// lock acquires the room's write lock for any list/mode mutation or
// eviction enumeration, per the concurrency model.
func (r *Room) lock(ctx context.Context) (state.Lock, error) {
	metaKey, _, _, _, _, _, _, _ := keys(r.name)
	lk, err := r.store.Lock(ctx, "lock:"+metaKey, r.lockTTL)
	if err != nil {
		return nil, chaterr.Wrap(err, "room")
	}
	return lk, nil
}

func (r *Room) requireNotRemoving(meta metaRecord) error {
	if meta.Removing {
		return chaterr.New(chaterr.KindRoomRemoved, r.name)
	}
	return nil
}

// checkIsOwner reports whether userName is this room's owner.
func (r *Room) checkIsOwner(ctx context.Context, userName string) (bool, error) {
	meta, err := r.readMeta(ctx)
	if err != nil {
		return false, err
	}
	return meta.Owner == userName, nil
}

// CheckIsOwner is the exported form of checkIsOwner.
func (r *Room) CheckIsOwner(ctx context.Context, userName string) (bool, error) {
	return r.checkIsOwner(ctx, userName)
}

func (r *Room) isAdmin(ctx context.Context, userName string, meta metaRecord) (bool, error) {
	if userName == meta.Owner {
		return true, nil
	}
	_, _, _, adminlist, _, _, _, _ := keys(r.name)
	return r.store.SIsMember(ctx, adminlist, userName)
}

// admits implements the canonical admission predicate: bypass ∨
// (userName ∉ blacklist ∧ (¬whitelistOnly ∨ userName ∈ whitelist ∨
// userName ∈ adminlist ∨ userName = owner)).
func (r *Room) admits(ctx context.Context, userName string, bypass bool, meta metaRecord) (bool, error) {
	if bypass {
		return true, nil
	}

	_, whitelist, blacklist, adminlist, _, _, _, _ := keys(r.name)

	if blacklisted, err := r.store.SIsMember(ctx, blacklist, userName); err != nil {
		return false, chaterr.Wrap(err, "room")
	} else if blacklisted {
		return false, nil
	}

	if !meta.WhitelistOnly {
		return true, nil
	}

	if userName == meta.Owner {
		return true, nil
	}
	if isWhitelisted, err := r.store.SIsMember(ctx, whitelist, userName); err != nil {
		return false, chaterr.Wrap(err, "room")
	} else if isWhitelisted {
		return true, nil
	}
	if isAdmin, err := r.store.SIsMember(ctx, adminlist, userName); err != nil {
		return false, chaterr.Wrap(err, "room")
	} else if isAdmin {
		return true, nil
	}
	return false, nil
}

// listKey resolves a ListName to its Store key for this room.
func (r *Room) listKey(listName domain.ListName) (string, error) {
	if !domain.RoomListNames[listName] {
		return "", chaterr.New(chaterr.KindNoList, string(listName))
	}
	_, whitelist, blacklist, adminlist, _, _, _, _ := keys(r.name)
	switch listName {
	case domain.ListWhitelist:
		return whitelist, nil
	case domain.ListBlacklist:
		return blacklist, nil
	default:
		return adminlist, nil
	}
}

// AddToList adds values to whitelist/blacklist/adminlist under the room
// lock, authorized unless bypass, then evicts anyone in userlist who no
// longer admits, returning the evicted set for the caller (C6) to act on.
func (r *Room) AddToList(ctx context.Context, caller string, bypass bool, listName domain.ListName, values []string) ([]string, error) {
	listKey, err := r.listKey(listName)
	if err != nil {
		return nil, err
	}

	lk, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer lk.Release(ctx)

	meta, err := r.readMeta(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.requireNotRemoving(meta); err != nil {
		return nil, err
	}
	if !bypass {
		if ok, err := r.authorizedAdmin(ctx, caller, meta); err != nil {
			return nil, err
		} else if !ok {
			return nil, chaterr.New(chaterr.KindNotAllowed, "roomAddToList")
		}
	}

	if err := r.store.SAdd(ctx, listKey, values...); err != nil {
		return nil, chaterr.Wrap(err, "roomAddToList")
	}

	return r.evictNonAdmitted(ctx, meta)
}

// RemoveFromList removes values from a list under the same rules as
// AddToList, likewise returning any users newly evicted as a result.
func (r *Room) RemoveFromList(ctx context.Context, caller string, bypass bool, listName domain.ListName, values []string) ([]string, error) {
	listKey, err := r.listKey(listName)
	if err != nil {
		return nil, err
	}

	lk, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer lk.Release(ctx)

	meta, err := r.readMeta(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.requireNotRemoving(meta); err != nil {
		return nil, err
	}
	if !bypass {
		if ok, err := r.authorizedAdmin(ctx, caller, meta); err != nil {
			return nil, err
		} else if !ok {
			return nil, chaterr.New(chaterr.KindNotAllowed, "roomRemoveFromList")
		}
	}

	if err := r.store.SRem(ctx, listKey, values...); err != nil {
		return nil, chaterr.Wrap(err, "roomRemoveFromList")
	}

	return r.evictNonAdmitted(ctx, meta)
}

func (r *Room) authorizedAdmin(ctx context.Context, caller string, meta metaRecord) (bool, error) {
	return r.isAdmin(ctx, caller, meta)
}

// evictNonAdmitted implements the access-list mutation algorithm's steps
// 2-5: compute before, diff against current admission, remove the
// newly-evicted from userlist, and return them.
func (r *Room) evictNonAdmitted(ctx context.Context, meta metaRecord) ([]string, error) {
	_, _, _, _, userlist, _, _, _ := keys(r.name)

	before, err := r.store.SMembers(ctx, userlist)
	if err != nil {
		return nil, chaterr.Wrap(err, "room")
	}

	var evicted []string
	for _, u := range before {
		if u == meta.Owner {
			continue
		}
		admitted, err := r.admits(ctx, u, false, meta)
		if err != nil {
			return nil, err
		}
		if !admitted {
			evicted = append(evicted, u)
		}
	}

	if len(evicted) > 0 {
		if err := r.store.SRem(ctx, userlist, evicted...); err != nil {
			return nil, chaterr.Wrap(err, "room")
		}
	}

	return evicted, nil
}

// ChangeMode flips whitelistOnly under the room lock. Turning it on
// evicts everyone in userlist not in whitelist/adminlist/owner.
func (r *Room) ChangeMode(ctx context.Context, caller string, bypass bool, mode bool) ([]string, error) {
	lk, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer lk.Release(ctx)

	meta, err := r.readMeta(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.requireNotRemoving(meta); err != nil {
		return nil, err
	}
	if !bypass {
		if ok, err := r.authorizedAdmin(ctx, caller, meta); err != nil {
			return nil, err
		} else if !ok {
			return nil, chaterr.New(chaterr.KindNotAllowed, "roomSetWhitelistMode")
		}
	}

	meta.WhitelistOnly = mode
	if err := r.writeMeta(ctx, meta); err != nil {
		return nil, chaterr.Wrap(err, "roomSetWhitelistMode")
	}

	if !mode {
		return nil, nil
	}
	return r.evictNonAdmitted(ctx, meta)
}

// GetList returns the members of a list, requiring caller to be a room
// member or admin unless bypass.
func (r *Room) GetList(ctx context.Context, caller string, bypass bool, listName domain.ListName) ([]string, error) {
	listKey, err := r.listKey(listName)
	if err != nil {
		return nil, err
	}

	meta, err := r.readMeta(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.requireMember(ctx, caller, bypass, meta); err != nil {
		return nil, err
	}

	members, err := r.store.SMembers(ctx, listKey)
	if err != nil {
		return nil, chaterr.Wrap(err, "roomGetAccessList")
	}
	return members, nil
}

// GetOwner returns the room's owner.
func (r *Room) GetOwner(ctx context.Context) (string, error) {
	meta, err := r.readMeta(ctx)
	if err != nil {
		return "", err
	}
	return meta.Owner, nil
}

// GetMode returns whitelistOnly, requiring caller to be a room member or
// admin unless bypass.
func (r *Room) GetMode(ctx context.Context, caller string, bypass bool) (bool, error) {
	meta, err := r.readMeta(ctx)
	if err != nil {
		return false, err
	}
	if err := r.requireMember(ctx, caller, bypass, meta); err != nil {
		return false, err
	}
	return meta.WhitelistOnly, nil
}

func (r *Room) requireMember(ctx context.Context, caller string, bypass bool, meta metaRecord) error {
	if bypass {
		return nil
	}
	if isAdmin, err := r.isAdmin(ctx, caller, meta); err != nil {
		return err
	} else if isAdmin {
		return nil
	}
	_, _, _, _, userlist, _, _, _ := keys(r.name)
	isMember, err := r.store.SIsMember(ctx, userlist, caller)
	if err != nil {
		return chaterr.Wrap(err, "room")
	}
	if !isMember {
		return chaterr.New(chaterr.KindNotAllowed, "room")
	}
	return nil
}

// StartRemoving flips the removing flag under the room lock. Subsequent
// operations short-circuit with roomRemoved; joins already in flight
// that acquired the join lock before this call still complete, then are
// evicted by the caller's broadcast roomAccessRemoved.
func (r *Room) StartRemoving(ctx context.Context) error {
	lk, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer lk.Release(ctx)

	meta, err := r.readMeta(ctx)
	if err != nil {
		return err
	}
	meta.Removing = true
	if err := r.writeMeta(ctx, meta); err != nil {
		return chaterr.Wrap(err, "roomDelete")
	}
	return nil
}

// Drop removes every trace of the room's state from the Store. Callers
// must have already evicted all joined users and called StartRemoving.
func (r *Room) Drop(ctx context.Context) error {
	metaKey, whitelist, blacklist, adminlist, userlist, seen, history, counter := keys(r.name)
	for _, key := range []string{metaKey, whitelist, blacklist, adminlist, userlist, seen, history, counter} {
		if err := r.store.Delete(ctx, key); err != nil {
			return chaterr.Wrap(err, "roomDelete")
		}
	}
	return nil
}

// Join is the pure-state admission check called by pkg/user under the
// per-(user,room) join lock: on success it updates userlist and userSeen.
func (r *Room) Join(ctx context.Context, userName string, bypass bool) error {
	meta, err := r.readMeta(ctx)
	if err != nil {
		return err
	}
	if err := r.requireNotRemoving(meta); err != nil {
		return err
	}

	admitted, err := r.admits(ctx, userName, bypass, meta)
	if err != nil {
		return err
	}
	if !admitted {
		return chaterr.New(chaterr.KindNotAllowed, "roomJoin")
	}

	_, _, _, _, userlist, seen, _, _ := keys(r.name)
	if err := r.store.SAdd(ctx, userlist, userName); err != nil {
		return chaterr.Wrap(err, "roomJoin")
	}

	return r.markSeen(ctx, seen, userName, true)
}

// Leave removes userName from userlist and updates userSeen. It is
// idempotent.
func (r *Room) Leave(ctx context.Context, userName string) error {
	_, _, _, _, userlist, seen, _, _ := keys(r.name)
	if err := r.store.SRem(ctx, userlist, userName); err != nil {
		return chaterr.Wrap(err, "roomLeave")
	}
	return r.markSeen(ctx, seen, userName, false)
}

func (r *Room) markSeen(ctx context.Context, seenKey, userName string, joined bool) error {
	now := time.Now().UnixMilli()
	data, err := json.Marshal(domain.UserSeen{Joined: joined, Timestamp: &now})
	if err != nil {
		return chaterr.Wrap(err, "room")
	}
	if err := r.store.HSet(ctx, seenKey, userName, string(data)); err != nil {
		return chaterr.Wrap(err, "room")
	}
	return nil
}

// UserSeen returns when target was last seen joining or leaving, with
// the same membership requirement as GetList.
func (r *Room) UserSeen(ctx context.Context, caller string, bypass bool, target string) (domain.UserSeen, error) {
	meta, err := r.readMeta(ctx)
	if err != nil {
		return domain.UserSeen{}, err
	}
	if err := r.requireMember(ctx, caller, bypass, meta); err != nil {
		return domain.UserSeen{}, err
	}

	_, _, _, _, _, seenKey, _, _ := keys(r.name)
	raw, ok, err := r.store.HGet(ctx, seenKey, target)
	if err != nil {
		return domain.UserSeen{}, chaterr.Wrap(err, "roomUserSeen")
	}
	if !ok {
		return domain.UserSeen{Joined: false}, nil
	}

	var seen domain.UserSeen
	if err := json.Unmarshal([]byte(raw), &seen); err != nil {
		return domain.UserSeen{}, chaterr.Wrap(err, "roomUserSeen")
	}
	return seen, nil
}

// Members returns the current userlist.
func (r *Room) Members(ctx context.Context) ([]string, error) {
	_, _, _, _, userlist, _, _, _ := keys(r.name)
	members, err := r.store.SMembers(ctx, userlist)
	if err != nil {
		return nil, chaterr.Wrap(err, "room")
	}
	return members, nil
}

// IsMember reports whether userName is currently in userlist.
func (r *Room) IsMember(ctx context.Context, userName string) (bool, error) {
	_, _, _, _, userlist, _, _, _ := keys(r.name)
	ok, err := r.store.SIsMember(ctx, userlist, userName)
	if err != nil {
		return false, chaterr.Wrap(err, "room")
	}
	return ok, nil
}

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }
