// Package state defines the State store contract the chat engine relies
// on for cluster-wide coordination — key/value and set storage, named
// distributed locks, an atomic counter, and a pub/sub cluster bus — plus
// two concrete implementations: an in-memory store for single-instance
// deployments and tests, and a Redis-backed store for multi-instance
// deployments.
package state

import (
	"context"
	"time"
)

// Lock represents a held named lock. Release is idempotent.
type Lock interface {
	// Release releases the lock. It does not error if the lock's TTL
	// already expired — the caller must treat the preceding critical
	// section's outcome as uncertain in that case, per the concurrency
	// model's lockTTL semantics.
	Release(ctx context.Context) error
}

// Message is a single item delivered on a cluster-bus subscription.
type Message struct {
	Topic   string
	Payload []byte
}

// Subscription is a live subscription to a cluster-bus topic.
type Subscription interface {
	// Channel yields messages as they are published. It is closed when
	// the subscription is closed.
	Channel() <-chan Message
	Close() error
}

// Store is the full State store contract: KV, sets, an atomic counter,
// named TTL locks, and cluster-bus pub/sub, plus factories for the two
// per-entity projections the rest of the engine persists through it.
type Store interface {
	// KV
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error

	// Incr atomically increments key and returns the new value. Used for
	// per-room monotonic message IDs.
	Incr(ctx context.Context, key string) (uint64, error)

	// Sets
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SCard(ctx context.Context, key string) (int, error)

	// Hash
	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HDel(ctx context.Context, key, field string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// Lock acquires a named lock, blocking up to ttl for contention before
	// giving up. The lock is auto-released after ttl regardless of whether
	// Release was called, matching the concurrency model's lockTTL.
	Lock(ctx context.Context, name string, ttl time.Duration) (Lock, error)

	// Publish/Subscribe implement the cluster bus used for cross-instance
	// eviction and control messages.
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Close releases any resources (connections, background goroutines)
	// held by the store.
	Close() error
}

// Factory constructs a Store from a string-keyed configuration, for the
// "dynamic kind name resolved to a constructor" registry pattern used by
// ChatService to pick an implementation at startup.
type Factory func(cfg map[string]string) (Store, error)

var registry = map[string]Factory{}

// Register registers a Store constructor under a kind tag (e.g. "memory",
// "redis"). Intended to be called from an implementation's init(), and
// from user code wishing to register a custom store.
func Register(kind string, f Factory) {
	registry[kind] = f
}

// New constructs a Store of the named kind via its registered Factory.
func New(kind string, cfg map[string]string) (Store, error) {
	f, ok := registry[kind]
	if !ok {
		return nil, &UnknownKindError{Kind: kind}
	}
	return f(cfg)
}

// UnknownKindError is returned by New when no Factory is registered for
// the requested kind.
type UnknownKindError struct {
	Kind string
}

func (e *UnknownKindError) Error() string {
	return "state: unknown store kind " + e.Kind
}
