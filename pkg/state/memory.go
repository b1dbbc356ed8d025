package state

import (
	"context"
	"sync"
	"time"
)

func init() {
	Register("memory", func(cfg map[string]string) (Store, error) {
		return NewMemoryStore(), nil
	})
}

// MemoryStore is an in-process Store, suitable for a single instance or
// for tests. It has no cross-process visibility: running multiple
// MemoryStore-backed instances against the same cluster bus would not
// actually coordinate them.
type MemoryStore struct {
	mu     sync.Mutex
	kv     map[string]string
	sets   map[string]map[string]struct{}
	hashes map[string]map[string]string
	locks  map[string]*memoryLock

	subMu sync.Mutex
	subs  map[string][]*memorySubscription
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		kv:     make(map[string]string),
		sets:   make(map[string]map[string]struct{}),
		hashes: make(map[string]map[string]string),
		locks:  make(map[string]*memoryLock),
		subs:   make(map[string][]*memorySubscription),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.kv[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = value
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kv, key)
	return nil
}

func (s *MemoryStore) Incr(_ context.Context, key string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := parseCounter(s.kv[key])
	if err != nil {
		return 0, err
	}
	v++
	s.kv[key] = formatCounter(v)
	return v, nil
}

func (s *MemoryStore) SAdd(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) SRem(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		return nil
	}
	for _, m := range members {
		delete(set, m)
	}
	return nil
}

func (s *MemoryStore) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.sets[key]
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	return out, nil
}

func (s *MemoryStore) SIsMember(_ context.Context, key, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sets[key][member]
	return ok, nil
}

func (s *MemoryStore) SCard(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sets[key]), nil
}

func (s *MemoryStore) HSet(_ context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (s *MemoryStore) HGet(_ context.Context, key, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.hashes[key][field]
	return v, ok, nil
}

func (s *MemoryStore) HDel(_ context.Context, key, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hashes[key], field)
	return nil
}

func (s *MemoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.hashes[key]))
	for k, v := range s.hashes[key] {
		out[k] = v
	}
	return out, nil
}

type memoryLock struct {
	expiresAt time.Time
}

// Lock implements Store. Contention is resolved by polling; callers are
// expected to hold locks briefly (one command's worth of work).
func (s *MemoryStore) Lock(ctx context.Context, name string, ttl time.Duration) (Lock, error) {
	deadline := time.Now().Add(ttl)
	for {
		s.mu.Lock()
		existing, held := s.locks[name]
		if !held || time.Now().After(existing.expiresAt) {
			s.locks[name] = &memoryLock{expiresAt: time.Now().Add(ttl)}
			s.mu.Unlock()
			return &memoryLockHandle{store: s, name: name}, nil
		}
		s.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, &LockTimeoutError{Name: name}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

type memoryLockHandle struct {
	store *MemoryStore
	name  string
}

func (h *memoryLockHandle) Release(_ context.Context) error {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	delete(h.store.locks, h.name)
	return nil
}

type memorySubscription struct {
	ch     chan Message
	closed bool
}

func (m *memorySubscription) Channel() <-chan Message { return m.ch }

func (m *memorySubscription) Close() error {
	return nil
}

func (s *MemoryStore) Publish(_ context.Context, topic string, payload []byte) error {
	s.subMu.Lock()
	subs := append([]*memorySubscription{}, s.subs[topic]...)
	s.subMu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- Message{Topic: topic, Payload: payload}:
		default:
			// Slow subscriber; drop rather than block the publisher. A
			// dropped cluster-bus message surfaces as a consistency
			// failure at the initiator via busAckTimeout.
		}
	}
	return nil
}

func (s *MemoryStore) Subscribe(_ context.Context, topic string) (Subscription, error) {
	sub := &memorySubscription{ch: make(chan Message, 64)}
	s.subMu.Lock()
	s.subs[topic] = append(s.subs[topic], sub)
	s.subMu.Unlock()
	return sub, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// LockTimeoutError is returned by Lock when the lock could not be
// acquired before ttl elapsed.
type LockTimeoutError struct {
	Name string
}

func (e *LockTimeoutError) Error() string {
	return "state: timed out acquiring lock " + e.Name
}
