package state

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreKV(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = (%v, %v, %v), want (_, false, nil)", "", ok, err)
	}

	if err := s.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Fatalf("Get(k) = (%q, %v, %v), want (v, true, nil)", v, ok, err)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("Get(k) after Delete = found, want not found")
	}
}

func TestMemoryStoreIncr(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for i := uint64(1); i <= 3; i++ {
		v, err := s.Incr(ctx, "counter")
		if err != nil {
			t.Fatalf("Incr: %v", err)
		}
		if v != i {
			t.Fatalf("Incr = %d, want %d", v, i)
		}
	}
}

func TestMemoryStoreSets(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.SAdd(ctx, "set", "a", "b"); err != nil {
		t.Fatalf("SAdd: %v", err)
	}
	if err := s.SAdd(ctx, "set", "a"); err != nil {
		t.Fatalf("SAdd (repeat): %v", err)
	}

	n, err := s.SCard(ctx, "set")
	if err != nil || n != 2 {
		t.Fatalf("SCard = (%d, %v), want (2, nil)", n, err)
	}

	isMember, err := s.SIsMember(ctx, "set", "a")
	if err != nil || !isMember {
		t.Fatalf("SIsMember(a) = (%v, %v), want (true, nil)", isMember, err)
	}

	if err := s.SRem(ctx, "set", "a"); err != nil {
		t.Fatalf("SRem: %v", err)
	}
	isMember, err = s.SIsMember(ctx, "set", "a")
	if err != nil || isMember {
		t.Fatalf("SIsMember(a) after SRem = (%v, %v), want (false, nil)", isMember, err)
	}

	members, err := s.SMembers(ctx, "set")
	if err != nil || len(members) != 1 || members[0] != "b" {
		t.Fatalf("SMembers = (%v, %v), want ([b], nil)", members, err)
	}
}

func TestMemoryStoreHash(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.HSet(ctx, "h", "f1", "v1"); err != nil {
		t.Fatalf("HSet: %v", err)
	}
	if err := s.HSet(ctx, "h", "f2", "v2"); err != nil {
		t.Fatalf("HSet: %v", err)
	}

	v, ok, err := s.HGet(ctx, "h", "f1")
	if err != nil || !ok || v != "v1" {
		t.Fatalf("HGet(f1) = (%q, %v, %v), want (v1, true, nil)", v, ok, err)
	}

	all, err := s.HGetAll(ctx, "h")
	if err != nil || len(all) != 2 {
		t.Fatalf("HGetAll = (%v, %v), want 2 entries", all, err)
	}

	if err := s.HDel(ctx, "h", "f1"); err != nil {
		t.Fatalf("HDel: %v", err)
	}
	if _, ok, _ := s.HGet(ctx, "h", "f1"); ok {
		t.Fatalf("HGet(f1) after HDel = found, want not found")
	}
}

func TestMemoryStoreLockExcludesConcurrentHolders(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	lk, err := s.Lock(ctx, "room-lock", 5*time.Second)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	_, err = s.Lock(ctx, "room-lock", 20*time.Millisecond)
	if _, ok := err.(*LockTimeoutError); !ok {
		t.Fatalf("Lock(contended) = %v, want *LockTimeoutError", err)
	}

	if err := lk.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}

	lk2, err := s.Lock(ctx, "room-lock", time.Second)
	if err != nil {
		t.Fatalf("Lock after Release: %v", err)
	}
	_ = lk2.Release(ctx)
}

func TestMemoryStoreLockExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.Lock(ctx, "room-lock", 10*time.Millisecond); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	lk2, err := s.Lock(ctx, "room-lock", time.Second)
	if err != nil {
		t.Fatalf("Lock (after expiry): %v", err)
	}
	_ = lk2.Release(ctx)
}

func TestMemoryStorePublishSubscribe(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	sub, err := s.Subscribe(ctx, "topic")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	if err := s.Publish(ctx, "topic", []byte("hello")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		if string(msg.Payload) != "hello" || msg.Topic != "topic" {
			t.Fatalf("received %+v, want {topic, hello}", msg)
		}
	case <-time.After(time.Second):
		t.Fatalf("did not receive published message within 1s")
	}
}

func TestMemoryStorePublishFanOutToMultipleSubscribers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	sub1, err := s.Subscribe(ctx, "topic")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	sub2, err := s.Subscribe(ctx, "topic")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub1.Close()
	defer sub2.Close()

	if err := s.Publish(ctx, "topic", []byte("hi")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	for _, sub := range []Subscription{sub1, sub2} {
		go func(sub Subscription) {
			defer wg.Done()
			select {
			case <-sub.Channel():
			case <-time.After(time.Second):
				t.Errorf("subscriber did not receive fanned-out message")
			}
		}(sub)
	}
	wg.Wait()
}
