package state

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
)

func init() {
	Register("redis", func(cfg map[string]string) (Store, error) {
		opts := &redis.Options{Addr: cfg["addr"]}
		if opts.Addr == "" {
			opts.Addr = "localhost:6379"
		}
		if pw, ok := cfg["password"]; ok {
			opts.Password = pw
		}
		return NewRedisStore(redis.NewClient(opts)), nil
	})
}

// unlockScript releases a lock only if the caller still holds the token
// it was acquired with, so a lock that expired and was re-acquired by
// another holder is never released out from under them.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// RedisStore is a Store backed by Redis, suitable for coordinating
// multiple chat engine instances sharing one Redis deployment.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing *redis.Client as a Store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *RedisStore) Incr(ctx context.Context, key string) (uint64, error) {
	v, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	return uint64(v), nil
}

func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.SAdd(ctx, key, args...).Err()
}

func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.SRem(ctx, key, args...).Err()
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.client.SMembers(ctx, key).Result()
}

func (s *RedisStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return s.client.SIsMember(ctx, key, member).Result()
}

func (s *RedisStore) SCard(ctx context.Context, key string) (int, error) {
	n, err := s.client.SCard(ctx, key).Result()
	return int(n), err
}

func (s *RedisStore) HSet(ctx context.Context, key, field, value string) error {
	return s.client.HSet(ctx, key, field, value).Err()
}

func (s *RedisStore) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := s.client.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) HDel(ctx context.Context, key, field string) error {
	return s.client.HDel(ctx, key, field).Err()
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.client.HGetAll(ctx, key).Result()
}

type redisLock struct {
	client *redis.Client
	name   string
	token  string
}

func (l *redisLock) Release(ctx context.Context) error {
	return unlockScript.Run(ctx, l.client, []string{lockKey(l.name)}, l.token).Err()
}

func lockKey(name string) string {
	return fmt.Sprintf("lock:%s", name)
}

// Lock implements Store by spinning on SETNX until ttl elapses, matching
// the semantics MemoryStore offers for a single instance.
func (s *RedisStore) Lock(ctx context.Context, name string, ttl time.Duration) (Lock, error) {
	token := xid.New().String()
	key := lockKey(name)
	deadline := time.Now().Add(ttl)

	for {
		ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return &redisLock{client: s.client, name: name, token: token}, nil
		}

		if time.Now().After(deadline) {
			return nil, &LockTimeoutError{Name: name}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (s *RedisStore) Publish(ctx context.Context, topic string, payload []byte) error {
	return s.client.Publish(ctx, topic, payload).Err()
}

type redisSubscription struct {
	pubsub *redis.PubSub
	ch     chan Message
	cancel context.CancelFunc
}

func (r *redisSubscription) Channel() <-chan Message { return r.ch }

func (r *redisSubscription) Close() error {
	r.cancel()
	return r.pubsub.Close()
}

func (s *RedisStore) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	pubsub := s.client.Subscribe(ctx, topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	out := &redisSubscription{pubsub: pubsub, ch: make(chan Message, 64), cancel: cancel}

	go func() {
		defer close(out.ch)
		rch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-rch:
				if !ok {
					return
				}
				select {
				case out.ch <- Message{Topic: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
