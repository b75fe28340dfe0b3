package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "session:"

// RedisStore keeps each session as a hash at session:<id>. Load and Save both
// push the expiry ttl into the future.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Load(ctx context.Context, id string) (*Session, error) {
	key := redisKeyPrefix + id
	var get *redis.MapStringStringCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.HGetAll(ctx, key)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis session load: %w", err)
	}
	values := get.Val()
	if len(values) == 0 {
		return nil, ErrNotFound
	}
	return &Session{ID: id, Values: values}, nil
}

func (r *RedisStore) Save(ctx context.Context, sess *Session) error {
	if len(sess.Values) == 0 {
		// redis has no empty hashes; an unsaved session is simply started again
		return nil
	}

	key := redisKeyPrefix + sess.ID
	fields := make(map[string]any, len(sess.Values))
	for k, v := range sess.Values {
		fields[k] = v
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis session save: %w", err)
	}
	return nil
}

// Ping verifies that the redis server is reachable.
func (r *RedisStore) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
