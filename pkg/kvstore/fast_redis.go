package kvstore

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/healer-ai/p8fs/pkg/errs"
)

// RedisFast is the production fast-secondary backend of the dual KV store.
type RedisFast struct {
	client *redis.Client
}

func NewRedisFast(addr, password string) *RedisFast {
	return &RedisFast{client: redis.NewClient(&redis.Options{Addr: addr, Password: password})}
}

func (r *RedisFast) Get(ctx context.Context, scopedKey string) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, scopedKey).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Transient("kvstore.RedisFast.Get", "redis get failed", err)
	}
	return v, true, nil
}

func (r *RedisFast) Set(ctx context.Context, scopedKey string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, scopedKey, value, ttl).Err(); err != nil {
		return errs.Transient("kvstore.RedisFast.Set", "redis set failed", err)
	}
	return nil
}

func (r *RedisFast) Delete(ctx context.Context, scopedKey string) error {
	return r.client.Del(ctx, scopedKey).Err()
}

func (r *RedisFast) Close() error { return r.client.Close() }
