package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/koustreak/omem/internal/errs"
)

// keyPrefix namespaces every omem key in a shared Redis database.
const keyPrefix = "omem:"

// Redis is a Backend shared across replicas.
type Redis struct {
	db *redis.Client
}

// OpenRedis connects to addr and verifies the connection with a PING.
func OpenRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "redis ping failed", err)
	}
	return &Redis{db: client}, nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{db: client}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.db.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Wrap(errs.ErrKindQueryFailed, "redis get", err)
	}
	return value, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.db.Set(ctx, keyPrefix+key, value, ttl).Err(); err != nil {
		return errs.Wrap(errs.ErrKindQueryFailed, "redis set", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = keyPrefix + k
	}
	if err := r.db.Del(ctx, prefixed...).Err(); err != nil {
		return errs.Wrap(errs.ErrKindQueryFailed, "redis del", err)
	}
	return nil
}

func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	n, err := r.db.Incr(ctx, keyPrefix+key).Result()
	if err != nil {
		return 0, errs.Wrap(errs.ErrKindQueryFailed, "redis incr", err)
	}
	return n, nil
}

func (r *Redis) Close() error {
	return r.db.Close()
}
