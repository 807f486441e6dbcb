package resultcache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend is a Backend implementation over go-redis, grounded on the
// redis dependency carried in the teacher's go.mod.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend constructs a RedisBackend against addr (host:port).
func NewRedisBackend(addr string) *RedisBackend {
	return &RedisBackend{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Close releases the underlying connection pool.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
