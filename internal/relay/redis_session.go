package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ekisa-team/localgen/internal/config"
)

const sessionKey = "localgen:relay:session"

// endIfOwner deletes the key only when it still holds the given session id.
var endIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore is a SessionStore shared by every relay replica.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis_session: ping %s: %w", cfg.Addr, err)
	}

	return &RedisStore{client: client, ttl: cfg.TTL}, nil
}

func (r *RedisStore) Begin(ctx context.Context, id string) error {
	if err := r.client.Set(ctx, sessionKey, id, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis_session: begin: %w", err)
	}
	return nil
}

func (r *RedisStore) IsCurrent(ctx context.Context, id string) (bool, error) {
	val, err := r.client.Get(ctx, sessionKey).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis_session: get: %w", err)
	}
	return val == id, nil
}

func (r *RedisStore) Active(ctx context.Context) (bool, error) {
	n, err := r.client.Exists(ctx, sessionKey).Result()
	if err != nil {
		return false, fmt.Errorf("redis_session: exists: %w", err)
	}
	return n > 0, nil
}

func (r *RedisStore) Stop(ctx context.Context) error {
	if err := r.client.Del(ctx, sessionKey).Err(); err != nil {
		return fmt.Errorf("redis_session: stop: %w", err)
	}
	return nil
}

func (r *RedisStore) End(ctx context.Context, id string) error {
	if err := endIfOwner.Run(ctx, r.client, []string{sessionKey}, id).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis_session: end: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
