package repository

import (
	"context"
	"fmt"
	"time"

	"prostor/internal/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0`)

// RedisGuard is a distributed admission guard built on SET NX leases, for
// deployments running more than one instance against the same store. The
// lease TTL bounds how long a crashed holder can block a key.
type RedisGuard struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
	poll    time.Duration
}

// NewRedisClient creates a Redis client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisGuard(client *redis.Client, ttl, timeout time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &RedisGuard{
		client:  client,
		ttl:     ttl,
		timeout: timeout,
		poll:    50 * time.Millisecond,
	}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string) (func(), error) {
	if g.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	lockKey := "admission_guard:" + key
	token := uuid.NewString()
	deadline := time.Now().Add(g.timeout)

	for {
		ok, err := g.client.SetNX(ctx, lockKey, token, g.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire guard in redis: %w", err)
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_, _ = releaseScript.Run(releaseCtx, g.client, []string{lockKey}, token).Result()
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrGuardBusy
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(g.poll):
		}
	}
}

// Ping verifies the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}
