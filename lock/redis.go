package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Govind-619/paysync/utils"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix     = "paysync:lock:"
	defaultRetryDelay  = 50 * time.Millisecond
	releaseCallTimeout = 2 * time.Second
)

// releaseScript deletes the key only if it still carries our token, so a lock
// that expired and was taken by another instance is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Redis is a distributed Locker for deployments running several replicas.
// The TTL bounds how long a crashed holder can block a payment.
type Redis struct {
	client     *redis.Client
	ttl        time.Duration
	retryDelay time.Duration
}

// NewRedis creates a Redis locker and checks the connection
func NewRedis(ctx context.Context, opts *redis.Options, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("could not connect to redis at %s: %w", opts.Addr, err)
	}
	return NewRedisWithClient(client, ttl), nil
}

// NewRedisWithClient wraps an existing client
func NewRedisWithClient(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{client: client, ttl: ttl, retryDelay: defaultRetryDelay}
}

// Lock polls SET NX PX until it wins the key or ctx is done
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := redisKeyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retryDelay):
		}
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		releaseCtx, cancel := context.WithTimeout(context.Background(), releaseCallTimeout)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, r.client, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			utils.LogError("Failed to release lock %s: %v", key, err)
		}
	}, nil
}

// Close closes the underlying client
func (r *Redis) Close() error {
	return r.client.Close()
}
