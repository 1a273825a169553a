package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
)

const keyPrefix = "visualmatch:lock:"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = rueidis.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig holds connection parameters for the Redis locker.
type RedisConfig struct {
	Addr     string
	Password string
}

// RedisLocker is a Locker shared by every process talking to the same Redis.
type RedisLocker struct {
	client rueidis.Client
}

// NewRedisLocker connects to Redis.
func NewRedisLocker(cfg RedisConfig) (*RedisLocker, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{cfg.Addr},
		Password:     cfg.Password,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	return &RedisLocker{client: client}, nil
}

// Ping checks connectivity.
func (r *RedisLocker) Ping(ctx context.Context) error {
	if err := r.client.Do(ctx, r.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (r *RedisLocker) Close() {
	r.client.Close()
}

// Acquire sets the lease key with NX and a TTL.
func (r *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	fullKey := keyPrefix + key
	token := uuid.NewString()

	cmd := r.client.B().Set().Key(fullKey).Value(token).Nx().PxMilliseconds(ttl.Milliseconds()).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrHeld
		}
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}

	return func(ctx context.Context) error {
		err := releaseScript.Exec(ctx, r.client, []string{fullKey}, []string{token}).Error()
		if err != nil && !rueidis.IsRedisNil(err) {
			return fmt.Errorf("release %s: %w", key, err)
		}
		return nil
	}, nil
}
