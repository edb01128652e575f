package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	counterPrefix = "rl:count:"
	blockPrefix   = "rl:block:"
)

// incrementScript bumps the counter and sets the window expiry in one
// server-side step, returning the count and remaining TTL millis.
const incrementScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`

var incrementLua = redis.NewScript(incrementScript)

// RedisStore is the shared implementation used by multi-instance
// deployments.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	result, err := incrementLua.Run(ctx, s.client, []string{counterPrefix + key}, window.Milliseconds()).Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis increment failed: %w", err)
	}
	if len(result) != 2 {
		return 0, time.Time{}, fmt.Errorf("redis increment returned %d values", len(result))
	}

	count, _ := result[0].(int64)
	ttlMillis, _ := result[1].(int64)

	return int(count), time.Now().Add(time.Duration(ttlMillis) * time.Millisecond), nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (int, time.Time, error) {
	pipe := s.client.Pipeline()
	countCmd := pipe.Get(ctx, counterPrefix+key)
	ttlCmd := pipe.PTTL(ctx, counterPrefix+key)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, time.Time{}, fmt.Errorf("redis get failed: %w", err)
	}

	count, err := countCmd.Int()
	if err == redis.Nil {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis get failed: %w", err)
	}

	return count, time.Now().Add(ttlCmd.Val()), nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, counterPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis reset failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Block(ctx context.Context, ip string, d time.Duration, reason string) error {
	if err := s.client.Set(ctx, blockPrefix+ip, reason, d).Err(); err != nil {
		return fmt.Errorf("redis block failed: %w", err)
	}
	return nil
}

func (s *RedisStore) GetBlock(ctx context.Context, ip string) (*BlockEntry, error) {
	pipe := s.client.Pipeline()
	reasonCmd := pipe.Get(ctx, blockPrefix+ip)
	ttlCmd := pipe.PTTL(ctx, blockPrefix+ip)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis block lookup failed: %w", err)
	}

	reason, err := reasonCmd.Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis block lookup failed: %w", err)
	}

	return &BlockEntry{Until: time.Now().Add(ttlCmd.Val()), Reason: reason}, nil
}
