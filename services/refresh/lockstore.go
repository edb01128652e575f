package refresh

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockStore holds the advisory refresh marker. The marker is
// time-boxed: once it outlives the grace period it counts as abandoned
// and the next caller may take it over. It deliberately is not a real
// mutex; a rare duplicate refresh is a redundant rotation, not a
// correctness problem.
type LockStore interface {
	TryAcquire(ctx context.Context, key string, grace time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type MemoryLockStore struct {
	mu      sync.Mutex
	markers map[string]time.Time
	now     func() time.Time
}

func NewMemoryLockStore() *MemoryLockStore {
	return &MemoryLockStore{
		markers: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *MemoryLockStore) TryAcquire(_ context.Context, key string, grace time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if stamped, exists := s.markers[key]; exists && now.Sub(stamped) < grace {
		return false, nil
	}

	s.markers[key] = now
	return true, nil
}

func (s *MemoryLockStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.markers, key)
	return nil
}

// RedisLockStore implements the marker as SET NX with a PX expiry equal
// to the grace period, so abandoned markers vanish on their own.
type RedisLockStore struct {
	client redis.UniversalClient
}

func NewRedisLockStore(client redis.UniversalClient) *RedisLockStore {
	return &RedisLockStore{client: client}
}

func (s *RedisLockStore) TryAcquire(ctx context.Context, key string, grace time.Duration) (bool, error) {
	stamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	return s.client.SetNX(ctx, "refresh_lock:"+key, stamp, grace).Result()
}

func (s *RedisLockStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, "refresh_lock:"+key).Err()
}
