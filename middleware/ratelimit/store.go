package ratelimit

import (
	"context"
	"sync"
	"time"
)

// BlockEntry is an active IP ban.
type BlockEntry struct {
	Until  time.Time
	Reason string
}

// Store holds request counters and IP blocks. Implementations must make
// Increment a single atomic read-modify-write so that concurrent
// requests cannot double-spend a window.
type Store interface {
	// Increment bumps the counter for key, starting a fresh window of
	// the given length if none is active, and reports the new count and
	// the window's reset time.
	Increment(ctx context.Context, key string, window time.Duration) (int, time.Time, error)
	// Get reads the counter without touching it. A missing or elapsed
	// window reports zero.
	Get(ctx context.Context, key string) (int, time.Time, error)
	Reset(ctx context.Context, key string) error

	Block(ctx context.Context, ip string, d time.Duration, reason string) error
	GetBlock(ctx context.Context, ip string) (*BlockEntry, error)
}

type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]*entry
	blocks map[string]BlockEntry
	now    func() time.Time
}

type entry struct {
	count     int
	resetTime time.Time
}

func NewMemoryStore() *MemoryStore {
	store := &MemoryStore{
		data:   make(map[string]*entry),
		blocks: make(map[string]BlockEntry),
		now:    time.Now,
	}

	go store.cleanup()

	return store
}

func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, exists := s.data[key]; exists && now.Before(e.resetTime) {
		e.count++
		return e.count, e.resetTime, nil
	}

	resetTime := now.Add(window)
	s.data[key] = &entry{count: 1, resetTime: resetTime}
	return 1, resetTime, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (int, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, exists := s.data[key]; exists && s.now().Before(e.resetTime) {
		return e.count, e.resetTime, nil
	}

	return 0, time.Time{}, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

func (s *MemoryStore) Block(_ context.Context, ip string, d time.Duration, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocks[ip] = BlockEntry{Until: s.now().Add(d), Reason: reason}
	return nil
}

func (s *MemoryStore) GetBlock(_ context.Context, ip string) (*BlockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	block, exists := s.blocks[ip]
	if !exists || s.now().After(block.Until) {
		return nil, nil
	}

	return &block, nil
}

func (s *MemoryStore) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		now := s.now()

		for key, entry := range s.data {
			if now.After(entry.resetTime) {
				delete(s.data, key)
			}
		}
		for ip, block := range s.blocks {
			if now.After(block.Until) {
				delete(s.blocks, ip)
			}
		}

		s.mu.Unlock()
	}
}
