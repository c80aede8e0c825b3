package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CooldownStore tracks per (contact, page) bypass cooldowns. Entries
// self-expire; there is no explicit delete.
type CooldownStore interface {
	Set(ctx context.Context, contactID uint, pageID string, ttl time.Duration) error
	Remaining(ctx context.Context, contactID uint, pageID string) (time.Duration, bool, error)
}

func cooldownKey(prefix string, contactID uint, pageID string) string {
	return fmt.Sprintf("%scooldown:%d:%s", prefix, contactID, pageID)
}

// RedisCooldownStore implements CooldownStore on redis TTL keys
type RedisCooldownStore struct {
	rc     *redis.Client
	prefix string
}

// NewRedisCooldownStore creates a redis-backed cooldown store
func NewRedisCooldownStore(rc *redis.Client, prefix string) CooldownStore {
	return &RedisCooldownStore{rc: rc, prefix: prefix}
}

func (s *RedisCooldownStore) Set(ctx context.Context, contactID uint, pageID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	key := cooldownKey(s.prefix, contactID, pageID)
	if err := s.rc.Set(ctx, key, time.Now().Add(ttl).Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cooldown: %w", err)
	}
	return nil
}

func (s *RedisCooldownStore) Remaining(ctx context.Context, contactID uint, pageID string) (time.Duration, bool, error) {
	key := cooldownKey(s.prefix, contactID, pageID)
	ttl, err := s.rc.TTL(ctx, key).Result()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read cooldown ttl: %w", err)
	}
	// -2 means the key does not exist, -1 means no expiry was set
	if ttl <= 0 {
		return 0, false, nil
	}
	return ttl, true, nil
}

// MemoryCooldownStore implements CooldownStore with an in-process TTL map.
// Used when the cache provider is "memory" and in tests.
type MemoryCooldownStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	done    chan struct{}
	once    sync.Once
}

// NewMemoryCooldownStore creates an in-memory cooldown store with a cleanup
// goroutine sweeping expired entries at the given interval
func NewMemoryCooldownStore(cleanupInterval time.Duration) *MemoryCooldownStore {
	s := &MemoryCooldownStore{
		entries: make(map[string]time.Time),
		done:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go s.janitor(cleanupInterval)
	}
	return s
}

func (s *MemoryCooldownStore) Set(ctx context.Context, contactID uint, pageID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	key := cooldownKey("", contactID, pageID)
	s.mu.Lock()
	s.entries[key] = time.Now().Add(ttl)
	s.mu.Unlock()
	return nil
}

func (s *MemoryCooldownStore) Remaining(ctx context.Context, contactID uint, pageID string) (time.Duration, bool, error) {
	key := cooldownKey("", contactID, pageID)
	s.mu.RLock()
	expiry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return 0, false, nil
	}
	remaining := time.Until(expiry)
	if remaining <= 0 {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return 0, false, nil
	}
	return remaining, true, nil
}

// Close stops the cleanup goroutine
func (s *MemoryCooldownStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *MemoryCooldownStore) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for key, expiry := range s.entries {
				if now.After(expiry) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
