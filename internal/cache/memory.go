package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errClosed = errors.New("memory cache closed")

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCache is an in-process Cache used by the memory backend and in tests.
type MemoryCache struct {
	mu     sync.RWMutex
	values map[string]memoryEntry
	sets   map[string]map[string]struct{}
	closed bool
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		values: make(map[string]memoryEntry),
		sets:   make(map[string]map[string]struct{}),
	}
}

func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewCacheError("set", key, ErrCodeConnectionFailed, errClosed)
	}
	m.values[key] = newMemoryEntry(value, ttl)
	return nil
}

func (m *MemoryCache) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, NewCacheError("mget", "", ErrCodeConnectionFailed, errClosed)
	}
	now := time.Now()
	result := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if entry, ok := m.values[key]; ok && !entry.expired(now) {
			result[key] = append([]byte(nil), entry.value...)
		}
	}
	return result, nil
}

func (m *MemoryCache) MSet(ctx context.Context, keyValues map[string][]byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewCacheError("mset", "", ErrCodeConnectionFailed, errClosed)
	}
	for key, value := range keyValues {
		m.values[key] = newMemoryEntry(value, ttl)
	}
	return nil
}

func (m *MemoryCache) SAdd(ctx context.Context, key string, members ...[]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewCacheError("sadd", key, ErrCodeConnectionFailed, errClosed)
	}
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{}, len(members))
		m.sets[key] = set
	}
	for _, member := range members {
		set[string(member)] = struct{}{}
	}
	return nil
}

func (m *MemoryCache) SMembers(ctx context.Context, key string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, NewCacheError("smembers", key, ErrCodeConnectionFailed, errClosed)
	}
	set := m.sets[key]
	result := make([][]byte, 0, len(set))
	for member := range set {
		result = append(result, []byte(member))
	}
	return result, nil
}

func (m *MemoryCache) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return NewCacheError("ping", "", ErrCodeConnectionFailed, errClosed)
	}
	return nil
}

func (m *MemoryCache) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

func newMemoryEntry(value []byte, ttl time.Duration) memoryEntry {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	return entry
}
