package scraper

import (
	"errors"
	"sync"
	"time"

	"github.com/peter115342/bazos-alert-bot/services/cache"
)

// mockCacheService is an in-memory cache.CacheService for tests
type mockCacheService struct {
	mu      sync.Mutex
	entries map[string]mockCacheEntry
}

type mockCacheEntry struct {
	value     []byte
	expiresAt time.Time
}

var _ cache.CacheService = (*mockCacheService)(nil)

func newMockCacheService() *mockCacheService {
	return &mockCacheService{entries: make(map[string]mockCacheEntry)}
}

func (m *mockCacheService) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(m.entries, key)
		return nil, errors.New("cache miss")
	}
	return entry.value, nil
}

func (m *mockCacheService) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = mockCacheEntry{value: value, expiresAt: time.Now().Add(expiration)}
	return nil
}

func (m *mockCacheService) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}
