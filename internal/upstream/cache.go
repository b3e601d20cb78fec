package upstream

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisCachePrefix = "favthing:upstream:"

// Cache stores successful upstream bodies. Keys never contain credentials.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, body []byte, ttl time.Duration) error
}

type RedisCache struct {
	client redis.UniversalClient
}

func NewRedisCache(client redis.UniversalClient) *RedisCache {
	if client == nil {
		return nil
	}
	return &RedisCache{client: client}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, redisCachePrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, body []byte, ttl time.Duration) error {
	return r.client.Set(ctx, redisCachePrefix+key, body, ttl).Err()
}

const defaultMemoryMaxEntries = 400

type memoryEntry struct {
	body      []byte
	storedAt  time.Time
	expiresAt time.Time
}

// MemoryCache is the in-process fallback used when Redis is not configured.
// Expired entries are dropped on write; past maxEntries the oldest go first.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	maxEntries int
	now        func() time.Time
}

func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = defaultMemoryMaxEntries
	}
	return &MemoryCache{
		entries:    make(map[string]*memoryEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(entry.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), entry.body...), true, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, body []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = &memoryEntry{
		body:      append([]byte(nil), body...),
		storedAt:  now,
		expiresAt: now.Add(ttl),
	}
	m.trimLocked(now)
	return nil
}

func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryCache) trimLocked(now time.Time) {
	for key, entry := range m.entries {
		if !now.Before(entry.expiresAt) {
			delete(m.entries, key)
		}
	}
	if len(m.entries) <= m.maxEntries {
		return
	}

	type pair struct {
		key   string
		entry *memoryEntry
	}
	items := make([]pair, 0, len(m.entries))
	for key, entry := range m.entries {
		items = append(items, pair{key: key, entry: entry})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].entry.storedAt.Before(items[j].entry.storedAt)
	})
	for i := 0; i < len(items)-m.maxEntries; i++ {
		delete(m.entries, items[i].key)
	}
}
