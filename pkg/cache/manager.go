package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// DefaultTTL is used when NewManager is given a non-positive TTL.
const DefaultTTL = 15 * time.Minute

// Manager handles caching operations with Redis backend.
type Manager struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewManager creates a new cache manager with Redis backend. Entries
// created with NewEntry live for ttl.
func NewManager(redisClient *redis.Client, ttl time.Duration) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		redis: redisClient,
		ttl:   ttl,
	}
}

// NewEntry wraps data in an entry expiring after the manager TTL.
func (m *Manager) NewEntry(data []byte) *CacheEntry {
	now := time.Now()
	return &CacheEntry{
		Data:     data,
		CachedAt: now,
		Expires:  now.Add(m.ttl),
	}
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.WithLabelValues(string(key.Kind)).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	entry, err := decodeEntry(data)
	if err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, err
	}
	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.WithLabelValues(string(key.Kind)).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(string(key.Kind)).Inc()
	return entry, nil
}

// GetMany retrieves the entries of keys in one round trip. Keys without a
// live entry are absent from the returned map.
func (m *Manager) GetMany(ctx context.Context, keys []CacheKey) (map[CacheKey]*CacheEntry, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}

	vals, err := m.redis.MGet(ctx, names...).Result()
	if err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	out := make(map[CacheKey]*CacheEntry, len(keys))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			CacheMisses.WithLabelValues(string(keys[i].Kind)).Inc()
			continue
		}
		entry, err := decodeEntry([]byte(s))
		if err != nil || entry.IsExpired() {
			if err != nil {
				CacheErrors.WithLabelValues("get").Inc()
			}
			CacheMisses.WithLabelValues(string(keys[i].Kind)).Inc()
			continue
		}
		CacheHits.WithLabelValues(string(keys[i].Kind)).Inc()
		out[keys[i]] = entry
	}
	return out, nil
}

// Set stores a cache entry with TTL based on the entry's Expires field.
// The entry will be automatically removed from Redis when it expires.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	return m.SetMany(ctx, map[CacheKey]*CacheEntry{key: entry})
}

// SetMany stores entries in one pipeline. Already expired entries are
// skipped.
func (m *Manager) SetMany(ctx context.Context, entries map[CacheKey]*CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	pipe := m.redis.Pipeline()
	queued := 0
	for key, entry := range entries {
		ttl := entry.TTL()
		if ttl <= 0 {
			continue
		}
		data, err := json.Marshal(entry)
		if err != nil {
			CacheErrors.WithLabelValues("set").Inc()
			return fmt.Errorf("marshal cache entry: %w", err)
		}
		pipe.Set(ctx, key.String(), data, ttl)
		queued++
	}
	if queued == 0 {
		return nil
	}

	if _, err := pipe.Exec(ctx); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes cache entries.
func (m *Manager) Delete(ctx context.Context, keys ...CacheKey) error {
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}

	if err := m.redis.Del(ctx, names...).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func decodeEntry(data []byte) (*CacheEntry, error) {
	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return &entry, nil
}
