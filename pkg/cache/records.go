package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
)

// Store is the part of Manager the typed record helpers need.
type Store interface {
	NewEntry(data []byte) *CacheEntry
	GetMany(ctx context.Context, keys []CacheKey) (map[CacheKey]*CacheEntry, error)
	SetMany(ctx context.Context, entries map[CacheKey]*CacheEntry) error
	Delete(ctx context.Context, keys ...CacheKey) error
}

// Lookup returns the cached records of ids, keyed by identity. Undecodable
// entries count as misses.
func Lookup[R any](ctx context.Context, s Store, project string, kind resource.Kind, ids []identity.Identity) (map[identity.Identity]R, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	entries, err := s.GetMany(ctx, Keys(project, kind, ids))
	if err != nil {
		return nil, err
	}

	out := make(map[identity.Identity]R, len(entries))
	for key, entry := range entries {
		var r R
		if err := json.Unmarshal(entry.Data, &r); err != nil {
			CacheErrors.WithLabelValues("decode").Inc()
			continue
		}
		out[key.Identity] = r
	}
	return out, nil
}

// Remember caches records under the identity returned by key. Records with
// a zero identity are not cached.
func Remember[R any](ctx context.Context, s Store, project string, kind resource.Kind, records []R, key func(R) identity.Identity) error {
	if len(records) == 0 {
		return nil
	}
	entries := make(map[CacheKey]*CacheEntry, len(records))
	for _, r := range records {
		id := key(r)
		if id.IsZero() {
			continue
		}
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", kind, id, err)
		}
		entries[CacheKey{Project: project, Kind: kind, Identity: id}] = s.NewEntry(data)
	}
	return s.SetMany(ctx, entries)
}

// Forget removes the cached records of ids.
func Forget(ctx context.Context, s Store, project string, kind resource.Kind, ids []identity.Identity) error {
	if len(ids) == 0 {
		return nil
	}
	return s.Delete(ctx, Keys(project, kind, ids)...)
}
