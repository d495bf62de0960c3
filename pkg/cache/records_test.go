package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
)

// memoryStore is an in-process Store for the record helpers.
type memoryStore struct {
	entries map[CacheKey]*CacheEntry
	err     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[CacheKey]*CacheEntry)}
}

func (s *memoryStore) NewEntry(data []byte) *CacheEntry {
	return &CacheEntry{Data: data, CachedAt: time.Now(), Expires: time.Now().Add(time.Minute)}
}

func (s *memoryStore) GetMany(_ context.Context, keys []CacheKey) (map[CacheKey]*CacheEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[CacheKey]*CacheEntry)
	for _, k := range keys {
		if e, ok := s.entries[k]; ok {
			out[k] = e
		}
	}
	return out, nil
}

func (s *memoryStore) SetMany(_ context.Context, entries map[CacheKey]*CacheEntry) error {
	if s.err != nil {
		return s.err
	}
	for k, e := range entries {
		s.entries[k] = e
	}
	return nil
}

func (s *memoryStore) Delete(_ context.Context, keys ...CacheKey) error {
	for _, k := range keys {
		delete(s.entries, k)
	}
	return nil
}

func TestRememberLookup(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()

	assets := []resource.Asset{
		{ID: 1, ExternalID: "a", Name: "A"},
		{ID: 2, ExternalID: "b", Name: "B"},
	}
	if err := Remember(ctx, store, "p", resource.KindAsset, assets, resource.Asset.Identity); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}

	ids := []identity.Identity{identity.FromExternalID("a"), identity.FromExternalID("c")}
	found, err := Lookup[resource.Asset](ctx, store, "p", resource.KindAsset, ids)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("Lookup() found %d, want 1", len(found))
	}
	if got := found[identity.FromExternalID("a")]; got.ID != 1 || got.Name != "A" {
		t.Errorf("found asset = %+v", got)
	}
}

func TestLookup_ScopedByProjectAndKind(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()

	events := []resource.Event{{ID: 5, ExternalID: "x"}}
	if err := Remember(ctx, store, "p", resource.KindEvent, events, resource.Event.Identity); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}

	ids := []identity.Identity{identity.FromExternalID("x")}
	if found, _ := Lookup[resource.Asset](ctx, store, "p", resource.KindAsset, ids); len(found) != 0 {
		t.Errorf("lookup under another kind found %v", found)
	}
	if found, _ := Lookup[resource.Event](ctx, store, "other", resource.KindEvent, ids); len(found) != 0 {
		t.Errorf("lookup under another project found %v", found)
	}
}

func TestLookup_SkipsUndecodable(t *testing.T) {
	store := newMemoryStore()
	key := assetKey("bad")
	store.entries[key] = store.NewEntry([]byte(`"not an asset"`))

	found, err := Lookup[resource.Asset](context.Background(), store, "test", resource.KindAsset, []identity.Identity{key.Identity})
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if len(found) != 0 {
		t.Errorf("Lookup() found %v, want none", found)
	}
}

func TestRemember_SkipsZeroIdentity(t *testing.T) {
	store := newMemoryStore()

	rows := []resource.Asset{{Name: "no identity"}}
	if err := Remember(context.Background(), store, "p", resource.KindAsset, rows, func(resource.Asset) identity.Identity {
		return identity.Identity{}
	}); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}
	if len(store.entries) != 0 {
		t.Errorf("stored %d entries, want 0", len(store.entries))
	}
}

func TestLookup_StoreError(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("connection refused")

	_, err := Lookup[resource.Asset](context.Background(), store, "p", resource.KindAsset, []identity.Identity{identity.FromID(1)})
	if err == nil {
		t.Error("Lookup() should return the store error")
	}
}

func TestForget(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()

	assets := []resource.Asset{{ID: 1, ExternalID: "a"}}
	_ = Remember(ctx, store, "p", resource.KindAsset, assets, resource.Asset.Identity)

	if err := Forget(ctx, store, "p", resource.KindAsset, []identity.Identity{identity.FromExternalID("a")}); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	if len(store.entries) != 0 {
		t.Errorf("entries after Forget = %d, want 0", len(store.entries))
	}
}
