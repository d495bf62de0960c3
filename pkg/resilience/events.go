package resilience

import (
	"context"
	"slices"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/result"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/sanitize"
)

func (e *Engine) events() crud[resource.EventWrite, resource.Event, resource.EventUpdate] {
	return crud[resource.EventWrite, resource.Event, resource.EventUpdate]{
		kind:       resource.KindEvent,
		endpoint:   e.api.Events(),
		rules:      sanitize.EventRules,
		limit:      sanitize.EventsPerRequest,
		writeID:    resource.EventWrite.Identity,
		readID:     resource.Event.Identity,
		internalID: func(ev resource.Event) int64 { return ev.ID },
		updateID:   func(u resource.EventUpdate) identity.Identity { return u.Identity },
		refs:       eventRefs,
		updateRefs: func(u resource.EventUpdate, res result.ResourceType) []identity.Identity {
			p := u.Update
			switch res {
			case result.ResourceID, result.ResourceExternalID:
				return []identity.Identity{u.Identity}
			case result.ResourceAssetID:
				if p.AssetIDs != nil {
					return idsRef(slices.Concat(p.AssetIDs.Set, p.AssetIDs.Add))
				}
			case result.ResourceDataSetID:
				if p.DataSetID != nil {
					return idRef(p.DataSetID.Set)
				}
			}
			return nil
		},
		resolveCreate: referencesOnCreate[resource.EventWrite, resource.Event, resource.EventUpdate],
		resolveUpdate: referencesOnUpdate[resource.EventWrite, resource.Event, resource.EventUpdate],
		diff: func(existing resource.Event, desired resource.EventWrite, opts resource.UpdateOptions) (resource.EventUpdate, bool) {
			p, changed := resource.DiffEvent(existing, desired, opts)
			return resource.EventUpdate{Identity: identity.FromID(existing.ID), Update: p}, changed
		},
	}
}

// GetOrCreateEvents returns the events with the given external ids, creating
// the ones that do not exist with build. Results follow the order of
// externalIDs.
func (e *Engine) GetOrCreateEvents(ctx context.Context, externalIDs []string, build func([]string) ([]resource.EventWrite, error), opts WriteOptions) (result.Result[resource.Event, resource.EventWrite], error) {
	return getOrCreate(ctx, e, e.events(), externalIDs, build, opts)
}

// EnsureEventsExist creates items.
func (e *Engine) EnsureEventsExist(ctx context.Context, items []resource.EventWrite, opts WriteOptions) (result.Result[resource.Event, resource.EventWrite], error) {
	return ensure(ctx, e, e.events(), items, opts)
}

// UpsertEvents creates items and updates the events that already exist.
// Results follow the order of items.
func (e *Engine) UpsertEvents(ctx context.Context, items []resource.EventWrite, opts WriteOptions, upd resource.UpdateOptions) (result.Result[resource.Event, resource.EventWrite], error) {
	return upsert(ctx, e, e.events(), items, opts, upd)
}

func eventRefs(ev resource.EventWrite, res result.ResourceType) []identity.Identity {
	switch res {
	case result.ResourceExternalID:
		return externalIDRef(ev.ExternalID)
	case result.ResourceAssetID:
		return idsRef(ev.AssetIDs)
	case result.ResourceDataSetID:
		return idRef(ev.DataSetID)
	}
	return nil
}
