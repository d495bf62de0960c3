package resilience

import (
	"context"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/result"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/sanitize"
)

func (e *Engine) sequences() crud[resource.SequenceWrite, resource.Sequence, resource.SequenceUpdate] {
	return crud[resource.SequenceWrite, resource.Sequence, resource.SequenceUpdate]{
		kind:       resource.KindSequence,
		endpoint:   e.api.Sequences(),
		rules:      sanitize.SequenceRules,
		limit:      sanitize.SequencesPerRequest,
		writeID:    resource.SequenceWrite.Identity,
		readID:     resource.Sequence.Identity,
		internalID: func(s resource.Sequence) int64 { return s.ID },
		updateID:   func(u resource.SequenceUpdate) identity.Identity { return u.Identity },
		refs:       sequenceRefs,
		updateRefs: func(u resource.SequenceUpdate, res result.ResourceType) []identity.Identity {
			p := u.Update
			switch res {
			case result.ResourceID, result.ResourceExternalID:
				return []identity.Identity{u.Identity}
			case result.ResourceAssetID:
				if p.AssetID != nil {
					return idRef(p.AssetID.Set)
				}
			case result.ResourceDataSetID:
				if p.DataSetID != nil {
					return idRef(p.DataSetID.Set)
				}
			}
			return nil
		},
		resolveCreate: referencesOnCreate[resource.SequenceWrite, resource.Sequence, resource.SequenceUpdate],
		resolveUpdate: referencesOnUpdate[resource.SequenceWrite, resource.Sequence, resource.SequenceUpdate],
		diff: func(existing resource.Sequence, desired resource.SequenceWrite, opts resource.UpdateOptions) (resource.SequenceUpdate, bool) {
			p, changed := resource.DiffSequence(existing, desired, opts)
			return resource.SequenceUpdate{Identity: identity.FromID(existing.ID), Update: p}, changed
		},
	}
}

// GetOrCreateSequences returns the sequences with the given external ids,
// creating the ones that do not exist with build. Results follow the order
// of externalIDs.
func (e *Engine) GetOrCreateSequences(ctx context.Context, externalIDs []string, build func([]string) ([]resource.SequenceWrite, error), opts WriteOptions) (result.Result[resource.Sequence, resource.SequenceWrite], error) {
	return getOrCreate(ctx, e, e.sequences(), externalIDs, build, opts)
}

// EnsureSequencesExist creates items.
func (e *Engine) EnsureSequencesExist(ctx context.Context, items []resource.SequenceWrite, opts WriteOptions) (result.Result[resource.Sequence, resource.SequenceWrite], error) {
	return ensure(ctx, e, e.sequences(), items, opts)
}

// UpsertSequences creates items and updates the sequences that already
// exist. Columns are not updated. Results follow the order of items.
func (e *Engine) UpsertSequences(ctx context.Context, items []resource.SequenceWrite, opts WriteOptions, upd resource.UpdateOptions) (result.Result[resource.Sequence, resource.SequenceWrite], error) {
	return upsert(ctx, e, e.sequences(), items, opts, upd)
}

func sequenceRefs(s resource.SequenceWrite, res result.ResourceType) []identity.Identity {
	switch res {
	case result.ResourceExternalID:
		return externalIDRef(s.ExternalID)
	case result.ResourceAssetID:
		return idRef(s.AssetID)
	case result.ResourceDataSetID:
		return idRef(s.DataSetID)
	}
	return nil
}
