package resilience

import (
	"context"
	"fmt"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/chunk"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/classify"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/client"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/result"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/sanitize"
)

// lookupsPerRequest bounds the ids of one data set or label retrieve.
const lookupsPerRequest = 1000

// existsFunc returns the subset of ids known to the server.
type existsFunc func(ctx context.Context, ids []identity.Identity) (*identity.Set, error)

// referenceCheck returns how to look up the records a field of type res
// refers to, or nil when they cannot be looked up.
func (e *Engine) referenceCheck(res result.ResourceType) existsFunc {
	switch res {
	case result.ResourceAssetID:
		return lookupExisting(e, resource.KindAsset, e.api.Assets(), sanitize.AssetsPerRequest,
			resource.Asset.Identity, func(a resource.Asset) int64 { return a.ID })
	case result.ResourceDataSetID:
		return lookupExisting(e, resource.KindDataSet, e.api.DataSets(), lookupsPerRequest,
			resource.DataSet.Identity, nil)
	case result.ResourceLabels:
		return lookupExisting(e, resource.KindLabel, e.api.Labels(), lookupsPerRequest,
			resource.Label.Identity, nil)
	}
	return nil
}

// lookupExisting builds an existsFunc over a retrieve endpoint. Records are
// matched by readID and, when internalID is set, by internal id.
func lookupExisting[R any](e *Engine, kind resource.Kind, l client.Lookup[R], limit int, readID func(R) identity.Identity, internalID func(R) int64) existsFunc {
	b := batch[identity.Identity, R]{
		kind: kind,
		op:   classify.OpRetrieve,
		send: func(ctx context.Context, ids []identity.Identity) ([]R, error) {
			return l.Retrieve(ctx, ids, true)
		},
		refs: ownIdentity(func(id identity.Identity) identity.Identity { return id }),
	}

	return func(ctx context.Context, ids []identity.Identity) (*identity.Set, error) {
		found := identity.NewSet()
		groups, err := chunk.Chunk(ids, limit)
		if err != nil {
			return nil, err
		}
		policy := RetryPolicy{RetryOnError: true, WaitOnFatal: true}
		for _, g := range groups {
			o := runBatch(ctx, e, b, g, policy)
			if len(o.res.Errors) > 0 {
				return nil, fmt.Errorf("retrieve %s: %w", kind, o.res.Errors[0])
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			for _, r := range o.res.Results {
				found.Add(readID(r))
				if internalID != nil {
					found.Add(identity.FromID(internalID(r)))
				}
			}
		}
		return found, nil
	}
}

// resolveReferences handles itemMissing errors without a missing list by
// looking up every record the failing field refers to. Records referring
// to one the server does not know are implicated. Errors on fields that
// cannot be looked up implicate every record setting the field.
func resolveReferences[T any](e *Engine, refs func(T, result.ResourceType) []identity.Identity) resolver[T] {
	return func(ctx context.Context, ce *result.CogniteError[T], items []T) (matcher[T], error) {
		setsField := func(item T) bool { return len(refs(item, ce.Resource)) > 0 }
		if ce.Kind != result.KindItemMissing {
			return setsField, nil
		}
		exists := e.referenceCheck(ce.Resource)
		if exists == nil {
			return setsField, nil
		}

		referenced := identity.NewSet()
		for _, item := range items {
			referenced.Add(refs(item, ce.Resource)...)
		}
		found, err := exists(ctx, referenced.Items())
		if err != nil {
			return nil, err
		}

		missing := identity.NewSet()
		for _, id := range referenced.Items() {
			if !found.Contains(id) {
				missing.Add(id)
			}
		}
		ce.Values = missing.Items()

		return func(item T) bool {
			for _, id := range refs(item, ce.Resource) {
				if missing.Contains(id) {
					return true
				}
			}
			return false
		}, nil
	}
}

// referencesOnCreate and referencesOnUpdate plug resolveReferences into a
// crud description.
func referencesOnCreate[W, R, U any](e *Engine, c crud[W, R, U]) resolver[W] {
	return resolveReferences(e, c.refs)
}

func referencesOnUpdate[W, R, U any](e *Engine, c crud[W, R, U]) resolver[U] {
	return resolveReferences(e, c.updateRefs)
}
