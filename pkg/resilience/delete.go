package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/cache"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/chunk"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/classify"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/result"
)

// deleteTarget is the delete surface of one kind. aliases returns every
// identity the records of ids are cached under.
type deleteTarget struct {
	delete  func(ctx context.Context, ids []identity.Identity, ignoreUnknownIDs bool) error
	aliases func(ctx context.Context, ids []identity.Identity) ([]identity.Identity, error)
	limit   int
}

func targetOf[W, R, U any](c crud[W, R, U]) deleteTarget {
	return deleteTarget{
		delete: c.endpoint.Delete,
		aliases: func(ctx context.Context, ids []identity.Identity) ([]identity.Identity, error) {
			records, err := c.endpoint.Retrieve(ctx, ids, true)
			if err != nil {
				return nil, err
			}
			out := make([]identity.Identity, 0, 2*len(records))
			for _, r := range records {
				out = append(out, c.readID(r), identity.FromID(c.internalID(r)))
			}
			return out, nil
		},
		limit: c.limit,
	}
}

func (e *Engine) deleteTarget(kind resource.Kind) (deleteTarget, error) {
	switch kind {
	case resource.KindAsset:
		return targetOf(e.assets()), nil
	case resource.KindEvent:
		return targetOf(e.events()), nil
	case resource.KindTimeSeries:
		return targetOf(e.timeSeries()), nil
	case resource.KindSequence:
		return targetOf(e.sequences()), nil
	default:
		return deleteTarget{}, fmt.Errorf("%w: delete %s", ErrUnsupportedKind, kind)
	}
}

// Delete removes the records of kind with the given ids. Ids the server
// does not know are reported as itemMissing and the rest of their batch is
// deleted. Results hold the deleted ids. With a cache, the records are
// forgotten under both their external and internal ids.
func (e *Engine) Delete(ctx context.Context, kind resource.Kind, ids []identity.Identity, opts WriteOptions) (result.Result[identity.Identity, identity.Identity], error) {
	type idResult = result.Result[identity.Identity, identity.Identity]
	if err := opts.validate(); err != nil {
		return idResult{}, err
	}
	target, err := e.deleteTarget(kind)
	if err != nil {
		return idResult{}, err
	}
	started := time.Now()

	unique := identity.NewSet()
	for _, id := range ids {
		if !id.IsZero() {
			unique.Add(id)
		}
	}
	groups, err := chunk.Chunk(unique.Items(), opts.chunkSize(target.limit))
	if err != nil {
		return idResult{}, err
	}

	b := batch[identity.Identity, identity.Identity]{
		kind: kind,
		op:   classify.OpDelete,
		send: func(ctx context.Context, ids []identity.Identity) ([]identity.Identity, error) {
			if err := target.delete(ctx, ids, false); err != nil {
				return nil, err
			}
			return ids, nil
		},
		refs: ownIdentity(func(id identity.Identity) identity.Identity { return id }),
	}

	prog := newProgress(opts.Progress, len(groups))
	out, err := runGroups(ctx, e, opts, groups, prog, func(ctx context.Context, g []identity.Identity) (idResult, error) {
		var aliases []identity.Identity
		if e.cache != nil {
			var err error
			if aliases, err = target.aliases(ctx, g); err != nil {
				e.log.Warn().Err(err).Str("kind", string(kind)).Msg("Alias lookup failed, invalidating requested ids only")
			}
		}

		o := runBatch(ctx, e, b, g, opts.Policy)
		if e.cache != nil && len(o.res.Results) > 0 {
			stale := identity.NewSet(o.res.Results...)
			stale.Add(aliases...)
			if err := cache.Forget(ctx, e.cache, e.project, kind, stale.Items()); err != nil {
				e.log.Warn().Err(err).Str("kind", string(kind)).Msg("Cache invalidation failed")
			}
		}
		return o.res, nil
	})

	logSummary(e, string(kind), "delete", unique.Len(), out, started, err)
	return out, err
}
