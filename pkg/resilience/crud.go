package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/cache"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/chunk"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/classify"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/client"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/result"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/sanitize"
)

// crud describes a resource kind with create, retrieve, update and delete
// endpoints: assets, events, time series and sequences.
type crud[W, R, U any] struct {
	kind     resource.Kind
	endpoint client.Endpoint[W, R, U]
	rules    sanitize.Rules[W]
	limit    int

	writeID    func(W) identity.Identity
	readID     func(R) identity.Identity
	internalID func(R) int64
	updateID   func(U) identity.Identity

	refs       func(W, result.ResourceType) []identity.Identity
	updateRefs func(U, result.ResourceType) []identity.Identity

	diff func(existing R, desired W, opts resource.UpdateOptions) (U, bool)

	// resolveCreate and resolveUpdate handle incomplete errors specific to
	// the kind. Either may be nil.
	resolveCreate func(e *Engine, c crud[W, R, U]) resolver[W]
	resolveUpdate func(e *Engine, c crud[W, R, U]) resolver[U]

	// levels orders creates so referenced records are written first. Nil
	// writes everything in one level.
	levels func([]W) [][]W
}

// createBatch sends creates. Records the server reports as already
// existing are diverted when divertExisting is set.
func (c crud[W, R, U]) createBatch(e *Engine, divertExisting bool) batch[W, R] {
	b := batch[W, R]{
		kind: c.kind,
		op:   classify.OpCreate,
		send: c.endpoint.Create,
		refs: c.refs,
	}

	var specific resolver[W]
	if c.resolveCreate != nil {
		specific = c.resolveCreate(e, c)
	}
	b.resolve = func(ctx context.Context, ce *result.CogniteError[W], items []W) (matcher[W], error) {
		if ce.Kind == result.KindItemExists && ce.Resource == result.ResourceExternalID {
			return c.existing(ctx, e, ce, items)
		}
		if specific != nil {
			return specific(ctx, ce, items)
		}
		return func(item W) bool { return len(c.refs(item, ce.Resource)) > 0 }, nil
	}

	if divertExisting {
		b.divert = func(ce *result.CogniteError[W]) bool {
			return ce.Kind == result.KindItemExists && ce.Resource == result.ResourceExternalID
		}
	}
	return b
}

func (c crud[W, R, U]) updateBatch(e *Engine) batch[U, R] {
	b := batch[U, R]{
		kind: c.kind,
		op:   classify.OpUpdate,
		send: c.endpoint.Update,
		refs: c.updateRefs,
	}
	if c.resolveUpdate != nil {
		b.resolve = c.resolveUpdate(e, c)
	}
	return b
}

func (c crud[W, R, U]) retrieveBatch() batch[identity.Identity, R] {
	return batch[identity.Identity, R]{
		kind: c.kind,
		op:   classify.OpRetrieve,
		send: func(ctx context.Context, ids []identity.Identity) ([]R, error) {
			return c.endpoint.Retrieve(ctx, ids, true)
		},
		refs: ownIdentity(func(id identity.Identity) identity.Identity { return id }),
	}
}

// existing resolves an incomplete "already exists" error by retrieving the
// working set. Records found on the server are implicated.
func (c crud[W, R, U]) existing(ctx context.Context, e *Engine, ce *result.CogniteError[W], items []W) (matcher[W], error) {
	ids := identity.NewSet()
	for _, item := range items {
		if id := c.writeID(item); !id.IsZero() {
			ids.Add(id)
		}
	}
	found, err := c.retrieve(ctx, e, ids.Items())
	if err != nil {
		return nil, err
	}
	for id := range found {
		if ids.Contains(id) {
			ce.Values = append(ce.Values, id)
		}
	}
	return func(item W) bool {
		_, ok := found[c.writeID(item)]
		return ok
	}, nil
}

// retrieve fetches the records of ids, ignoring unknown ones. The returned
// map holds each record under its external id and its internal id.
func (c crud[W, R, U]) retrieve(ctx context.Context, e *Engine, ids []identity.Identity) (map[identity.Identity]R, error) {
	out := make(map[identity.Identity]R, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	groups, err := chunk.Chunk(ids, c.limit)
	if err != nil {
		return nil, err
	}
	policy := RetryPolicy{RetryOnError: true, WaitOnFatal: true}
	for _, g := range groups {
		o := runBatch(ctx, e, c.retrieveBatch(), g, policy)
		if len(o.res.Errors) > 0 {
			return nil, fmt.Errorf("retrieve %s: %w", c.kind, o.res.Errors[0])
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, r := range o.res.Results {
			out[c.readID(r)] = r
			out[identity.FromID(c.internalID(r))] = r
		}
	}
	return out, nil
}

// lookup returns the records of ids known to the cache or the server.
// Lookup failures are logged and the ids treated as unknown.
func (c crud[W, R, U]) lookup(ctx context.Context, e *Engine, ids []identity.Identity) map[identity.Identity]R {
	found := make(map[identity.Identity]R, len(ids))

	remaining := ids
	if e.cache != nil {
		cached, err := cache.Lookup[R](ctx, e.cache, e.project, c.kind, ids)
		if err != nil {
			e.log.Warn().Err(err).Str("kind", string(c.kind)).Msg("Cache lookup failed")
		}
		remaining = remaining[:0:0]
		for _, id := range ids {
			if r, ok := cached[id]; ok {
				found[id] = r
			} else {
				remaining = append(remaining, id)
			}
		}
	}

	fetched, err := c.retrieve(ctx, e, remaining)
	if err != nil {
		e.log.Warn().
			Err(err).
			Str("kind", string(c.kind)).
			Int("ids", len(remaining)).
			Msg("Lookup failed, creating all requested records")
		return found
	}

	var fresh []R
	for _, id := range remaining {
		if r, ok := fetched[id]; ok {
			found[id] = r
			fresh = append(fresh, r)
		}
	}
	c.remember(ctx, e, fresh)
	return found
}

func (c crud[W, R, U]) remember(ctx context.Context, e *Engine, records []R) {
	if e.cache == nil || len(records) == 0 {
		return
	}
	if err := cache.Remember(ctx, e.cache, e.project, c.kind, records, c.readID); err != nil {
		e.log.Warn().Err(err).Str("kind", string(c.kind)).Msg("Cache update failed")
	}
}

// write creates items. Records that already exist are looked up and, when
// upd is set, updated to match. Without upd they are returned as found when
// the policy keeps duplicates and reported as itemExists otherwise.
//
// Creating and looking up alternate in a loop bounded by
// maxGetOrCreateAttempts: a record reported as existing that cannot be
// found yet is created again after an exponential backoff.
func (c crud[W, R, U]) write(ctx context.Context, e *Engine, items []W, policy RetryPolicy, upd *resource.UpdateOptions) result.Result[R, W] {
	divert := upd != nil || policy.KeepDuplicates
	var parts []result.Result[R, W]

	pending := items
	for attempt := 0; len(pending) > 0; attempt++ {
		created := runBatch(ctx, e, c.createBatch(e, divert), pending, policy)
		e.metrics.Created(string(c.kind), len(created.res.Results))
		parts = append(parts, created.res)

		dups := created.diverted
		if len(dups) == 0 || ctx.Err() != nil {
			break
		}
		if attempt+1 >= e.maxGetOrCreateAttempts {
			parts = append(parts, c.unresolved(e, dups, fmt.Sprintf("%d records still conflicting after %d attempts", len(dups), attempt+1)))
			break
		}

		e.metrics.DuplicateRetry(string(c.kind))
		delay := e.duplicateDelay(attempt)
		e.log.Debug().
			Str("kind", string(c.kind)).
			Int("records", len(dups)).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Resolving existing records")
		if !sleep(ctx, delay) {
			break
		}

		ids := make([]identity.Identity, 0, len(dups))
		for _, d := range dups {
			ids = append(ids, c.writeID(d))
		}
		found, err := c.retrieve(ctx, e, ids)
		if err != nil {
			if ctx.Err() == nil {
				fatal := result.Fatal(err, dups)
				fatal.Message = "lookup of existing records failed"
				report(e, c.kind, fatal)
				parts = append(parts, result.Result[R, W]{Errors: []*result.CogniteError[W]{fatal}})
			}
			break
		}

		var existing []pair[R, W]
		pending = nil
		for _, d := range dups {
			if r, ok := found[c.writeID(d)]; ok {
				existing = append(existing, pair[R, W]{existing: r, desired: d})
			} else {
				pending = append(pending, d)
			}
		}
		parts = append(parts, c.settle(ctx, e, existing, policy, upd))
	}

	r := result.Merge(parts...)
	c.remember(ctx, e, r.Results)
	return r
}

type pair[R, W any] struct {
	existing R
	desired  W
}

// settle turns records found on the server into results, updated to match
// the desired record when upd is set.
func (c crud[W, R, U]) settle(ctx context.Context, e *Engine, found []pair[R, W], policy RetryPolicy, upd *resource.UpdateOptions) result.Result[R, W] {
	if len(found) == 0 {
		return result.Result[R, W]{}
	}
	if upd == nil {
		out := result.Result[R, W]{Results: make([]R, 0, len(found))}
		for _, p := range found {
			out.Results = append(out.Results, p.existing)
		}
		return out
	}

	var (
		out     result.Result[R, W]
		updates []U
		desired = make(map[identity.Identity]W, len(found))
	)
	for _, p := range found {
		u, changed := c.diff(p.existing, p.desired, *upd)
		if !changed {
			out.Results = append(out.Results, p.existing)
			continue
		}
		updates = append(updates, u)
		desired[c.updateID(u)] = p.desired
	}
	if len(updates) == 0 {
		return out
	}

	updated := runBatch(ctx, e, c.updateBatch(e), updates, policy)
	e.metrics.Updated(string(c.kind), len(updated.res.Results))
	out.Results = append(out.Results, updated.res.Results...)
	for _, ce := range updated.res.Errors {
		out.Errors = append(out.Errors, result.ConvertSkipped(ce, func(u U) W { return desired[c.updateID(u)] }))
	}
	return out
}

// unresolved reports records whose conflict could not be resolved.
func (c crud[W, R, U]) unresolved(e *Engine, items []W, message string) result.Result[R, W] {
	ce := &result.CogniteError[W]{
		Kind:     result.KindItemExists,
		Resource: result.ResourceExternalID,
		Skipped:  items,
		Complete: true,
		Message:  message,
	}
	for _, item := range items {
		if id := c.writeID(item); !id.IsZero() {
			ce.Values = append(ce.Values, id)
		}
	}
	report(e, c.kind, ce)
	return result.Result[R, W]{Errors: []*result.CogniteError[W]{ce}}
}

// ensure creates items, keeping existing records when the policy says so.
func ensure[W, R, U any](ctx context.Context, e *Engine, c crud[W, R, U], items []W, opts WriteOptions) (result.Result[R, W], error) {
	return writeAll(ctx, e, c, items, opts, nil, "ensure")
}

// upsert creates items and updates the ones that already exist. Results
// follow the order of items.
func upsert[W, R, U any](ctx context.Context, e *Engine, c crud[W, R, U], items []W, opts WriteOptions, upd resource.UpdateOptions) (result.Result[R, W], error) {
	r, err := writeAll(ctx, e, c, items, opts, &upd, "upsert")
	order := make([]identity.Identity, 0, len(items))
	for _, item := range items {
		order = append(order, c.writeID(item))
	}
	return result.Reproject(r, order, c.readID), err
}

func writeAll[W, R, U any](ctx context.Context, e *Engine, c crud[W, R, U], items []W, opts WriteOptions, upd *resource.UpdateOptions, operation string) (result.Result[R, W], error) {
	if err := opts.validate(); err != nil {
		return result.Result[R, W]{}, err
	}
	started := time.Now()

	clean, sanitation := sanitize.CleanRequest(items, opts.Mode, c.rules)
	reportAll(e, c.kind, sanitation)

	levels := [][]W{clean}
	if c.levels != nil {
		levels = c.levels(clean)
	}

	size := opts.chunkSize(c.limit)
	var staged [][][]W
	total := 0
	for _, level := range levels {
		groups, err := chunk.Chunk(level, size)
		if err != nil {
			return result.Result[R, W]{}, err
		}
		staged = append(staged, groups)
		total += len(groups)
	}

	parts := []result.Result[R, W]{{Errors: sanitation}}
	prog := newProgress(opts.Progress, total)
	var err error
	for _, groups := range staged {
		var r result.Result[R, W]
		r, err = runGroups(ctx, e, opts, groups, prog, func(ctx context.Context, g []W) (result.Result[R, W], error) {
			return c.write(ctx, e, g, opts.Policy, upd), nil
		})
		parts = append(parts, r)
		if err != nil {
			break
		}
	}

	out := result.Merge(parts...)
	logSummary(e, string(c.kind), operation, len(items), out, started, err)
	return out, err
}

// getOrCreate returns the records of externalIDs, creating the missing ones
// with build. Results follow the order of externalIDs.
func getOrCreate[W, R, U any](ctx context.Context, e *Engine, c crud[W, R, U], externalIDs []string, build func([]string) ([]W, error), opts WriteOptions) (result.Result[R, W], error) {
	if build == nil {
		return result.Result[R, W]{}, ErrNilBuilder
	}
	if err := opts.validate(); err != nil {
		return result.Result[R, W]{}, err
	}
	started := time.Now()

	seen := make(map[string]struct{}, len(externalIDs))
	ids := make([]string, 0, len(externalIDs))
	for _, x := range externalIDs {
		if _, dup := seen[x]; dup || x == "" {
			continue
		}
		seen[x] = struct{}{}
		ids = append(ids, x)
	}

	groups, err := chunk.Chunk(ids, opts.chunkSize(c.limit))
	if err != nil {
		return result.Result[R, W]{}, err
	}

	prog := newProgress(opts.Progress, len(groups))
	out, err := runGroups(ctx, e, opts, groups, prog, func(ctx context.Context, g []string) (result.Result[R, W], error) {
		found := c.lookup(ctx, e, identity.FromExternalIDs(g))

		r := result.Result[R, W]{}
		var missing []string
		for _, x := range g {
			if existing, ok := found[identity.FromExternalID(x)]; ok {
				r.Results = append(r.Results, existing)
			} else {
				missing = append(missing, x)
			}
		}
		if len(missing) == 0 || ctx.Err() != nil {
			return r, nil
		}

		writes, err := build(missing)
		if err != nil {
			return r, fmt.Errorf("build %s: %w", c.kind, err)
		}
		clean, sanitation := sanitize.CleanRequest(writes, opts.Mode, c.rules)
		reportAll(e, c.kind, sanitation)

		return result.Merge(r, result.Result[R, W]{Errors: sanitation}, c.write(ctx, e, clean, opts.Policy, nil)), nil
	})

	out = result.Reproject(out, identity.FromExternalIDs(ids), c.readID)
	logSummary(e, string(c.kind), "get_or_create", len(ids), out, started, err)
	return out, err
}
