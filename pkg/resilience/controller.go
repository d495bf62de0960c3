package resilience

import (
	"context"
	"time"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/classify"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/logging"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/metrics"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/result"
)

// matcher reports whether a record is implicated by an error.
type matcher[W any] func(W) bool

// resolver turns an incomplete error into a matcher by asking the server
// which records are at fault. It may fill in the error's Values.
type resolver[W any] func(ctx context.Context, ce *result.CogniteError[W], items []W) (matcher[W], error)

// batch describes one kind of request and how its failures map back to the
// records that were sent.
type batch[W, R any] struct {
	kind resource.Kind
	op   classify.Operation
	send func(ctx context.Context, items []W) ([]R, error)

	// refs returns the identities item refers to through res: its own
	// identity for id fields, the referenced record for reference fields.
	refs func(item W, res result.ResourceType) []identity.Identity

	// resolve handles errors with Complete false. Nil falls back to the
	// records that set the failing field at all.
	resolve resolver[W]

	// divert reports whether records hit by ce are returned to the caller
	// for further handling instead of being reported.
	divert func(ce *result.CogniteError[W]) bool
}

// outcome is what one batch produced.
type outcome[R, W any] struct {
	res      result.Result[R, W]
	diverted []W
}

// runBatch sends items until they are all accepted, reported or diverted.
//
// Every structural failure removes at least one record from the working
// set, and fatal failures are resent at most maxFatalRetries times, so the
// loop runs at most len(items)+maxFatalRetries+1 requests. Once ctx is done
// no further request is made and the pending records are left out of the
// outcome.
func runBatch[W, R any](ctx context.Context, e *Engine, b batch[W, R], items []W, policy RetryPolicy) outcome[R, W] {
	var out outcome[R, W]
	kind, op := string(b.kind), string(b.op)

	working := items
	fatalWaits := 0
	for len(working) > 0 {
		if ctx.Err() != nil {
			return out
		}

		start := time.Now()
		res, err := b.send(ctx, working)
		e.metrics.ObserveBatch(kind, op, time.Since(start))

		if err == nil {
			e.metrics.ObserveRequest(kind, op, metrics.OutcomeSuccess)
			e.log.Debug().
				Str("kind", kind).
				Str("operation", op).
				Int("items", len(working)).
				Int("results", len(res)).
				Msg("Batch accepted")
			out.res.Results = append(out.res.Results, res...)
			return out
		}
		if ctx.Err() != nil {
			e.log.Debug().
				Str("kind", kind).
				Str("operation", op).
				Int("items", len(working)).
				Msg("Batch interrupted by cancellation")
			return out
		}

		ce := classify.Classify[W](err, classify.Request{Kind: b.kind, Op: b.op})

		if ce.Kind == result.KindFatalFailure {
			e.metrics.ObserveRequest(kind, op, metrics.OutcomeFatal)
			if policy.WaitOnFatal && classify.Transient(err) && fatalWaits < e.maxFatalRetries {
				fatalWaits++
				e.metrics.FatalWait(kind)
				e.log.Warn().
					Err(err).
					Str("kind", kind).
					Str("operation", op).
					Int("items", len(working)).
					Int("attempt", fatalWaits).
					Dur("delay", e.fatalDelay).
					Msg("Fatal failure, resending batch after delay")
				if !sleep(ctx, e.fatalDelay) {
					return out
				}
				continue
			}
			ce.Skipped = working
			out.res.Errors = append(out.res.Errors, ce)
			report(e, b.kind, ce)
			return out
		}

		e.metrics.ObserveRequest(kind, op, metrics.OutcomeStructural)
		diverted := b.divert != nil && b.divert(ce)

		if !policy.RetryOnError && !diverted {
			ce.Skipped = working
			ce.Complete = true
			out.res.Errors = append(out.res.Errors, ce)
			report(e, b.kind, ce)
			return out
		}

		hit, rest, attributed := implicate(ctx, e, b, ce, working)
		ce.Skipped = hit
		ce.Complete = true
		if diverted && !attributed {
			// Records are only diverted when the server confirmed them.
			diverted = false
		}
		if diverted {
			out.diverted = append(out.diverted, hit...)
		} else {
			out.res.Errors = append(out.res.Errors, ce)
			report(e, b.kind, ce)
		}
		working = rest
	}
	return out
}

// implicate splits working into the records ce is attributed to and the
// rest. The first part is never empty: when nothing can be attributed the
// whole working set is implicated and attributed is false.
func implicate[W, R any](ctx context.Context, e *Engine, b batch[W, R], ce *result.CogniteError[W], working []W) (hit, rest []W, attributed bool) {
	var match matcher[W]

	switch {
	case ce.Complete:
		values := identity.NewSet(ce.Values...)
		match = func(item W) bool {
			for _, id := range b.refs(item, ce.Resource) {
				if values.Contains(id) {
					return true
				}
			}
			return false
		}
	case b.resolve != nil:
		m, err := b.resolve(ctx, ce, working)
		if err != nil {
			e.log.Warn().
				Err(err).
				Str("kind", string(b.kind)).
				Str("error_kind", string(ce.Kind)).
				Str("resource", string(ce.Resource)).
				Int("items", len(working)).
				Msg("Follow-up lookup failed, treating whole batch as implicated")
			return working, nil, false
		}
		match = m
	default:
		match = func(item W) bool {
			return len(b.refs(item, ce.Resource)) > 0
		}
	}

	for _, item := range working {
		if match(item) {
			hit = append(hit, item)
		} else {
			rest = append(rest, item)
		}
	}
	if len(hit) == 0 {
		e.log.Warn().
			Str("kind", string(b.kind)).
			Str("error_kind", string(ce.Kind)).
			Str("resource", string(ce.Resource)).
			Int("items", len(working)).
			Msg("Error matched no record, treating whole batch as implicated")
		return working, nil, false
	}
	return hit, rest, true
}

// report logs ce and counts its skipped records.
func report[T any](e *Engine, kind resource.Kind, ce *result.CogniteError[T]) {
	logging.CogniteError(e.log, string(kind), ce)
	e.metrics.Skipped(string(kind), string(ce.Kind), string(ce.Resource), len(ce.Skipped))
}

// reportAll reports every error of errs.
func reportAll[T any](e *Engine, kind resource.Kind, errs []*result.CogniteError[T]) {
	for _, ce := range errs {
		report(e, kind, ce)
	}
}

// ownIdentity returns refs that resolve every identity field to the
// record's own identity and nothing else.
func ownIdentity[W any](id func(W) identity.Identity) func(W, result.ResourceType) []identity.Identity {
	return func(item W, res result.ResourceType) []identity.Identity {
		switch res {
		case result.ResourceID, result.ResourceExternalID, result.ResourceInstanceID:
			if i := id(item); !i.IsZero() {
				return []identity.Identity{i}
			}
		}
		return nil
	}
}

func idRef(id *int64) []identity.Identity {
	if id == nil || *id <= 0 {
		return nil
	}
	return []identity.Identity{identity.FromID(*id)}
}

func idsRef(ids []int64) []identity.Identity {
	out := make([]identity.Identity, 0, len(ids))
	for _, id := range ids {
		out = append(out, identity.FromID(id))
	}
	return out
}

func externalIDRef(xid string) []identity.Identity {
	if xid == "" {
		return nil
	}
	return []identity.Identity{identity.FromExternalID(xid)}
}
