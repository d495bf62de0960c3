package resilience

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/chunk"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/classify"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/result"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/sanitize"
)

// InsertDataPoints writes points to the time series they are keyed by.
//
// Requests hold at most ChunkSize series (bounded by the API limit) and
// 100 000 points. A series with more points than that is split over several
// requests. Results and errors are reported per series; a series appears
// once in Results even when it was split.
func (e *Engine) InsertDataPoints(ctx context.Context, points map[identity.Identity][]resource.DataPoint, opts WriteOptions) (result.Result[identity.Identity, identity.Identity], error) {
	if err := opts.validate(); err != nil {
		return result.Result[identity.Identity, identity.Identity]{}, err
	}
	started := time.Now()
	kind := resource.KindDataPoints

	keys := make([]identity.Identity, 0, len(points))
	for id := range points {
		keys = append(keys, id)
	}
	slices.SortFunc(keys, func(a, b identity.Identity) int {
		return strings.Compare(a.String(), b.String())
	})

	writes := make([]resource.DataPointsWrite, 0, len(keys))
	for _, id := range keys {
		writes = append(writes, resource.NewDataPointsWrite(id, points[id]))
	}
	clean, sanitation := sanitize.CleanRequest(writes, opts.Mode, sanitize.DataPointRules)
	reportAll(e, kind, sanitation)

	entries := make([]chunk.Entry[identity.Identity, resource.DataPoint], 0, len(clean))
	for _, w := range clean {
		entries = append(entries, chunk.Entry[identity.Identity, resource.DataPoint]{Key: w.Identity(), Values: w.Datapoints})
	}
	groups, err := chunk.ChunkGroups(entries, opts.chunkSize(sanitize.DataPointSeriesPerRequest), sanitize.DataPointsPerRequest)
	if err != nil {
		return result.Result[identity.Identity, identity.Identity]{}, err
	}

	b := batch[resource.DataPointsWrite, identity.Identity]{
		kind: kind,
		op:   classify.OpInsert,
		send: func(ctx context.Context, items []resource.DataPointsWrite) ([]identity.Identity, error) {
			if err := e.api.InsertDataPoints(ctx, items); err != nil {
				return nil, err
			}
			ids := make([]identity.Identity, 0, len(items))
			for _, w := range items {
				ids = append(ids, w.Identity())
			}
			return ids, nil
		},
		refs: func(w resource.DataPointsWrite, res result.ResourceType) []identity.Identity {
			switch res {
			case result.ResourceID, result.ResourceExternalID, result.ResourceInstanceID, result.ResourceDataPointType:
				return []identity.Identity{w.Identity()}
			}
			return nil
		},
		resolve: e.resolveDataPointTypes,
	}

	prog := newProgress(opts.Progress, len(groups))
	out, err := runGroups(ctx, e, opts, groups, prog, func(ctx context.Context, g []chunk.Entry[identity.Identity, resource.DataPoint]) (result.Result[identity.Identity, identity.Identity], error) {
		items := make([]resource.DataPointsWrite, 0, len(g))
		for _, entry := range g {
			items = append(items, resource.NewDataPointsWrite(entry.Key, entry.Values))
		}
		o := runBatch(ctx, e, b, items, opts.Policy)
		e.metrics.Created(string(kind), len(o.res.Results))
		return toIdentityResult(o.res), nil
	})

	sanitized := make([]*result.CogniteError[identity.Identity], 0, len(sanitation))
	for _, ce := range sanitation {
		sanitized = append(sanitized, result.ConvertSkipped(ce, resource.DataPointsWrite.Identity))
	}
	out = result.Merge(result.Result[identity.Identity, identity.Identity]{Errors: sanitized}, out)
	if len(out.Results) > 0 {
		out.Results = identity.NewSet(out.Results...).Items()
	}

	logSummary(e, string(kind), "insert", len(points), out, started, err)
	return out, err
}

func toIdentityResult(r result.Result[identity.Identity, resource.DataPointsWrite]) result.Result[identity.Identity, identity.Identity] {
	out := result.Result[identity.Identity, identity.Identity]{Results: r.Results}
	for _, ce := range r.Errors {
		out.Errors = append(out.Errors, result.ConvertSkipped(ce, resource.DataPointsWrite.Identity))
	}
	return out
}

// resolveDataPointTypes handles type mismatches reported without the
// offending series by fetching the series and comparing their value type
// with the points sent.
func (e *Engine) resolveDataPointTypes(ctx context.Context, ce *result.CogniteError[resource.DataPointsWrite], items []resource.DataPointsWrite) (matcher[resource.DataPointsWrite], error) {
	if ce.Resource != result.ResourceDataPointType {
		return func(resource.DataPointsWrite) bool { return true }, nil
	}

	ids := identity.NewSet()
	for _, w := range items {
		ids.Add(w.Identity())
	}
	series, err := e.timeSeries().retrieve(ctx, e, ids.Items())
	if err != nil {
		return nil, err
	}

	mismatched := func(w resource.DataPointsWrite) bool {
		ts, ok := series[w.Identity()]
		return ok && ts.IsString != w.IsString()
	}
	for _, w := range items {
		if mismatched(w) {
			ce.Values = append(ce.Values, w.Identity())
		}
	}
	return mismatched, nil
}
