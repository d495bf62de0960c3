package resilience

import (
	"context"
	"time"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/chunk"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/classify"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/result"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/sanitize"
)

// InsertSequenceRows writes rows to existing sequences. Requests hold at
// most ChunkSize sequences (bounded by the API limit) and 10 000 rows; the
// rows of one sequence are split over several requests only when they
// exceed that. Results hold the accepted parts.
func (e *Engine) InsertSequenceRows(ctx context.Context, items []resource.SequenceRowsWrite, opts WriteOptions) (result.Result[resource.SequenceRowsWrite, resource.SequenceRowsWrite], error) {
	type rowsResult = result.Result[resource.SequenceRowsWrite, resource.SequenceRowsWrite]
	if err := opts.validate(); err != nil {
		return rowsResult{}, err
	}
	started := time.Now()
	kind := resource.KindSequenceRows

	clean, sanitation := sanitize.CleanRequest(items, opts.Mode, sanitize.SequenceRowsRules)
	reportAll(e, kind, sanitation)

	entries := make([]chunk.Entry[int, resource.SequenceRow], 0, len(clean))
	for i, s := range clean {
		entries = append(entries, chunk.Entry[int, resource.SequenceRow]{Key: i, Values: s.Rows})
	}
	groups, err := chunk.ChunkGroups(entries, opts.chunkSize(sanitize.SequenceRowSeriesPerReq), sanitize.SequenceRowsPerRequest)
	if err != nil {
		return rowsResult{}, err
	}

	b := batch[resource.SequenceRowsWrite, resource.SequenceRowsWrite]{
		kind: kind,
		op:   classify.OpInsert,
		send: func(ctx context.Context, items []resource.SequenceRowsWrite) ([]resource.SequenceRowsWrite, error) {
			if err := e.api.InsertSequenceRows(ctx, items); err != nil {
				return nil, err
			}
			return items, nil
		},
		refs: func(s resource.SequenceRowsWrite, res result.ResourceType) []identity.Identity {
			switch res {
			case result.ResourceID, result.ResourceExternalID, result.ResourceColumns:
				return []identity.Identity{s.Identity()}
			}
			return nil
		},
		resolve: e.resolveSequenceColumns,
	}

	prog := newProgress(opts.Progress, len(groups))
	out, err := runGroups(ctx, e, opts, groups, prog, func(ctx context.Context, g []chunk.Entry[int, resource.SequenceRow]) (rowsResult, error) {
		batchItems := make([]resource.SequenceRowsWrite, 0, len(g))
		for _, entry := range g {
			s := clean[entry.Key]
			s.Rows = entry.Values
			batchItems = append(batchItems, s)
		}
		o := runBatch(ctx, e, b, batchItems, opts.Policy)
		e.metrics.Created(string(kind), len(o.res.Results))
		return o.res, nil
	})

	out = result.Merge(rowsResult{Errors: sanitation}, out)
	logSummary(e, string(kind), "insert", len(items), out, started, err)
	return out, err
}

// resolveSequenceColumns handles column errors reported without the
// offending sequence by fetching the sequences and checking that every
// column written exists.
func (e *Engine) resolveSequenceColumns(ctx context.Context, ce *result.CogniteError[resource.SequenceRowsWrite], items []resource.SequenceRowsWrite) (matcher[resource.SequenceRowsWrite], error) {
	if ce.Resource != result.ResourceColumns {
		return func(resource.SequenceRowsWrite) bool { return true }, nil
	}

	ids := identity.NewSet()
	for _, s := range items {
		ids.Add(s.Identity())
	}
	sequences, err := e.sequences().retrieve(ctx, e, ids.Items())
	if err != nil {
		return nil, err
	}

	unknownColumn := func(s resource.SequenceRowsWrite) bool {
		seq, ok := sequences[s.Identity()]
		if !ok {
			return true
		}
		have := make(map[string]struct{}, len(seq.Columns))
		for _, c := range seq.Columns {
			have[c.ExternalID] = struct{}{}
		}
		for _, c := range s.Columns {
			if _, ok := have[c]; !ok {
				return true
			}
		}
		return false
	}
	for _, s := range items {
		if unknownColumn(s) {
			ce.Values = append(ce.Values, s.Identity())
		}
	}
	return unknownColumn, nil
}

// InsertRawRows writes rows to a raw table, creating the database and table
// when they do not exist. Rows with duplicate keys are removed before
// sending; the first one is kept.
func (e *Engine) InsertRawRows(ctx context.Context, db, table string, rows []resource.RawRow, opts WriteOptions) (result.Result[resource.RawRow, resource.RawRow], error) {
	if err := opts.validate(); err != nil {
		return result.Result[resource.RawRow, resource.RawRow]{}, err
	}
	started := time.Now()
	kind := resource.KindRaw

	mode := opts.Mode
	if mode == sanitize.ModeNone {
		// Duplicate keys would overwrite each other within one request.
		mode = sanitize.ModeRemove
	}
	clean, sanitation := sanitize.CleanRequest(rows, mode, sanitize.RawRules)
	reportAll(e, kind, sanitation)

	groups, err := chunk.Chunk(clean, opts.chunkSize(sanitize.RawRowsPerRequest))
	if err != nil {
		return result.Result[resource.RawRow, resource.RawRow]{}, err
	}

	b := batch[resource.RawRow, resource.RawRow]{
		kind: kind,
		op:   classify.OpInsert,
		send: func(ctx context.Context, items []resource.RawRow) ([]resource.RawRow, error) {
			if err := e.api.InsertRawRows(ctx, db, table, items, true); err != nil {
				return nil, err
			}
			return items, nil
		},
		refs: func(r resource.RawRow, res result.ResourceType) []identity.Identity {
			switch res {
			case result.ResourceRawKey, result.ResourceExternalID:
				return []identity.Identity{r.Identity()}
			}
			return nil
		},
	}

	prog := newProgress(opts.Progress, len(groups))
	out, err := runGroups(ctx, e, opts, groups, prog, func(ctx context.Context, g []resource.RawRow) (result.Result[resource.RawRow, resource.RawRow], error) {
		o := runBatch(ctx, e, b, g, opts.Policy)
		e.metrics.Created(string(kind), len(o.res.Results))
		return o.res, nil
	})

	out = result.Merge(result.Result[resource.RawRow, resource.RawRow]{Errors: sanitation}, out)
	logSummary(e, string(kind), "insert", len(rows), out, started, err)
	return out, err
}
