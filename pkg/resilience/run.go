package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/dispatch"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/result"
)

// progress spreads one WriteOptions.Progress callback over several
// dispatcher runs, as used by the hierarchy levels of asset writes.
type progress struct {
	fn    func(done, total int)
	done  int
	total int
}

func newProgress(fn func(done, total int), total int) *progress {
	return &progress{fn: fn, total: total}
}

// stage returns the callback for the next dispatcher run.
func (p *progress) stage() dispatch.ProgressFunc {
	if p == nil || p.fn == nil {
		return nil
	}
	offset := p.done
	return func(done, _ int) {
		p.done = offset + done
		p.fn(p.done, p.total)
	}
}

// runGroups runs fn over groups with the parallelism of opts and merges
// the per-group results. Each group writes only its own slot, so no lock
// is needed. Groups not started because ctx was cancelled contribute
// nothing; the context error is returned together with the partial result.
func runGroups[G, R, E any](ctx context.Context, e *Engine, opts WriteOptions, groups []G, prog *progress,
	fn func(ctx context.Context, group G) (result.Result[R, E], error)) (result.Result[R, E], error) {
	if len(groups) == 0 {
		return result.Result[R, E]{}, ctx.Err()
	}

	d, err := dispatch.New(opts.Parallelism, e.log)
	if err != nil {
		return result.Result[R, E]{}, err
	}

	slots := make([]result.Result[R, E], len(groups))
	units := make([]dispatch.Unit, len(groups))
	for i, g := range groups {
		units[i] = func(ctx context.Context) error {
			r, err := fn(ctx, g)
			slots[i] = r
			return err
		}
	}

	runErr := d.Run(ctx, units, prog.stage())
	merged := result.Merge(slots...)
	if runErr != nil && !isCancellation(runErr) {
		return merged, runErr
	}
	return merged, ctx.Err()
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// logSummary logs the outcome of one operation.
func logSummary[R, E any](e *Engine, kind, operation string, input int, r result.Result[R, E], started time.Time, err error) {
	event := e.log.Info()
	if err != nil {
		event = e.log.Warn().Err(err)
	}
	event.
		Str("kind", kind).
		Str("operation", operation).
		Int("input", input).
		Int("results", len(r.Results)).
		Int("skipped", r.SkippedCount()).
		Int("error_groups", len(r.Errors)).
		Dur("duration", time.Since(started)).
		Msg("Bulk operation finished")
}
