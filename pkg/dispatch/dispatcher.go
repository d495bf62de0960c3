// Package dispatch runs independent units of work with a concurrency ceiling.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidParallelism is returned when the concurrency limit is below one.
var ErrInvalidParallelism = errors.New("parallelism must be at least 1")

// Unit is one independently invocable unit of work.
type Unit func(ctx context.Context) error

// ProgressFunc is called after each completed unit with the number of units
// completed so far. Calls are serialized and done increases by one each call.
type ProgressFunc func(done, total int)

// Dispatcher runs units with at most Parallelism in flight.
type Dispatcher struct {
	parallelism int
	logger      zerolog.Logger
}

// New creates a dispatcher with the given concurrency limit.
func New(parallelism int, logger zerolog.Logger) (*Dispatcher, error) {
	if parallelism < 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidParallelism, parallelism)
	}
	return &Dispatcher{parallelism: parallelism, logger: logger}, nil
}

// Run executes units using a worker pool of min(Parallelism, len(units))
// workers. A new unit starts as soon as a worker frees up.
//
// Cancellation is cooperative: once ctx is done no further unit is started,
// but units already running receive the caller's ctx unchanged and are left
// to finish. The first unit error also stops new units from starting; it is
// returned after every started unit has returned. When units were left
// unstarted because ctx was cancelled, Run returns ctx.Err().
func (d *Dispatcher) Run(ctx context.Context, units []Unit, progress ProgressFunc) error {
	if len(units) == 0 {
		return nil
	}

	start := time.Now()
	total := len(units)
	workers := min(d.parallelism, total)

	// gctx is only used to decide whether to start more units. It is
	// cancelled on the first unit error as well as by the caller.
	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan int)

	var (
		mu        sync.Mutex
		completed int
		skipped   int
	)

	for w := 0; w < workers; w++ {
		workerID := w
		g.Go(func() error {
			processed := 0
			for idx := range queue {
				if gctx.Err() != nil {
					mu.Lock()
					skipped++
					mu.Unlock()
					continue
				}

				if err := units[idx](ctx); err != nil {
					d.logger.Warn().
						Err(err).
						Int("worker_id", workerID).
						Int("unit", idx).
						Msg("Unit failed, no further units will start")
					return fmt.Errorf("unit %d: %w", idx, err)
				}
				processed++

				mu.Lock()
				completed++
				if progress != nil {
					progress(completed, total)
				}
				mu.Unlock()
			}

			d.logger.Debug().
				Int("worker_id", workerID).
				Int("units_processed", processed).
				Msg("Worker completed")
			return nil
		})
	}

	fed := 0
feed:
	for i := range units {
		if gctx.Err() != nil {
			break
		}
		select {
		case <-gctx.Done():
			break feed
		case queue <- i:
			fed++
		}
	}
	close(queue)

	err := g.Wait()

	mu.Lock()
	notStarted := total - fed + skipped
	done := completed
	mu.Unlock()

	event := d.logger.Debug()
	if notStarted > 0 {
		event = d.logger.Info()
	}
	event.
		Int("completed", done).
		Int("not_started", notStarted).
		Int("total", total).
		Int("workers", workers).
		Dur("duration", time.Since(start)).
		Msg("Dispatch finished")

	if err != nil {
		return err
	}
	if notStarted > 0 && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}
