package batch

import (
	"context"
	"sync"
	"time"
)

// WorkerPool executes Processor invocations with at most maxConcurrency in
// flight. Outcomes may arrive in any completion order; each carries the
// producing batch's Index so callers can reassemble input order.
type WorkerPool[T any, R any] struct {
	maxConcurrency int
}

// NewWorkerPool creates a pool bounding concurrency at maxConcurrency
// (clamped to at least 1).
func NewWorkerPool[T any, R any](maxConcurrency int) *WorkerPool[T, R] {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &WorkerPool[T, R]{maxConcurrency: maxConcurrency}
}

// Submit dispatches batches read from in to process, at most maxConcurrency
// at a time, and returns a channel of outcomes closed once every dispatched
// batch has completed (or ctx is done and all in-flight work has drained).
//
// The dispatcher reads the next batch from in and then blocks on acquiring
// a free slot before starting it, so it never over-subscribes past
// maxConcurrency. When ctx is cancelled, dispatch of not-yet-started batches
// stops; batches already in flight are allowed to finish and their outcomes
// are still delivered.
//
// onOutcome, when non-nil, runs in the worker goroutine before the outcome
// is published and before the worker's slot is released. A caller that
// cancels ctx from inside onOutcome (fail-fast) is therefore guaranteed the
// dispatcher observes the cancellation before the freed slot can admit
// another batch.
func (p *WorkerPool[T, R]) Submit(ctx context.Context, in <-chan Batch[T], process Processor[T, R], onDispatch func(index uint32), onOutcome func(BatchOutcome[R])) <-chan BatchOutcome[R] {
	out := make(chan BatchOutcome[R])
	sem := make(chan struct{}, p.maxConcurrency)
	var wg sync.WaitGroup

	go func() {
		defer close(out)
		defer wg.Wait()

		for {
			select {
			case <-ctx.Done():
				return
			case b, ok := <-in:
				if !ok {
					return
				}
				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					return
				}
				// Re-check after the slot is acquired: a worker that raised
				// cancellation via onOutcome released its slot strictly after
				// cancelling, so this check cannot miss a fail-fast signal.
				if ctx.Err() != nil {
					return
				}
				if onDispatch != nil {
					onDispatch(b.Index)
				}
				wg.Add(1)
				go func(b Batch[T]) {
					defer wg.Done()
					defer func() { <-sem }()

					callStart := time.Now()
					items, err := process(ctx, b.Items, b.Index)
					outcome := BatchOutcome[R]{
						Index:      b.Index,
						Start:      b.Start,
						InputCount: len(b.Items),
						Items:      items,
						Err:        err,
						Duration:   time.Since(callStart),
					}
					if onOutcome != nil {
						onOutcome(outcome)
					}
					out <- outcome
				}(b)
			}
		}
	}()

	return out
}
