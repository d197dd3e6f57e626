package batch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// cancelReason records which of {timeout, failfast, external} first
// triggered cancellation, so the terminal status reflects the actual first
// cause rather than whichever check happens to run last.
type cancelReason struct {
	mu     sync.Mutex
	reason string
}

// set records reason if none has been recorded yet, returning true the
// first time it succeeds. Later calls with a different reason are no-ops:
// cancellation is idempotent.
func (c *cancelReason) set(reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reason != "" {
		return false
	}
	c.reason = reason
	return true
}

func (c *cancelReason) get() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Execute drives items through process in bounded-concurrency batches,
// reporting live progress and aggregating per-batch failures without
// aborting unaffected work (unless opts.FailFast is set).
func Execute[T any, R any](ctx context.Context, items []T, process Processor[T, R], opts OperationOptions) (OperationResult[R], error) {
	if err := opts.Validate(); err != nil {
		return OperationResult[R]{}, err
	}
	opts = opts.withDefaults()

	operationID := uuid.New().String()
	total := len(items)
	totalBatches := (total + opts.BatchSize - 1) / opts.BatchSize

	maxConcurrency := opts.MaxConcurrentBatches
	if totalBatches > 0 && maxConcurrency > totalBatches {
		maxConcurrency = totalBatches
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	tracker := NewProgressTracker(operationID, maxConcurrency, opts.EnableProgressMonitoring, opts.OnProgress, opts.Logger)
	defer tracker.Close()

	tracker.Initialize(uint64(total), uint32(totalBatches))

	if total == 0 {
		tracker.RecordStatus(StatusCompleted)
		return OperationResult[R]{
			OperationID:   operationID,
			FinalProgress: tracker.Snapshot(),
		}, nil
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	reason := &cancelReason{}

	var timer *time.Timer
	if opts.Timeout > 0 {
		timer = time.AfterFunc(opts.Timeout, func() {
			if reason.set("timeout") {
				cancel()
			}
		})
		defer timer.Stop()
	}

	batches := partition(opCtx, items, opts, totalBatches)
	pool := NewWorkerPool[T, R](maxConcurrency)

	// Fail-fast cancellation is raised from inside the worker, before its
	// concurrency slot is released, so no further batch can start once the
	// first failure has been observed. Merging still happens below, on the
	// outcome channel.
	var onOutcome func(BatchOutcome[R])
	if opts.FailFast {
		onOutcome = func(o BatchOutcome[R]) {
			if o.Err != nil || len(o.Items) != o.InputCount {
				if reason.set("failfast") {
					cancel()
				}
			}
		}
	}

	outcomes := pool.Submit(opCtx, batches, process, tracker.MarkDispatchStarted, onOutcome)

	type extent struct {
		start uint64
		count int
	}

	// Batch indices are keyed in maps rather than fixed-size slices because
	// adaptive sizing can make the actual number of dispatched batches
	// diverge from totalBatches (computed once, up front, from the initial
	// batch size).
	merged := make([]R, total)
	filled := make(map[uint32]bool, totalBatches)
	extents := make(map[uint32]extent, totalBatches)
	var order []uint32
	var batchErrors []BatchError
	var successful, failedCount uint64

	for outcome := range outcomes {
		itemCount := uint32(outcome.InputCount)
		extents[outcome.Index] = extent{start: outcome.Start, count: outcome.InputCount}
		order = append(order, outcome.Index)

		if outcome.Err == nil && len(outcome.Items) == outcome.InputCount {
			copy(merged[outcome.Start:outcome.Start+uint64(outcome.InputCount)], outcome.Items)
			filled[outcome.Index] = true
			successful += uint64(itemCount)
			tracker.RecordBatchCompleted(outcome.Index, uint64(itemCount), 0, outcome.Duration)
		} else {
			be := BatchError{
				BatchIndex:     outcome.Index,
				FirstItemIndex: outcome.Start,
				ItemCount:      itemCount,
				Cause:          outcome.Err,
			}
			if outcome.Err != nil {
				be.Message = NewError(KindProcessorFailure, "processor returned an error", outcome.Err).Error()
			} else {
				violation := NewError(KindProcessorContractViolation, "processor result length did not match input length", nil)
				be.Message = violation.Error()
				be.Cause = violation
			}
			batchErrors = append(batchErrors, be)
			failedCount += uint64(itemCount)
			tracker.RecordBatchCompleted(outcome.Index, 0, uint64(itemCount), outcome.Duration)
		}
	}

	if reason.get() == "" && opCtx.Err() != nil {
		reason.set("external")
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	results := make([]R, 0, total)
	for _, idx := range order {
		if !filled[idx] {
			continue
		}
		e := extents[idx]
		results = append(results, merged[e.start:e.start+uint64(e.count)]...)
	}

	finalStatus := finalStatusFor(reason.get(), opts.FailFast, len(batchErrors) > 0, failedCount, uint64(total))
	tracker.RecordStatus(finalStatus)

	return OperationResult[R]{
		OperationID:   operationID,
		Total:         uint64(total),
		Successful:    successful,
		Failed:        failedCount,
		Errors:        batchErrors,
		MergedResults: results,
		FinalProgress: tracker.Snapshot(),
	}, nil
}

// finalStatusFor picks the terminal status: a recorded cancellation cause
// wins outright; otherwise failures mean failed only under fail-fast or
// when every single item failed.
func finalStatusFor(reason string, failFast bool, hasErrors bool, failed, total uint64) Status {
	switch reason {
	case "timeout":
		return StatusTimedOut
	case "external":
		return StatusCancelled
	}
	if hasErrors && failFast {
		return StatusFailed
	}
	if hasErrors {
		if failed == total {
			return StatusFailed
		}
		return StatusCompleted
	}
	return StatusCompleted
}

// partition lazily slices items into batches, consulting opts.Advisor
// between successive batches when adaptive sizing is enabled. It never
// slices past the end of items and stops early if ctx is done.
func partition[T any](ctx context.Context, items []T, opts OperationOptions, totalBatches int) <-chan Batch[T] {
	ch := make(chan Batch[T])
	go func() {
		defer close(ch)

		size := opts.BatchSize
		pos := 0
		n := len(items)
		var idx uint32

		for pos < n {
			if idx > 0 && opts.AdaptiveBatchSize && opts.Advisor != nil {
				pressure, err := opts.Advisor.CurrentPressure()
				if err != nil {
					pressure = PressureLow
					opts.Logger.Warn("memory advisor unavailable, treating pressure as low", map[string]interface{}{
						"error": err.Error(),
					})
				}
				size = opts.Advisor.Recommend(size, opts.BatchSize, pressure)
				if pressure == PressureCritical || pressure == PressureHigh {
					opts.Advisor.RequestReclaim()
				}
			}
			if size < 1 {
				size = 1
			}

			end := pos + size
			if end > n {
				end = n
			}

			b := Batch[T]{Index: idx, Start: uint64(pos), Items: items[pos:end], AttemptCount: 1}
			select {
			case ch <- b:
			case <-ctx.Done():
				return
			}

			pos = end
			idx++
		}
	}()
	return ch
}
