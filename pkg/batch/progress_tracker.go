package batch

import (
	"sync"
	"time"
)

const ringSize = 20

// ProgressTracker owns the authoritative counters for one operation and
// produces ProgressSnapshots. All mutating operations are safe to call
// concurrently from multiple worker goroutines; a single mutex guards the
// whole counter set so that no snapshot ever observes a torn state (e.g.
// Successful+Failed momentarily not equal to ProcessedItems).
type ProgressTracker struct {
	operationID    string
	maxConcurrency int
	enabled        bool
	logger         Logger

	mu             sync.Mutex
	status         Status
	totalItems     uint64
	processedItems uint64
	successful     uint64
	failed         uint64
	totalBatches   uint32
	currentBatch   uint32
	startedAt      time.Time
	durations      []time.Duration // ring buffer, capped at ringSize

	sinkCh chan ProgressSnapshot
	sinkWg sync.WaitGroup
}

// NewProgressTracker creates a tracker for operationID. When enabled is
// false, nothing is delivered: no background delivery goroutine is started
// and publish returns without enqueuing. The recordX calls still build a
// snapshot value under the lock in that case and then discard it; Snapshot
// computes a correct value on demand either way.
func NewProgressTracker(operationID string, maxConcurrency int, enabled bool, sink ProgressSink, logger Logger) *ProgressTracker {
	if logger == nil {
		logger = NewNoopLogger()
	}
	t := &ProgressTracker{
		operationID:    operationID,
		maxConcurrency: maxConcurrency,
		enabled:        enabled,
		status:         StatusPending,
		logger:         logger,
	}
	if enabled && sink != nil {
		// Bounded, drop-oldest delivery: workers publishing progress never
		// block on a slow callback. A dedicated goroutine serializes calls
		// into sink so it is never invoked re-entrantly.
		t.sinkCh = make(chan ProgressSnapshot, 32)
		t.sinkWg.Add(1)
		go t.deliver(sink)
	}
	return t
}

func (t *ProgressTracker) deliver(sink ProgressSink) {
	defer t.sinkWg.Done()
	for snap := range t.sinkCh {
		t.invokeSink(sink, snap)
	}
}

func (t *ProgressTracker) invokeSink(sink ProgressSink, snap ProgressSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Warn("progress sink panicked", map[string]interface{}{"recovered": r})
		}
	}()
	sink(snap)
}

// publish enqueues snap for delivery, dropping the oldest pending snapshot
// if the channel is full rather than blocking the caller.
func (t *ProgressTracker) publish(snap ProgressSnapshot) {
	if !t.enabled || t.sinkCh == nil {
		return
	}
	select {
	case t.sinkCh <- snap:
		return
	default:
	}
	select {
	case <-t.sinkCh:
	default:
	}
	select {
	case t.sinkCh <- snap:
	default:
	}
}

// Close stops accepting further snapshot deliveries and waits for the
// delivery goroutine to drain. Safe to call even when monitoring is
// disabled.
func (t *ProgressTracker) Close() {
	if t.sinkCh != nil {
		close(t.sinkCh)
		t.sinkWg.Wait()
	}
}

// Initialize sets totals and transitions pending -> processing.
func (t *ProgressTracker) Initialize(totalItems uint64, totalBatches uint32) {
	t.mu.Lock()
	t.totalItems = totalItems
	t.totalBatches = totalBatches
	t.startedAt = time.Now()
	if t.status == StatusPending {
		t.status = StatusProcessing
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()
	t.publish(snap)
}

// RecordBatchCompleted folds one batch's outcome into the counters.
func (t *ProgressTracker) RecordBatchCompleted(batchIndex uint32, succeeded, failedCount uint64, duration time.Duration) {
	t.mu.Lock()
	t.processedItems += succeeded + failedCount
	t.successful += succeeded
	t.failed += failedCount
	if batchIndex+1 > t.currentBatch {
		t.currentBatch = batchIndex + 1
	}
	t.durations = append(t.durations, duration)
	if len(t.durations) > ringSize {
		t.durations = t.durations[len(t.durations)-ringSize:]
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()
	t.publish(snap)
}

// RecordStatus transitions the operation's status. It is idempotent once
// the tracker is already in a terminal state.
func (t *ProgressTracker) RecordStatus(status Status) {
	t.mu.Lock()
	changed := false
	if !t.status.terminal() && t.status != status {
		t.status = status
		changed = true
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()
	if changed {
		t.publish(snap)
	}
}

// MarkDispatchStarted advances CurrentBatch to reflect that dispatch of
// batchIndex has begun, even before it completes: CurrentBatch is the
// highest batch index whose dispatch has started, and it never decreases.
func (t *ProgressTracker) MarkDispatchStarted(batchIndex uint32) {
	t.mu.Lock()
	if batchIndex+1 > t.currentBatch {
		t.currentBatch = batchIndex + 1
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()
	t.publish(snap)
}

// Snapshot builds a consistent, immutable view of the current state.
func (t *ProgressTracker) Snapshot() ProgressSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *ProgressTracker) snapshotLocked() ProgressSnapshot {
	total := t.totalItems
	denom := total
	if denom == 0 {
		denom = 1
	}
	percentage := 100 * float64(t.processedItems) / float64(denom)

	var elapsed time.Duration
	var startedAtMillis uint64
	if !t.startedAt.IsZero() {
		elapsed = time.Since(t.startedAt)
		startedAtMillis = uint64(t.startedAt.UnixMilli())
	}

	var eta *uint32
	if len(t.durations) > 0 {
		var sum time.Duration
		for _, d := range t.durations {
			sum += d
		}
		avg := sum / time.Duration(len(t.durations))

		remainingBatches := 0
		if t.totalBatches > t.currentBatch {
			remainingBatches = int(t.totalBatches - t.currentBatch)
		}

		concurrency := t.maxConcurrency
		if concurrency < 1 {
			concurrency = 1
		}

		remainingMillis := uint32(int64(avg/time.Millisecond) * int64(remainingBatches) / int64(concurrency))
		eta = &remainingMillis
	}

	return ProgressSnapshot{
		OperationID:              t.operationID,
		Status:                   t.status,
		TotalItems:               t.totalItems,
		ProcessedItems:           t.processedItems,
		Successful:               t.successful,
		Failed:                   t.failed,
		TotalBatches:             t.totalBatches,
		CurrentBatch:             t.currentBatch,
		Percentage:               percentage,
		StartedAtEpochMillis:     startedAtMillis,
		ElapsedMillis:            uint32(elapsed / time.Millisecond),
		EstimatedRemainingMillis: eta,
	}
}
