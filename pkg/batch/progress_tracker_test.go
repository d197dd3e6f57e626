package batch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressTracker_Disabled_NoSinkWork(t *testing.T) {
	called := false
	tracker := NewProgressTracker("op-1", 1, false, func(ProgressSnapshot) { called = true }, nil)
	tracker.Initialize(10, 1)
	tracker.RecordBatchCompleted(0, 10, 0, time.Millisecond)
	tracker.RecordStatus(StatusCompleted)
	tracker.Close()

	assert.False(t, called)
	snap := tracker.Snapshot()
	assert.Equal(t, uint64(10), snap.ProcessedItems)
}

func TestProgressTracker_AccountingNeverTorn(t *testing.T) {
	var mu sync.Mutex
	var snapshots []ProgressSnapshot
	tracker := NewProgressTracker("op-2", 4, true, func(s ProgressSnapshot) {
		mu.Lock()
		snapshots = append(snapshots, s)
		mu.Unlock()
	}, nil)
	tracker.Initialize(400, 4)

	var wg sync.WaitGroup
	for i := uint32(0); i < 4; i++ {
		wg.Add(1)
		go func(idx uint32) {
			defer wg.Done()
			tracker.RecordBatchCompleted(idx, 90, 10, time.Millisecond)
		}(i)
	}
	wg.Wait()
	tracker.RecordStatus(StatusCompleted)
	tracker.Close()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, snapshots)
	for _, s := range snapshots {
		assert.Equal(t, s.ProcessedItems, s.Successful+s.Failed)
	}
	final := snapshots[len(snapshots)-1]
	assert.Equal(t, uint64(400), final.ProcessedItems)
	assert.Equal(t, uint64(360), final.Successful)
	assert.Equal(t, uint64(40), final.Failed)
}

func TestProgressTracker_RecordStatus_IdempotentOnceTerminal(t *testing.T) {
	tracker := NewProgressTracker("op-3", 1, false, nil, nil)
	tracker.Initialize(1, 1)
	tracker.RecordStatus(StatusFailed)
	tracker.RecordStatus(StatusCompleted)
	tracker.Close()

	assert.Equal(t, StatusFailed, tracker.Snapshot().Status)
}

func TestProgressTracker_CurrentBatchMonotonic(t *testing.T) {
	tracker := NewProgressTracker("op-4", 1, false, nil, nil)
	tracker.Initialize(100, 5)

	tracker.MarkDispatchStarted(2)
	assert.Equal(t, uint32(3), tracker.Snapshot().CurrentBatch)

	tracker.MarkDispatchStarted(0)
	assert.Equal(t, uint32(3), tracker.Snapshot().CurrentBatch, "current batch must not regress")

	tracker.RecordBatchCompleted(4, 20, 0, time.Millisecond)
	assert.Equal(t, uint32(5), tracker.Snapshot().CurrentBatch)
	tracker.Close()
}

func TestProgressTracker_PanickingSinkIsRecovered(t *testing.T) {
	tracker := NewProgressTracker("op-5", 1, true, func(ProgressSnapshot) {
		panic("boom")
	}, NewNoopLogger())
	assert.NotPanics(t, func() {
		tracker.Initialize(10, 1)
		tracker.RecordBatchCompleted(0, 10, 0, time.Millisecond)
		tracker.Close()
	})
}
