package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedBatches(ctx context.Context, batches []Batch[int]) <-chan Batch[int] {
	ch := make(chan Batch[int])
	go func() {
		defer close(ch)
		for _, b := range batches {
			select {
			case ch <- b:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func TestWorkerPool_RespectsConcurrencyBound(t *testing.T) {
	const maxConcurrency = 3
	pool := NewWorkerPool[int, int](maxConcurrency)

	var inFlight int32
	var maxObserved int32
	var mu sync.Mutex

	batches := make([]Batch[int], 0, 12)
	for i := uint32(0); i < 12; i++ {
		batches = append(batches, Batch[int]{Index: i, Start: uint64(i), Items: []int{int(i)}})
	}

	process := func(ctx context.Context, items []int, batchIndex uint32) ([]int, error) {
		n := atomic.AddInt32(&inFlight, 1)
		mu.Lock()
		if n > maxObserved {
			maxObserved = n
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return items, nil
	}

	ctx := context.Background()
	out := pool.Submit(ctx, feedBatches(ctx, batches), process, nil, nil)

	count := 0
	for range out {
		count++
	}

	assert.Equal(t, 12, count)
	assert.LessOrEqual(t, int(maxObserved), maxConcurrency)
}

func TestWorkerPool_StopsDispatchOnCancellation(t *testing.T) {
	pool := NewWorkerPool[int, int](1)
	ctx, cancel := context.WithCancel(context.Background())

	batches := make([]Batch[int], 0, 50)
	for i := uint32(0); i < 50; i++ {
		batches = append(batches, Batch[int]{Index: i, Items: []int{int(i)}})
	}

	var processed int32
	process := func(ctx context.Context, items []int, batchIndex uint32) ([]int, error) {
		n := atomic.AddInt32(&processed, 1)
		if n == 2 {
			cancel()
		}
		return items, nil
	}

	out := pool.Submit(ctx, feedBatches(ctx, batches), process, nil, nil)
	count := 0
	for range out {
		count++
	}

	require.Less(t, count, 50)
}

// TestWorkerPool_OnOutcomeCancelStopsDispatch pins the fail-fast guarantee:
// when onOutcome cancels the context, the dispatcher must not start another
// batch after the failing one, even though its slot is about to free up.
func TestWorkerPool_OnOutcomeCancelStopsDispatch(t *testing.T) {
	pool := NewWorkerPool[int, int](1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	batches := make([]Batch[int], 0, 10)
	for i := uint32(0); i < 10; i++ {
		batches = append(batches, Batch[int]{Index: i, Start: uint64(i), Items: []int{int(i)}})
	}

	var started int32
	process := func(ctx context.Context, items []int, batchIndex uint32) ([]int, error) {
		atomic.AddInt32(&started, 1)
		return items, nil
	}
	onOutcome := func(o BatchOutcome[int]) {
		if o.Index == 0 {
			cancel()
		}
	}

	out := pool.Submit(ctx, feedBatches(ctx, batches), process, nil, onOutcome)
	for range out {
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&started))
}

func TestWorkerPool_OutcomeCarriesExtent(t *testing.T) {
	pool := NewWorkerPool[int, int](2)
	ctx := context.Background()

	batches := []Batch[int]{
		{Index: 0, Start: 0, Items: []int{1, 2, 3}},
		{Index: 1, Start: 3, Items: []int{4, 5}},
	}

	process := func(ctx context.Context, items []int, batchIndex uint32) ([]int, error) {
		out := make([]int, len(items))
		for i, v := range items {
			out[i] = v * 10
		}
		return out, nil
	}

	out := pool.Submit(ctx, feedBatches(ctx, batches), process, nil, nil)

	seen := map[uint32]BatchOutcome[int]{}
	for o := range out {
		seen[o.Index] = o
	}

	require.Len(t, seen, 2)
	assert.Equal(t, uint64(0), seen[0].Start)
	assert.Equal(t, 3, seen[0].InputCount)
	assert.Equal(t, uint64(3), seen[1].Start)
	assert.Equal(t, 2, seen[1].InputCount)
}
