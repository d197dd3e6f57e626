package vectorstore

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Undefine-Innovation/Qdrant-LiteRAGMCP-sub006/internal/resilience"
	"github.com/Undefine-Innovation/Qdrant-LiteRAGMCP-sub006/pkg/batch"
)

// Batcher writes points to a Client in bounded-concurrency batches built on
// top of pkg/batch, adding retry with backoff, a circuit breaker, and a
// vector-store-flavored progress re-shape.
type Batcher struct {
	client  Client
	breaker *resilience.CircuitBreaker
	logger  batch.Logger
}

// Config configures a Batcher's resilience behavior.
type Config struct {
	// BatchSize is the initial number of points per upsert/delete RPC.
	// Default 100.
	BatchSize int
	// MaxConcurrentBatches bounds in-flight RPCs. Default 1.
	MaxConcurrentBatches int
	// MaxRetries bounds retry attempts for a transient failure. Default 3.
	MaxRetries int
	// Breaker configures the circuit breaker guarding Client calls. Zero
	// value uses resilience.DefaultCircuitBreakerConfig(). The breaker is
	// built once, in New: per-call Config values passed to Upsert or
	// DeleteByIDs ignore this field.
	Breaker resilience.CircuitBreakerConfig
	// OnProgress receives the re-shaped progress view after every completed
	// batch. Nil disables progress reporting.
	OnProgress ProgressSink
	// Logger receives operational log lines. Defaults to a no-op logger.
	Logger batch.Logger
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxConcurrentBatches <= 0 {
		c.MaxConcurrentBatches = 1
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.Breaker.MaxFailures <= 0 {
		c.Breaker = resilience.DefaultCircuitBreakerConfig()
	}
	if c.Logger == nil {
		c.Logger = batch.NewNoopLogger()
	}
	return c
}

// New creates a Batcher writing through client.
func New(client Client, cfg Config) *Batcher {
	cfg = cfg.withDefaults()
	return &Batcher{
		client:  client,
		breaker: resilience.NewCircuitBreaker(cfg.Breaker, cfg.Logger),
		logger:  cfg.Logger,
	}
}

// EnsureCollection is a no-op if collectionID already exists with the same
// dimension, creates it if absent, and fails with a DimensionMismatch error
// if an existing collection has a different dimension.
func (b *Batcher) EnsureCollection(ctx context.Context, collectionID string, dimension int) error {
	info, err := b.client.CollectionExists(ctx, collectionID)
	if err != nil {
		return batch.NewError(storeErrorKind(err), "checking collection existence", err)
	}
	if info == nil {
		if err := b.client.CreateCollection(ctx, collectionID, dimension); err != nil {
			return batch.NewError(storeErrorKind(err), "creating collection", err)
		}
		return nil
	}
	if info.Dimension != dimension {
		return batch.NewError(batch.KindDimensionMismatch, fmt.Sprintf(
			"collection %q exists with dimension %d, requested %d", collectionID, info.Dimension, dimension), nil)
	}
	return nil
}

// Upsert writes points to collectionID, batchSize points at a time, with
// retry on transient failures. It is built directly on batch.Execute: the
// processor handed to the core wraps UpsertPoints with the retry and
// circuit-breaker policy.
func (b *Batcher) Upsert(ctx context.Context, collectionID string, points []Point, opts Config) (Report, error) {
	opts = opts.withDefaults()

	var retryCount int32
	processor := func(ctx context.Context, chunk []Point, batchIndex uint32) ([]Point, error) {
		err := b.callWithRetry(ctx, opts, &retryCount, func() error {
			err := b.client.UpsertPoints(ctx, collectionID, chunk)
			if isDuplicate(err) {
				// The point id already exists with identical content, which
				// counts as a successful write. Resolved here so the circuit
				// breaker and retry loop never see it as an error.
				return nil
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		return chunk, nil
	}

	operationOpts := batch.DefaultOperationOptions()
	operationOpts.BatchSize = opts.BatchSize
	operationOpts.MaxConcurrentBatches = opts.MaxConcurrentBatches
	operationOpts.Logger = opts.Logger
	operationOpts.SetAdaptiveBatchSize(false)
	if opts.OnProgress != nil {
		operationOpts.EnableProgressMonitoring = true
		operationOpts.OnProgress = WithReshapedProgress(opts.OnProgress)
	}

	result, err := batch.Execute(ctx, points, processor, operationOpts)
	if err != nil {
		return Report{}, err
	}
	if result.Failed > 0 {
		b.logger.Warn("upsert completed with failed points", map[string]interface{}{
			"collection": collectionID,
			"failed":     result.Failed,
			"retries":    retryCount,
		})
	}

	report := Report{
		OperationID: result.OperationID,
		Requested:   len(points),
		Succeeded:   int(result.Successful),
		Failed:      int(result.Failed),
		RetryCount:  int(retryCount),
	}
	for i := range result.Errors {
		report.Errors = append(report.Errors, &result.Errors[i])
	}
	return report, nil
}

// DeleteByIDs deletes points by id. Deletes are idempotent and missing ids
// are not errors, so a delete RPC that reports all-not-found still counts
// as a success for those ids.
func (b *Batcher) DeleteByIDs(ctx context.Context, collectionID string, ids []string, opts Config) (Report, error) {
	opts = opts.withDefaults()

	var retryCount int32
	processor := func(ctx context.Context, chunk []string, batchIndex uint32) ([]string, error) {
		err := b.callWithRetry(ctx, opts, &retryCount, func() error {
			return b.client.DeletePoints(ctx, collectionID, chunk)
		})
		if err != nil {
			return nil, err
		}
		return chunk, nil
	}

	operationOpts := batch.DefaultOperationOptions()
	operationOpts.BatchSize = opts.BatchSize
	operationOpts.MaxConcurrentBatches = opts.MaxConcurrentBatches
	operationOpts.Logger = opts.Logger
	operationOpts.SetAdaptiveBatchSize(false)
	if opts.OnProgress != nil {
		operationOpts.EnableProgressMonitoring = true
		operationOpts.OnProgress = WithReshapedProgress(opts.OnProgress)
	}

	result, err := batch.Execute(ctx, ids, processor, operationOpts)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		OperationID: result.OperationID,
		Requested:   len(ids),
		Succeeded:   int(result.Successful),
		Failed:      int(result.Failed),
		RetryCount:  int(retryCount),
	}
	for i := range result.Errors {
		report.Errors = append(report.Errors, &result.Errors[i])
	}
	return report, nil
}

// DeleteByCollection drops the entire collection in one call; there is no
// batching to do, so it bypasses batch.Execute entirely but still reports
// through the same Report shape as Upsert and DeleteByIDs.
func (b *Batcher) DeleteByCollection(ctx context.Context, collectionID string) (Report, error) {
	report := Report{
		OperationID: uuid.New().String(),
		Requested:   1,
	}
	err := b.breaker.Execute(ctx, func() error {
		return b.client.DeleteCollection(ctx, collectionID)
	})
	if err != nil {
		wrapped := batch.NewError(storeErrorKind(err), "deleting collection", err)
		report.Failed = 1
		report.Errors = append(report.Errors, wrapped)
		return report, wrapped
	}
	report.Succeeded = 1
	return report, nil
}

// callWithRetry runs fn guarded by the circuit breaker, retrying on
// exponential backoff (200ms doubling, jittered by the backoff library's
// own RandomizationFactor) only for transient client errors, and giving up
// immediately on a permanent one.
func (b *Batcher) callWithRetry(ctx context.Context, opts Config, retryCount *int32, fn func() error) error {
	retryCfg := resilience.RetryConfig{
		MaxRetries:      opts.MaxRetries,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2.0,
		MaxElapsedTime:  0,
		RetryIfFn: func(err error) bool {
			return isTransient(err)
		},
	}

	attempt := 0
	return resilience.Retry(ctx, retryCfg, func() error {
		// retryCount is shared across concurrently-running batches, so the
		// increment must be atomic.
		if attempt > 0 {
			atomic.AddInt32(retryCount, 1)
		}
		attempt++

		err := b.breaker.Execute(ctx, fn)
		if err == resilience.ErrCircuitOpen {
			return batch.NewError(batch.KindVectorStoreTransient, "circuit breaker open", err)
		}
		if err == nil {
			return nil
		}
		if isTransient(err) {
			return batch.NewError(batch.KindVectorStoreTransient, "vector store call failed", err)
		}
		return batch.NewError(batch.KindVectorStorePermanent, "vector store call failed", err)
	})
}

// storeErrorKind maps a Client error onto the batch error taxonomy using
// its Transient flag.
func storeErrorKind(err error) batch.Kind {
	if isTransient(err) {
		return batch.KindVectorStoreTransient
	}
	return batch.KindVectorStorePermanent
}

// ReshapeProgress derives the caller-facing Progress view from a
// batch.ProgressSnapshot, omitting the internal successful/failed counters.
func ReshapeProgress(snap batch.ProgressSnapshot) Progress {
	return Progress{
		Processed:      snap.ProcessedItems,
		Total:          snap.TotalItems,
		Percentage:     snap.Percentage,
		CurrentBatch:   snap.CurrentBatch,
		TotalBatches:   snap.TotalBatches,
		DurationMillis: snap.ElapsedMillis,
	}
}

// WithReshapedProgress adapts a vectorstore ProgressSink into a
// batch.ProgressSink for use in batch.OperationOptions.OnProgress.
func WithReshapedProgress(sink ProgressSink) batch.ProgressSink {
	if sink == nil {
		return nil
	}
	return func(snap batch.ProgressSnapshot) {
		sink(ReshapeProgress(snap))
	}
}
