// Package vectorstore implements VectorStoreBatcher: an opinionated batch
// processor, built on pkg/batch, that writes points to an external vector
// store with per-batch retry, a circuit breaker, and a progress re-shape
// tailored to callers that only care about the vector-store view of the
// operation.
package vectorstore

import "context"

// Point is one vector-store record: an id, a fixed-dimension vector, and an
// opaque payload. Dimension is collection-wide and fixed at collection
// creation.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// CollectionInfo describes an existing collection.
type CollectionInfo struct {
	Dimension int
}

// Client is the external vector store consumed by the batcher. All
// operations may fail with a transient or permanent error (see
// errors.go); the client is assumed to be safe for concurrent use.
type Client interface {
	CreateCollection(ctx context.Context, collectionID string, dimension int) error
	CollectionExists(ctx context.Context, collectionID string) (*CollectionInfo, error)
	UpsertPoints(ctx context.Context, collectionID string, points []Point) error
	DeletePoints(ctx context.Context, collectionID string, ids []string) error
	DeleteCollection(ctx context.Context, collectionID string) error
}

// Report summarizes one upsert or delete call against the batcher, in a
// vector-store-specific shape rather than the generic batch.OperationResult.
type Report struct {
	OperationID string
	Requested   int
	Succeeded   int
	Failed      int
	RetryCount  int
	Errors      []error
}

// Progress is the re-shaped snapshot a VectorStoreBatcher caller receives:
// internal batch-core counters like Successful/Failed are folded away,
// leaving only what a caller driving a progress bar needs.
type Progress struct {
	Processed      uint64
	Total          uint64
	Percentage     float64
	CurrentBatch   uint32
	TotalBatches   uint32
	DurationMillis uint32
}

// ProgressSink receives re-shaped progress. Safe to call from any goroutine.
type ProgressSink func(Progress)
