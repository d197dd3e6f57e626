// Package main is a small runnable demonstration of the batch operation
// core: it drives a synthetic in-memory workload through batch.Execute and
// prints the resulting progress stream, then exercises VectorStoreBatcher
// against an in-memory Client.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Undefine-Innovation/Qdrant-LiteRAGMCP-sub006/internal/observability"
	"github.com/Undefine-Innovation/Qdrant-LiteRAGMCP-sub006/pkg/batch"
	"github.com/Undefine-Innovation/Qdrant-LiteRAGMCP-sub006/pkg/vectorstore"
)

func main() {
	var (
		itemCount = flag.Int("items", 1000, "number of synthetic items to process")
		batchSize = flag.Int("batch-size", 100, "initial batch size")
		workers   = flag.Int("workers", 4, "max concurrent batches")
	)
	flag.Parse()

	logger := observability.NewStandardLogger("batchdemo")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	items := make([]int, *itemCount)
	for i := range items {
		items[i] = i
	}

	process := func(ctx context.Context, chunk []int, batchIndex uint32) ([]int, error) {
		out := make([]int, len(chunk))
		for i, v := range chunk {
			out[i] = v * v
		}
		return out, nil
	}

	opts := batch.DefaultOperationOptions()
	opts.BatchSize = *batchSize
	opts.MaxConcurrentBatches = *workers
	opts.Advisor = batch.NewRuntimeMemoryAdvisor(2)
	opts.EnableProgressMonitoring = true
	opts.Logger = logger
	opts.OnProgress = func(snap batch.ProgressSnapshot) {
		logger.Info("progress", map[string]interface{}{
			"status":     snap.Status,
			"processed":  snap.ProcessedItems,
			"total":      snap.TotalItems,
			"percentage": fmt.Sprintf("%.1f", snap.Percentage),
		})
	}

	start := time.Now()
	result, err := batch.Execute(ctx, items, process, opts)
	if err != nil {
		logger.Fatal("batch execution rejected", map[string]interface{}{"error": err.Error()})
	}
	stats := result.Stats(time.Since(start))
	logger.Info("batch complete", map[string]interface{}{
		"successful": stats.Successful,
		"failed":     stats.Failed,
		"duration":   stats.TotalDuration.String(),
	})

	runVectorStoreDemo(ctx, logger)
}

func runVectorStoreDemo(ctx context.Context, logger observability.Logger) {
	client := newInMemoryClient()
	batcher := vectorstore.New(client, vectorstore.Config{
		BatchSize:            100,
		MaxConcurrentBatches: 2,
		Logger:               logger,
	})

	const collectionID = "demo-collection"
	const dimension = 128
	if err := batcher.EnsureCollection(ctx, collectionID, dimension); err != nil {
		logger.Fatal("ensure collection failed", map[string]interface{}{"error": err.Error()})
	}

	points := make([]vectorstore.Point, 300)
	src := rand.New(rand.NewSource(42))
	for i := range points {
		vec := make([]float32, dimension)
		for j := range vec {
			vec[j] = src.Float32()
		}
		points[i] = vectorstore.Point{ID: fmt.Sprintf("point-%d", i), Vector: vec}
	}

	report, err := batcher.Upsert(ctx, collectionID, points, vectorstore.Config{
		BatchSize:            100,
		MaxConcurrentBatches: 2,
		OnProgress: func(p vectorstore.Progress) {
			logger.Info("upsert progress", map[string]interface{}{
				"processed":  p.Processed,
				"total":      p.Total,
				"percentage": fmt.Sprintf("%.1f", p.Percentage),
			})
		},
	})
	if err != nil {
		logger.Fatal("upsert failed", map[string]interface{}{"error": err.Error()})
	}
	logger.Info("vector store upsert complete", map[string]interface{}{
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
		"retries":   report.RetryCount,
	})
}

// inMemoryClient is a toy vectorstore.Client standing in for a real Qdrant
// connection, so this demo runs with no external dependencies. The Client
// interface must be safe for concurrent use, so every method here guards
// its maps with a mutex: batcher.Upsert dispatches multiple batches to
// UpsertPoints concurrently whenever MaxConcurrentBatches > 1.
type inMemoryClient struct {
	mu          sync.Mutex
	collections map[string]int
	points      map[string]map[string]vectorstore.Point
}

func newInMemoryClient() *inMemoryClient {
	return &inMemoryClient{
		collections: map[string]int{},
		points:      map[string]map[string]vectorstore.Point{},
	}
}

func (c *inMemoryClient) CreateCollection(ctx context.Context, collectionID string, dimension int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collections[collectionID] = dimension
	c.points[collectionID] = map[string]vectorstore.Point{}
	return nil
}

func (c *inMemoryClient) CollectionExists(ctx context.Context, collectionID string) (*vectorstore.CollectionInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dim, ok := c.collections[collectionID]
	if !ok {
		return nil, nil
	}
	return &vectorstore.CollectionInfo{Dimension: dim}, nil
}

func (c *inMemoryClient) UpsertPoints(ctx context.Context, collectionID string, points []vectorstore.Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	bucket := c.points[collectionID]
	for _, p := range points {
		bucket[p.ID] = p
	}
	return nil
}

func (c *inMemoryClient) DeletePoints(ctx context.Context, collectionID string, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	bucket := c.points[collectionID]
	for _, id := range ids {
		delete(bucket, id)
	}
	return nil
}

func (c *inMemoryClient) DeleteCollection(ctx context.Context, collectionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.collections, collectionID)
	delete(c.points, collectionID)
	return nil
}
