// Package resilience provides the retry-with-backoff and circuit-breaking
// helpers the vector-store batcher (pkg/vectorstore) layers on top of
// pkg/batch: a batch that fails transiently is retried, up to a configured
// number of times, before it is reported to the batch core as a per-batch
// failure.
package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig configures one Retry call: exponential backoff between
// attempts, bounded by MaxRetries and MaxElapsedTime, with RetryIfFn
// deciding whether a given error is worth another attempt at all.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
	RetryIfFn       func(error) bool
}

// Retry runs operation, retrying on exponential backoff while RetryIfFn
// (when set) returns true for the error it produced. ctx cancellation stops
// retrying immediately, surfacing ctx.Err() (or the last operation error)
// to the caller.
func Retry(ctx context.Context, cfg RetryConfig, operation func() error) error {
	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.InitialInterval = cfg.InitialInterval
	backoffPolicy.MaxInterval = cfg.MaxInterval
	backoffPolicy.Multiplier = cfg.Multiplier
	backoffPolicy.MaxElapsedTime = cfg.MaxElapsedTime

	var bounded backoff.BackOff = backoffPolicy
	if cfg.MaxRetries > 0 {
		bounded = backoff.WithMaxRetries(backoffPolicy, uint64(cfg.MaxRetries))
	}
	bounded = backoff.WithContext(bounded, ctx)

	return backoff.Retry(func() error {
		err := operation()
		if err != nil && cfg.RetryIfFn != nil && !cfg.RetryIfFn(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bounded)
}
