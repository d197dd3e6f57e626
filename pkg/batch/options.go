package batch

import "time"

// OperationOptions configures one Execute call. Defaults come from
// DefaultOperationOptions or are applied once by withDefaults at Execute
// entry, never silently at use sites.
type OperationOptions struct {
	// BatchSize is the initial number of items per batch. Default 100.
	BatchSize int

	// MaxConcurrentBatches bounds in-flight batch invocations. Default 1.
	MaxConcurrentBatches int

	// Timeout is a wall-clock limit on the whole operation. Zero means no
	// limit.
	Timeout time.Duration

	// EnableProgressMonitoring turns on snapshot emission. Default false.
	EnableProgressMonitoring bool

	// OnProgress is invoked with a snapshot after every completed batch and
	// on terminal state changes, when EnableProgressMonitoring is true.
	OnProgress ProgressSink

	// Advisor is consulted between batches to adjust batch size. A nil
	// Advisor disables adaptive sizing regardless of AdaptiveBatchSize.
	Advisor MemoryAdvisor

	// AdaptiveBatchSize allows batch-size revision between batches when an
	// Advisor is present. Default true.
	AdaptiveBatchSize bool
	adaptiveSet       bool

	// FailFast transitions the operation to a terminal failed state and
	// cancels remaining batches on the first batch failure. Default false.
	FailFast bool

	// Logger receives operational log lines. Defaults to a no-op logger.
	Logger Logger
}

// DefaultOperationOptions returns the documented defaults.
func DefaultOperationOptions() OperationOptions {
	return OperationOptions{
		BatchSize:            100,
		MaxConcurrentBatches: 1,
		AdaptiveBatchSize:    true,
		adaptiveSet:          true,
	}
}

// withDefaults returns a copy of opts with MaxConcurrentBatches defaulted
// when unset and AdaptiveBatchSize resolved against Advisor presence.
// BatchSize is deliberately NOT defaulted here: zero or negative BatchSize
// is an InvalidOptions error, not a silent default, and Validate rejects it
// before this ever runs.
func (opts OperationOptions) withDefaults() OperationOptions {
	out := opts
	if out.MaxConcurrentBatches == 0 {
		out.MaxConcurrentBatches = 1
	}
	if out.Logger == nil {
		out.Logger = NewNoopLogger()
	}
	if !out.adaptiveSet {
		out.AdaptiveBatchSize = out.Advisor != nil
	}
	if out.Advisor == nil {
		out.AdaptiveBatchSize = false
	}
	return out
}

// SetAdaptiveBatchSize explicitly sets AdaptiveBatchSize, overriding the
// Advisor-presence-based default.
func (opts *OperationOptions) SetAdaptiveBatchSize(v bool) {
	opts.AdaptiveBatchSize = v
	opts.adaptiveSet = true
}

// Validate checks option invariants before any batch runs.
func (opts OperationOptions) Validate() error {
	if opts.BatchSize <= 0 {
		return NewError(KindInvalidOptions, "batchSize must be positive", nil)
	}
	if opts.MaxConcurrentBatches < 0 {
		return NewError(KindInvalidOptions, "maxConcurrentBatches must be positive", nil)
	}
	if opts.Timeout < 0 {
		return NewError(KindInvalidOptions, "timeoutMillis must not be negative", nil)
	}
	return nil
}
