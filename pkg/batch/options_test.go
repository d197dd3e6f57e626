package batch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOperationOptions(t *testing.T) {
	opts := DefaultOperationOptions()

	assert.Equal(t, 100, opts.BatchSize)
	assert.Equal(t, 1, opts.MaxConcurrentBatches)
	assert.True(t, opts.AdaptiveBatchSize)
	assert.NoError(t, opts.Validate())
}

func TestOperationOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    OperationOptions
		wantErr bool
	}{
		{
			name:    "zero batch size is invalid",
			opts:    OperationOptions{BatchSize: 0},
			wantErr: true,
		},
		{
			name:    "negative batch size is invalid",
			opts:    OperationOptions{BatchSize: -1},
			wantErr: true,
		},
		{
			name:    "negative maxConcurrentBatches is invalid",
			opts:    OperationOptions{BatchSize: 10, MaxConcurrentBatches: -1},
			wantErr: true,
		},
		{
			name:    "negative timeout is invalid",
			opts:    OperationOptions{BatchSize: 10, Timeout: -time.Second},
			wantErr: true,
		},
		{
			name:    "positive batch size with zero maxConcurrentBatches is valid",
			opts:    OperationOptions{BatchSize: 10},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				require.Error(t, err)
				var batchErr *Error
				require.ErrorAs(t, err, &batchErr)
				assert.Equal(t, KindInvalidOptions, batchErr.Kind)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOperationOptions_withDefaults(t *testing.T) {
	t.Run("maxConcurrentBatches and logger default when unset", func(t *testing.T) {
		opts := OperationOptions{BatchSize: 10}
		out := opts.withDefaults()
		assert.Equal(t, 1, out.MaxConcurrentBatches)
		assert.NotNil(t, out.Logger)
	})

	t.Run("adaptive sizing follows advisor presence when not explicitly set", func(t *testing.T) {
		withAdvisor := OperationOptions{BatchSize: 10, Advisor: NewRuntimeMemoryAdvisor(1)}
		assert.True(t, withAdvisor.withDefaults().AdaptiveBatchSize)

		withoutAdvisor := OperationOptions{BatchSize: 10}
		assert.False(t, withoutAdvisor.withDefaults().AdaptiveBatchSize)
	})

	t.Run("explicit AdaptiveBatchSize=true is forced off without an advisor", func(t *testing.T) {
		opts := OperationOptions{BatchSize: 10}
		opts.SetAdaptiveBatchSize(true)
		out := opts.withDefaults()
		assert.False(t, out.AdaptiveBatchSize)
	})

	t.Run("explicit AdaptiveBatchSize=false is honored with an advisor present", func(t *testing.T) {
		opts := OperationOptions{BatchSize: 10, Advisor: NewRuntimeMemoryAdvisor(1)}
		opts.SetAdaptiveBatchSize(false)
		out := opts.withDefaults()
		assert.False(t, out.AdaptiveBatchSize)
	})
}
