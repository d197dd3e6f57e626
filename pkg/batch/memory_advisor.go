package batch

import (
	"runtime"
	"runtime/debug"

	"github.com/Undefine-Innovation/Qdrant-LiteRAGMCP-sub006/internal/resilience"
)

// Pressure is a qualitative heap-utilization level reported by a
// MemoryAdvisor.
type Pressure string

// Pressure levels, in increasing order of severity.
const (
	PressureLow      Pressure = "low"
	PressureElevated Pressure = "elevated"
	PressureHigh     Pressure = "high"
	PressureCritical Pressure = "critical"
)

// Pressure thresholds, expressed as used-heap / heap-limit ratios.
const (
	thresholdElevated = 0.6
	thresholdHigh     = 0.75
	thresholdCritical = 0.9
)

// MemoryAdvisor reports heap pressure and recommends batch sizes under it.
// It is optional: a nil Advisor on OperationOptions disables adaptive
// sizing entirely.
type MemoryAdvisor interface {
	// CurrentPressure reports the current qualitative heap pressure. A
	// failure here is non-fatal to the caller: it must be treated as
	// PressureLow (no change), per the AdvisorUnavailable contract.
	CurrentPressure() (Pressure, error)

	// Recommend proposes a new batch size given the current size, the
	// operation's initial size (used to cap growth at 2x), and the current
	// pressure.
	Recommend(currentSize, initialSize int, pressure Pressure) int

	// RequestReclaim is a best-effort hint that slack memory may be
	// released. It carries no correctness contract.
	RequestReclaim()
}

// RuntimeMemoryAdvisor implements MemoryAdvisor using the Go runtime's own
// heap statistics and soft memory limit (GOMEMLIMIT / debug.SetMemoryLimit).
// When no memory limit has been configured, pressure is always reported as
// low, since there is nothing to be under pressure relative to.
type RuntimeMemoryAdvisor struct {
	reclaimLimiter *resilience.RateLimiter
}

// NewRuntimeMemoryAdvisor creates an advisor that throttles RequestReclaim
// hints to at most reclaimPerSecond calls to debug.FreeOSMemory() per second, so a
// long run of batches under critical pressure doesn't hammer the collector
// on every single batch boundary.
func NewRuntimeMemoryAdvisor(reclaimPerSecond float64) *RuntimeMemoryAdvisor {
	if reclaimPerSecond <= 0 {
		reclaimPerSecond = 1
	}
	return &RuntimeMemoryAdvisor{reclaimLimiter: resilience.NewRateLimiter(reclaimPerSecond, 1)}
}

// CurrentPressure reports pressure derived from used heap vs. the process's
// soft memory limit.
func (a *RuntimeMemoryAdvisor) CurrentPressure() (Pressure, error) {
	limit := debug.SetMemoryLimit(-1) // query without changing it
	if limit <= 0 || limit == 1<<63-1 {
		return PressureLow, nil
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	ratio := float64(stats.HeapAlloc) / float64(limit)
	switch {
	case ratio > thresholdCritical:
		return PressureCritical, nil
	case ratio > thresholdHigh:
		return PressureHigh, nil
	case ratio > thresholdElevated:
		return PressureElevated, nil
	default:
		return PressureLow, nil
	}
}

// Recommend applies the sizing table: critical halves (floor 10); high
// shrinks by 25% (floor 10); low grows the batch by 25% while below the
// initial size, capped at 2x initial; any other case leaves the size
// unchanged.
func (a *RuntimeMemoryAdvisor) Recommend(currentSize, initialSize int, pressure Pressure) int {
	switch pressure {
	case PressureCritical:
		return maxInt(currentSize/2, 10)
	case PressureHigh:
		return maxInt(int(float64(currentSize)*0.75), 10)
	case PressureLow:
		if currentSize < initialSize {
			grown := int(float64(currentSize) * 1.25)
			return minInt(grown, initialSize*2)
		}
		return currentSize
	default:
		return currentSize
	}
}

// RequestReclaim asks the runtime to release slack memory, at most once per
// rate-limiter window.
func (a *RuntimeMemoryAdvisor) RequestReclaim() {
	if a.reclaimLimiter.Allow() {
		debug.FreeOSMemory()
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
