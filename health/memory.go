package health

import (
	"context"
	"fmt"
	"runtime"
)

// MemoryProbeConfig configures the memory probe.
type MemoryProbeConfig struct {
	// Threshold is the fraction of MaxAlloc at which the probe fails.
	// Value should be between 0 and 1. Default: 0.95
	Threshold float64

	// MaxAlloc is the heap allocation budget in bytes.
	// Default: 0 (memory obtained from the OS)
	MaxAlloc uint64
}

// MemoryProbe fails when heap allocation crosses a fraction of its budget.
type MemoryProbe struct {
	config MemoryProbeConfig
	read   func(*runtime.MemStats)
}

// NewMemoryProbe creates a new memory probe.
func NewMemoryProbe(config MemoryProbeConfig) *MemoryProbe {
	if config.Threshold <= 0 || config.Threshold > 1 {
		config.Threshold = 0.95
	}
	return &MemoryProbe{config: config, read: runtime.ReadMemStats}
}

// Check reads runtime memory statistics.
func (m *MemoryProbe) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var stats runtime.MemStats
	m.read(&stats)

	budget := m.config.MaxAlloc
	if budget == 0 {
		budget = stats.Sys
	}
	if budget == 0 {
		return nil
	}

	usage := float64(stats.Alloc) / float64(budget)
	if usage >= m.config.Threshold {
		return fmt.Errorf("%w: memory usage %.1f%% of %d bytes", ErrThresholdExceeded, usage*100, budget)
	}
	return nil
}
