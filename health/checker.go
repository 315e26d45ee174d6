package health

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/opguard/observe"
)

// CheckerConfig configures a Checker.
type CheckerConfig struct {
	// Timeout bounds each probe.
	// Default: 5 seconds
	Timeout time.Duration

	// Concurrency is the number of probes run at once.
	// Default: 4
	Concurrency int

	// Logger receives a warning for every failed probe.
	// Default: observe.NopLogger()
	Logger observe.Logger
}

// Checker runs registered probes and aggregates their results.
//
// Each probe is isolated: an error, a panic, or running past the timeout
// marks only that probe as failed. Results are reported in registration
// order regardless of completion order.
type Checker struct {
	config CheckerConfig

	mu     sync.RWMutex
	probes map[string]Probe
	order  []string
}

// NewChecker creates a new health checker.
func NewChecker(config CheckerConfig) *Checker {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}
	return &Checker{
		config: config,
		probes: make(map[string]Probe),
	}
}

// RegisterCheck adds probe under name. Registering an existing name replaces
// the probe and keeps its position.
func (c *Checker) RegisterCheck(name string, probe Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.probes[name]; !exists {
		c.order = append(c.order, name)
	}
	c.probes[name] = probe
}

// Unregister removes the probe registered under name.
func (c *Checker) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.probes[name]; !exists {
		return
	}
	delete(c.probes, name)
	if i := slices.Index(c.order, name); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
}

// Names returns registered probe names in registration order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.order)
}

// Check runs the single probe registered under name.
func (c *Checker) Check(ctx context.Context, name string) (CheckResult, error) {
	c.mu.RLock()
	probe, ok := c.probes[name]
	c.mu.RUnlock()

	if !ok {
		return CheckResult{}, fmt.Errorf("%w: %s", ErrCheckerNotFound, name)
	}
	return c.run(ctx, name, probe), nil
}

// RunChecks runs every registered probe and returns the aggregate report.
// The report is Unhealthy when any probe failed; an empty checker is Healthy.
func (c *Checker) RunChecks(ctx context.Context) Report {
	c.mu.RLock()
	names := slices.Clone(c.order)
	probes := make([]Probe, len(names))
	for i, name := range names {
		probes[i] = c.probes[name]
	}
	c.mu.RUnlock()

	start := time.Now()
	results := make([]CheckResult, len(names))

	var g errgroup.Group
	g.SetLimit(c.config.Concurrency)
	for i := range names {
		g.Go(func() error {
			results[i] = c.run(ctx, names[i], probes[i])
			return nil
		})
	}
	_ = g.Wait()

	status := StatusHealthy
	for _, r := range results {
		if !r.Passed() {
			status = StatusUnhealthy
			break
		}
	}

	return Report{
		Status:    status,
		Checks:    results,
		Timestamp: start.UTC(),
		Duration:  time.Since(start),
	}
}

func (c *Checker) run(ctx context.Context, name string, probe Probe) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: %v", ErrCheckPanic, r)
			}
		}()
		done <- probe.Check(ctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ErrCheckTimeout
	}

	result := CheckResult{Name: name, Status: CheckPass, Latency: time.Since(start)}
	if err != nil {
		result.Status = CheckFail
		result.Error = err.Error()
		c.config.Logger.Warn(ctx, "health check failed",
			observe.Field{Key: "check", Value: name},
			observe.Field{Key: "error", Value: result.Error},
			observe.Field{Key: "latency_ms", Value: millis(result.Latency)},
		)
	}
	return result
}
