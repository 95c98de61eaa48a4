package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ProbeStatus encodes the outcome of a dependency probe.
type ProbeStatus string

const (
	StatusUp       ProbeStatus = "up"
	StatusDown     ProbeStatus = "down"
	StatusDegraded ProbeStatus = "degraded"
)

// ProbeResult captures one dependency check outcome.
type ProbeResult struct {
	Component string        `json:"component"`
	Status    ProbeStatus   `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Report is the body of /health/ready.
type Report struct {
	Success bool          `json:"success"`
	Status  ProbeStatus   `json:"status"`
	Checks  []ProbeResult `json:"checks"`
}

// Check is a named dependency probe.
type Check struct {
	Name string
	Run  func(ctx context.Context) ProbeResult
}

// NewCheck wraps fn as a check. A nil fn always reports down.
func NewCheck(name string, fn func(ctx context.Context) ProbeResult) Check {
	if fn == nil {
		fn = func(context.Context) ProbeResult {
			return ProbeResult{Status: StatusDown, Details: "probe not implemented"}
		}
	}
	return Check{Name: name, Run: fn}
}

// Health runs the registered readiness probes. Liveness needs no probes: a
// process able to answer is alive.
type Health struct {
	mu     sync.RWMutex
	checks []Check
}

// NewHealth returns an empty probe set.
func NewHealth() *Health {
	return &Health{}
}

// Register adds probes. Unnamed checks are ignored.
func (h *Health) Register(checks ...Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, check := range checks {
		if check.Name == "" || check.Run == nil {
			continue
		}
		h.checks = append(h.checks, check)
	}
}

// Evaluate runs every probe concurrently; results keep registration order.
func (h *Health) Evaluate(ctx context.Context) Report {
	h.mu.RLock()
	checks := append([]Check(nil), h.checks...)
	h.mu.RUnlock()

	results := make([]ProbeResult, len(checks))
	var g errgroup.Group
	for i, check := range checks {
		g.Go(func() error {
			results[i] = runCheck(ctx, check)
			return nil
		})
	}
	_ = g.Wait()

	return summarise(results)
}

// summarise folds probe results: any down probe makes the report down,
// degraded probes only degrade it.
func summarise(results []ProbeResult) Report {
	report := Report{Success: true, Status: StatusUp, Checks: results}
	for _, result := range results {
		switch {
		case result.Status == StatusDown:
			report.Status = StatusDown
		case result.Status == StatusDegraded && report.Status == StatusUp:
			report.Status = StatusDegraded
		}
	}
	report.Success = report.Status == StatusUp
	return report
}

func runCheck(ctx context.Context, check Check) (result ProbeResult) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			result = ProbeResult{Status: StatusDown, Details: fmt.Sprint(rec)}
		}
		if result.Status == "" {
			result.Status = StatusDown
		}
		if result.Duration == 0 {
			result.Duration = time.Since(start)
		}
		result.Component = check.Name
	}()
	return check.Run(ctx)
}

// ResultFromError maps err to a probe result. Timeouts degrade; other errors
// are down.
func ResultFromError(component string, err error, duration time.Duration) ProbeResult {
	if duration < 0 {
		duration = 0
	}
	if err == nil {
		return ProbeResult{Component: component, Status: StatusUp, Duration: duration}
	}

	status := StatusDown
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		status = StatusDegraded
	}
	return ProbeResult{Component: component, Status: status, Details: err.Error(), Duration: duration}
}
