package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const defaultProbeTimeout = 2 * time.Second

// Status encodes the outcome of a probe.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Result captures one dependency probe.
type Result struct {
	Component string        `json:"component"`
	Status    Status        `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Report aggregates every probe of a readiness evaluation. The worst status wins.
type Report struct {
	Status Status   `json:"status"`
	Checks []Result `json:"checks"`
}

// Serving reports whether requests can still be handled. A degraded
// dependency, such as a lost Redis connection, still serves.
func (r Report) Serving() bool {
	return r.Status != StatusDown
}

// Check probes one dependency. Probe returns nil when healthy. Optional
// checks are reported degraded rather than down when they fail.
type Check struct {
	Name     string
	Optional bool
	Probe    func(ctx context.Context) error
}

// Health runs readiness checks under a per-probe timeout.
type Health struct {
	checks  []Check
	timeout time.Duration
}

// NewHealth constructs a Health with the given checks. Checks without a name or probe are ignored.
func NewHealth(checks ...Check) *Health {
	h := &Health{timeout: defaultProbeTimeout}
	for _, check := range checks {
		h.Register(check)
	}
	return h
}

// WithTimeout overrides the per-probe timeout.
func (h *Health) WithTimeout(timeout time.Duration) *Health {
	if timeout > 0 {
		h.timeout = timeout
	}
	return h
}

// Register appends a check.
func (h *Health) Register(check Check) {
	if check.Name == "" || check.Probe == nil {
		return
	}
	h.checks = append(h.checks, check)
}

// Evaluate runs every check sequentially.
func (h *Health) Evaluate(ctx context.Context) Report {
	report := Report{Status: StatusUp, Checks: make([]Result, 0, len(h.checks))}

	for _, check := range h.checks {
		result := h.run(ctx, check)
		report.Checks = append(report.Checks, result)

		switch {
		case result.Status == StatusDown:
			report.Status = StatusDown
		case result.Status == StatusDegraded && report.Status == StatusUp:
			report.Status = StatusDegraded
		}
	}
	return report
}

func (h *Health) run(ctx context.Context, check Check) (result Result) {
	start := time.Now()
	probeCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			result = failure(check, fmt.Errorf("probe panicked: %v", rec), time.Since(start))
		}
	}()

	if err := check.Probe(probeCtx); err != nil {
		return failure(check, err, time.Since(start))
	}
	return Result{Component: check.Name, Status: StatusUp, Duration: time.Since(start)}
}

func failure(check Check, err error, elapsed time.Duration) Result {
	status := StatusDown
	if check.Optional || errors.Is(err, context.DeadlineExceeded) {
		status = StatusDegraded
	}
	return Result{
		Component: check.Name,
		Status:    status,
		Details:   err.Error(),
		Duration:  elapsed,
	}
}
