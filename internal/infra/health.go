package infra

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// ServiceHealth is the health state of one component backing /healthz.
type ServiceHealth string

const (
	ServiceHealthHealthy   ServiceHealth = "healthy"
	ServiceHealthUnhealthy ServiceHealth = "unhealthy"
	ServiceHealthDegraded  ServiceHealth = "degraded"
	ServiceHealthUnknown   ServiceHealth = "unknown"
)

// HealthCheckResult is the outcome of one named check, such as the model
// breaker check or the process liveness check.
type HealthCheckResult struct {
	Name      string            `json:"name"`
	Status    ServiceHealth     `json:"status"`
	Message   string            `json:"message,omitempty"`
	Latency   time.Duration     `json:"latency_ms"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// MarshalJSON reports Latency in milliseconds rather than Go's default
// duration encoding, since that's what server.handleHealthz's callers expect.
func (r HealthCheckResult) MarshalJSON() ([]byte, error) {
	type Alias HealthCheckResult
	return json.Marshal(&struct {
		Alias
		LatencyMS int64 `json:"latency_ms"`
	}{
		Alias:     Alias(r),
		LatencyMS: r.Latency.Milliseconds(),
	})
}

// HealthChecker performs one health check.
type HealthChecker func(ctx context.Context) HealthCheckResult

// HealthCheckConfig registers one check with a HealthCheckRegistry.
type HealthCheckConfig struct {
	// Name identifies this health check, e.g. "liveness" or "model_breaker".
	Name string

	// Timeout bounds how long the check may run before it's marked unhealthy.
	Timeout time.Duration

	// Critical marks this check as load-bearing: its failure makes the
	// whole /healthz report unhealthy rather than merely degraded.
	Critical bool

	// Checker performs the check.
	Checker HealthChecker
}

// HealthCheckRegistry aggregates the checks exposed by a running Server at
// /healthz: process liveness and, per model, whether its circuit breaker has
// tripped.
type HealthCheckRegistry struct {
	mu sync.RWMutex

	checks map[string]HealthCheckConfig
}

// NewHealthCheckRegistry creates an empty registry.
func NewHealthCheckRegistry() *HealthCheckRegistry {
	return &HealthCheckRegistry{
		checks: make(map[string]HealthCheckConfig),
	}
}

// Register adds a health check.
func (r *HealthCheckRegistry) Register(config HealthCheckConfig) {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[config.Name] = config
}

// RegisterSimple adds a critical check from a plain error-returning func, the
// shape server.Build's model_breaker check takes.
func (r *HealthCheckRegistry) RegisterSimple(name string, checker func(ctx context.Context) error) {
	r.Register(HealthCheckConfig{
		Name:     name,
		Critical: true,
		Checker: func(ctx context.Context) HealthCheckResult {
			result := HealthCheckResult{Name: name, Timestamp: time.Now()}
			if err := checker(ctx); err != nil {
				result.Status = ServiceHealthUnhealthy
				result.Message = err.Error()
			} else {
				result.Status = ServiceHealthHealthy
			}
			return result
		},
	})
}

// CheckAll runs every registered check concurrently and folds the results
// into one HealthReport, the body served by GET /healthz.
func (r *HealthCheckRegistry) CheckAll(ctx context.Context) HealthReport {
	r.mu.RLock()
	checks := make([]HealthCheckConfig, 0, len(r.checks))
	for _, config := range r.checks {
		checks = append(checks, config)
	}
	r.mu.RUnlock()

	results := make([]HealthCheckResult, len(checks))
	var wg sync.WaitGroup
	for i, config := range checks {
		wg.Add(1)
		go func(idx int, cfg HealthCheckConfig) {
			defer wg.Done()
			results[idx] = r.runCheck(ctx, cfg)
		}(i, config)
	}
	wg.Wait()

	return r.buildReport(results)
}

// runCheck runs a single check, bounding it to config.Timeout so one stuck
// dependency can't stall the whole /healthz response.
func (r *HealthCheckRegistry) runCheck(ctx context.Context, config HealthCheckConfig) HealthCheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	start := time.Now()
	resultCh := make(chan HealthCheckResult, 1)
	go func() {
		result := config.Checker(checkCtx)
		result.Name = config.Name
		result.Latency = time.Since(start)
		resultCh <- result
	}()

	select {
	case result := <-resultCh:
		return result
	case <-checkCtx.Done():
		return HealthCheckResult{
			Name:      config.Name,
			Status:    ServiceHealthUnhealthy,
			Message:   "health check timed out",
			Latency:   time.Since(start),
			Timestamp: time.Now(),
		}
	}
}

// buildReport derives the overall status: any critical check that's
// unhealthy makes the whole report unhealthy, a non-critical failure only
// degrades it.
func (r *HealthCheckRegistry) buildReport(results []HealthCheckResult) HealthReport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report := HealthReport{Timestamp: time.Now(), Checks: results}
	report.Status = ServiceHealthHealthy

	for _, result := range results {
		config, ok := r.checks[result.Name]
		if !ok {
			continue
		}

		switch result.Status {
		case ServiceHealthUnhealthy:
			if config.Critical {
				report.Status = ServiceHealthUnhealthy
			} else if report.Status == ServiceHealthHealthy {
				report.Status = ServiceHealthDegraded
			}
		case ServiceHealthDegraded:
			if report.Status == ServiceHealthHealthy {
				report.Status = ServiceHealthDegraded
			}
		case ServiceHealthUnknown:
			if config.Critical && report.Status == ServiceHealthHealthy {
				report.Status = ServiceHealthUnknown
			}
		}
	}

	return report
}

// HealthReport is the full body served at GET /healthz.
type HealthReport struct {
	Status    ServiceHealth       `json:"status"`
	Timestamp time.Time           `json:"timestamp"`
	Checks    []HealthCheckResult `json:"checks"`
}

// IsHealthy reports whether the overall status is healthy, deciding
// whether handleHealthz answers 200 or 503.
func (r HealthReport) IsHealthy() bool {
	return r.Status == ServiceHealthHealthy
}

// LivenessChecker always reports healthy; its presence in the registry only
// confirms the process is scheduling goroutines at all.
func LivenessChecker() HealthChecker {
	return func(ctx context.Context) HealthCheckResult {
		return HealthCheckResult{
			Name:      "liveness",
			Status:    ServiceHealthHealthy,
			Timestamp: time.Now(),
		}
	}
}
