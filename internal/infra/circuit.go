package infra

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Circuit breaker states for a single LLM provider/model.
const (
	CircuitClosed   = "closed"
	CircuitOpen     = "open"
	CircuitHalfOpen = "half-open"
)

// ErrCircuitOpen is returned by ExecuteWithResult while a breaker is open,
// classified by engine.ClassifyError into arc.ErrCircuitBreakerOpen so a
// tripped model never silently retries into a struggling provider.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures a circuit breaker guarding calls to one
// named model. CircuitBreakerRegistry stamps Name per model before
// constructing the breaker; OnStateChange, if set, receives that name so a
// single callback can log transitions across every provider in the chain.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	OnStateChange    func(name, from, to string)
}

// CircuitBreaker wraps model calls with a 3-state breaker (closed -> open
// on FailureThreshold consecutive failures -> half-open after Timeout ->
// closed again on SuccessThreshold consecutive successes), so a struggling
// provider stops eating retry budget on every run and ReliableModel can fall
// through to its next model instead.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu              sync.RWMutex
	state           string
	failures        int
	successes       int
	lastFailure     time.Time
	lastStateChange time.Time
}

// NewCircuitBreaker creates a new circuit breaker with the given config.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &CircuitBreaker{
		config:          config,
		state:           CircuitClosed,
		lastStateChange: time.Now(),
	}
}

// ExecuteWithResult runs a model call under circuit breaker protection,
// short-circuiting with ErrCircuitOpen instead of dialing a provider known
// to be failing.
func ExecuteWithResult[T any](cb *CircuitBreaker, ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := cb.canExecute(); err != nil {
		return zero, err
	}

	result, err := fn(ctx)
	cb.recordResult(err)
	return result, err
}

// canExecute checks if execution is allowed and transitions state if needed.
func (cb *CircuitBreaker) canExecute() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if time.Since(cb.lastStateChange) >= cb.config.Timeout {
			cb.transitionTo(CircuitHalfOpen)
			return nil
		}
		return ErrCircuitOpen

	default: // CircuitClosed, CircuitHalfOpen
		return nil
	}
}

// recordResult records the result of an execution.
func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.recordFailure()
	} else {
		cb.recordSuccess()
	}
}

// recordFailure records a failed model call.
func (cb *CircuitBreaker) recordFailure() {
	cb.failures++
	cb.successes = 0
	cb.lastFailure = time.Now()

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

// recordSuccess records a successful model call.
func (cb *CircuitBreaker) recordSuccess() {
	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	}
}

// transitionTo changes the circuit breaker state and, if configured,
// reports it asynchronously so a slow logger never stalls a model call.
func (cb *CircuitBreaker) transitionTo(newState string) {
	oldState := cb.state
	cb.state = newState
	cb.lastStateChange = time.Now()
	cb.failures = 0
	cb.successes = 0

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(cb.config.Name, oldState, newState)
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() string {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Stats returns current circuit breaker statistics, surfaced by /healthz
// alongside the model_breaker check.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return CircuitBreakerStats{
		Name:            cb.config.Name,
		State:           cb.state,
		Failures:        cb.failures,
		Successes:       cb.successes,
		LastFailure:     cb.lastFailure,
		LastStateChange: cb.lastStateChange,
	}
}

// CircuitBreakerStats contains statistics about one model's circuit breaker.
type CircuitBreakerStats struct {
	Name            string
	State           string
	Failures        int
	Successes       int
	LastFailure     time.Time
	LastStateChange time.Time
}

// CircuitBreakerRegistry hands out one breaker per model name, so the
// default provider and every fallback each trip independently.
type CircuitBreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	defaults CircuitBreakerConfig
}

// NewCircuitBreakerRegistry creates a new registry with default config.
func NewCircuitBreakerRegistry(defaults CircuitBreakerConfig) *CircuitBreakerRegistry {
	if defaults.FailureThreshold <= 0 {
		defaults.FailureThreshold = 5
	}
	if defaults.SuccessThreshold <= 0 {
		defaults.SuccessThreshold = 2
	}
	if defaults.Timeout <= 0 {
		defaults.Timeout = 30 * time.Second
	}

	return &CircuitBreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		defaults: defaults,
	}
}

// Get returns or creates a circuit breaker for the given model name.
func (r *CircuitBreakerRegistry) Get(name string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()

	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	config := r.defaults
	config.Name = name
	cb = NewCircuitBreaker(config)
	r.breakers[name] = cb
	return cb
}

// OpenCircuits returns the names of every model whose breaker is currently
// open, backing the server's model_breaker health check.
func (r *CircuitBreakerRegistry) OpenCircuits() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var open []string
	for name, cb := range r.breakers {
		if cb.State() == CircuitOpen {
			open = append(open, name)
		}
	}
	return open
}
