package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"defensive-screener/observability"
)

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	MaxRequests uint32        // max requests allowed in half-open state
	Interval    time.Duration // cyclic period of the closed state to clear counts
	Timeout     time.Duration // period of the open state before transitioning to half-open

	// ConsecutiveFailures trips the breaker after this many failures in a row.
	// Zero leaves only the failure-ratio rule.
	ConsecutiveFailures uint32
}

// AlphaVantageBreakerConfig opens on the first provider failure. A usage
// notice applies to the whole key, so the remaining calls of the run are
// rejected without spending quota.
var AlphaVantageBreakerConfig = CircuitBreakerConfig{
	MaxRequests:         1,
	Interval:            0,
	Timeout:             1 * time.Minute,
	ConsecutiveFailures: 1,
}

// CircuitBreakerRegistry manages circuit breakers for different services
type CircuitBreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
	config   CircuitBreakerConfig
	metrics  *observability.Metrics
}

// NewCircuitBreakerRegistry creates a new registry with the given config.
// A nil metrics falls back to the global instance.
func NewCircuitBreakerRegistry(config CircuitBreakerConfig, metrics *observability.Metrics) *CircuitBreakerRegistry {
	if metrics == nil {
		metrics = observability.GetMetrics()
	}
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
		config:   config,
		metrics:  metrics,
	}
}

// GetBreaker returns (or creates) a circuit breaker for the given service name
func (r *CircuitBreakerRegistry) GetBreaker(name string) *gobreaker.CircuitBreaker[any] {
	r.mu.RLock()
	cb, exists := r.breakers[name]
	r.mu.RUnlock()

	if exists {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if cb, exists = r.breakers[name]; exists {
		return cb
	}

	cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:          name,
		MaxRequests:   r.config.MaxRequests,
		Interval:      r.config.Interval,
		Timeout:       r.config.Timeout,
		ReadyToTrip:   r.config.readyToTrip,
		IsSuccessful:  isBreakerSuccess,
		OnStateChange: r.onStateChange,
	})
	r.metrics.SetCircuitBreakerState(name, stateToInt(cb.State()))
	r.breakers[name] = cb

	return cb
}

// readyToTrip opens on the configured run of consecutive failures, or when at
// least half of five or more requests failed
func (c CircuitBreakerConfig) readyToTrip(counts gobreaker.Counts) bool {
	if c.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= c.ConsecutiveFailures {
		return true
	}
	return counts.Requests >= 5 && counts.TotalFailures*2 >= counts.Requests
}

func (r *CircuitBreakerRegistry) onStateChange(name string, from, to gobreaker.State) {
	observability.Warn("circuit breaker state change",
		"breaker", name,
		"from", from.String(),
		"to", to.String())

	r.metrics.SetCircuitBreakerState(name, stateToInt(to))
	if to == gobreaker.StateOpen {
		r.metrics.RecordCircuitBreakerTrip(name)
	}
}

// isBreakerSuccess keeps caller-side outcomes from counting against the provider
func isBreakerSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, ErrSymbolNotFound) ||
		errors.Is(err, context.Canceled)
}

// Execute runs the given function through the named circuit breaker
func (r *CircuitBreakerRegistry) Execute(ctx context.Context, name string, fn func() (any, error)) (any, error) {
	cb := r.GetBreaker(name)

	result, err := cb.Execute(func() (any, error) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return fn()
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		observability.Debug("circuit breaker rejected call", "breaker", name, "state", cb.State().String())
		return nil, fmt.Errorf("%s calls suspended after an earlier failure: %w", name, err)
	}
	return result, err
}

// BreakerStatus is a point-in-time view of one breaker's state and counts
type BreakerStatus struct {
	Name                string
	State               gobreaker.State
	Requests            uint32
	Failures            uint32
	ConsecutiveFailures uint32
}

// Status returns every breaker the registry has created, ordered by name
func (r *CircuitBreakerRegistry) Status() []BreakerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]BreakerStatus, 0, len(r.breakers))
	for name, cb := range r.breakers {
		counts := cb.Counts()
		out = append(out, BreakerStatus{
			Name:                name,
			State:               cb.State(),
			Requests:            counts.Requests,
			Failures:            counts.TotalFailures,
			ConsecutiveFailures: counts.ConsecutiveFailures,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// WithCircuitBreaker wraps a function call with circuit breaker protection
func WithCircuitBreaker[T any](ctx context.Context, registry *CircuitBreakerRegistry, name string, fn func() (T, error)) (T, error) {
	result, err := registry.Execute(ctx, name, func() (any, error) {
		return fn()
	})

	if err != nil {
		var zero T
		return zero, err
	}

	return result.(T), nil
}

// BreakerAlphaVantage names the Alpha Vantage circuit breaker
const BreakerAlphaVantage = "alphavantage"

// stateToInt converts a circuit breaker state to an integer for metrics
// 0=closed, 1=half-open, 2=open
func stateToInt(state gobreaker.State) int {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
