// Package resilience provides circuit breaker, rate limiting, and retry patterns for upstream calls.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal operating state: requests flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means too many failures, so requests are rejected immediately.
	CircuitOpen
	// CircuitHalfOpen lets a single probe request test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening
	// the circuit. Default: 5.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open after the last failure
	// before a probe is let through. Default: 60s.
	ResetTimeout time.Duration

	// OnStateChange is called when the circuit transitions between states.
	// It runs with the breaker lock held and must not call back into the breaker.
	OnStateChange func(from, to CircuitState)

	// Clock is the time source. Defaults to the real clock.
	Clock clockwork.Clock
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
	}
}

// CircuitBreaker implements the circuit breaker pattern for a single upstream.
type CircuitBreaker struct {
	cfg   CircuitBreakerConfig
	clock clockwork.Clock

	mu                  sync.Mutex
	state               CircuitState
	consecutiveFailures int
	lastFailureTime     time.Time
	probeStarted        time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given config.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CircuitBreaker{
		cfg:   cfg,
		clock: clock,
		state: CircuitClosed,
	}
}

// CallAllowed reports whether a call may proceed. An open circuit whose reset
// timeout has elapsed moves to half-open and admits exactly one probe. While
// the probe is outstanding further calls are rejected, unless the probe has
// not reported back within another ResetTimeout.
func (cb *CircuitBreaker) CallAllowed() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.clock.Now()
	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if now.Sub(cb.lastFailureTime) >= cb.cfg.ResetTimeout {
			cb.transition(CircuitHalfOpen)
			cb.probeStarted = now
			return true
		}
		return false
	case CircuitHalfOpen:
		if now.Sub(cb.probeStarted) >= cb.cfg.ResetTimeout {
			cb.probeStarted = now
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess records a successful call. A half-open circuit closes and the
// failure counter resets.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.transition(CircuitClosed)
		cb.consecutiveFailures = 0
	case CircuitClosed:
		cb.consecutiveFailures = 0
	}
}

// RecordFailure records a failed call. Reaching the threshold while closed,
// or any failure while half-open, opens the circuit. Failures reported while
// already open are ignored so a late result cannot extend the open window.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.consecutiveFailures++
		if cb.consecutiveFailures >= cb.cfg.FailureThreshold {
			cb.lastFailureTime = cb.clock.Now()
			cb.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.consecutiveFailures++
		cb.lastFailureTime = cb.clock.Now()
		cb.transition(CircuitOpen)
	}
}

// ReleaseTrial returns an unused half-open trial slot so the next
// CallAllowed admits a call immediately. Callers use it when a call admitted
// by CallAllowed was never made or was abandoned before an outcome.
func (cb *CircuitBreaker) ReleaseTrial() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.probeStarted = time.Time{}
	}
}

// Execute runs fn through the circuit breaker. Returns ErrCircuitOpen if the
// circuit rejects the call; otherwise records fn's outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.CallAllowed() {
		return ErrCircuitOpen
	}

	err := fn(ctx)
	if err != nil {
		cb.RecordFailure()
	} else {
		cb.RecordSuccess()
	}
	return err
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the circuit back to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures = 0
	if cb.state != CircuitClosed {
		cb.transition(CircuitClosed)
	}
}

// Counters returns the current failure count and state for observability.
func (cb *CircuitBreaker) Counters() (consecutiveFailures int, state CircuitState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.consecutiveFailures, cb.state
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	if cb.cfg.OnStateChange != nil && from != to {
		cb.cfg.OnStateChange(from, to)
	}
}

// ServiceBreakers manages circuit breakers for multiple upstreams.
type ServiceBreakers struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	cfg      CircuitBreakerConfig

	// onStateChange, when set, receives the service name with each transition.
	onStateChange func(service string, from, to CircuitState)
}

// NewServiceBreakers creates a registry of per-service circuit breakers.
func NewServiceBreakers(cfg CircuitBreakerConfig) *ServiceBreakers {
	return &ServiceBreakers{
		breakers: make(map[string]*CircuitBreaker),
		cfg:      cfg,
	}
}

// OnStateChange registers a callback invoked for transitions of any breaker
// created after the call.
func (sb *ServiceBreakers) OnStateChange(fn func(service string, from, to CircuitState)) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.onStateChange = fn
}

// Get returns the circuit breaker for the named service, creating one if needed.
func (sb *ServiceBreakers) Get(service string) *CircuitBreaker {
	sb.mu.RLock()
	cb, ok := sb.breakers[service]
	sb.mu.RUnlock()
	if ok {
		return cb
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()
	if cb, ok = sb.breakers[service]; ok {
		return cb
	}
	cfg := sb.cfg
	if fn := sb.onStateChange; fn != nil {
		cfg.OnStateChange = func(from, to CircuitState) { fn(service, from, to) }
	}
	cb = NewCircuitBreaker(cfg)
	sb.breakers[service] = cb
	return cb
}

// States returns a snapshot of all circuit breaker states.
func (sb *ServiceBreakers) States() map[string]CircuitState {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	states := make(map[string]CircuitState, len(sb.breakers))
	for name, cb := range sb.breakers {
		states[name] = cb.State()
	}
	return states
}
