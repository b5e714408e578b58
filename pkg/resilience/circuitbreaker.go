// Package resilience holds the fault-tolerance helpers used around optional
// dependencies: a circuit breaker for the result cache, bounded retry for
// startup connections and publishing, and a deadline wrapper for searches.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig controls when the breaker trips and how it recovers.
// OnStateChange, if set, is called with the lock released.
type CircuitBreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
	OnStateChange       func(name string, from, to State)
}

// CircuitBreaker trips open after FailureThreshold consecutive failures and
// lets a limited number of trial calls through once ResetTimeout has elapsed.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time
	halfOpenRequests    int
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
		now:    time.Now,
	}
}

// Execute runs fn unless the circuit is open. A failing fn counts towards
// tripping the breaker.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		wait := cb.cfg.ResetTimeout - cb.now().Sub(cb.openedAt)
		if wait > 0 {
			cb.mu.Unlock()
			return fmt.Errorf("%w: %s (retry after %v)", ErrCircuitOpen, cb.name, wait.Round(time.Millisecond))
		}
		cb.halfOpenRequests = 1
		cb.transition(StateHalfOpen)
		return nil
	case StateHalfOpen:
		if cb.halfOpenRequests >= cb.cfg.HalfOpenMaxRequests {
			cb.mu.Unlock()
			return fmt.Errorf("%w: %s (trial in flight)", ErrCircuitOpen, cb.name)
		}
		cb.halfOpenRequests++
	}
	cb.mu.Unlock()
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	if err == nil {
		cb.consecutiveFailures = 0
		if cb.state == StateHalfOpen {
			cb.transition(StateClosed)
			return
		}
		cb.mu.Unlock()
		return
	}
	cb.consecutiveFailures++
	if cb.state == StateHalfOpen || (cb.state == StateClosed && cb.consecutiveFailures >= cb.cfg.FailureThreshold) {
		cb.openedAt = cb.now()
		cb.transition(StateOpen)
		return
	}
	cb.mu.Unlock()
}

// transition must be called with mu held; it releases it.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	failures := cb.consecutiveFailures
	cb.mu.Unlock()

	cb.logger.Info("circuit state changed", "from", from, "to", to, "consecutive_failures", failures)
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	cb.consecutiveFailures = 0
	cb.halfOpenRequests = 0
	if cb.state == StateClosed {
		cb.mu.Unlock()
		return
	}
	cb.transition(StateClosed)
}
