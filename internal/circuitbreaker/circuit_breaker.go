// Package circuitbreaker stops calling a dependency after repeated failures
// and probes it again once a cool-down has passed.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/polytracker/scanner/internal/logging"
)

// State is the breaker position
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

var (
	// ErrCircuitOpen is returned while the breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when every half-open probe slot is taken
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config configures a circuit breaker
type Config struct {
	Name string
	// ConsecutiveFailures opens the circuit after this many failures in a row
	ConsecutiveFailures int
	// Timeout is how long the circuit stays open before probing
	Timeout time.Duration
	// HalfOpenMaxCalls is both the number of probes allowed and the number of
	// successes needed to close again
	HalfOpenMaxCalls int
	Logger           *logging.Logger
	// Now overrides the clock in tests
	Now func() time.Time
}

// DefaultConfig opens after 5 straight failures and probes again after a minute
func DefaultConfig(name string) *Config {
	return &Config{
		Name:                name,
		ConsecutiveFailures: 5,
		Timeout:             time.Minute,
		HalfOpenMaxCalls:    1,
	}
}

// CircuitBreaker guards calls to a flaky dependency
type CircuitBreaker struct {
	cfg    Config
	logger *logging.Logger

	mu        sync.Mutex
	state     State
	failures  int
	probes    int
	successes int
	changedAt time.Time
}

// NewCircuitBreaker creates a closed breaker. A nil config uses DefaultConfig.
func NewCircuitBreaker(config *Config) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig("default")
	}
	cfg := *config
	if cfg.ConsecutiveFailures < 1 {
		cfg.ConsecutiveFailures = 1
	}
	if cfg.HalfOpenMaxCalls < 1 {
		cfg.HalfOpenMaxCalls = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		cfg:       cfg,
		logger:    logging.OrGlobal(cfg.Logger).WithField("circuitBreaker", cfg.Name),
		state:     StateClosed,
		changedAt: cfg.Now(),
	}
}

// Execute runs fn unless the circuit is open. A failure caused by ctx being
// cancelled is not held against the dependency.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cb.acquire(); err != nil {
		return err
	}

	err := fn()
	if err != nil && ctx.Err() != nil {
		cb.release()
		return err
	}
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.cfg.Now().Sub(cb.changedAt) < cb.cfg.Timeout {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMaxCalls {
			return ErrTooManyRequests
		}
		cb.probes++
	}
	return nil
}

// release returns the half-open slot taken by a cancelled call
func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateHalfOpen && cb.probes > 0 {
		cb.probes--
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.successes++
			if cb.successes >= cb.cfg.HalfOpenMaxCalls {
				cb.transition(StateClosed)
			}
		}
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.cfg.ConsecutiveFailures {
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	cb.changedAt = cb.cfg.Now()
	cb.probes, cb.successes = 0, 0

	log := cb.logger.WithFields(map[string]interface{}{"from": from, "to": to})
	switch to {
	case StateOpen:
		log.WithField("consecutiveFails", cb.failures).Warn("Circuit breaker opened")
	case StateClosed:
		cb.failures = 0
		log.Info("Circuit breaker closed")
	default:
		log.Info("Circuit breaker probing")
	}
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the breaker name
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }
