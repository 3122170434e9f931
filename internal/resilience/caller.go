// Package resilience wraps outbound platform calls with retry and a
// per-target circuit breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// Sentinel errors surfaced by the caller.
var (
	// ErrRateLimited marks a downstream rate-limit signal. It is always
	// retried with backoff.
	ErrRateLimited = errors.New("rate limited by downstream")

	// ErrCircuitOpen is returned when the target's breaker is open and
	// the call was short-circuited without touching the network.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// Permanent marks an error as non-retryable. The caller surfaces it
// immediately instead of backing off.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Config controls retry and breaker behavior.
type Config struct {
	MaxAttempts      int
	InitialInterval  time.Duration
	BreakerThreshold uint32
	BreakerCooldown  time.Duration
}

// DefaultConfig returns the production defaults: 3 attempts with
// exponential backoff from 2s, breaker opens after 5 consecutive
// failures for 30s.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      3,
		InitialInterval:  2 * time.Second,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
}

// Caller executes outbound calls with retry composed inside a
// per-target circuit breaker. Breaker state is shared across all
// concurrent callers of the same target; an open breaker short-circuits
// before any retry is attempted.
type Caller struct {
	config Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewCaller creates a resilient caller.
func NewCaller(config Config) *Caller {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	return &Caller{
		config:   config,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Call invokes fn against the named downstream target.
func (c *Caller) Call(ctx context.Context, target string, fn func(ctx context.Context) error) error {
	cb := c.breakerFor(target)

	_, err := cb.Execute(func() (any, error) {
		return nil, c.retry(ctx, target, fn)
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		recordShortCircuit(target)
		return fmt.Errorf("target %s: %w", target, ErrCircuitOpen)
	}
	return err
}

func (c *Caller) retry(ctx context.Context, target string, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.InitialInterval
	b.Multiplier = 2.0
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		err := fn(ctx)
		if err != nil {
			recordAttempt(target, "failure")
			slog.Warn("outbound call failed",
				"target", target,
				"attempt", attempt,
				"max_attempts", c.config.MaxAttempts,
				"error", err,
			)
			return err
		}
		recordAttempt(target, "success")
		return nil
	}

	return backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(b, uint64(c.config.MaxAttempts-1)), ctx))
}

func (c *Caller) breakerFor(target string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[target]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        target,
		MaxRequests: 1, // single trial call in half-open
		Timeout:     c.config.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.config.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			recordBreakerState(name, to)
			slog.Warn("circuit breaker state change",
				"target", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	c.breakers[target] = cb
	return cb
}
