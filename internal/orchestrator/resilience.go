package orchestrator

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/aristath/fanout/internal/batch"
)

// This file provides opt-in decorators for work functions whose real
// implementations talk to flaky services. The orchestrator core never
// applies them itself: timeout, retry, and breaker semantics belong to the
// work function, not to the batch lifecycle.

// RetryConfig configures exponential backoff retry behavior.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 100ms)
	MaxInterval         time.Duration // Maximum retry interval (default 10s)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 2min)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// WithTimeout bounds a work function's execution time. When the limit
// expires before fn returns, the unit fails with a timeout message and the
// abandoned call keeps running in the background; its result is discarded.
func WithTimeout(fn batch.WorkFn, limit time.Duration) batch.WorkFn {
	return func(u batch.Unit) batch.Outcome {
		ch := make(chan batch.Outcome, 1)
		go func() {
			ch <- safeInvoke(fn, u)
		}()

		select {
		case out := <-ch:
			return out
		case <-time.After(limit):
			return batch.Fail(fmt.Sprintf("timed out after %v", limit))
		}
	}
}

// WithRetry retries failure outcomes with exponential backoff. The final
// outcome, success or the last failure, is returned once the policy gives
// up.
func WithRetry(fn batch.WorkFn, cfg RetryConfig) batch.WorkFn {
	return func(u batch.Unit) batch.Outcome {
		var out batch.Outcome

		operation := func() error {
			out = safeInvoke(fn, u)
			if !out.OK() {
				return errors.New(out.Err)
			}
			return nil
		}

		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = cfg.InitialInterval
		policy.MaxInterval = cfg.MaxInterval
		policy.MaxElapsedTime = cfg.MaxElapsedTime
		policy.Multiplier = cfg.Multiplier
		policy.RandomizationFactor = cfg.RandomizationFactor

		_ = backoff.Retry(operation, policy)
		return out
	}
}

// WithBreaker routes a work function through a circuit breaker. While the
// circuit is open, units fail fast without invoking fn.
func WithBreaker(fn batch.WorkFn, cb *gobreaker.CircuitBreaker) batch.WorkFn {
	return func(u batch.Unit) batch.Outcome {
		result, err := cb.Execute(func() (interface{}, error) {
			out := safeInvoke(fn, u)
			if !out.OK() {
				return out, errors.New(out.Err)
			}
			return out, nil
		})

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return batch.Fail(fmt.Sprintf("circuit breaker: %v", err))
			}
			// fn ran and failed; its outcome carries the message.
			if out, ok := result.(batch.Outcome); ok {
				return out
			}
			return batch.Fail(err.Error())
		}

		return result.(batch.Outcome)
	}
}

// BreakerRegistry manages one circuit breaker per upstream service name.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry creates an empty registry.
func NewBreakerRegistry() *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the circuit breaker for the given service name, creating it
// on first access.
func (r *BreakerRegistry) Get(name string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,                // Allow 3 test requests in half-open state
		Interval:    0,                // Don't clear counts automatically
		Timeout:     30 * time.Second, // Stay open for 30s before testing recovery
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %q: %s -> %s", name, from, to)
		},
	})

	r.breakers[name] = cb
	return cb
}
