// Package control guards model provider calls with a circuit breaker.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker refuses new work.
var ErrCircuitOpen = errors.New("circuit breaker open")

// FailureClass groups provider failures. Each class trips the breaker
// independently.
type FailureClass string

const (
	ClassProviderAPI     FailureClass = "provider_api"
	ClassProviderTimeout FailureClass = "provider_timeout"
	// ClassCanceled failures come from the caller giving up and never trip
	// the breaker.
	ClassCanceled FailureClass = "canceled"
	ClassUnknown  FailureClass = "unknown"
)

// Classify maps a provider error to its failure class.
func Classify(err error) FailureClass {
	switch {
	case err == nil:
		return ClassUnknown
	case errors.Is(err, context.Canceled):
		return ClassCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ClassProviderTimeout
	default:
		return ClassProviderAPI
	}
}

type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitBreaker guards model provider calls with a per-class failure
// count. It is safe for concurrent use.
type CircuitBreaker struct {
	Threshold int
	Cooldown  time.Duration

	mu          sync.Mutex
	now         func() time.Time
	state       CircuitState
	failures    map[FailureClass]int
	openedAt    time.Time
	openedClass FailureClass
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		Threshold: threshold,
		Cooldown:  cooldown,
		now:       time.Now,
		state:     CircuitClosed,
		failures:  map[FailureClass]int{},
	}
}

// Call runs fn if the breaker allows it and records the outcome. A refused
// call returns an error wrapping ErrCircuitOpen without running fn.
func (c *CircuitBreaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if !c.Allow(c.now()) {
		return fmt.Errorf("%w (class=%s)", ErrCircuitOpen, c.OpenedClass())
	}
	err := fn(ctx)
	if err == nil {
		c.RecordSuccess()
		return nil
	}
	if class := Classify(err); class != ClassCanceled {
		c.RecordFailure(class, c.now())
	}
	return err
}

func (c *CircuitBreaker) State() CircuitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Allow returns whether new work is allowed at this instant.
func (c *CircuitBreaker) Allow(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != CircuitOpen {
		return true
	}
	if now.Sub(c.openedAt) >= c.Cooldown {
		c.state = CircuitHalfOpen
		return true
	}
	return false
}

// RecordSuccess updates state after a successful probe/operation.
func (c *CircuitBreaker) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = CircuitClosed
	c.openedClass = ""
	c.failures = map[FailureClass]int{}
}

// RecordFailure updates state after an error in the given class.
func (c *CircuitBreaker) RecordFailure(errClass FailureClass, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if errClass == "" {
		errClass = ClassUnknown
	}
	if c.state == CircuitHalfOpen {
		c.state = CircuitOpen
		c.openedAt = now
		c.openedClass = errClass
		return
	}
	c.failures[errClass]++
	if c.failures[errClass] >= c.Threshold {
		c.state = CircuitOpen
		c.openedAt = now
		c.openedClass = errClass
	}
}

// OpenedClass is the failure class that last opened the breaker.
func (c *CircuitBreaker) OpenedClass() FailureClass {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openedClass
}
