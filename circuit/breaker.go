// Package circuit implements the circuit-breaker pattern used to protect
// the engine against cascading failures in external services (chain RPC
// endpoints, the price index).
package circuit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State of a breaker.
type State string

const (
	// Closed passes calls through while counting consecutive failures.
	Closed State = "closed"
	// Open rejects every call immediately until the recovery timeout.
	Open State = "open"
	// HalfOpen lets probe calls through to test recovery.
	HalfOpen State = "half_open"
)

// ErrOpen is returned when a breaker rejects a call without executing it.
var ErrOpen = errors.New("circuit breaker is open")

// requiredSuccesses is the number of consecutive half-open probe successes
// needed to close the breaker again.
const requiredSuccesses = 3

// Breaker guards one external resource. All methods are safe for
// concurrent use.
type Breaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration

	now func() time.Time

	mu                sync.Mutex
	state             State
	failures          int
	halfOpenSuccesses int
	lastFailure       time.Time
	openedAt          time.Time

	totalRequests  uint64
	totalFailures  uint64
	totalSuccesses uint64
	totalOpenTime  time.Duration
}

// New creates a closed breaker. failureThreshold consecutive failures trip
// it; after recoveryTimeout a half-open probe window starts.
func New(name string, failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	return &Breaker{
		name:             name,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		now:              time.Now,
		state:            Closed,
	}
}

// Do runs fn under the breaker. A rejected call returns ErrOpen (wrapped
// with the time until the next probe) without invoking fn. Failures caused
// by the caller cancelling ctx are not counted against the resource.
func (b *Breaker) Do(ctx context.Context, fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := fn()
	if err != nil {
		if ctx.Err() != nil {
			// Caller went away; the dependency did not fail.
			return err
		}
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

// State returns the current state, applying the open→half-open transition
// if the cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeProbe()
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeProbe()
	if b.state == Open {
		remaining := b.recoveryTimeout - b.now().Sub(b.lastFailure)
		return fmt.Errorf("%w: %s (retry in %s)", ErrOpen, b.name, remaining.Round(time.Second))
	}
	return nil
}

// maybeProbe moves an open breaker to half-open once the cooldown elapses.
// Caller must hold b.mu.
func (b *Breaker) maybeProbe() {
	if b.state == Open && b.now().Sub(b.lastFailure) >= b.recoveryTimeout {
		b.state = HalfOpen
		b.halfOpenSuccesses = 0
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests++
	b.totalSuccesses++
	b.failures = 0

	if b.state == HalfOpen {
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= requiredSuccesses {
			b.state = Closed
			b.halfOpenSuccesses = 0
			if !b.openedAt.IsZero() {
				b.totalOpenTime += b.now().Sub(b.openedAt)
				b.openedAt = time.Time{}
			}
		}
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests++
	b.totalFailures++
	b.failures++
	b.lastFailure = b.now()

	switch {
	case b.state == HalfOpen:
		// A probe failed: back to open for another cooldown.
		b.state = Open
	case b.state == Closed && b.failures >= b.failureThreshold:
		b.state = Open
		b.openedAt = b.now()
	}
}

// Reset returns the breaker to its initial closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.openedAt.IsZero() {
		b.totalOpenTime += b.now().Sub(b.openedAt)
		b.openedAt = time.Time{}
	}
	b.state = Closed
	b.failures = 0
	b.halfOpenSuccesses = 0
	b.lastFailure = time.Time{}
}

// Stats is a point-in-time snapshot for health surfaces.
type Stats struct {
	Name             string        `json:"name"`
	State            State         `json:"state"`
	Failures         int           `json:"failures"`
	FailureThreshold int           `json:"failureThreshold"`
	TotalRequests    uint64        `json:"totalRequests"`
	TotalSuccesses   uint64        `json:"totalSuccesses"`
	TotalFailures    uint64        `json:"totalFailures"`
	TotalOpenTime    time.Duration `json:"totalOpenTime"`
	TimeUntilRetry   time.Duration `json:"timeUntilRetry"`
}

// Stats returns a snapshot of the breaker's counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	openTime := b.totalOpenTime
	if !b.openedAt.IsZero() {
		openTime += b.now().Sub(b.openedAt)
	}
	var retryIn time.Duration
	if b.state == Open {
		if d := b.recoveryTimeout - b.now().Sub(b.lastFailure); d > 0 {
			retryIn = d
		}
	}
	return Stats{
		Name:             b.name,
		State:            b.state,
		Failures:         b.failures,
		FailureThreshold: b.failureThreshold,
		TotalRequests:    b.totalRequests,
		TotalSuccesses:   b.totalSuccesses,
		TotalFailures:    b.totalFailures,
		TotalOpenTime:    openTime,
		TimeUntilRetry:   retryIn,
	}
}
