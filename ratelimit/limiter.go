// Package ratelimit provides a sliding-window request limiter with a
// concurrency cap, used to stay under the quotas of public RPC endpoints
// and the price index.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrLimited is returned when the sliding window for a key is full. Callers
// decide whether to wait (see WaitTime) or give up.
var ErrLimited = errors.New("rate limit exceeded")

// Preset quotas matching the free tiers of the services the engine talks to.
const (
	RPCMaxRequests   = 100
	RPCWindow        = time.Minute
	RPCMaxConcurrent = 10

	PriceMaxRequests   = 50
	PriceWindow        = time.Minute
	PriceMaxConcurrent = 5
)

// Limiter enforces at most maxRequests calls per key in any rolling window,
// and at most maxConcurrent calls in flight across the whole limiter. The
// window is per key so one busy chain cannot starve the others; the
// concurrency cap is shared because it models the service's connection
// budget. Safe for concurrent use.
type Limiter struct {
	maxRequests   int
	window        time.Duration
	maxConcurrent int64

	now func() time.Time

	mu     sync.Mutex
	stamps map[string][]time.Time

	sem *semaphore.Weighted // nil when uncapped
}

// New builds a Limiter. maxConcurrent <= 0 means no concurrency cap.
func New(maxRequests int, window time.Duration, maxConcurrent int) *Limiter {
	l := &Limiter{
		maxRequests:   maxRequests,
		window:        window,
		maxConcurrent: int64(maxConcurrent),
		now:           time.Now,
		stamps:        make(map[string][]time.Time),
	}
	if maxConcurrent > 0 {
		l.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	return l
}

// NewRPC returns a limiter tuned for JSON-RPC endpoints.
func NewRPC() *Limiter { return New(RPCMaxRequests, RPCWindow, RPCMaxConcurrent) }

// NewPriceIndex returns a limiter tuned for the price index API.
func NewPriceIndex() *Limiter { return New(PriceMaxRequests, PriceWindow, PriceMaxConcurrent) }

// Acquire reserves one request for key. It blocks on the concurrency
// semaphore (honoring ctx) when too many calls are in flight, then fails
// fast with ErrLimited when the window is full. The window stamp is taken
// only after a slot is held, so time spent queued never burns quota. Every
// successful Acquire must be paired with Release.
func (l *Limiter) Acquire(ctx context.Context, key string) error {
	if l.sem != nil {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return err
		}
	}

	l.mu.Lock()
	now := l.now()
	live := l.prune(key, now)
	if len(live) >= l.maxRequests {
		l.mu.Unlock()
		if l.sem != nil {
			l.sem.Release(1)
		}
		return ErrLimited
	}
	l.stamps[key] = append(live, now)
	l.mu.Unlock()
	return nil
}

// Release frees the concurrency slot taken by Acquire. The window stamp
// stays: the request was made.
func (l *Limiter) Release(string) {
	if l.sem != nil {
		l.sem.Release(1)
	}
}

// WaitTime reports how long until the oldest stamp in key's window expires,
// i.e. the shortest sleep after which Acquire can succeed again. Zero means
// the window has room now.
func (l *Limiter) WaitTime(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	live := l.prune(key, now)
	l.stamps[key] = live
	if len(live) < l.maxRequests {
		return 0
	}
	return l.window - now.Sub(live[0])
}

// InFlight reports the number of live window stamps for key.
func (l *Limiter) InFlight(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(key, l.now()))
}

// prune drops stamps older than the window. Caller must hold l.mu.
func (l *Limiter) prune(key string, now time.Time) []time.Time {
	live := l.stamps[key]
	cutoff := now.Add(-l.window)
	for len(live) > 0 && !live[0].After(cutoff) {
		live = live[1:]
	}
	return live
}
