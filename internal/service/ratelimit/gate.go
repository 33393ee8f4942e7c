package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Clock is the subset of time the gate needs, injectable for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Gate enforces one provider's rate-limit class: a minimum interval between
// dispatches plus a sliding window of at most maxCalls per window. Callers
// must hold exclusive dispatch rights (the fetcher's per-provider worker),
// so two overlapping operations can never read-then-write the window.
type Gate struct {
	clock       Clock
	minInterval time.Duration
	maxCalls    int
	window      time.Duration

	mu           sync.Mutex
	lastDispatch time.Time
	calls        []time.Time // dispatch timestamps, pruned to the window
}

// NewGate builds a gate. minInterval may be zero when only the window
// applies; maxCalls and window must both be positive.
func NewGate(maxCalls int, window, minInterval time.Duration, clock Clock) *Gate {
	if clock == nil {
		clock = systemClock{}
	}
	return &Gate{
		clock:       clock,
		minInterval: minInterval,
		maxCalls:    maxCalls,
		window:      window,
	}
}

// Wait blocks until a dispatch slot is available, then records the dispatch.
// It returns early with ctx.Err() on cancellation; nothing is recorded then.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		now := g.clock.Now()
		d := g.delay(now)
		if d <= 0 {
			g.record(now)
			g.mu.Unlock()
			return nil
		}
		g.mu.Unlock()

		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// delay reports how long a dispatch at now must still wait. Zero or
// negative means a slot is free. Callers hold g.mu.
func (g *Gate) delay(now time.Time) time.Duration {
	var d time.Duration
	if !g.lastDispatch.IsZero() {
		if w := g.minInterval - now.Sub(g.lastDispatch); w > d {
			d = w
		}
	}
	g.prune(now)
	if len(g.calls) >= g.maxCalls {
		if w := g.calls[0].Add(g.window).Sub(now); w > d {
			d = w
		}
	}
	return d
}

// record appends a dispatch timestamp. Callers hold g.mu.
func (g *Gate) record(now time.Time) {
	g.lastDispatch = now
	g.calls = append(g.calls, now)
}

// prune drops timestamps that fell out of the window. Callers hold g.mu.
func (g *Gate) prune(now time.Time) {
	cut := now.Add(-g.window)
	i := 0
	for i < len(g.calls) && !g.calls[i].After(cut) {
		i++
	}
	if i > 0 {
		g.calls = append(g.calls[:0], g.calls[i:]...)
	}
}

// InWindow reports how many dispatches are inside the active window.
func (g *Gate) InWindow() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prune(g.clock.Now())
	return len(g.calls)
}
