package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestGateMinIntervalDelay(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	g := NewGate(100, time.Minute, time.Second, clk)

	assert.Equal(t, time.Duration(0), g.delay(clk.Now()))
	g.record(clk.Now())

	// 200ms after a dispatch, 800ms of spacing remain
	clk.Advance(200 * time.Millisecond)
	assert.Equal(t, 800*time.Millisecond, g.delay(clk.Now()))

	clk.Advance(time.Second)
	assert.Equal(t, time.Duration(0), g.delay(clk.Now()))
}

func TestGateWindowNeverExceeded(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	g := NewGate(3, time.Minute, 0, clk)

	for i := 0; i < 3; i++ {
		require.Equal(t, time.Duration(0), g.delay(clk.Now()))
		g.record(clk.Now())
		clk.Advance(time.Second)
	}
	assert.Equal(t, 3, g.InWindow())

	// fourth dispatch must wait until the oldest call leaves the window
	d := g.delay(clk.Now())
	assert.Equal(t, 57*time.Second, d)

	clk.Advance(d)
	assert.Equal(t, time.Duration(0), g.delay(clk.Now()))
	g.record(clk.Now())
	assert.LessOrEqual(t, g.InWindow(), 3)
}

func TestGateWindowPrune(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	g := NewGate(10, 10*time.Second, 0, clk)

	for i := 0; i < 5; i++ {
		g.record(clk.Now())
		clk.Advance(time.Second)
	}
	assert.Equal(t, 5, g.InWindow())

	clk.Advance(10 * time.Second)
	assert.Equal(t, 0, g.InWindow())
}

func TestGateWaitRealTime(t *testing.T) {
	g := NewGate(2, 80*time.Millisecond, 0, nil)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, g.Wait(ctx))
	}
	// calls 3 and 4 each had to wait for a slot
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.LessOrEqual(t, g.InWindow(), 2)
}

func TestGateWaitCancel(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	g := NewGate(1, time.Hour, 0, clk)
	g.record(clk.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, g.InWindow())
}
