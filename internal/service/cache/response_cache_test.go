package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketPulse/internal/domain/models"
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

var (
	keyBTC   = models.MetricKey{DataType: models.DataTypePrice, Symbol: "BTC"}
	keyYield = models.MetricKey{DataType: models.DataTypeTreasuryYield, Symbol: "10Y"}
)

func TestGetReturnsNilAfterTTLWithoutEviction(t *testing.T) {
	clk := &fakeClock{now: time.Unix(5000, 0)}
	c := NewResponseCache(clk)

	c.Put(keyBTC, 67000, "coingecko")
	require.NotNil(t, c.Get(keyBTC))

	// price is fast-moving: 5m TTL
	clk.Advance(5*time.Minute + time.Second)
	assert.Nil(t, c.Get(keyBTC), "expired entry must not be served even if never swept")
}

func TestTTLPerDataClass(t *testing.T) {
	clk := &fakeClock{now: time.Unix(5000, 0)}
	c := NewResponseCache(clk)

	c.Put(keyBTC, 67000, "coingecko")
	c.Put(keyYield, 4.2, "treasury")

	clk.Advance(10 * time.Minute)
	assert.Nil(t, c.Get(keyBTC))
	got := c.Get(keyYield)
	require.NotNil(t, got, "slow-moving metric keeps its 15m TTL")
	assert.Equal(t, 4.2, got.Value)
	assert.Equal(t, "treasury", got.Source)
}

func TestSweepRemovesExpired(t *testing.T) {
	clk := &fakeClock{now: time.Unix(5000, 0)}
	c := NewResponseCache(clk)

	c.Put(keyBTC, 1, "a")
	c.Put(keyYield, 2, "b")
	clk.Advance(6 * time.Minute)

	removed := c.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Len())
}

func TestSweepEvictsOldestOverCap(t *testing.T) {
	clk := &fakeClock{now: time.Unix(5000, 0)}
	c := NewResponseCache(clk, WithMaxEntries(3))

	for i, sym := range []string{"A", "B", "C", "D", "E"} {
		c.PutTTL(models.MetricKey{DataType: models.DataTypePrice, Symbol: sym}, float64(i), "src", time.Hour)
		clk.Advance(time.Second)
	}
	require.Equal(t, 5, c.Len())

	removed := c.Sweep()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 3, c.Len())

	// oldest two evicted first
	assert.Nil(t, c.Get(models.MetricKey{DataType: models.DataTypePrice, Symbol: "A"}))
	assert.Nil(t, c.Get(models.MetricKey{DataType: models.DataTypePrice, Symbol: "B"}))
	assert.NotNil(t, c.Get(models.MetricKey{DataType: models.DataTypePrice, Symbol: "E"}))
}

func TestPutOverwrites(t *testing.T) {
	clk := &fakeClock{now: time.Unix(5000, 0)}
	c := NewResponseCache(clk)

	c.Put(keyBTC, 1, "a")
	c.Put(keyBTC, 2, "b")
	got := c.Get(keyBTC)
	require.NotNil(t, got)
	assert.Equal(t, 2.0, got.Value)
	assert.Equal(t, "b", got.Source)
	assert.Equal(t, 1, c.Len())
}
