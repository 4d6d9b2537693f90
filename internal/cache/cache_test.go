package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTL_Expiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTL[string, int](time.Minute)
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(59 * time.Second)
	_, ok = c.Get("a")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1, c.Prune())
	assert.Equal(t, 0, c.Len())
}

func TestTTL_NilSafe(t *testing.T) {
	var c *TTL[string, int]
	c.Set("a", 1)
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Prune())
}

func TestTTL_Concurrent(t *testing.T) {
	c := NewTTL[int, int](time.Minute)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set(i, i*i)
			c.Get(i)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, c.Len())
}

func TestPriceWindow_KeepsMostRecent(t *testing.T) {
	w := NewPriceWindow(3)
	w.Push("btc", 1, 2, 3, 4, 0, -1)
	assert.Equal(t, []float64{2, 3, 4}, w.Prices("BTC"))

	last, ok := w.Last(" BTC ")
	require.True(t, ok)
	assert.Equal(t, 4.0, last)

	_, ok = w.Last("ETH")
	assert.False(t, ok)
}

func TestPriceWindow_SeedOnlyWhenEmpty(t *testing.T) {
	w := NewPriceWindow(10)
	w.Seed("SPY", []float64{500, 501, 502})
	w.Seed("SPY", []float64{1, 2, 3})
	assert.Equal(t, []float64{500, 501, 502}, w.Prices("spy"))

	p := w.Prices("SPY")
	p[0] = 0
	assert.Equal(t, 500.0, w.Prices("SPY")[0])
}
