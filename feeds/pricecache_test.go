package feeds

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestPriceCache_UpdateAndGet(t *testing.T) {
	c := NewPriceCache()

	c.Update("tok1", d("0.44"), d("0.46"), d("500"), d("300"))

	e, ok := c.Get("tok1")
	require.True(t, ok)
	assert.True(t, e.BestAsk.Equal(d("0.46")))
	assert.True(t, e.AskSize.Equal(d("300")))
	assert.Equal(t, 1, c.Len())

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestPriceCache_FreshnessByAge(t *testing.T) {
	c := NewPriceCache()
	c.Update("tok1", d("0.44"), d("0.46"), d("500"), d("300"))

	_, ok := c.GetFresh("tok1", time.Minute)
	assert.True(t, ok)

	// Age the entry past the window.
	c.mu.Lock()
	c.entries["tok1"].UpdatedAt = time.Now().Add(-2 * time.Second)
	c.mu.Unlock()

	_, ok = c.GetFresh("tok1", time.Second)
	assert.False(t, ok)

	assert.True(t, c.IsStale("tok1", time.Second))
	assert.False(t, c.IsStale("tok1", time.Minute))
}

func TestPriceCache_IsFreshRequiresAllTokens(t *testing.T) {
	c := NewPriceCache()
	c.Update("yes", d("0.40"), d("0.42"), d("100"), d("100"))

	assert.False(t, c.IsFresh(time.Minute, "yes", "no"))

	c.Update("no", d("0.50"), d("0.52"), d("100"), d("100"))
	assert.True(t, c.IsFresh(time.Minute, "yes", "no"))
}

func TestPriceCache_HitMissCounters(t *testing.T) {
	c := NewPriceCache()
	c.Update("tok1", d("0.44"), d("0.46"), d("500"), d("300"))

	c.GetFresh("tok1", time.Minute)
	c.GetFresh("missing", time.Minute)
	c.GetFresh("tok1", time.Minute)

	hits, misses := c.Stats()
	assert.Equal(t, uint64(2), hits)
	assert.Equal(t, uint64(1), misses)

	// Clear drops entries but keeps counters.
	c.Clear()
	assert.Equal(t, 0, c.Len())
	hits, misses = c.Stats()
	assert.Equal(t, uint64(2), hits)
	assert.Equal(t, uint64(1), misses)
}
