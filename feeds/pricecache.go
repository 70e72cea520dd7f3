package feeds

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PRICE CACHE - last-known quotes from the push feed
// ═══════════════════════════════════════════════════════════════════════════════

// BookEntry is the last-known top-of-book for one token. Freshness is
// decided purely by wall-clock age at read time; entries are overwritten
// on every update and never invalidated by a push signal.
type BookEntry struct {
	TokenID   string
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
	BidSize   decimal.Decimal
	AskSize   decimal.Decimal
	UpdatedAt time.Time
}

// PriceCache caches quotes pushed by the WebSocket feed so the polling
// loop can skip redundant HTTP calls.
type PriceCache struct {
	mu      sync.RWMutex
	entries map[string]*BookEntry

	hits   uint64
	misses uint64
}

// NewPriceCache creates an empty cache.
func NewPriceCache() *PriceCache {
	return &PriceCache{
		entries: make(map[string]*BookEntry),
	}
}

// Update overwrites the entry for a token.
func (c *PriceCache) Update(tokenID string, bestBid, bestAsk, bidSize, askSize decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[tokenID] = &BookEntry{
		TokenID:   tokenID,
		BestBid:   bestBid,
		BestAsk:   bestAsk,
		BidSize:   bidSize,
		AskSize:   askSize,
		UpdatedAt: time.Now(),
	}
}

// Get returns the entry for a token if present, regardless of age.
func (c *PriceCache) Get(tokenID string) (*BookEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[tokenID]
	return e, ok
}

// GetFresh returns the entry only if it is younger than maxAge and counts
// the lookup as a hit or miss.
func (c *PriceCache) GetFresh(tokenID string, maxAge time.Duration) (*BookEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[tokenID]
	if !ok || time.Since(e.UpdatedAt) > maxAge {
		c.misses++
		return nil, false
	}
	c.hits++
	return e, true
}

// IsFresh reports whether every listed token has an entry younger than maxAge.
func (c *PriceCache) IsFresh(maxAge time.Duration, tokenIDs ...string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := time.Now()
	for _, id := range tokenIDs {
		e, ok := c.entries[id]
		if !ok || now.Sub(e.UpdatedAt) > maxAge {
			return false
		}
	}
	return true
}

// IsStale reports whether a token's entry is missing or older than maxAge.
func (c *PriceCache) IsStale(tokenID string, maxAge time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[tokenID]
	return !ok || time.Since(e.UpdatedAt) > maxAge
}

// Stats returns cumulative hit/miss counters.
func (c *PriceCache) Stats() (hits, misses uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Len returns the number of cached tokens.
func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry. Counters survive.
func (c *PriceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*BookEntry)
}
