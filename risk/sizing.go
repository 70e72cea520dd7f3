package risk

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POSITION SIZE LIMITER
// ═══════════════════════════════════════════════════════════════════════════════

// SizeLimiter caps one trade by the remaining room under both the
// per-market and the portfolio-wide exposure ceilings. A request is
// resized down to the smaller room rather than rejected; rejection only
// happens when no positive room remains.
type SizeLimiter struct {
	mu           sync.Mutex
	maxPerMarket decimal.Decimal
	maxTotal     decimal.Decimal
}

// NewSizeLimiter creates a limiter with per-market and portfolio caps.
func NewSizeLimiter(maxPerMarket, maxTotal decimal.Decimal) *SizeLimiter {
	return &SizeLimiter{
		maxPerMarket: maxPerMarket,
		maxTotal:     maxTotal,
	}
}

// Check returns the allowed size for a new trade given current exposures.
func (s *SizeLimiter) Check(marketExposure, totalExposure, requested decimal.Decimal) (bool, decimal.Decimal, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	marketRoom := s.maxPerMarket.Sub(marketExposure)
	totalRoom := s.maxTotal.Sub(totalExposure)

	allowed := decimal.Min(requested, marketRoom, totalRoom)
	if allowed.LessThanOrEqual(decimal.Zero) {
		return false, decimal.Zero, fmt.Sprintf(
			"no position room: market %s/%s, portfolio %s/%s",
			marketExposure.StringFixed(2), s.maxPerMarket.StringFixed(2),
			totalExposure.StringFixed(2), s.maxTotal.StringFixed(2))
	}

	return true, allowed, ""
}
