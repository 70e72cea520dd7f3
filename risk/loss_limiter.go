package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DAILY LOSS LIMITER
// ═══════════════════════════════════════════════════════════════════════════════

// DailyLossLimiter rejects new entries once today's realized losses reach
// the ceiling. The counter resets when the stored UTC date string no
// longer matches today.
type DailyLossLimiter struct {
	mu            sync.Mutex
	limit         decimal.Decimal
	dailyLoss     decimal.Decimal
	lastResetDate string
}

// NewDailyLossLimiter creates a limiter with the given USD ceiling.
func NewDailyLossLimiter(limit decimal.Decimal) *DailyLossLimiter {
	return &DailyLossLimiter{
		limit:         limit,
		lastResetDate: time.Now().UTC().Format("2006-01-02"),
	}
}

// RecordLoss adds a realized loss. Amounts are positive USD.
func (l *DailyLossLimiter) RecordLoss(amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.maybeResetLocked()
	if amount.IsPositive() {
		l.dailyLoss = l.dailyLoss.Add(amount)
	}
}

// Check reports whether new entries are still allowed today.
func (l *DailyLossLimiter) Check() (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.maybeResetLocked()
	if l.dailyLoss.GreaterThanOrEqual(l.limit) {
		return false, fmt.Sprintf("daily loss limit reached: $%s >= $%s",
			l.dailyLoss.StringFixed(2), l.limit.StringFixed(2))
	}
	return true, ""
}

// DailyLoss returns today's cumulative realized loss.
func (l *DailyLossLimiter) DailyLoss() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maybeResetLocked()
	return l.dailyLoss
}

func (l *DailyLossLimiter) maybeResetLocked() {
	today := time.Now().UTC().Format("2006-01-02")
	if l.lastResetDate != today {
		log.Info().
			Str("previous", l.lastResetDate).
			Str("loss", l.dailyLoss.StringFixed(2)).
			Msg("🌅 Daily loss counter reset")
		l.lastResetDate = today
		l.dailyLoss = decimal.Zero
	}
}
