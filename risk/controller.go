package risk

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RISK CONTROLLER - composite approve/reject gate
// ═══════════════════════════════════════════════════════════════════════════════

// Result is the controller's decision. Never an error: a rejection is a
// normal negative outcome with its reasons listed.
type Result struct {
	Approved    bool
	Reasons     []string
	AllowedSize decimal.Decimal
}

// Config tunes the composite gate.
type Config struct {
	DailyLossLimit  decimal.Decimal
	MaxPerMarket    decimal.Decimal
	MaxTotal        decimal.Decimal
	MaxConsecLosses int
	Cooldown        time.Duration
	DryRun          bool
}

// DefaultConfig mirrors the paper-trading defaults.
func DefaultConfig() Config {
	return Config{
		DailyLossLimit:  decimal.NewFromInt(500),
		MaxPerMarket:    decimal.NewFromInt(1000),
		MaxTotal:        decimal.NewFromInt(5000),
		MaxConsecLosses: 3,
		Cooldown:        5 * time.Minute,
		DryRun:          true,
	}
}

// Controller combines the daily-loss limiter, the cooldown manager and
// the size limiter into one decision. All three checks always run so the
// reasons are observable; dry-run mode force-approves but keeps them.
type Controller struct {
	lossLimiter *DailyLossLimiter
	cooldown    *CooldownManager
	sizeLimiter *SizeLimiter
	dryRun      bool
}

// NewController wires the three sub-limiters.
func NewController(cfg Config) *Controller {
	log.Info().
		Str("daily_loss_limit", cfg.DailyLossLimit.StringFixed(2)).
		Str("max_per_market", cfg.MaxPerMarket.StringFixed(2)).
		Str("max_total", cfg.MaxTotal.StringFixed(2)).
		Int("max_consecutive_losses", cfg.MaxConsecLosses).
		Dur("cooldown", cfg.Cooldown).
		Bool("dry_run", cfg.DryRun).
		Msg("🛡️ Risk controller initialized")

	return &Controller{
		lossLimiter: NewDailyLossLimiter(cfg.DailyLossLimit),
		cooldown:    NewCooldownManager(cfg.MaxConsecLosses, cfg.Cooldown),
		sizeLimiter: NewSizeLimiter(cfg.MaxPerMarket, cfg.MaxTotal),
		dryRun:      cfg.DryRun,
	}
}

// Check evaluates a proposed trade against every limiter.
func (c *Controller) Check(marketExposure, totalExposure, requested decimal.Decimal) Result {
	res := Result{Approved: true, AllowedSize: requested}

	if ok, reason := c.lossLimiter.Check(); !ok {
		res.Approved = false
		res.Reasons = append(res.Reasons, reason)
	}

	if ok, _, reason := c.cooldown.Check(); !ok {
		res.Approved = false
		res.Reasons = append(res.Reasons, reason)
	}

	ok, allowed, reason := c.sizeLimiter.Check(marketExposure, totalExposure, requested)
	if !ok {
		res.Approved = false
		res.Reasons = append(res.Reasons, reason)
		res.AllowedSize = decimal.Zero
	} else {
		res.AllowedSize = allowed
	}

	if !res.Approved && c.dryRun {
		log.Info().Strs("reasons", res.Reasons).Msg("🧪 Dry run: approving despite rejections")
		res.Approved = true
		if res.AllowedSize.IsZero() {
			res.AllowedSize = requested
		}
	}

	return res
}

// RecordResult feeds one settled trade back into the limiters.
func (c *Controller) RecordResult(pnl decimal.Decimal) {
	if pnl.IsNegative() {
		c.lossLimiter.RecordLoss(pnl.Neg())
		c.cooldown.RecordLoss()
	} else if pnl.IsPositive() {
		c.cooldown.RecordWin()
	}
}

// DailyLoss exposes today's realized loss for reporting.
func (c *Controller) DailyLoss() decimal.Decimal {
	return c.lossLimiter.DailyLoss()
}

// LossStreak exposes the consecutive-loss count for reporting.
func (c *Controller) LossStreak() int {
	return c.cooldown.Streak()
}
