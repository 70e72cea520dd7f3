package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/snipebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// OPEN SNIPER - cheap-side detection right after market open
// ═══════════════════════════════════════════════════════════════════════════════
//
// EDGE:
//   - Quotes in the first seconds after an hourly open are often stale
//     leftovers from the previous window
//   - A side offered well below fair value can be bought before market
//     makers reprice
//   - Confidence decays as the book matures: by the end of the snipe
//     window the edge is mostly gone
//
// ═══════════════════════════════════════════════════════════════════════════════

// SniperConfig tunes the open-sniper detector.
type SniperConfig struct {
	Threshold          decimal.Decimal // best-ask at or below this fires
	Window             time.Duration   // seconds after open the edge lasts
	MinMeaningfulPrice decimal.Decimal // rejects near-zero garbage quotes
}

// DefaultSniperConfig returns the paper-trading defaults.
func DefaultSniperConfig() SniperConfig {
	return SniperConfig{
		Threshold:          decimal.NewFromFloat(0.48),
		Window:             60 * time.Second,
		MinMeaningfulPrice: decimal.NewFromFloat(0.02),
	}
}

// SnipeSignal is a detected single-side entry opportunity.
type SnipeSignal struct {
	Market     *types.Market
	Side       types.Side
	Price      decimal.Decimal
	Confidence float64
	SinceOpen  time.Duration
	DetectedAt time.Time
	Source     string
}

// OpenSniperDetector fires when either leg's best ask sits at or below
// the threshold shortly after the open.
type OpenSniperDetector struct {
	cfg SniperConfig
}

// NewOpenSniperDetector creates a detector.
func NewOpenSniperDetector(cfg SniperConfig) *OpenSniperDetector {
	return &OpenSniperDetector{cfg: cfg}
}

// Detect checks both legs and returns the cheaper qualifying side, or nil.
// sinceOpen must be the elapsed time since the market's open boundary.
func (d *OpenSniperDetector) Detect(market *types.Market, yesAsk, noAsk *decimal.Decimal, sinceOpen time.Duration, source string) *SnipeSignal {
	if sinceOpen < 0 || sinceOpen > d.cfg.Window {
		return nil
	}

	side, price, ok := d.cheapestValidSide(yesAsk, noAsk)
	if !ok {
		return nil
	}

	return &SnipeSignal{
		Market:     market,
		Side:       side,
		Price:      price,
		Confidence: d.confidence(sinceOpen),
		SinceOpen:  sinceOpen,
		DetectedAt: time.Now().UTC(),
		Source:     source,
	}
}

// cheapestValidSide picks the lower ask that clears the garbage floor and
// sits at or below the threshold.
func (d *OpenSniperDetector) cheapestValidSide(yesAsk, noAsk *decimal.Decimal) (types.Side, decimal.Decimal, bool) {
	valid := func(p *decimal.Decimal) bool {
		return p != nil && p.GreaterThanOrEqual(d.cfg.MinMeaningfulPrice) && p.LessThanOrEqual(d.cfg.Threshold)
	}

	yesOK := valid(yesAsk)
	noOK := valid(noAsk)

	switch {
	case yesOK && noOK:
		if yesAsk.LessThanOrEqual(*noAsk) {
			return types.SideYes, *yesAsk, true
		}
		return types.SideNo, *noAsk, true
	case yesOK:
		return types.SideYes, *yesAsk, true
	case noOK:
		return types.SideNo, *noAsk, true
	}
	return types.SideYes, decimal.Zero, false
}

// confidence starts at 1.0 at the open and decays linearly to 0.5 at the
// end of the window.
func (d *OpenSniperDetector) confidence(sinceOpen time.Duration) float64 {
	frac := sinceOpen.Seconds() / d.cfg.Window.Seconds()
	return 1.0 - frac*0.5
}
