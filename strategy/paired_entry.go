package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/snipebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PAIRED ENTRY - dutch-book detection on one binary market
// ═══════════════════════════════════════════════════════════════════════════════
//
// When YES ask + NO ask < $1.00, buying both sides locks in the spread at
// settlement regardless of outcome:
//
//   YES ask $0.45 + NO ask $0.50 = $0.95 -> $0.05/share guaranteed
//
// The profit is only riskless if both legs fill and the spread clears fees.

// PairedConfig tunes the detector.
type PairedConfig struct {
	MaxCombinedCost decimal.Decimal // CPP ceiling
	MinPrice        decimal.Decimal // per-side floor, rejects garbage quotes
	MinSpread       decimal.Decimal // margin floor
	MinSizeUSD      decimal.Decimal // liquidity floor per side
}

// DefaultPairedConfig returns the detector defaults (2% margin ceiling).
func DefaultPairedConfig() PairedConfig {
	return PairedConfig{
		MaxCombinedCost: decimal.NewFromFloat(0.98),
		MinPrice:        decimal.NewFromFloat(0.02),
		MinSpread:       decimal.NewFromFloat(0.015),
		MinSizeUSD:      decimal.NewFromFloat(5),
	}
}

// PairedOpportunity is one detected dutch-book chance.
type PairedOpportunity struct {
	Market     *types.Market
	YesAsk     decimal.Decimal
	NoAsk      decimal.Decimal
	TotalCost  decimal.Decimal
	Spread     decimal.Decimal
	ROIPct     decimal.Decimal
	YesSize    decimal.Decimal
	NoSize     decimal.Decimal
	MaxShares  decimal.Decimal
	DetectedAt time.Time
	Source     string
}

// PotentialProfitUSD is the profit if max executable shares fill.
func (o *PairedOpportunity) PotentialProfitUSD() decimal.Decimal {
	return o.Spread.Mul(o.MaxShares)
}

// PairedEntryDetector checks one market snapshot for a paired entry.
type PairedEntryDetector struct {
	cfg PairedConfig
}

// NewPairedEntryDetector creates a detector.
func NewPairedEntryDetector(cfg PairedConfig) *PairedEntryDetector {
	return &PairedEntryDetector{cfg: cfg}
}

// Detect returns an opportunity when the combined ask cost is below the
// ceiling with enough spread, or nil. Sizes are optional; when both are
// given the per-side liquidity floor applies.
func (d *PairedEntryDetector) Detect(market *types.Market, yesAsk, noAsk *decimal.Decimal, yesSize, noSize decimal.Decimal, source string) *PairedOpportunity {
	if yesAsk == nil || noAsk == nil || !yesAsk.IsPositive() || !noAsk.IsPositive() {
		return nil
	}
	if yesAsk.LessThan(d.cfg.MinPrice) || noAsk.LessThan(d.cfg.MinPrice) {
		return nil
	}

	totalCost := yesAsk.Add(*noAsk)
	spread := decimal.NewFromInt(1).Sub(totalCost)

	if totalCost.GreaterThanOrEqual(d.cfg.MaxCombinedCost) {
		return nil
	}
	if spread.LessThanOrEqual(d.cfg.MinSpread) {
		return nil
	}

	roiPct := spread.Div(totalCost).Mul(decimal.NewFromInt(100))

	maxShares := decimal.Zero
	if yesSize.IsPositive() && noSize.IsPositive() {
		maxShares = decimal.Min(yesSize, noSize)

		yesValue := yesAsk.Mul(yesSize)
		noValue := noAsk.Mul(noSize)
		if yesValue.LessThan(d.cfg.MinSizeUSD) || noValue.LessThan(d.cfg.MinSizeUSD) {
			return nil
		}
	}

	return &PairedOpportunity{
		Market:     market,
		YesAsk:     *yesAsk,
		NoAsk:      *noAsk,
		TotalCost:  totalCost,
		Spread:     spread,
		ROIPct:     roiPct,
		YesSize:    yesSize,
		NoSize:     noSize,
		MaxShares:  maxShares,
		DetectedAt: time.Now().UTC(),
		Source:     source,
	}
}
