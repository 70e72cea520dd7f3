package execution

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/snipebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PAIRED TRANSACTION - two-leg atomic order lifecycle
// ═══════════════════════════════════════════════════════════════════════════════
//
// A paired entry is only riskless if both legs fill. A partial fill turns a
// risk-free trade into a naked directional position, so the lifecycle makes
// "partial fill -> must unwind" an explicit transition.

// PairState is the aggregate state of one paired attempt.
type PairState string

const (
	PairInit          PairState = "INIT"
	PairSubmitted     PairState = "SUBMITTED"
	PairBothConfirmed PairState = "BOTH_CONFIRMED"
	PairPartialYes    PairState = "PARTIAL_YES"
	PairPartialNo     PairState = "PARTIAL_NO"
	PairNoneConfirmed PairState = "NONE_CONFIRMED"
	PairCommitted     PairState = "COMMITTED"
	PairUnwound       PairState = "UNWOUND"
)

// LegStatus tracks one leg of the pair. Confirmed is a strict
// fill-quantity predicate; fill price quality plays no part in it.
type LegStatus struct {
	Price     decimal.Decimal
	Target    decimal.Decimal
	Filled    decimal.Decimal
	Confirmed bool
	TimedOut  bool
	OrderID   string
}

// IsFilled reports whether the leg reached its target.
func (l *LegStatus) IsFilled() bool {
	return l.Target.IsPositive() && l.Filled.GreaterThanOrEqual(l.Target)
}

// resolved means the leg's outcome is known, one way or the other.
func (l *LegStatus) resolved() bool {
	return l.Confirmed || l.TimedOut
}

// PairedTransaction is one attempt to acquire both legs of a YES+NO trade.
// One instance per attempt; never reused. The submitting goroutine owns it.
type PairedTransaction struct {
	ID       string
	MarketID string
	Yes      LegStatus
	No       LegStatus
	State    PairState

	unwindAttempts int
	unwindSlippage decimal.Decimal
	unwoundShares  decimal.Decimal
}

// NewPairedTransaction creates a transaction in INIT.
func NewPairedTransaction(marketID string) *PairedTransaction {
	return &PairedTransaction{
		ID:       uuid.NewString(),
		MarketID: marketID,
		State:    PairInit,
	}
}

// Submit records both legs' prices and targets and moves to SUBMITTED.
// Legal only from INIT.
func (t *PairedTransaction) Submit(yesPrice, noPrice, shares decimal.Decimal) error {
	if t.State != PairInit {
		return fmt.Errorf("submit from %s: transaction already submitted", t.State)
	}
	t.Yes = LegStatus{Price: yesPrice, Target: shares}
	t.No = LegStatus{Price: noPrice, Target: shares}
	t.State = PairSubmitted
	return nil
}

// ConfirmLeg records a fill for one side and marks it confirmed.
func (t *PairedTransaction) ConfirmLeg(side types.Side, filledShares decimal.Decimal) {
	leg := t.leg(side)
	leg.Filled = filledShares
	leg.Confirmed = true
	t.updateState()
}

// TimeoutLeg marks one side as unconfirmed due to timeout.
func (t *PairedTransaction) TimeoutLeg(side types.Side) {
	t.leg(side).TimedOut = true
	t.updateState()
}

// updateState recomputes the aggregate once both legs are resolved.
// A no-op while either leg is still pending.
func (t *PairedTransaction) updateState() {
	if t.State != PairSubmitted {
		return
	}
	if !t.Yes.resolved() || !t.No.resolved() {
		return
	}

	yesOK := t.Yes.Confirmed && t.Yes.IsFilled()
	noOK := t.No.Confirmed && t.No.IsFilled()

	switch {
	case yesOK && noOK:
		t.State = PairBothConfirmed
	case yesOK:
		t.State = PairPartialYes
	case noOK:
		t.State = PairPartialNo
	default:
		t.State = PairNoneConfirmed
	}
}

// NeedsUnwind returns the side that must be sold back to cash, if any.
func (t *PairedTransaction) NeedsUnwind() (types.Side, bool) {
	switch t.State {
	case PairPartialYes:
		return types.SideYes, true
	case PairPartialNo:
		return types.SideNo, true
	}
	return types.SideYes, false
}

// RecordUnwind accumulates one unwind attempt. On success the transaction
// reaches UNWOUND.
func (t *PairedTransaction) RecordUnwind(side types.Side, success bool, soldShares, slippagePct decimal.Decimal) {
	t.unwindAttempts++
	t.unwindSlippage = t.unwindSlippage.Add(slippagePct)
	if success {
		t.unwoundShares = t.unwoundShares.Add(soldShares)
		t.State = PairUnwound
	}
}

// Commit finalizes a fully-confirmed pair. Legal only from BOTH_CONFIRMED.
func (t *PairedTransaction) Commit() error {
	if t.State != PairBothConfirmed {
		return fmt.Errorf("commit from %s: both legs must be confirmed", t.State)
	}
	t.State = PairCommitted
	return nil
}

// GrossProfit is sharesPaired × (1 − CPP) rounded to cents, where
// sharesPaired is the smaller fill. Zero unless both legs reached their
// target: a short leg means the pair is not riskless and books nothing.
func (t *PairedTransaction) GrossProfit() decimal.Decimal {
	if !t.Yes.IsFilled() || !t.No.IsFilled() {
		return decimal.Zero
	}
	paired := decimal.Min(t.Yes.Filled, t.No.Filled)
	margin := decimal.NewFromInt(1).Sub(t.Yes.Price.Add(t.No.Price))
	return paired.Mul(margin).Round(2)
}

// IsTerminal reports whether no further transitions are possible.
func (t *PairedTransaction) IsTerminal() bool {
	switch t.State {
	case PairCommitted, PairUnwound, PairNoneConfirmed:
		return true
	}
	return false
}

// UnwindAttempts returns how many unwind attempts were recorded.
func (t *PairedTransaction) UnwindAttempts() int {
	return t.unwindAttempts
}

// ShouldHalt signals the caller to stop attempting paired entries
// system-wide: too many unwind attempts or too much cumulative slippage.
func (t *PairedTransaction) ShouldHalt(maxAttempts int, slippageCapPct decimal.Decimal) bool {
	if t.unwindAttempts >= maxAttempts {
		return true
	}
	return t.unwindSlippage.GreaterThan(slippageCapPct)
}

func (t *PairedTransaction) leg(side types.Side) *LegStatus {
	if side == types.SideYes {
		return &t.Yes
	}
	return &t.No
}
