package execution

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/snipebot/types"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func submittedTx(t *testing.T) *PairedTransaction {
	t.Helper()
	tx := NewPairedTransaction("mkt-1")
	require.NoError(t, tx.Submit(d("0.40"), d("0.45"), d("100")))
	return tx
}

func TestPairedTransaction_SubmitOnlyFromInit(t *testing.T) {
	tx := NewPairedTransaction("mkt-1")
	assert.Equal(t, PairInit, tx.State)

	require.NoError(t, tx.Submit(d("0.40"), d("0.45"), d("100")))
	assert.Equal(t, PairSubmitted, tx.State)

	err := tx.Submit(d("0.40"), d("0.45"), d("100"))
	assert.Error(t, err)
	assert.Equal(t, PairSubmitted, tx.State)
}

func TestPairedTransaction_NoAggregateWhileOneLegPending(t *testing.T) {
	tx := submittedTx(t)

	tx.ConfirmLeg(types.SideYes, d("100"))
	assert.Equal(t, PairSubmitted, tx.State)

	tx.TimeoutLeg(types.SideNo)
	assert.Equal(t, PairPartialYes, tx.State)
}

// Each leg resolves either confirmed-at-target, confirmed-short or timed
// out. The aggregate depends only on whether each leg is confirmed AND
// filled to target.
func TestPairedTransaction_ResolutionTable(t *testing.T) {
	type legOutcome struct {
		confirm bool
		filled  string
	}
	full := legOutcome{confirm: true, filled: "100"}
	short := legOutcome{confirm: true, filled: "60"}
	timeout := legOutcome{confirm: false}

	cases := []struct {
		name string
		yes  legOutcome
		no   legOutcome
		want PairState
	}{
		{"both full", full, full, PairBothConfirmed},
		{"yes full, no short", full, short, PairPartialYes},
		{"yes full, no timeout", full, timeout, PairPartialYes},
		{"yes short, no full", short, full, PairPartialNo},
		{"yes timeout, no full", timeout, full, PairPartialNo},
		{"both short", short, short, PairNoneConfirmed},
		{"yes short, no timeout", short, timeout, PairNoneConfirmed},
		{"yes timeout, no short", timeout, short, PairNoneConfirmed},
		{"both timeout", timeout, timeout, PairNoneConfirmed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := submittedTx(t)

			apply := func(side types.Side, o legOutcome) {
				if o.confirm {
					tx.ConfirmLeg(side, d(o.filled))
				} else {
					tx.TimeoutLeg(side)
				}
			}
			apply(types.SideYes, tc.yes)
			apply(types.SideNo, tc.no)

			assert.Equal(t, tc.want, tx.State)
		})
	}
}

func TestPairedTransaction_CommitContract(t *testing.T) {
	tx := submittedTx(t)
	assert.Error(t, tx.Commit())

	tx.ConfirmLeg(types.SideYes, d("100"))
	tx.ConfirmLeg(types.SideNo, d("100"))
	require.Equal(t, PairBothConfirmed, tx.State)

	require.NoError(t, tx.Commit())
	assert.Equal(t, PairCommitted, tx.State)
	assert.True(t, tx.IsTerminal())

	assert.Error(t, tx.Commit())
}

func TestPairedTransaction_GrossProfit(t *testing.T) {
	tx := submittedTx(t) // 0.40 + 0.45, 100 shares
	tx.ConfirmLeg(types.SideYes, d("100"))
	tx.ConfirmLeg(types.SideNo, d("100"))

	// 100 × (1 − 0.85) = 15.00
	assert.True(t, tx.GrossProfit().Equal(d("15.00")),
		"got %s", tx.GrossProfit())
}

func TestPairedTransaction_GrossProfitUsesSmallerFill(t *testing.T) {
	tx := NewPairedTransaction("mkt-1")
	require.NoError(t, tx.Submit(d("0.40"), d("0.45"), d("100")))
	tx.ConfirmLeg(types.SideYes, d("120"))
	tx.ConfirmLeg(types.SideNo, d("100"))

	// Only the 100 paired shares earn the margin: 100 × 0.15 = 15.00.
	assert.True(t, tx.GrossProfit().Equal(d("15.00")))
}

func TestPairedTransaction_GrossProfitZeroOnShortLeg(t *testing.T) {
	tx := NewPairedTransaction("mkt-1")
	require.NoError(t, tx.Submit(d("0.40"), d("0.45"), d("100")))
	tx.ConfirmLeg(types.SideYes, d("100"))
	tx.ConfirmLeg(types.SideNo, d("80"))

	// 80/100 on the NO leg: partial, not riskless, no profit booked.
	require.Equal(t, PairPartialYes, tx.State)
	assert.True(t, tx.GrossProfit().IsZero())
}

func TestPairedTransaction_GrossProfitZeroWhenLegUnfilled(t *testing.T) {
	tx := submittedTx(t)
	tx.ConfirmLeg(types.SideYes, d("100"))
	tx.TimeoutLeg(types.SideNo)

	assert.True(t, tx.GrossProfit().IsZero())
}

func TestPairedTransaction_NeedsUnwind(t *testing.T) {
	cases := []struct {
		state    PairState
		wantSide types.Side
		want     bool
	}{
		{PairPartialYes, types.SideYes, true},
		{PairPartialNo, types.SideNo, true},
		{PairBothConfirmed, types.SideYes, false},
		{PairNoneConfirmed, types.SideYes, false},
		{PairSubmitted, types.SideYes, false},
	}

	for _, tc := range cases {
		tx := &PairedTransaction{State: tc.state}
		side, need := tx.NeedsUnwind()
		assert.Equal(t, tc.want, need, "state %s", tc.state)
		if need {
			assert.Equal(t, tc.wantSide, side, "state %s", tc.state)
		}
	}
}

func TestPairedTransaction_UnwindLifecycle(t *testing.T) {
	tx := submittedTx(t)
	tx.ConfirmLeg(types.SideYes, d("100"))
	tx.TimeoutLeg(types.SideNo)
	require.Equal(t, PairPartialYes, tx.State)

	tx.RecordUnwind(types.SideYes, false, decimal.Zero, d("1.2"))
	assert.Equal(t, PairPartialYes, tx.State)
	assert.Equal(t, 1, tx.UnwindAttempts())

	tx.RecordUnwind(types.SideYes, true, d("100"), d("0.8"))
	assert.Equal(t, PairUnwound, tx.State)
	assert.True(t, tx.IsTerminal())
}

func TestPairedTransaction_ShouldHalt(t *testing.T) {
	slipCap := d("5.0")

	tx := submittedTx(t)
	assert.False(t, tx.ShouldHalt(3, slipCap))

	// Attempts budget.
	for i := 0; i < 3; i++ {
		tx.RecordUnwind(types.SideYes, false, decimal.Zero, d("0.5"))
	}
	assert.True(t, tx.ShouldHalt(3, slipCap))

	// Slippage budget, attempts still fine.
	tx2 := submittedTx(t)
	tx2.RecordUnwind(types.SideYes, false, decimal.Zero, d("5.1"))
	assert.True(t, tx2.ShouldHalt(3, slipCap))

	// At the cap exactly is still fine.
	tx3 := submittedTx(t)
	tx3.RecordUnwind(types.SideYes, false, decimal.Zero, d("5.0"))
	assert.False(t, tx3.ShouldHalt(3, slipCap))
}
