package execution

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/snipebot/types"
)

// fakeSubmitter fails orders on the configured tokens and accepts the rest.
type fakeSubmitter struct {
	mu        sync.Mutex
	failBuys  map[string]bool
	failSells map[string]bool
	calls     []string
}

func (f *fakeSubmitter) PlaceOrder(_ context.Context, tokenID string, action Action, _, _ decimal.Decimal) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, string(action)+":"+tokenID)
	if action == ActionBuy && f.failBuys[tokenID] {
		return "", errors.New("insufficient liquidity")
	}
	if action == ActionSell && f.failSells[tokenID] {
		return "", errors.New("no bids")
	}
	return "order-" + tokenID, nil
}

func pairMarket() *types.Market {
	return &types.Market{
		ID:         "m1",
		Question:   "Will BTC be above $120,000 at 3pm ET?",
		Source:     types.SourceHourlyCrypto,
		YesTokenID: "tok-yes",
		NoTokenID:  "tok-no",
	}
}

func TestExecutor_PaperPairCommits(t *testing.T) {
	e := NewExecutor(nil, DefaultExecutorConfig())

	tx, err := e.ExecutePair(context.Background(), pairMarket(), d("0.40"), d("0.45"), d("100"))
	require.NoError(t, err)

	assert.Equal(t, PairCommitted, tx.State)
	assert.True(t, tx.IsTerminal())
	assert.True(t, tx.GrossProfit().Equal(d("15.00")))
}

func TestExecutor_PartialFillUnwinds(t *testing.T) {
	sub := &fakeSubmitter{failBuys: map[string]bool{"tok-no": true}}
	cfg := DefaultExecutorConfig()
	cfg.PaperMode = false
	cfg.MaxRetries = 0
	e := NewExecutor(sub, cfg)

	tx, err := e.ExecutePair(context.Background(), pairMarket(), d("0.40"), d("0.45"), d("100"))
	require.NoError(t, err)

	// YES filled, NO failed: the YES leg is sold back.
	assert.Equal(t, PairUnwound, tx.State)
	assert.Equal(t, 1, tx.UnwindAttempts())
	assert.True(t, tx.GrossProfit().IsZero())

	sub.mu.Lock()
	defer sub.mu.Unlock()
	assert.Contains(t, sub.calls, "SELL:tok-yes")
}

func TestExecutor_UnwindRetriesUntilBudgetExhausted(t *testing.T) {
	sub := &fakeSubmitter{
		failBuys:  map[string]bool{"tok-no": true},
		failSells: map[string]bool{"tok-yes": true},
	}
	cfg := DefaultExecutorConfig()
	cfg.PaperMode = false
	cfg.MaxRetries = 0
	e := NewExecutor(sub, cfg)

	tx, err := e.ExecutePair(context.Background(), pairMarket(), d("0.40"), d("0.45"), d("100"))
	require.NoError(t, err)

	// Every sell failed: the YES leg is still held, the attempt budget is
	// spent and the halt check fires.
	assert.Equal(t, PairPartialYes, tx.State)
	assert.False(t, tx.IsTerminal())
	assert.Equal(t, 3, tx.UnwindAttempts())
	assert.True(t, tx.ShouldHalt(3, d("5.0")))

	sub.mu.Lock()
	defer sub.mu.Unlock()
	sells := 0
	for _, c := range sub.calls {
		if c == "SELL:tok-yes" {
			sells++
		}
	}
	assert.Equal(t, 3, sells)
}

func TestExecutor_NeitherLegFilled(t *testing.T) {
	sub := &fakeSubmitter{failBuys: map[string]bool{"tok-yes": true, "tok-no": true}}
	cfg := DefaultExecutorConfig()
	cfg.PaperMode = false
	cfg.MaxRetries = 0
	e := NewExecutor(sub, cfg)

	tx, err := e.ExecutePair(context.Background(), pairMarket(), d("0.40"), d("0.45"), d("100"))
	require.NoError(t, err)

	assert.Equal(t, PairNoneConfirmed, tx.State)
	assert.True(t, tx.IsTerminal())
	assert.Equal(t, 0, tx.UnwindAttempts())
}

func TestExecutor_SimulatedFillSlippageAndClamp(t *testing.T) {
	cfg := DefaultExecutorConfig()
	cfg.SlippageBps = 100 // 1%
	e := NewExecutor(nil, cfg)

	res := e.SubmitOrder(context.Background(), "tok", ActionBuy, d("0.50"), d("10"))
	require.True(t, res.Success)
	assert.True(t, res.AvgPx.Equal(d("0.505")), "got %s", res.AvgPx)
	assert.True(t, res.Filled.Equal(d("10")))

	// Sells slip downward.
	res = e.SubmitOrder(context.Background(), "tok", ActionSell, d("0.50"), d("10"))
	assert.True(t, res.AvgPx.Equal(d("0.495")))

	// Clamped to the valid price range.
	res = e.SubmitOrder(context.Background(), "tok", ActionBuy, d("0.99"), d("10"))
	assert.True(t, res.AvgPx.Equal(d("0.99")))
	res = e.SubmitOrder(context.Background(), "tok", ActionSell, d("0.01"), d("10"))
	assert.True(t, res.AvgPx.Equal(d("0.01")))
}

func TestExecutor_LiveWithoutClientFails(t *testing.T) {
	cfg := DefaultExecutorConfig()
	cfg.PaperMode = false
	e := NewExecutor(nil, cfg)

	res := e.SubmitOrder(context.Background(), "tok", ActionBuy, d("0.50"), d("10"))
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Err)
}
