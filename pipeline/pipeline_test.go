package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/snipebot/execution"
	"github.com/web3guy0/snipebot/position"
	"github.com/web3guy0/snipebot/risk"
	"github.com/web3guy0/snipebot/strategy"
	"github.com/web3guy0/snipebot/types"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

type memStore struct {
	trades []*types.TradeRecord
}

func (s *memStore) RecordTrade(rec *types.TradeRecord) error {
	s.trades = append(s.trades, rec)
	return nil
}

func dutchBook(marketID string) *strategy.PairedOpportunity {
	return &strategy.PairedOpportunity{
		Market: &types.Market{
			ID:         marketID,
			Question:   "Will BTC be above $120,000 at 3pm ET?",
			Source:     types.SourceHourlyCrypto,
			YesTokenID: "tok-yes",
			NoTokenID:  "tok-no",
		},
		YesAsk:     d("0.45"),
		NoAsk:      d("0.50"),
		TotalCost:  d("0.95"),
		Spread:     d("0.05"),
		MaxShares:  d("150"),
		DetectedAt: time.Now(),
		Source:     "ws_cache",
	}
}

func newTestPipeline(store TradeStore) (*Pipeline, *position.Manager, *risk.Controller) {
	pos := position.NewManager(position.Config{
		Bankroll:     decimal.NewFromInt(1000),
		MaxPerMarket: decimal.NewFromInt(100),
	})
	riskCtl := risk.NewController(risk.Config{
		DailyLossLimit:  d("500"),
		MaxPerMarket:    d("1000"),
		MaxTotal:        d("5000"),
		MaxConsecLosses: 3,
		Cooldown:        5 * time.Minute,
	})
	exec := execution.NewExecutor(nil, execution.DefaultExecutorConfig())
	p := New(DefaultConfig(), pos, riskCtl, exec, nil, store, nil)
	return p, pos, riskCtl
}

func TestPipeline_CommitsAndRecordsBothLegs(t *testing.T) {
	store := &memStore{}
	p, _, _ := newTestPipeline(store)

	res := p.Process(context.Background(), dutchBook("m1"))

	assert.Equal(t, StatusCommitted, res.Status)
	require.NotNil(t, res.Tx)
	assert.Equal(t, execution.PairCommitted, res.Tx.State)
	assert.False(t, res.Halted)

	// $20 stake over $0.95 combined cost, well under the 150-share book cap.
	wantShares := d("20").Div(d("0.95"))
	assert.True(t, res.Shares.Equal(wantShares), "shares %s", res.Shares)
	assert.True(t, res.CostUSD.Round(2).Equal(d("20")), "cost %s", res.CostUSD)
	assert.True(t, res.Profit.IsPositive())

	require.Len(t, store.trades, 2)
	assert.Equal(t, types.SideYes, store.trades[0].Side)
	assert.Equal(t, types.SideNo, store.trades[1].Side)
	assert.Equal(t, "paired_entry", store.trades[0].Strategy)
}

func TestPipeline_CommittedEntryBooksPosition(t *testing.T) {
	p, pos, _ := newTestPipeline(nil)

	res := p.Process(context.Background(), dutchBook("m1"))
	require.Equal(t, StatusCommitted, res.Status)

	// Deployed paired capital shows up in the ledger the risk checks read.
	assert.True(t, pos.HasPosition("m1"))
	stats := pos.GetStats()
	assert.Equal(t, 1, stats.OpenPositions)
	assert.True(t, stats.TotalInvested.Round(2).Equal(d("20")), "invested %s", stats.TotalInvested)
	assert.True(t, stats.Bankroll.Round(2).Equal(d("980")), "bankroll %s", stats.Bankroll)
}

func TestPipeline_PortfolioCapBindsAcrossMarkets(t *testing.T) {
	pos := position.NewManager(position.Config{
		Bankroll:     decimal.NewFromInt(1000),
		MaxPerMarket: decimal.NewFromInt(100),
	})
	riskCtl := risk.NewController(risk.Config{
		DailyLossLimit:  d("500"),
		MaxPerMarket:    d("1000"),
		MaxTotal:        d("50"),
		MaxConsecLosses: 3,
		Cooldown:        5 * time.Minute,
	})
	exec := execution.NewExecutor(nil, execution.DefaultExecutorConfig())
	p := New(DefaultConfig(), pos, riskCtl, exec, nil, nil, nil)

	// Five $20 stakes against a $50 portfolio cap: the first two take the
	// full stake, the rest shrink into whatever room remains.
	for _, id := range []string{"m1", "m2", "m3", "m4", "m5"} {
		p.Process(context.Background(), dutchBook(id))
	}

	// Deployment converges on the cap instead of sailing past it.
	stats := pos.GetStats()
	assert.True(t, stats.TotalInvested.Round(2).Equal(d("50")), "invested %s", stats.TotalInvested)
	assert.True(t, p.Session().DeployedUSD.Round(2).Equal(d("50")), "deployed %s", p.Session().DeployedUSD)
}

func TestPipeline_SharesCappedByBookDepth(t *testing.T) {
	p, _, _ := newTestPipeline(nil)

	opp := dutchBook("m1")
	opp.MaxShares = d("10")
	res := p.Process(context.Background(), opp)

	assert.Equal(t, StatusCommitted, res.Status)
	assert.True(t, res.Shares.Equal(d("10")), "shares %s", res.Shares)
}

func TestPipeline_SkipsWhenPositionAlreadyOpen(t *testing.T) {
	p, pos, _ := newTestPipeline(nil)

	opp := dutchBook("m1")
	_, err := pos.EnterPosition(opp.Market, types.SideYes, d("0.40"))
	require.NoError(t, err)

	res := p.Process(context.Background(), opp)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Contains(t, res.Reasons[0], "already open")

	// Skips stay out of the summaries.
	assert.Equal(t, 0, p.Cycle().Detected)
	assert.Equal(t, 0, p.Session().Detected)
}

func TestPipeline_SuppressesRedetectionAfterExecution(t *testing.T) {
	p, _, _ := newTestPipeline(nil)

	first := p.Process(context.Background(), dutchBook("m1"))
	require.Equal(t, StatusCommitted, first.Status)

	second := p.Process(context.Background(), dutchBook("m1"))
	assert.Equal(t, StatusSkipped, second.Status)

	// A different market still goes through.
	third := p.Process(context.Background(), dutchBook("m2"))
	assert.Equal(t, StatusCommitted, third.Status)
	assert.Equal(t, 2, p.Session().Committed)
}

func TestPipeline_RejectedByRisk(t *testing.T) {
	pos := position.NewManager(position.Config{
		Bankroll:     decimal.NewFromInt(1000),
		MaxPerMarket: decimal.NewFromInt(100),
	})
	riskCtl := risk.NewController(risk.Config{
		DailyLossLimit:  d("500"),
		MaxPerMarket:    d("1000"),
		MaxTotal:        d("5000"),
		MaxConsecLosses: 1,
		Cooldown:        10 * time.Millisecond,
	})
	exec := execution.NewExecutor(nil, execution.DefaultExecutorConfig())
	p := New(DefaultConfig(), pos, riskCtl, exec, nil, nil, nil)

	riskCtl.RecordResult(d("-10"))
	res := p.Process(context.Background(), dutchBook("m1"))

	assert.Equal(t, StatusRejected, res.Status)
	assert.NotEmpty(t, res.Reasons)
	assert.Equal(t, 1, p.Cycle().Rejected)

	// Rejections are not sticky per market: once the cooldown expires the
	// same opportunity can execute.
	time.Sleep(15 * time.Millisecond)
	res = p.Process(context.Background(), dutchBook("m1"))
	assert.Equal(t, StatusCommitted, res.Status)
}

// stuckSubmitter fills the YES buy but rejects the NO buy and every sell,
// so a partial pair can never be unwound.
type stuckSubmitter struct {
	mu    sync.Mutex
	calls int
}

func (s *stuckSubmitter) PlaceOrder(_ context.Context, tokenID string, action execution.Action, _, _ decimal.Decimal) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if action == execution.ActionBuy && tokenID == "tok-yes" {
		return "order-" + tokenID, nil
	}
	return "", errors.New("no liquidity")
}

func TestPipeline_HaltsWhenUnwindBudgetExhausted(t *testing.T) {
	pos := position.NewManager(position.Config{
		Bankroll:     decimal.NewFromInt(1000),
		MaxPerMarket: decimal.NewFromInt(100),
	})
	riskCtl := risk.NewController(risk.Config{
		DailyLossLimit:  d("500"),
		MaxPerMarket:    d("1000"),
		MaxTotal:        d("5000"),
		MaxConsecLosses: 3,
		Cooldown:        5 * time.Minute,
	})
	cfg := execution.DefaultExecutorConfig()
	cfg.PaperMode = false
	cfg.MaxRetries = 0
	exec := execution.NewExecutor(&stuckSubmitter{}, cfg)
	p := New(DefaultConfig(), pos, riskCtl, exec, nil, nil, nil)

	res := p.Process(context.Background(), dutchBook("m1"))

	// The naked leg survived every sell attempt: the pass fails and the
	// session stops taking paired entries.
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Reasons, "unwind failed, naked leg held")
	assert.True(t, res.Halted)
	assert.True(t, p.Halted())

	next := p.Process(context.Background(), dutchBook("m2"))
	assert.Equal(t, StatusSkipped, next.Status)
}

func TestPipeline_KillSwitchSkips(t *testing.T) {
	pos := position.NewManager(position.Config{
		Bankroll:     decimal.NewFromInt(1000),
		MaxPerMarket: decimal.NewFromInt(100),
	})
	riskCtl := risk.NewController(risk.DefaultConfig())
	exec := execution.NewExecutor(nil, execution.DefaultExecutorConfig())
	kill := execution.NewKillSwitch(t.TempDir()+"/KILL_SWITCH", d("500"))
	p := New(DefaultConfig(), pos, riskCtl, exec, kill, nil, nil)

	kill.Activate("test halt")
	res := p.Process(context.Background(), dutchBook("m1"))
	assert.Equal(t, StatusSkipped, res.Status)
}

func TestPipeline_CycleSummaryResets(t *testing.T) {
	p, _, _ := newTestPipeline(nil)

	p.Process(context.Background(), dutchBook("m1"))
	require.Equal(t, 1, p.Cycle().Committed)

	p.StartCycle()
	assert.Equal(t, 0, p.Cycle().Committed)
	// Session totals survive the reset.
	assert.Equal(t, 1, p.Session().Committed)
	assert.True(t, p.Session().GrossProfit.IsPositive())
}
