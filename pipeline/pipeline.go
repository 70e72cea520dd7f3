// Package pipeline runs one paired opportunity end to end: admission,
// leg construction, execution and recording. Every stage failure is
// contained; the caller's polling loop never sees a panic.
package pipeline

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/snipebot/execution"
	"github.com/web3guy0/snipebot/position"
	"github.com/web3guy0/snipebot/risk"
	"github.com/web3guy0/snipebot/strategy"
	"github.com/web3guy0/snipebot/types"
)

// Status classifies one pipeline pass.
type Status string

const (
	StatusCommitted Status = "committed"
	StatusUnwound   Status = "unwound"
	StatusAbandoned Status = "abandoned" // neither leg filled
	StatusRejected  Status = "rejected"  // admission said no
	StatusSkipped   Status = "skipped"   // duplicate, halted or killed
	StatusFailed    Status = "failed"    // contract or transport error
)

// Result is the outcome of one Process call.
type Result struct {
	Status  Status
	Reasons []string
	Tx      *execution.PairedTransaction
	Shares  decimal.Decimal
	CostUSD decimal.Decimal
	Profit  decimal.Decimal
	Halted  bool // unwind budget exhausted, no further paired entries
}

// TradeStore persists executed trade legs.
type TradeStore interface {
	RecordTrade(rec *types.TradeRecord) error
}

// PaperSink receives simulated paired trades for offline analysis.
type PaperSink interface {
	Append(opp *strategy.PairedOpportunity, shares, costUSD, profit decimal.Decimal)
}

// Config tunes the pipeline.
type Config struct {
	StakeUSD    decimal.Decimal
	MaxAttempts int             // unwind attempts before halting
	SlippageCap decimal.Decimal // cumulative unwind slippage pct before halting
}

// DefaultConfig returns the paper-trading defaults.
func DefaultConfig() Config {
	return Config{
		StakeUSD:    decimal.NewFromInt(20),
		MaxAttempts: 3,
		SlippageCap: decimal.NewFromFloat(5.0),
	}
}

// CycleSummary aggregates pipeline outcomes for one snipe window.
type CycleSummary struct {
	Detected    int
	Committed   int
	Unwound     int
	Abandoned   int
	Rejected    int
	Failed      int
	GrossProfit decimal.Decimal
	DeployedUSD decimal.Decimal
}

// Pipeline is the cyclic dutch-book path: duplicate check, risk check,
// build both legs, execute, record both legs.
type Pipeline struct {
	cfg      Config
	pos      *position.Manager
	riskCtl  *risk.Controller
	exec     *execution.Executor
	kill     *execution.KillSwitch
	store    TradeStore
	paperLog PaperSink

	mu      sync.Mutex
	halted  bool
	done    map[string]struct{}
	cycle   CycleSummary
	session CycleSummary
}

// New wires the pipeline. kill, store and paperLog may be nil.
func New(cfg Config, pos *position.Manager, riskCtl *risk.Controller,
	exec *execution.Executor, kill *execution.KillSwitch,
	store TradeStore, paperLog PaperSink) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		pos:      pos,
		riskCtl:  riskCtl,
		exec:     exec,
		kill:     kill,
		store:    store,
		paperLog: paperLog,
		done:     make(map[string]struct{}),
	}
}

// Halted reports whether paired entries are stopped for the session.
func (p *Pipeline) Halted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.halted
}

// StartCycle resets the per-window summary.
func (p *Pipeline) StartCycle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cycle = CycleSummary{}
}

// Cycle returns the current window's summary.
func (p *Pipeline) Cycle() CycleSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cycle
}

// Session returns the lifetime summary.
func (p *Pipeline) Session() CycleSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// Process runs one opportunity through the full path. It never panics;
// a stage blowing up is converted into a failed result.
func (p *Pipeline) Process(ctx context.Context, opp *strategy.PairedOpportunity) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("market", opp.Market.ID).Interface("panic", r).Msg("Pipeline stage panicked")
			res = Result{Status: StatusFailed, Reasons: []string{"internal error"}}
			p.count(res)
		}
	}()

	res = p.process(ctx, opp)
	p.count(res)
	return res
}

func (p *Pipeline) process(ctx context.Context, opp *strategy.PairedOpportunity) Result {
	p.mu.Lock()
	halted := p.halted
	_, attempted := p.done[opp.Market.ID]
	p.mu.Unlock()
	if halted {
		return Result{Status: StatusSkipped, Reasons: []string{"paired entries halted"}}
	}
	if attempted {
		return Result{Status: StatusSkipped, Reasons: []string{"already attempted this market"}}
	}
	if p.kill != nil && p.kill.IsActive() {
		return Result{Status: StatusSkipped, Reasons: []string{"kill switch active"}}
	}

	// Duplicate check: one open position per market, both strategies share
	// the ledger.
	if p.pos.HasPosition(opp.Market.ID) {
		return Result{Status: StatusSkipped, Reasons: []string{"position already open"}}
	}

	// Risk check.
	stats := p.pos.GetStats()
	risked := p.riskCtl.Check(decimal.Zero, stats.TotalInvested, p.cfg.StakeUSD)
	if !risked.Approved {
		return Result{Status: StatusRejected, Reasons: risked.Reasons}
	}

	// Build both legs: shares from the allowed stake, bounded by book depth.
	stake := decimal.Min(p.cfg.StakeUSD, risked.AllowedSize)
	shares := stake.Div(opp.TotalCost)
	if opp.MaxShares.IsPositive() {
		shares = decimal.Min(shares, opp.MaxShares)
	}
	if !shares.IsPositive() {
		return Result{Status: StatusRejected, Reasons: []string{"no executable size"}}
	}

	// Execute.
	tx, err := p.exec.ExecutePair(ctx, opp.Market, opp.YesAsk, opp.NoAsk, shares)
	if err != nil {
		return Result{Status: StatusFailed, Reasons: []string{err.Error()}, Tx: tx}
	}

	// Both legs went to the venue. Re-detections of this market are
	// suppressed whatever the outcome; rejections before execution may
	// still re-qualify later in the window.
	p.mu.Lock()
	p.done[opp.Market.ID] = struct{}{}
	p.mu.Unlock()

	res := Result{Tx: tx, Shares: shares}

	if tx.ShouldHalt(p.cfg.MaxAttempts, p.cfg.SlippageCap) {
		p.mu.Lock()
		p.halted = true
		p.mu.Unlock()
		res.Halted = true
		log.Error().Str("market", opp.Market.ID).Msg("🛑 Halting paired entries: unwind budget exhausted")
	}

	switch tx.State {
	case execution.PairCommitted:
		res.Status = StatusCommitted
		res.Profit = tx.GrossProfit()
		res.CostUSD = opp.TotalCost.Mul(shares)
		p.pos.RecordPairedEntry(opp.Market, opp.TotalCost, shares)
		p.record(opp, shares, res.CostUSD, res.Profit)
	case execution.PairUnwound:
		res.Status = StatusUnwound
	case execution.PairNoneConfirmed:
		res.Status = StatusAbandoned
	default:
		// A PARTIAL state survived every unwind attempt: the naked leg is
		// still held and the halt above stops further paired entries.
		res.Status = StatusFailed
		res.Reasons = append(res.Reasons, "unwind failed, naked leg held")
	}
	return res
}

// record persists both legs and appends the paper-trade line.
func (p *Pipeline) record(opp *strategy.PairedOpportunity, shares, cost, profit decimal.Decimal) {
	if p.store != nil {
		for _, side := range []types.Side{types.SideYes, types.SideNo} {
			price := opp.YesAsk
			if side == types.SideNo {
				price = opp.NoAsk
			}
			rec := &types.TradeRecord{
				MarketID:  opp.Market.ID,
				Question:  opp.Market.Question,
				Side:      side,
				Price:     price,
				SizeUSD:   price.Mul(shares),
				Shares:    shares,
				Paper:     true,
				Strategy:  "paired_entry",
				Timestamp: opp.DetectedAt,
			}
			if err := p.store.RecordTrade(rec); err != nil {
				log.Warn().Err(err).Str("market", opp.Market.ID).Msg("Trade persist failed")
			}
		}
	}

	if p.paperLog != nil {
		p.paperLog.Append(opp, shares, cost, profit)
	}
}

func (p *Pipeline) count(res Result) {
	// Skips are re-detections of the same book state (duplicate position,
	// halted session); counting them would swamp the summary.
	if res.Status == StatusSkipped {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range []*CycleSummary{&p.cycle, &p.session} {
		s.Detected++
		switch res.Status {
		case StatusCommitted:
			s.Committed++
			s.GrossProfit = s.GrossProfit.Add(res.Profit)
			s.DeployedUSD = s.DeployedUSD.Add(res.CostUSD)
		case StatusUnwound:
			s.Unwound++
		case StatusAbandoned:
			s.Abandoned++
		case StatusRejected:
			s.Rejected++
		case StatusFailed:
			s.Failed++
		}
	}
}

// LogSession emits the lifetime summary, called at shutdown.
func (p *Pipeline) LogSession() {
	s := p.Session()
	log.Info().
		Int("detected", s.Detected).
		Int("committed", s.Committed).
		Int("unwound", s.Unwound).
		Int("abandoned", s.Abandoned).
		Int("rejected", s.Rejected).
		Int("failed", s.Failed).
		Str("gross_profit", s.GrossProfit.StringFixed(2)).
		Str("deployed_usd", s.DeployedUSD.StringFixed(2)).
		Msg("📊 Paired pipeline session summary")
}
