package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/web3guy0/snipebot/execution"
	"github.com/web3guy0/snipebot/feeds"
	"github.com/web3guy0/snipebot/pipeline"
	"github.com/web3guy0/snipebot/position"
	"github.com/web3guy0/snipebot/risk"
	"github.com/web3guy0/snipebot/strategy"
	"github.com/web3guy0/snipebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EVENT LOOP - phase-driven orchestration
// ═══════════════════════════════════════════════════════════════════════════════
//
// One long-lived loop that switches behavior by schedule phase:
//
//   IDLE     -> settlement checks, bounded sleeps
//   PRE_OPEN -> discover upcoming markets, warm connections
//   SNIPE    -> tiered sub-second polling, fan-out over all pairs
//   COOLDOWN -> relaxed fixed-interval polling
//
// Every pair poll tries the WS price cache first and degrades to an HTTP
// book fetch per pair, per tick. One pair's failure never aborts a batch.

// MarketFinder discovers markets expected to open next. Returns an empty
// slice on any upstream failure.
type MarketFinder interface {
	DiscoverUpcoming(ctx context.Context) []types.Market
}

// BookFetcher fetches top-of-book over HTTP and pre-warms connections.
type BookFetcher interface {
	FetchBestAsks(ctx context.Context, yesTokenID, noTokenID string) feeds.BestAsks
	WarmConnection(ctx context.Context, tokenID string)
}

// Resolver reports whether a market has settled and which side won.
type Resolver interface {
	Resolution(ctx context.Context, marketID string) (types.Side, bool)
}

// PairSubscriber registers token pairs with the push feed.
type PairSubscriber interface {
	SubscribePair(yesTokenID, noTokenID string) error
}

// Notifier sends fire-and-forget alerts. Implementations swallow errors.
type Notifier interface {
	Notify(text string)
}

// TradeStore persists executed trade legs, detected opportunities and
// settlement outcomes.
type TradeStore interface {
	RecordTrade(rec *types.TradeRecord) error
	RecordOpportunity(opp *strategy.PairedOpportunity, traded bool) error
	RecordSettlement(marketID string, winner types.Side, pnl decimal.Decimal) error
}

// LoopConfig tunes the event loop.
type LoopConfig struct {
	WSCacheMaxAge    time.Duration
	MaxParallel      int
	CooldownInterval time.Duration
	IdleInterval     time.Duration
	SnipeStakeUSD    decimal.Decimal // requested size per single-side entry
	PairedCryptoOnly bool
}

// DefaultLoopConfig returns the loop defaults.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		WSCacheMaxAge:    5 * time.Second,
		MaxParallel:      10,
		CooldownInterval: 5 * time.Second,
		IdleInterval:     30 * time.Second,
		SnipeStakeUSD:    decimal.NewFromInt(100),
		PairedCryptoOnly: true,
	}
}

// EventLoop drives discovery, polling, detection and trade recording.
type EventLoop struct {
	cfg      LoopConfig
	schedule *MarketOpenSchedule

	finder   MarketFinder
	books    BookFetcher
	cache    *feeds.PriceCache
	resolver Resolver
	ws       PairSubscriber
	sniper   *strategy.OpenSniperDetector
	paired   *strategy.PairedEntryDetector
	pos      *position.Manager
	riskCtl  *risk.Controller
	pipe     *pipeline.Pipeline
	kill     *execution.KillSwitch
	notifier Notifier
	store    TradeStore

	mu           sync.Mutex
	tracked      []types.Market
	preparedOpen time.Time

	// cycle stats
	wsCacheHits   uint64
	httpFallbacks uint64
	cycleEntries  int
	cycleReported bool

	killResetDate string // UTC date of the last kill-switch daily reset
}

// NewEventLoop wires the orchestrator. ws, notifier and store may be nil.
func NewEventLoop(
	cfg LoopConfig,
	schedule *MarketOpenSchedule,
	finder MarketFinder,
	books BookFetcher,
	cache *feeds.PriceCache,
	resolver Resolver,
	ws PairSubscriber,
	sniper *strategy.OpenSniperDetector,
	paired *strategy.PairedEntryDetector,
	pos *position.Manager,
	riskCtl *risk.Controller,
	pipe *pipeline.Pipeline,
	kill *execution.KillSwitch,
	notifier Notifier,
	store TradeStore,
) *EventLoop {
	return &EventLoop{
		cfg:      cfg,
		schedule: schedule,
		finder:   finder,
		books:    books,
		cache:    cache,
		resolver: resolver,
		ws:       ws,
		sniper:   sniper,
		paired:   paired,
		pos:      pos,
		riskCtl:  riskCtl,
		pipe:     pipe,
		kill:     kill,
		notifier: notifier,
		store:    store,
	}
}

// Run blocks until the context is cancelled. It stops scheduling new
// ticks on cancellation but never aborts an in-flight tick.
func (l *EventLoop) Run(ctx context.Context) {
	log.Info().Msg("🚀 Event loop starting...")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Event loop stopped")
			return
		default:
		}

		now := time.Now()
		switch l.schedule.CurrentPhase(now) {
		case PhasePreOpen:
			l.handlePreOpen(ctx, now)
		case PhaseSnipe:
			l.handleSnipe(ctx, now)
		case PhaseCooldown:
			l.handleCooldown(ctx, now)
		default:
			l.handleIdle(ctx, now)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// PHASE HANDLERS
// ═══════════════════════════════════════════════════════════════════════════════

// handlePreOpen discovers markets opening next and warms connections,
// then sleeps to the open instant.
func (l *EventLoop) handlePreOpen(ctx context.Context, now time.Time) {
	open := l.schedule.NextOpen(now)

	l.mu.Lock()
	alreadyPrepared := l.preparedOpen.Equal(open)
	l.mu.Unlock()

	if !alreadyPrepared {
		l.prepare(ctx, open)
	}

	sleepUntil(ctx, open)
}

// prepare runs once per open: discovery, token indexing, subscription,
// connection warm-up and cycle counter resets.
func (l *EventLoop) prepare(ctx context.Context, open time.Time) {
	log.Info().Time("open", open).Msg("🔭 Pre-open: discovering markets")

	markets := l.finder.DiscoverUpcoming(ctx)

	l.mu.Lock()
	l.tracked = markets
	l.preparedOpen = open
	l.cycleEntries = 0
	l.cycleReported = false
	l.wsCacheHits = 0
	l.httpFallbacks = 0
	l.mu.Unlock()

	l.pos.ResetCycleEntries()
	l.pipe.StartCycle()

	for i := range markets {
		m := &markets[i]
		if l.ws != nil {
			if err := l.ws.SubscribePair(m.YesTokenID, m.NoTokenID); err != nil {
				log.Debug().Err(err).Str("market", m.ID).Msg("WS subscribe failed")
			}
		}
		// Best-effort: a cold TLS handshake inside the snipe window costs
		// more than the fastest polling tier.
		l.books.WarmConnection(ctx, m.YesTokenID)
	}

	log.Info().Int("pairs", len(markets)).Msg("✅ Pre-open preparation complete")
}

// handleSnipe polls every pair at the tier interval for this instant.
func (l *EventLoop) handleSnipe(ctx context.Context, now time.Time) {
	l.pollAllPairs(ctx, now)
	sleep(ctx, l.snipeInterval(l.schedule.SinceOpen(now)))
}

// handleCooldown keeps polling at one relaxed interval.
func (l *EventLoop) handleCooldown(ctx context.Context, now time.Time) {
	l.pollAllPairs(ctx, now)
	sleep(ctx, l.cfg.CooldownInterval)
}

// handleIdle reports the finished cycle, checks settlements and sleeps in
// bounded increments so the pre-open window is never missed.
func (l *EventLoop) handleIdle(ctx context.Context, now time.Time) {
	l.reportCycle()
	l.resetKillCounterOnRollover(now)
	l.checkSettlements(ctx)

	wait := l.cfg.IdleInterval
	untilPre := l.schedule.UntilOpen(now) - l.schedule.preOpenWindow
	if untilPre > 0 && untilPre < wait {
		wait = untilPre
	}
	sleep(ctx, wait)
}

// snipeInterval shrinks with proximity to the open: the edge decays in
// seconds, so the first ticks matter most.
func (l *EventLoop) snipeInterval(sinceOpen time.Duration) time.Duration {
	switch {
	case sinceOpen <= 10*time.Second:
		return 200 * time.Millisecond
	case sinceOpen <= 30*time.Second:
		return 500 * time.Millisecond
	default:
		return time.Second
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// PAIR POLLING
// ═══════════════════════════════════════════════════════════════════════════════

// pollAllPairs fans out over every tracked pair with bounded concurrency.
// Each pair is isolated: a failure is logged and the rest of the batch
// continues.
func (l *EventLoop) pollAllPairs(ctx context.Context, now time.Time) {
	l.mu.Lock()
	tracked := l.tracked
	l.mu.Unlock()

	if len(tracked) == 0 {
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(l.cfg.MaxParallel)

	for i := range tracked {
		m := &tracked[i]
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("market", m.ID).Interface("panic", r).Msg("Pair poll panicked")
				}
			}()
			l.pollPair(ctx, m, now)
			return nil
		})
	}
	_ = g.Wait()
}

// pollPair obtains one snapshot (cache first, HTTP fallback) and runs
// both opportunity checks on it.
func (l *EventLoop) pollPair(ctx context.Context, market *types.Market, now time.Time) {
	yesAsk, noAsk, yesSize, noSize, source := l.snapshot(ctx, market)
	if yesAsk == nil && noAsk == nil {
		return
	}

	if sig := l.sniper.Detect(market, yesAsk, noAsk, l.schedule.SinceOpen(now), source); sig != nil {
		l.recordSnipe(ctx, sig)
	}

	if l.cfg.PairedCryptoOnly && market.Source != types.SourceHourlyCrypto {
		return
	}
	if opp := l.paired.Detect(market, yesAsk, noAsk, yesSize, noSize, source); opp != nil {
		l.recordPaired(ctx, opp)
	}
}

// snapshot returns best asks for both legs, preferring the WS cache when
// both entries are fresh.
func (l *EventLoop) snapshot(ctx context.Context, market *types.Market) (yesAsk, noAsk *decimal.Decimal, yesSize, noSize decimal.Decimal, source string) {
	if l.cache != nil && l.cache.IsFresh(l.cfg.WSCacheMaxAge, market.YesTokenID, market.NoTokenID) {
		yes, okY := l.cache.GetFresh(market.YesTokenID, l.cfg.WSCacheMaxAge)
		no, okN := l.cache.GetFresh(market.NoTokenID, l.cfg.WSCacheMaxAge)
		if okY && okN && yes.BestAsk.IsPositive() && no.BestAsk.IsPositive() {
			l.mu.Lock()
			l.wsCacheHits++
			l.mu.Unlock()
			ya, na := yes.BestAsk, no.BestAsk
			return &ya, &na, yes.AskSize, no.AskSize, "ws_cache"
		}
	}

	l.mu.Lock()
	l.httpFallbacks++
	l.mu.Unlock()

	ba := l.books.FetchBestAsks(ctx, market.YesTokenID, market.NoTokenID)
	return ba.YesAsk, ba.NoAsk, ba.YesSize, ba.NoSize, "http_poll"
}

// ═══════════════════════════════════════════════════════════════════════════════
// TRADE RECORDING
// ═══════════════════════════════════════════════════════════════════════════════

// recordSnipe runs a single-side signal through admission and opens the
// position.
func (l *EventLoop) recordSnipe(ctx context.Context, sig *strategy.SnipeSignal) {
	if l.kill != nil && l.kill.IsActive() {
		log.Warn().Str("reason", l.kill.Reason()).Msg("🛑 Kill switch active, skipping entry")
		return
	}

	stats := l.pos.GetStats()
	res := l.riskCtl.Check(decimal.Zero, stats.TotalInvested, l.cfg.SnipeStakeUSD)
	if !res.Approved {
		log.Info().Strs("reasons", res.Reasons).Str("market", sig.Market.ID).Msg("❌ Entry rejected by risk controller")
		return
	}

	pos, err := l.pos.EnterPosition(sig.Market, sig.Side, sig.Price)
	if err != nil {
		log.Warn().Err(err).Str("market", sig.Market.ID).Msg("Entry failed")
		return
	}
	if pos == nil {
		return
	}

	l.mu.Lock()
	l.cycleEntries++
	l.mu.Unlock()

	l.persistTrade(&types.TradeRecord{
		MarketID:  sig.Market.ID,
		Question:  sig.Market.Question,
		Side:      sig.Side,
		Price:     sig.Price,
		SizeUSD:   pos.SizeUSD,
		Shares:    pos.Shares,
		Paper:     true,
		Strategy:  "open_sniper",
		Timestamp: sig.DetectedAt,
	})

	l.notify(fmt.Sprintf("🎯 Snipe entry: %s %s @ %s ($%s, conf %.0f%%)",
		sig.Side, truncateQuestion(sig.Market.Question), sig.Price.StringFixed(3),
		pos.SizeUSD.StringFixed(2), sig.Confidence*100))
}

// recordPaired hands one opportunity to the paired pipeline.
func (l *EventLoop) recordPaired(ctx context.Context, opp *strategy.PairedOpportunity) {
	res := l.pipe.Process(ctx, opp)

	if l.store != nil && res.Status != pipeline.StatusSkipped {
		if err := l.store.RecordOpportunity(opp, res.Status == pipeline.StatusCommitted); err != nil {
			log.Warn().Err(err).Str("market", opp.Market.ID).Msg("Opportunity persist failed")
		}
	}

	if res.Halted {
		l.notify("🛑 Paired entries halted: unwind budget exhausted")
	}

	switch res.Status {
	case pipeline.StatusRejected:
		log.Info().Strs("reasons", res.Reasons).Str("market", opp.Market.ID).Msg("❌ Paired entry rejected")
	case pipeline.StatusCommitted:
		l.mu.Lock()
		l.cycleEntries++
		l.mu.Unlock()

		l.notify(fmt.Sprintf("🤝 Paired entry: %s CPP %s, %s shares, locked $%s (%s%% ROI)",
			truncateQuestion(opp.Market.Question), opp.TotalCost.StringFixed(3),
			res.Shares.StringFixed(0), res.Profit.StringFixed(2), opp.ROIPct.StringFixed(1)))
	}
}

// checkSettlements resolves open positions against the venue. Duplicate
// or late settlements are harmless no-ops in the ledger.
func (l *EventLoop) checkSettlements(ctx context.Context) {
	if l.resolver == nil {
		return
	}

	for id := range l.pos.OpenPositions() {
		winner, resolved := l.resolver.Resolution(ctx, id)
		if !resolved {
			continue
		}

		pnl := l.pos.SettlePosition(id, winner)
		l.riskCtl.RecordResult(pnl)
		if l.store != nil {
			if err := l.store.RecordSettlement(id, winner, pnl); err != nil {
				log.Warn().Err(err).Str("market", id).Msg("Settlement persist failed")
			}
		}
		if pnl.IsNegative() && l.kill != nil {
			if l.kill.RecordLoss(pnl.Neg()) {
				l.notify("🛑 Kill switch tripped by daily loss limit")
			}
		}

		l.notify(fmt.Sprintf("🏁 Settled %s: winner %s, P&L $%s", id, winner, pnl.StringFixed(2)))
	}
}

// resetKillCounterOnRollover clears the kill switch's daily loss counter
// once per UTC day. The switch itself stays tripped if it already fired.
func (l *EventLoop) resetKillCounterOnRollover(now time.Time) {
	if l.kill == nil {
		return
	}

	today := now.UTC().Format("2006-01-02")
	l.mu.Lock()
	rolled := l.killResetDate != "" && l.killResetDate != today
	l.killResetDate = today
	l.mu.Unlock()

	if rolled {
		l.kill.ResetDaily()
		log.Info().Msg("🌅 Daily loss counter reset")
	}
}

// reportCycle logs per-window stats once per idle phase.
func (l *EventLoop) reportCycle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cycleReported || l.preparedOpen.IsZero() {
		return
	}
	l.cycleReported = true

	total := l.wsCacheHits + l.httpFallbacks
	hitPct := float64(0)
	if total > 0 {
		hitPct = float64(l.wsCacheHits) / float64(total) * 100
	}

	paired := l.pipe.Cycle()

	log.Info().
		Int("pairs", len(l.tracked)).
		Int("entries", l.cycleEntries).
		Int("paired_committed", paired.Committed).
		Int("paired_unwound", paired.Unwound).
		Str("paired_profit", paired.GrossProfit.StringFixed(2)).
		Uint64("ws_cache_hits", l.wsCacheHits).
		Uint64("http_fallbacks", l.httpFallbacks).
		Float64("cache_hit_pct", hitPct).
		Msg("📊 Snipe cycle report")
}

func (l *EventLoop) persistTrade(rec *types.TradeRecord) {
	if l.store == nil {
		return
	}
	if err := l.store.RecordTrade(rec); err != nil {
		log.Warn().Err(err).Str("market", rec.MarketID).Msg("Trade persist failed")
	}
}

func (l *EventLoop) notify(text string) {
	if l.notifier != nil {
		l.notifier.Notify(text)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func sleepUntil(ctx context.Context, t time.Time) {
	sleep(ctx, time.Until(t))
}

func truncateQuestion(q string) string {
	if len(q) > 50 {
		return q[:50] + "…"
	}
	return q
}
