package execution

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/web3guy0/snipebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EXECUTION LAYER - Order submission and paired-entry lifecycle
// ═══════════════════════════════════════════════════════════════════════════════
//
// Order Flow:
//   Detector → Risk → Executor → CLOB API
//                  ↓
//          PairedTransaction
//             ↓    ↓    ↓
//      COMMITTED  UNWOUND  NONE_CONFIRMED
//
// ═══════════════════════════════════════════════════════════════════════════════

// Action is the order direction on one token.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Submitter places one order at the venue. Implemented by CLOBClient;
// replaced by paper simulation in dry-run mode.
type Submitter interface {
	PlaceOrder(ctx context.Context, tokenID string, action Action, price, size decimal.Decimal) (orderID string, err error)
}

// ExecutorConfig holds executor settings
type ExecutorConfig struct {
	MaxRetries     int           // per-order retries (default: 2)
	FillTimeout    time.Duration // wait for fill before timing a leg out
	PaperMode      bool          // simulate fills
	SlippageBps    int           // simulated slippage in bps (default: 10)
	UnwindAttempts int           // sell attempts for a naked leg (default: 3)
}

// DefaultExecutorConfig returns sensible defaults
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxRetries:     2,
		FillTimeout:    5 * time.Second,
		PaperMode:      true,
		SlippageBps:    10,
		UnwindAttempts: 3,
	}
}

// Executor submits single orders and drives paired transactions. Submission
// never panics and never returns a Go error to the caller: every failure is
// reported inside the OrderResult.
type Executor struct {
	mu     sync.RWMutex
	config ExecutorConfig
	client Submitter

	totalOrders  int64
	filledOrders int64
	failedOrders int64
	totalVolume  decimal.Decimal
}

// NewExecutor creates an execution manager. client may be nil in paper mode.
func NewExecutor(client Submitter, config ExecutorConfig) *Executor {
	mode := "PAPER"
	if !config.PaperMode {
		mode = "LIVE"
	}

	log.Info().
		Str("mode", mode).
		Int("max_retries", config.MaxRetries).
		Dur("fill_timeout", config.FillTimeout).
		Msg("⚡ Executor initialized")

	return &Executor{config: config, client: client}
}

// SubmitOrder places one order and reports the outcome.
func (e *Executor) SubmitOrder(ctx context.Context, tokenID string, action Action, price, size decimal.Decimal) types.OrderResult {
	e.mu.Lock()
	e.totalOrders++
	e.mu.Unlock()

	log.Info().
		Str("token", shortToken(tokenID)).
		Str("action", string(action)).
		Str("price", price.StringFixed(4)).
		Str("size", size.StringFixed(2)).
		Msg("📤 Order submitted")

	if e.config.PaperMode {
		return e.simulateFill(tokenID, action, price, size)
	}
	return e.executeLive(ctx, tokenID, action, price, size)
}

// simulateFill fills the full size at the quoted price plus slippage.
func (e *Executor) simulateFill(tokenID string, action Action, price, size decimal.Decimal) types.OrderResult {
	slippage := decimal.NewFromInt(int64(e.config.SlippageBps)).
		Div(decimal.NewFromInt(10000))

	fillPrice := price
	if action == ActionBuy {
		fillPrice = price.Mul(decimal.NewFromInt(1).Add(slippage))
	} else {
		fillPrice = price.Mul(decimal.NewFromInt(1).Sub(slippage))
	}

	// Clamp fill price to valid range
	if fillPrice.LessThan(decimal.NewFromFloat(0.01)) {
		fillPrice = decimal.NewFromFloat(0.01)
	}
	if fillPrice.GreaterThan(decimal.NewFromFloat(0.99)) {
		fillPrice = decimal.NewFromFloat(0.99)
	}

	e.mu.Lock()
	e.filledOrders++
	e.totalVolume = e.totalVolume.Add(fillPrice.Mul(size))
	e.mu.Unlock()

	log.Info().
		Str("token", shortToken(tokenID)).
		Str("fill_price", fillPrice.StringFixed(4)).
		Str("size", size.StringFixed(2)).
		Msg("✅ Order filled (PAPER)")

	return types.OrderResult{
		Success: true,
		OrderID: "paper-" + uuid.NewString(),
		Filled:  size,
		AvgPx:   fillPrice,
	}
}

// executeLive sends the order to the CLOB with bounded retry.
func (e *Executor) executeLive(ctx context.Context, tokenID string, action Action, price, size decimal.Decimal) types.OrderResult {
	if e.client == nil {
		return types.OrderResult{Err: "no CLOB client configured"}
	}

	var orderID string
	var err error

	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		orderID, err = e.client.PlaceOrder(ctx, tokenID, action, price, size)
		if err == nil {
			break
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Str("token", shortToken(tokenID)).
			Msg("⚠️ Order submission failed, retrying...")

		if attempt < e.config.MaxRetries {
			select {
			case <-ctx.Done():
				return types.OrderResult{Err: ctx.Err().Error()}
			case <-time.After(time.Duration(100*(attempt+1)) * time.Millisecond):
			}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.failedOrders++
		log.Error().Err(err).Str("token", shortToken(tokenID)).Msg("❌ Order failed after retries")
		return types.OrderResult{Err: err.Error()}
	}

	// The venue is authoritative for fills; treat an accepted FOK order as
	// filled at the limit price until reconciliation says otherwise.
	e.filledOrders++
	e.totalVolume = e.totalVolume.Add(price.Mul(size))

	log.Info().Str("order_id", orderID).Str("token", shortToken(tokenID)).Msg("✅ Order filled (LIVE)")

	return types.OrderResult{
		Success: true,
		OrderID: orderID,
		Filled:  size,
		AvgPx:   price,
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// PAIRED EXECUTION
// ═══════════════════════════════════════════════════════════════════════════════

// ExecutePair drives one paired transaction end to end: submit both legs
// concurrently, confirm or time out each leg, then commit or unwind. The
// returned transaction is terminal unless every unwind attempt failed, in
// which case it stays PARTIAL with the naked leg held and the spent
// attempt budget trips the caller's halt check.
func (e *Executor) ExecutePair(ctx context.Context, market *types.Market, yesAsk, noAsk, shares decimal.Decimal) (*PairedTransaction, error) {
	tx := NewPairedTransaction(market.ID)
	if err := tx.Submit(yesAsk, noAsk, shares); err != nil {
		return tx, err
	}

	legCtx, cancel := context.WithTimeout(ctx, e.config.FillTimeout)
	defer cancel()

	type legResult struct {
		side   types.Side
		result types.OrderResult
	}
	results := make([]legResult, 2)

	g, gctx := errgroup.WithContext(legCtx)
	for i, side := range []types.Side{types.SideYes, types.SideNo} {
		i, side := i, side
		price := yesAsk
		if side == types.SideNo {
			price = noAsk
		}
		g.Go(func() error {
			results[i] = legResult{side: side, result: e.SubmitOrder(gctx, market.TokenID(side), ActionBuy, price, shares)}
			return nil
		})
	}
	_ = g.Wait()

	for _, lr := range results {
		leg := tx.leg(lr.side)
		leg.OrderID = lr.result.OrderID
		if lr.result.Success {
			tx.ConfirmLeg(lr.side, lr.result.Filled)
		} else {
			tx.TimeoutLeg(lr.side)
		}
	}

	switch tx.State {
	case PairBothConfirmed:
		if err := tx.Commit(); err != nil {
			return tx, err
		}
		log.Info().
			Str("market", market.ID).
			Str("profit", tx.GrossProfit().StringFixed(2)).
			Msg("🤝 Paired entry committed")
	case PairPartialYes, PairPartialNo:
		e.unwindPartial(ctx, market, tx)
	case PairNoneConfirmed:
		log.Warn().Str("market", market.ID).Msg("Neither leg filled, no capital committed")
	}

	return tx, nil
}

// unwindPartial sells back the filled leg of a partial pair, retrying up
// to the configured attempt budget.
func (e *Executor) unwindPartial(ctx context.Context, market *types.Market, tx *PairedTransaction) {
	side, ok := tx.NeedsUnwind()
	if !ok {
		return
	}
	leg := tx.leg(side)

	log.Warn().
		Str("market", market.ID).
		Str("side", side.String()).
		Str("shares", leg.Filled.StringFixed(2)).
		Msg("⚠️ Partial fill, unwinding exposed leg")

	for attempt := 1; attempt <= e.config.UnwindAttempts; attempt++ {
		res := e.SubmitOrder(ctx, market.TokenID(side), ActionSell, leg.Price, leg.Filled)

		slippage := decimal.Zero
		if res.Success && leg.Price.IsPositive() {
			slippage = leg.Price.Sub(res.AvgPx).Div(leg.Price).Mul(decimal.NewFromInt(100))
		}
		tx.RecordUnwind(side, res.Success, res.Filled, slippage)

		if res.Success {
			return
		}
		log.Error().
			Str("market", market.ID).
			Int("attempt", attempt).
			Str("err", res.Err).
			Msg("❌ Unwind attempt failed")
	}

	log.Error().
		Str("market", market.ID).
		Str("side", side.String()).
		Str("shares", leg.Filled.StringFixed(2)).
		Msg("🚨 Unwind budget exhausted, naked leg still held")
}

// Metrics returns execution counters.
func (e *Executor) Metrics() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()

	fillRate := float64(0)
	if e.totalOrders > 0 {
		fillRate = float64(e.filledOrders) / float64(e.totalOrders) * 100
	}

	return map[string]interface{}{
		"total_orders":  e.totalOrders,
		"filled_orders": e.filledOrders,
		"failed_orders": e.failedOrders,
		"fill_rate":     fillRate,
		"total_volume":  e.totalVolume.StringFixed(2),
	}
}

func shortToken(id string) string {
	if len(id) > 16 {
		return id[:16] + "..."
	}
	return id
}
