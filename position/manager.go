package position

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/snipebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POSITION MANAGER - admission control + ledger
// ═══════════════════════════════════════════════════════════════════════════════
//
// The single authority on "can a new position be opened right now, and how
// large" and "what happened when a position settled". Entry can be invoked
// from several concurrently polling monitors, so the read-check-then-write
// sequence runs under one lock.

// Config caps how capital may be deployed. Zero means "no limit" for the
// optional caps.
type Config struct {
	Bankroll           decimal.Decimal
	MaxPerMarket       decimal.Decimal
	MinPositionSize    decimal.Decimal
	MaxDailyDeployment decimal.Decimal
	MaxCycleEntries    int
	MaxCycleBudget     decimal.Decimal
	MaxConcurrentPos   int
	MaxExposureRatio   decimal.Decimal
	MoneylineMinPrice  decimal.Decimal
	StatePath          string
}

// DefaultConfig mirrors the paper-trading defaults.
func DefaultConfig() Config {
	return Config{
		Bankroll:          decimal.NewFromInt(1000),
		MaxPerMarket:      decimal.NewFromInt(100),
		MinPositionSize:   decimal.NewFromInt(1),
		MoneylineMinPrice: decimal.NewFromFloat(0.35),
	}
}

// Manager owns the position ledger and bankroll.
type Manager struct {
	mu  sync.Mutex
	cfg Config

	bankroll        decimal.Decimal
	initialBankroll decimal.Decimal
	totalInvested   decimal.Decimal
	cumulativePnL   decimal.Decimal
	totalSettled    int
	wins            int
	losses          int

	positions      map[string]*types.Position
	eventOUEntries map[string]bool

	dailyDeployed  decimal.Decimal
	dailyResetDate string

	cycleEntries  int
	cycleDeployed decimal.Decimal
}

// NewManager creates a manager with a fresh ledger.
func NewManager(cfg Config) *Manager {
	if cfg.MinPositionSize.IsZero() {
		cfg.MinPositionSize = decimal.NewFromInt(1)
	}
	return &Manager{
		cfg:             cfg,
		bankroll:        cfg.Bankroll,
		initialBankroll: cfg.Bankroll,
		positions:       make(map[string]*types.Position),
		eventOUEntries:  make(map[string]bool),
		dailyResetDate:  utcDate(time.Now()),
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// ADMISSION
// ═══════════════════════════════════════════════════════════════════════════════

// ShouldSkipEntry runs the domain filters that precede any capital check.
// Returns a reason when the entry must be skipped.
func (m *Manager) ShouldSkipEntry(market *types.Market, triggerPrice decimal.Decimal, triggerSide types.Side) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shouldSkipLocked(market, triggerPrice)
}

func (m *Manager) shouldSkipLocked(market *types.Market, triggerPrice decimal.Decimal) (bool, string) {
	marketType := types.DetectMarketType(market.Question)

	// Extreme-underdog filter: long-shot moneyline quotes on sports books
	// are usually stale or thin, not value.
	if market.Source.IsSport() && marketType == types.TypeMoneyline &&
		m.cfg.MoneylineMinPrice.IsPositive() && triggerPrice.LessThan(m.cfg.MoneylineMinPrice) {
		return true, fmt.Sprintf("moneyline price %s below floor %s",
			triggerPrice.StringFixed(2), m.cfg.MoneylineMinPrice.StringFixed(2))
	}

	// One over/under entry per parent event: a game's O/U line variants all
	// express the same bet.
	if marketType == types.TypeOverUnder && market.EventID != "" && m.eventOUEntries[market.EventID] {
		return true, fmt.Sprintf("event %s already has an O/U entry", market.EventID)
	}

	return false, ""
}

// CanEnter reports whether a new position in the market would be admitted.
// Reasons are informational; the authoritative check happens again inside
// EnterPosition under the same lock.
func (m *Manager) CanEnter(marketID string) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canEnterLocked(marketID)
}

func (m *Manager) canEnterLocked(marketID string) (bool, string) {
	m.checkDayResetLocked()

	if _, open := m.positions[marketID]; open {
		return false, "position already open for market"
	}
	if m.bankroll.LessThan(m.cfg.MinPositionSize) {
		return false, "insufficient bankroll"
	}
	if m.cfg.MaxConcurrentPos > 0 && len(m.positions) >= m.cfg.MaxConcurrentPos {
		return false, fmt.Sprintf("max concurrent positions reached (%d)", m.cfg.MaxConcurrentPos)
	}
	if m.cfg.MaxExposureRatio.IsPositive() && m.initialBankroll.IsPositive() {
		exposure := m.totalInvested.Div(m.initialBankroll)
		if exposure.GreaterThanOrEqual(m.cfg.MaxExposureRatio) {
			return false, fmt.Sprintf("exposure ratio %s at limit %s",
				exposure.StringFixed(2), m.cfg.MaxExposureRatio.StringFixed(2))
		}
	}
	if m.cfg.MaxCycleEntries > 0 && m.cycleEntries >= m.cfg.MaxCycleEntries {
		return false, fmt.Sprintf("cycle entry limit reached (%d)", m.cfg.MaxCycleEntries)
	}
	if m.cfg.MaxDailyDeployment.IsPositive() {
		room := m.cfg.MaxDailyDeployment.Sub(m.dailyDeployed)
		if room.LessThan(m.cfg.MinPositionSize) {
			return false, "daily deployment cap reached"
		}
	}
	if m.cfg.MaxCycleBudget.IsPositive() {
		room := m.cfg.MaxCycleBudget.Sub(m.cycleDeployed)
		if room.LessThan(m.cfg.MinPositionSize) {
			return false, "cycle budget exhausted"
		}
	}

	return true, ""
}

// EnterPosition opens a position if every gate passes. Size is the minimum
// of the per-market cap, remaining bankroll, remaining daily room and
// remaining cycle budget; a request below the minimum size is rejected.
// Returns nil without error on a normal admission rejection.
func (m *Manager) EnterPosition(market *types.Market, side types.Side, price decimal.Decimal) (*types.Position, error) {
	if !price.IsPositive() || price.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("invalid entry price %s", price.String())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if skip, reason := m.shouldSkipLocked(market, price); skip {
		log.Debug().Str("market", market.ID).Str("reason", reason).Msg("Entry filtered")
		return nil, nil
	}
	if ok, reason := m.canEnterLocked(market.ID); !ok {
		log.Debug().Str("market", market.ID).Str("reason", reason).Msg("Entry rejected")
		return nil, nil
	}

	size := decimal.Min(m.cfg.MaxPerMarket, m.bankroll)
	if m.cfg.MaxDailyDeployment.IsPositive() {
		size = decimal.Min(size, m.cfg.MaxDailyDeployment.Sub(m.dailyDeployed))
	}
	if m.cfg.MaxCycleBudget.IsPositive() {
		size = decimal.Min(size, m.cfg.MaxCycleBudget.Sub(m.cycleDeployed))
	}
	if size.LessThan(m.cfg.MinPositionSize) {
		log.Debug().Str("market", market.ID).Str("size", size.StringFixed(2)).Msg("Entry below minimum size")
		return nil, nil
	}

	pos := &types.Position{
		MarketID:   market.ID,
		Question:   market.Question,
		Side:       side,
		SideLabel:  side.String(),
		EntryPrice: price,
		SizeUSD:    size,
		Shares:     size.Div(price),
		EntryTime:  time.Now().UTC(),
		EndDate:    market.EndDate,
		Status:     types.PositionOpen,
	}

	m.positions[market.ID] = pos
	m.bankroll = m.bankroll.Sub(size)
	m.totalInvested = m.totalInvested.Add(size)
	m.dailyDeployed = m.dailyDeployed.Add(size)
	m.cycleEntries++
	m.cycleDeployed = m.cycleDeployed.Add(size)

	if types.DetectMarketType(market.Question) == types.TypeOverUnder && market.EventID != "" {
		m.eventOUEntries[market.EventID] = true
	}

	log.Info().
		Str("market", market.ID).
		Str("side", side.String()).
		Str("price", price.StringFixed(4)).
		Str("size", size.StringFixed(2)).
		Str("shares", pos.Shares.StringFixed(2)).
		Str("bankroll", m.bankroll.StringFixed(2)).
		Msg("📈 Position opened")

	m.saveLocked()
	return pos, nil
}

// RecordPairedEntry books a committed YES+NO pair as one open position.
// Execution already happened when this runs, so no admission gates apply:
// this is pure accounting, deducting the combined cost from the bankroll
// and raising exposure so the portfolio caps see paired capital.
func (m *Manager) RecordPairedEntry(market *types.Market, combinedPrice, shares decimal.Decimal) *types.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkDayResetLocked()

	cost := combinedPrice.Mul(shares)
	pos := &types.Position{
		MarketID:   market.ID,
		Question:   market.Question,
		Side:       types.SideYes,
		SideLabel:  types.SideYes.String(),
		EntryPrice: combinedPrice,
		SizeUSD:    cost,
		Shares:     shares,
		Paired:     true,
		EntryTime:  time.Now().UTC(),
		EndDate:    market.EndDate,
		Status:     types.PositionOpen,
	}

	m.positions[market.ID] = pos
	m.bankroll = m.bankroll.Sub(cost)
	m.totalInvested = m.totalInvested.Add(cost)
	m.dailyDeployed = m.dailyDeployed.Add(cost)
	m.cycleEntries++
	m.cycleDeployed = m.cycleDeployed.Add(cost)

	log.Info().
		Str("market", market.ID).
		Str("cpp", combinedPrice.StringFixed(4)).
		Str("cost", cost.StringFixed(2)).
		Str("shares", shares.StringFixed(2)).
		Str("bankroll", m.bankroll.StringFixed(2)).
		Msg("🤝 Paired position booked")

	m.saveLocked()
	return pos
}

// ═══════════════════════════════════════════════════════════════════════════════
// SETTLEMENT
// ═══════════════════════════════════════════════════════════════════════════════

// SettlePosition resolves a position. The entry cost was deducted at
// entry, so only winning payouts flow back. Unknown or already-settled
// market ids are a harmless no-op: settlement is driven by periodic
// re-checks and duplicates must not double-count.
func (m *Manager) SettlePosition(marketID string, winner types.Side) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[marketID]
	if !ok {
		return decimal.Zero
	}

	var pnl decimal.Decimal
	switch {
	case pos.Paired:
		// A paired holding owns both sides: $1 per share whichever wins.
		payout := pos.Shares
		m.bankroll = m.bankroll.Add(payout)
		pnl = payout.Sub(pos.SizeUSD)
		if pnl.IsNegative() {
			m.losses++
		} else {
			m.wins++
		}
	case pos.Side == winner:
		payout := pos.Shares // $1 per share
		m.bankroll = m.bankroll.Add(payout)
		pnl = payout.Sub(pos.SizeUSD)
		m.wins++
	default:
		pnl = pos.SizeUSD.Neg()
		m.losses++
	}

	m.cumulativePnL = m.cumulativePnL.Add(pnl)
	m.totalSettled++
	m.totalInvested = m.totalInvested.Sub(pos.SizeUSD)
	pos.Status = types.PositionSettled
	delete(m.positions, marketID)

	log.Info().
		Str("market", marketID).
		Str("winner", winner.String()).
		Str("pnl", pnl.StringFixed(2)).
		Str("bankroll", m.bankroll.StringFixed(2)).
		Msg("🏁 Position settled")

	m.saveLocked()
	return pnl
}

// ResetCycleEntries clears the per-cycle counters at the start of each
// discovery cycle. This bounds burst risk when one scan qualifies an
// unusually large batch of signals.
func (m *Manager) ResetCycleEntries() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycleEntries = 0
	m.cycleDeployed = decimal.Zero
}

// checkDayResetLocked resets the daily counter when the stored UTC date
// string no longer matches today. Date comparison, not a timer.
func (m *Manager) checkDayResetLocked() {
	today := utcDate(time.Now())
	if m.dailyResetDate != today {
		log.Info().
			Str("previous", m.dailyResetDate).
			Str("deployed", m.dailyDeployed.StringFixed(2)).
			Msg("🌅 Daily deployment counter reset")
		m.dailyResetDate = today
		m.dailyDeployed = decimal.Zero
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// SNAPSHOTS
// ═══════════════════════════════════════════════════════════════════════════════

// Bankroll returns the current free bankroll. Best-effort for reporting.
func (m *Manager) Bankroll() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bankroll
}

// OpenPositions returns a copy of the active set.
func (m *Manager) OpenPositions() map[string]types.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]types.Position, len(m.positions))
	for id, p := range m.positions {
		out[id] = *p
	}
	return out
}

// HasPosition reports whether a market has an open position.
func (m *Manager) HasPosition(marketID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.positions[marketID]
	return ok
}

// Stats is an aggregate snapshot for reporting.
type Stats struct {
	Bankroll        decimal.Decimal
	InitialBankroll decimal.Decimal
	TotalInvested   decimal.Decimal
	CumulativePnL   decimal.Decimal
	OpenPositions   int
	TotalSettled    int
	Wins            int
	Losses          int
	DailyDeployed   decimal.Decimal
}

// GetStats returns the aggregate counters.
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Bankroll:        m.bankroll,
		InitialBankroll: m.initialBankroll,
		TotalInvested:   m.totalInvested,
		CumulativePnL:   m.cumulativePnL,
		OpenPositions:   len(m.positions),
		TotalSettled:    m.totalSettled,
		Wins:            m.wins,
		Losses:          m.losses,
		DailyDeployed:   m.dailyDeployed,
	}
}

func utcDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
