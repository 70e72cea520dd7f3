package position

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/snipebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// STATE PERSISTENCE - atomic JSON snapshot
// ═══════════════════════════════════════════════════════════════════════════════
//
// The whole ledger is one JSON document, rewritten via temp-file-then-rename
// on every state-changing operation so a crash mid-write can never corrupt
// the file on disk.

// persistedState is the on-disk schema.
type persistedState struct {
	Bankroll         decimal.Decimal            `json:"bankroll"`
	InitialBankroll  decimal.Decimal            `json:"initial_bankroll"`
	MaxPerMarket     decimal.Decimal            `json:"max_per_market"`
	TotalInvested    decimal.Decimal            `json:"total_invested"`
	CumulativePnL    decimal.Decimal            `json:"cumulative_pnl"`
	TotalSettled     int                        `json:"total_settled"`
	Wins             int                        `json:"wins"`
	Losses           int                        `json:"losses"`
	MaxConcurrentPos int                        `json:"max_concurrent_positions"`
	MaxExposureRatio decimal.Decimal            `json:"max_exposure_ratio"`
	EventOUEntries   map[string]bool            `json:"event_ou_entries"`
	Positions        map[string]*types.Position `json:"positions"`
	DailyDeployed    decimal.Decimal            `json:"daily_deployed"`
	DailyResetDate   string                     `json:"daily_reset_date"`
}

// requiredStateKeys must all be present before a state file is trusted.
var requiredStateKeys = []string{
	"bankroll", "initial_bankroll", "max_per_market", "total_invested",
	"cumulative_pnl", "total_settled", "wins", "losses",
	"max_concurrent_positions", "max_exposure_ratio", "event_ou_entries",
	"positions",
}

// SaveState writes the current ledger to the configured path.
func (m *Manager) SaveState() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveStateLocked()
}

// saveLocked persists best-effort after a mutation; failures are logged,
// never propagated into the trading path.
func (m *Manager) saveLocked() {
	if err := m.saveStateLocked(); err != nil {
		log.Warn().Err(err).Msg("Failed to persist position state")
	}
}

func (m *Manager) saveStateLocked() error {
	if m.cfg.StatePath == "" {
		return nil
	}

	state := persistedState{
		Bankroll:         m.bankroll,
		InitialBankroll:  m.initialBankroll,
		MaxPerMarket:     m.cfg.MaxPerMarket,
		TotalInvested:    m.totalInvested,
		CumulativePnL:    m.cumulativePnL,
		TotalSettled:     m.totalSettled,
		Wins:             m.wins,
		Losses:           m.losses,
		MaxConcurrentPos: m.cfg.MaxConcurrentPos,
		MaxExposureRatio: m.cfg.MaxExposureRatio,
		EventOUEntries:   m.eventOUEntries,
		Positions:        m.positions,
		DailyDeployed:    m.dailyDeployed,
		DailyResetDate:   m.dailyResetDate,
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(m.cfg.StatePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".positions-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close state file: %w", err)
	}

	if err := os.Rename(tmpName, m.cfg.StatePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename state file: %w", err)
	}

	return nil
}

// LoadState restores the ledger from disk. A missing file, a parse error
// or missing required keys all fall back to the fresh default state with a
// logged warning; startup never fails on a bad state file.
func (m *Manager) LoadState() {
	if m.cfg.StatePath == "" {
		return
	}

	data, err := os.ReadFile(m.cfg.StatePath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", m.cfg.StatePath).Msg("Could not read state file, starting fresh")
		}
		return
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Warn().Err(err).Str("path", m.cfg.StatePath).Msg("Corrupt state file, starting fresh")
		return
	}
	for _, key := range requiredStateKeys {
		if _, ok := raw[key]; !ok {
			log.Warn().Str("missing_key", key).Str("path", m.cfg.StatePath).Msg("State file missing required key, starting fresh")
			return
		}
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		log.Warn().Err(err).Str("path", m.cfg.StatePath).Msg("Corrupt state file, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.bankroll = state.Bankroll
	m.initialBankroll = state.InitialBankroll
	m.totalInvested = state.TotalInvested
	m.cumulativePnL = state.CumulativePnL
	m.totalSettled = state.TotalSettled
	m.wins = state.Wins
	m.losses = state.Losses
	m.cfg.MaxPerMarket = state.MaxPerMarket
	m.cfg.MaxConcurrentPos = state.MaxConcurrentPos
	m.cfg.MaxExposureRatio = state.MaxExposureRatio
	m.dailyDeployed = state.DailyDeployed
	if state.DailyResetDate != "" {
		m.dailyResetDate = state.DailyResetDate
	}

	m.eventOUEntries = state.EventOUEntries
	if m.eventOUEntries == nil {
		m.eventOUEntries = make(map[string]bool)
	}

	m.positions = make(map[string]*types.Position)
	for id, pos := range state.Positions {
		side, err := types.ParseSide(pos.SideLabel)
		if err != nil {
			log.Warn().Str("market", id).Str("side", pos.SideLabel).Msg("Skipping position with invalid side")
			continue
		}
		pos.Side = side
		m.positions[id] = pos
	}

	log.Info().
		Str("bankroll", m.bankroll.StringFixed(2)).
		Int("positions", len(m.positions)).
		Str("path", m.cfg.StatePath).
		Msg("📥 Position state restored")
}
