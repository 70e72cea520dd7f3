package scheduler

import (
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MARKET OPEN SCHEDULE - pure wall-clock phase machine
// ═══════════════════════════════════════════════════════════════════════════════

// Phase is the scheduling phase around a market open.
type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhasePreOpen  Phase = "PRE_OPEN"
	PhaseSnipe    Phase = "SNIPE"
	PhaseCooldown Phase = "COOLDOWN"
)

// MarketOpenSchedule derives the current phase for markets that open on a
// fixed cadence (top of each hour). It is a pure function of wall-clock
// time: no internal state, safe to share.
type MarketOpenSchedule struct {
	cadence        time.Duration
	preOpenWindow  time.Duration
	snipeWindow    time.Duration
	cooldownWindow time.Duration
}

// NewMarketOpenSchedule creates an hourly schedule with the given windows.
func NewMarketOpenSchedule(preOpen, snipe, cooldown time.Duration) *MarketOpenSchedule {
	return &MarketOpenSchedule{
		cadence:        time.Hour,
		preOpenWindow:  preOpen,
		snipeWindow:    snipe,
		cooldownWindow: cooldown,
	}
}

// NextOpen returns the smallest cadence boundary strictly after now. At an
// exact boundary this is the following one, not the current instant.
func (s *MarketOpenSchedule) NextOpen(now time.Time) time.Time {
	boundary := now.Truncate(s.cadence)
	return boundary.Add(s.cadence)
}

// UntilOpen is zero exactly at a boundary and positive otherwise.
func (s *MarketOpenSchedule) UntilOpen(now time.Time) time.Duration {
	boundary := now.Truncate(s.cadence)
	if now.Equal(boundary) {
		return 0
	}
	return boundary.Add(s.cadence).Sub(now)
}

// SinceOpen is the time elapsed since the most recent boundary.
func (s *MarketOpenSchedule) SinceOpen(now time.Time) time.Duration {
	return now.Sub(now.Truncate(s.cadence))
}

// IsPreOpenWindow is true strictly before a boundary, within the window.
func (s *MarketOpenSchedule) IsPreOpenWindow(now time.Time) bool {
	until := s.UntilOpen(now)
	return until > 0 && until <= s.preOpenWindow
}

// IsSnipeWindow is true from the boundary until the snipe window closes.
func (s *MarketOpenSchedule) IsSnipeWindow(now time.Time) bool {
	return s.SinceOpen(now) < s.snipeWindow
}

// IsCooldownWindow covers the stretch between snipe end and cooldown end.
func (s *MarketOpenSchedule) IsCooldownWindow(now time.Time) bool {
	since := s.SinceOpen(now)
	return since >= s.snipeWindow && since < s.snipeWindow+s.cooldownWindow
}

// CurrentPhase selects the phase, priority-ordered so that at the exact
// open instant SNIPE wins over a stale PRE_OPEN check.
func (s *MarketOpenSchedule) CurrentPhase(now time.Time) Phase {
	switch {
	case s.IsPreOpenWindow(now):
		return PhasePreOpen
	case s.IsSnipeWindow(now):
		return PhaseSnipe
	case s.IsCooldownWindow(now):
		return PhaseCooldown
	}
	return PhaseIdle
}
