package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Side is one leg of a binary market.
type Side int

const (
	SideYes Side = iota
	SideNo
)

func (s Side) String() string {
	switch s {
	case SideYes:
		return "YES"
	case SideNo:
		return "NO"
	}
	return "UNKNOWN"
}

// Opposite returns the other leg.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// ParseSide converts a wire/storage string to a Side.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "YES":
		return SideYes, nil
	case "NO":
		return SideNo, nil
	}
	return SideYes, fmt.Errorf("invalid side %q", s)
}

// MarketType classifies a sports contract by its line type.
type MarketType int

const (
	TypeMoneyline MarketType = iota
	TypeSpread
	TypeOverUnder
)

func (t MarketType) String() string {
	switch t {
	case TypeMoneyline:
		return "moneyline"
	case TypeSpread:
		return "spread"
	case TypeOverUnder:
		return "ou"
	}
	return "unknown"
}

// DetectMarketType infers the line type from the market question text.
// Spread and over/under markets carry their line in the question.
func DetectMarketType(question string) MarketType {
	q := strings.ToLower(question)
	if strings.Contains(q, "spread") {
		return TypeSpread
	}
	if strings.Contains(q, "o/u") || strings.Contains(q, "over/under") || strings.Contains(q, "over/") {
		return TypeOverUnder
	}
	return TypeMoneyline
}

// MarketSource identifies which discovery feed produced a market.
type MarketSource string

const (
	SourceHourlyCrypto MarketSource = "hourly_crypto"
	SourceNBA          MarketSource = "nba"
	SourceNHL          MarketSource = "nhl"
	SourceTennis       MarketSource = "tennis"
	SourceSoccer       MarketSource = "soccer"
	SourceEsports      MarketSource = "esports"
)

// IsSport reports whether the source is a sportsbook category.
func (s MarketSource) IsSport() bool {
	return s != SourceHourlyCrypto
}

// Market is an immutable snapshot of one binary contract. A fresh snapshot
// is built on every discovery poll; snapshots are never mutated in place.
type Market struct {
	ID           string
	Question     string
	Source       MarketSource
	YesTokenID   string
	NoTokenID    string
	YesPrice     decimal.Decimal
	NoPrice      decimal.Decimal
	LiquidityUSD decimal.Decimal
	EndDate      time.Time
	EventID      string
	EventTitle   string
}

// TotalCost is the combined cost of one YES plus one NO share.
func (m *Market) TotalCost() decimal.Decimal {
	return m.YesPrice.Add(m.NoPrice)
}

// ArbSpread is the guaranteed per-share profit if both sides fill.
func (m *Market) ArbSpread() decimal.Decimal {
	return decimal.NewFromInt(1).Sub(m.TotalCost())
}

// TokenID returns the outcome token for the given side.
func (m *Market) TokenID(side Side) string {
	if side == SideYes {
		return m.YesTokenID
	}
	return m.NoTokenID
}

// IsExpired reports whether the settlement deadline has passed.
func (m *Market) IsExpired(now time.Time) bool {
	return !m.EndDate.IsZero() && now.After(m.EndDate)
}

// PositionStatus tracks a position's lifecycle.
type PositionStatus string

const (
	PositionOpen    PositionStatus = "open"
	PositionSettled PositionStatus = "settled"
)

// Position is one stake in one market. Created on entry, settled exactly
// once, then removed from the active set.
type Position struct {
	MarketID   string          `json:"market_id"`
	Question   string          `json:"question"`
	Side       Side            `json:"-"`
	SideLabel  string          `json:"side"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	SizeUSD    decimal.Decimal `json:"size_usd"`
	Shares     decimal.Decimal `json:"shares"`
	Paired     bool            `json:"paired,omitempty"`
	EntryTime  time.Time       `json:"entry_time"`
	EndDate    time.Time       `json:"end_date"`
	Status     PositionStatus  `json:"status"`
}

// TradeRecord is one executed (or simulated) leg for history and display.
type TradeRecord struct {
	ID        string
	MarketID  string
	Question  string
	Side      Side
	Price     decimal.Decimal
	SizeUSD   decimal.Decimal
	Shares    decimal.Decimal
	Paper     bool
	Strategy  string
	PnL       decimal.Decimal
	Timestamp time.Time
}

// OrderResult is the outcome of one order submission. Submission never
// panics; every failure is reported here.
type OrderResult struct {
	Success bool
	OrderID string
	Filled  decimal.Decimal
	AvgPx   decimal.Decimal
	Err     string
}
