package database

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/snipebot/strategy"
	"github.com/web3guy0/snipebot/types"
)

type Database struct {
	db *gorm.DB
}

// Models

// Trade is one executed (or simulated) order leg.
type Trade struct {
	ID        string          `gorm:"primaryKey"`
	MarketID  string          `gorm:"index"`
	Question  string
	Side      string          // "YES" or "NO"
	Price     decimal.Decimal `gorm:"type:decimal(10,6)"`
	SizeUSD   decimal.Decimal `gorm:"type:decimal(20,6)"`
	Shares    decimal.Decimal `gorm:"type:decimal(20,6)"`
	Paper     bool
	Strategy  string          `gorm:"index"` // "open_sniper", "paired_entry"
	PnL       decimal.Decimal `gorm:"type:decimal(20,6)"`
	Timestamp time.Time       `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Opportunity is one detected paired-entry chance, traded or not.
type Opportunity struct {
	ID        uint            `gorm:"primaryKey;autoIncrement"`
	MarketID  string          `gorm:"index"`
	Question  string
	YesAsk    decimal.Decimal `gorm:"type:decimal(10,6)"`
	NoAsk     decimal.Decimal `gorm:"type:decimal(10,6)"`
	TotalCost decimal.Decimal `gorm:"type:decimal(10,6)"`
	Spread    decimal.Decimal `gorm:"type:decimal(10,6)"`
	ROIPct    decimal.Decimal `gorm:"type:decimal(10,4)"`
	Source    string          // "ws_cache" or "http_poll"
	Traded    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Settlement is one resolved position outcome.
type Settlement struct {
	ID        uint            `gorm:"primaryKey;autoIncrement"`
	MarketID  string          `gorm:"index"`
	Winner    string          // "YES" or "NO"
	PnL       decimal.Decimal `gorm:"type:decimal(20,6)"`
	CreatedAt time.Time
}

func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	// Check if this is a PostgreSQL connection string
	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Database connected (PostgreSQL)")
	} else {
		// SQLite fallback
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&Trade{}, &Opportunity{}, &Settlement{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// Trade operations

// RecordTrade persists one trade leg. A missing ID is generated.
func (d *Database) RecordTrade(rec *types.TradeRecord) error {
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	row := Trade{
		ID:        id,
		MarketID:  rec.MarketID,
		Question:  rec.Question,
		Side:      rec.Side.String(),
		Price:     rec.Price,
		SizeUSD:   rec.SizeUSD,
		Shares:    rec.Shares,
		Paper:     rec.Paper,
		Strategy:  rec.Strategy,
		PnL:       rec.PnL,
		Timestamp: rec.Timestamp,
	}
	return d.db.Create(&row).Error
}

func (d *Database) GetRecentTrades(limit int) ([]Trade, error) {
	var trades []Trade
	err := d.db.Order("timestamp DESC").Limit(limit).Find(&trades).Error
	return trades, err
}

func (d *Database) DeleteTrade(id string) error {
	return d.db.Delete(&Trade{}, "id = ?", id).Error
}

func (d *Database) GetTradesByMarket(marketID string) ([]Trade, error) {
	var trades []Trade
	err := d.db.Where("market_id = ?", marketID).Order("timestamp DESC").Find(&trades).Error
	return trades, err
}

func (d *Database) GetTotalPnL() (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	err := d.db.Model(&Trade{}).Select("COALESCE(SUM(pn_l), 0) as total").Scan(&result).Error
	return result.Total, err
}

// Opportunity operations

func (d *Database) SaveOpportunity(opp *Opportunity) error {
	return d.db.Create(opp).Error
}

// RecordOpportunity persists one detected paired-entry chance, traded or
// not, for later edge analysis.
func (d *Database) RecordOpportunity(opp *strategy.PairedOpportunity, traded bool) error {
	return d.SaveOpportunity(&Opportunity{
		MarketID:  opp.Market.ID,
		Question:  opp.Market.Question,
		YesAsk:    opp.YesAsk,
		NoAsk:     opp.NoAsk,
		TotalCost: opp.TotalCost,
		Spread:    opp.Spread,
		ROIPct:    opp.ROIPct,
		Source:    opp.Source,
		Traded:    traded,
	})
}

func (d *Database) GetRecentOpportunities(limit int) ([]Opportunity, error) {
	var opps []Opportunity
	err := d.db.Order("created_at DESC").Limit(limit).Find(&opps).Error
	return opps, err
}

// Settlement operations

func (d *Database) RecordSettlement(marketID string, winner types.Side, pnl decimal.Decimal) error {
	return d.db.Create(&Settlement{
		MarketID: marketID,
		Winner:   winner.String(),
		PnL:      pnl,
	}).Error
}

// Stats operations

func (d *Database) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var tradeCount int64
	d.db.Model(&Trade{}).Count(&tradeCount)
	stats["total_trades"] = tradeCount

	var oppCount int64
	d.db.Model(&Opportunity{}).Count(&oppCount)
	stats["total_opportunities"] = oppCount

	var settledCount int64
	d.db.Model(&Settlement{}).Count(&settledCount)
	stats["total_settlements"] = settledCount

	pnl, _ := d.GetTotalPnL()
	stats["total_pnl"] = pnl

	type strategyCount struct {
		Strategy string
		Count    int64
	}
	var byStrategy []strategyCount
	d.db.Model(&Trade{}).Select("strategy, count(*) as count").Group("strategy").Scan(&byStrategy)
	strategyStats := make(map[string]int64)
	for _, sc := range byStrategy {
		strategyStats[sc.Strategy] = sc.Count
	}
	stats["by_strategy"] = strategyStats

	return stats, nil
}
