package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/snipebot/strategy"
)

// PaperLog appends simulated paired trades to a daily JSONL file for
// offline analysis.
type PaperLog struct {
	mu  sync.Mutex
	dir string
}

// NewPaperLog creates a log rooted at dir.
func NewPaperLog(dir string) *PaperLog {
	return &PaperLog{dir: dir}
}

type paperTradeRecord struct {
	MarketID         string `json:"market_id"`
	MarketQuestion   string `json:"market_question"`
	MarketSource     string `json:"market_source"`
	YesAsk           string `json:"yes_ask"`
	NoAsk            string `json:"no_ask"`
	TotalCost        string `json:"total_cost"`
	Spread           string `json:"spread"`
	ROIPct           string `json:"roi_pct"`
	Shares           string `json:"shares"`
	CostUSD          string `json:"cost_usd"`
	GuaranteedProfit string `json:"guaranteed_profit"`
	Source           string `json:"source"`
	Timestamp        string `json:"timestamp"`
}

// Append writes one simulated paired trade. Failures are logged and
// swallowed; the trading path never blocks on analytics.
func (p *PaperLog) Append(opp *strategy.PairedOpportunity, shares, costUSD, profit decimal.Decimal) {
	if p.dir == "" {
		return
	}

	rec := paperTradeRecord{
		MarketID:         opp.Market.ID,
		MarketQuestion:   opp.Market.Question,
		MarketSource:     string(opp.Market.Source),
		YesAsk:           opp.YesAsk.String(),
		NoAsk:            opp.NoAsk.String(),
		TotalCost:        opp.TotalCost.String(),
		Spread:           opp.Spread.String(),
		ROIPct:           opp.ROIPct.StringFixed(2),
		Shares:           shares.StringFixed(2),
		CostUSD:          costUSD.StringFixed(2),
		GuaranteedProfit: profit.StringFixed(4),
		Source:           opp.Source,
		Timestamp:        opp.DetectedAt.Format(time.RFC3339),
	}

	line, err := json.Marshal(rec)
	if err != nil {
		log.Warn().Err(err).Msg("Paper trade marshal failed")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		log.Warn().Err(err).Msg("Paper trade dir create failed")
		return
	}

	path := filepath.Join(p.dir, fmt.Sprintf("paired_%s.jsonl", time.Now().UTC().Format("2006-01-02")))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Paper trade open failed")
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		log.Warn().Err(err).Msg("Paper trade write failed")
	}
}
