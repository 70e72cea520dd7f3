// fetch_trades dumps the recorded trade history and a per-strategy
// summary from the bot's database. Useful for eyeballing paper sessions
// without attaching the Telegram bot.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/snipebot/internal/config"
	"github.com/web3guy0/snipebot/internal/database"
)

func main() {
	limit := flag.Int("n", 50, "number of recent trades to show")
	marketID := flag.String("market", "", "filter by market ID")
	flag.Parse()

	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Println("❌ Config error:", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		fmt.Println("❌ Database error:", err)
		os.Exit(1)
	}

	var trades []database.Trade
	if *marketID != "" {
		trades, err = db.GetTradesByMarket(*marketID)
	} else {
		trades, err = db.GetRecentTrades(*limit)
	}
	if err != nil {
		fmt.Println("❌ Query error:", err)
		os.Exit(1)
	}

	fmt.Printf("📊 TRADE HISTORY - %d trades\n\n", len(trades))
	fmt.Println("═══════════════════════════════════════════════════════════════════════")
	fmt.Println("│ TIME     │ STRAT        │ SIDE │ PRICE  │ SIZE     │ PNL      │ MARKET")
	fmt.Println("═══════════════════════════════════════════════════════════════════════")

	var totalPnL, totalSize decimal.Decimal
	byStrategy := make(map[string]int)

	for _, t := range trades {
		byStrategy[t.Strategy]++
		totalPnL = totalPnL.Add(t.PnL)
		totalSize = totalSize.Add(t.SizeUSD)

		mode := " "
		if t.Paper {
			mode = "P"
		}
		fmt.Printf("│ %s │ %-12s │ %-4s │ %5.2f¢ │ $%7.2f │ %+8.2f │ %s%s\n",
			t.Timestamp.Format("15:04:05"),
			t.Strategy,
			t.Side,
			t.Price.Mul(decimal.NewFromInt(100)).InexactFloat64(),
			t.SizeUSD.InexactFloat64(),
			t.PnL.InexactFloat64(),
			mode,
			shortID(t.MarketID),
		)
	}

	fmt.Println("═══════════════════════════════════════════════════════════════════════")
	fmt.Printf("\n📈 SUMMARY:\n")
	for strat, n := range byStrategy {
		fmt.Printf("   %s: %d legs\n", strat, n)
	}
	fmt.Printf("   Deployed: $%.2f | Recorded P&L: %+.2f\n",
		totalSize.InexactFloat64(), totalPnL.InexactFloat64())

	if allPnL, err := db.GetTotalPnL(); err == nil {
		fmt.Printf("   Lifetime P&L (all trades): %+.2f\n", allPnL.InexactFloat64())
	}
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "…"
}
