// db_setup migrates the snipebot schema and round-trips a test row.
// Run it once against a fresh DATABASE_PATH (sqlite file or postgres://
// DSN) before pointing the bot at it.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/snipebot/internal/database"
	"github.com/web3guy0/snipebot/types"
)

func main() {
	godotenv.Load()

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "data/snipebot.db"
	}

	fmt.Printf("🔌 Connecting to database: %s\n", dbPath)
	db, err := database.New(dbPath)
	if err != nil {
		fmt.Printf("❌ Connection error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✅ Connected, schema migrated (trades, opportunities, settlements)")

	// Round-trip one trade to prove writes work.
	fmt.Println("\n🧪 Testing INSERT...")
	testID := fmt.Sprintf("TEST_%d", time.Now().UnixNano())
	err = db.RecordTrade(&types.TradeRecord{
		ID:        testID,
		MarketID:  "setup-test",
		Question:  "Will BTC be above $120,000 at 3pm ET?",
		Side:      types.SideYes,
		Price:     decimal.NewFromFloat(0.42),
		SizeUSD:   decimal.NewFromInt(10),
		Shares:    decimal.NewFromFloat(23.8),
		Paper:     true,
		Strategy:  "open_sniper",
		Timestamp: time.Now(),
	})
	if err != nil {
		fmt.Printf("❌ Insert error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Inserted test trade: %s\n", testID)

	fmt.Println("\n🧪 Testing SELECT...")
	trades, err := db.GetTradesByMarket("setup-test")
	if err != nil || len(trades) == 0 {
		fmt.Printf("❌ Select error: %v (rows: %d)\n", err, len(trades))
		os.Exit(1)
	}
	t := trades[0]
	fmt.Printf("✅ Retrieved: %s | %s | %s¢ | $%s | %s\n",
		t.ID, t.Side, t.Price.Mul(decimal.NewFromInt(100)).StringFixed(1),
		t.SizeUSD.StringFixed(2), t.Strategy)

	fmt.Println("\n🧹 Cleaning test data...")
	if err := db.DeleteTrade(testID); err != nil {
		fmt.Printf("⚠️ Delete error: %v\n", err)
	} else {
		fmt.Println("✅ Test data cleaned!")
	}

	stats, _ := db.GetStats()
	fmt.Println("\n📊 Table counts:")
	fmt.Printf("  - trades: %v\n", stats["total_trades"])
	fmt.Printf("  - opportunities: %v\n", stats["total_opportunities"])
	fmt.Printf("  - settlements: %v\n", stats["total_settlements"])

	fmt.Println("\n✅ DATABASE READY")
}
