package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the bot. Loaded once at startup and
// passed into components; never mutated after Load.
type Config struct {
	// Telegram
	TelegramToken  string
	TelegramChatID int64

	// Mode
	DryRun bool
	Debug  bool

	// Polymarket API
	GammaAPIURL string
	CLOBURL     string
	CLOBWSURL   string

	// CLOB Credentials
	CLOBApiKey     string
	CLOBApiSecret  string
	CLOBPassphrase string

	// Wallet
	WalletPrivateKey string
	SignerAddress    string
	FunderAddress    string
	SignatureType    int // 0=EOA, 1=Magic/Email, 2=Proxy

	// Market-open sniping
	PreOpenWindow  time.Duration
	SnipeWindow    time.Duration
	CooldownWindow time.Duration
	SnipeThreshold decimal.Decimal // best-ask at or below this fires a single-side entry
	WSCacheMaxAge  time.Duration
	MaxParallel    int // concurrent orderbook polls per tick

	// Paired entry
	PairedMaxCost   decimal.Decimal // combined YES+NO ask ceiling
	PairedMinPrice  decimal.Decimal
	PairedMinSpread decimal.Decimal
	PairedMinSize   decimal.Decimal // min USD liquidity per side

	// Bankroll and caps
	Bankroll           decimal.Decimal
	MaxPerMarket       decimal.Decimal
	MaxDailyDeployment decimal.Decimal // 0 = unlimited
	MaxCycleEntries    int             // 0 = unlimited
	MaxCycleBudget     decimal.Decimal // 0 = unlimited
	MaxConcurrentPos   int             // 0 = unlimited
	MaxExposureRatio   decimal.Decimal // 0 = unlimited
	MoneylineMinPrice  decimal.Decimal // sports extreme-underdog floor

	// Risk
	DailyLossLimit   decimal.Decimal
	MaxTotalExposure decimal.Decimal
	MaxConsecLosses  int
	CooldownSeconds  int

	// Kill switch
	KillFile     string
	MaxDailyLoss decimal.Decimal

	// Persistence
	StatePath    string
	DatabasePath string
	PaperDir     string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		DryRun: getEnvBool("DRY_RUN", true),
		Debug:  getEnvBool("DEBUG", false),

		GammaAPIURL: getEnv("POLYMARKET_API_URL", "https://gamma-api.polymarket.com"),
		CLOBURL:     getEnv("POLYMARKET_CLOB_URL", "https://clob.polymarket.com"),
		CLOBWSURL:   getEnv("POLYMARKET_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),

		CLOBApiKey:     os.Getenv("CLOB_API_KEY"),
		CLOBApiSecret:  os.Getenv("CLOB_API_SECRET"),
		CLOBPassphrase: os.Getenv("CLOB_PASSPHRASE"),

		WalletPrivateKey: os.Getenv("WALLET_PRIVATE_KEY"),
		SignerAddress:    os.Getenv("SIGNER_ADDRESS"),
		FunderAddress:    os.Getenv("FUNDER_ADDRESS"),
		SignatureType:    getEnvInt("SIGNATURE_TYPE", 0),

		PreOpenWindow:  getEnvDuration("PRE_OPEN_WINDOW", 30*time.Second),
		SnipeWindow:    getEnvDuration("SNIPE_WINDOW", 60*time.Second),
		CooldownWindow: getEnvDuration("COOLDOWN_WINDOW", 60*time.Second),
		SnipeThreshold: getEnvDecimal("SNIPE_THRESHOLD", decimal.NewFromFloat(0.48)),
		WSCacheMaxAge:  getEnvDuration("WS_CACHE_MAX_AGE", 5*time.Second),
		MaxParallel:    getEnvInt("MAX_CONCURRENT_POLLS", 10),

		PairedMaxCost:   getEnvDecimal("PAIRED_MAX_COST", decimal.NewFromFloat(0.94)),
		PairedMinPrice:  getEnvDecimal("PAIRED_MIN_PRICE", decimal.NewFromFloat(0.02)),
		PairedMinSpread: getEnvDecimal("PAIRED_MIN_SPREAD", decimal.NewFromFloat(0.015)),
		PairedMinSize:   getEnvDecimal("PAIRED_MIN_SIZE_USD", decimal.NewFromFloat(5)),

		Bankroll:           getEnvDecimal("BANKROLL", decimal.NewFromFloat(1000)),
		MaxPerMarket:       getEnvDecimal("MAX_PER_MARKET", decimal.NewFromFloat(100)),
		MaxDailyDeployment: getEnvDecimal("MAX_DAILY_DEPLOYMENT", decimal.Zero),
		MaxCycleEntries:    getEnvInt("MAX_CYCLE_ENTRIES", 0),
		MaxCycleBudget:     getEnvDecimal("MAX_CYCLE_BUDGET", decimal.Zero),
		MaxConcurrentPos:   getEnvInt("MAX_CONCURRENT_POSITIONS", 0),
		MaxExposureRatio:   getEnvDecimal("MAX_EXPOSURE_RATIO", decimal.Zero),
		MoneylineMinPrice:  getEnvDecimal("MONEYLINE_MIN_PRICE", decimal.NewFromFloat(0.35)),

		DailyLossLimit:   getEnvDecimal("DAILY_LOSS_LIMIT", decimal.NewFromFloat(500)),
		MaxTotalExposure: getEnvDecimal("MAX_TOTAL_EXPOSURE", decimal.NewFromFloat(5000)),
		MaxConsecLosses:  getEnvInt("MAX_CONSECUTIVE_LOSSES", 3),
		CooldownSeconds:  getEnvInt("RISK_COOLDOWN_SECONDS", 300),

		KillFile:     getEnv("KILL_FILE", "data/KILL_SWITCH"),
		MaxDailyLoss: getEnvDecimal("MAX_DAILY_LOSS", decimal.NewFromFloat(500)),

		StatePath:    getEnv("STATE_PATH", "data/positions.json"),
		DatabasePath: getEnv("DATABASE_PATH", "data/snipebot.db"),
		PaperDir:     getEnv("PAPER_TRADES_DIR", "data/paper_trades"),
	}

	// Parse chat ID
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if !cfg.DryRun && cfg.WalletPrivateKey == "" && cfg.CLOBApiKey == "" {
		return nil, fmt.Errorf("live mode requires WALLET_PRIVATE_KEY or CLOB_API_KEY")
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
