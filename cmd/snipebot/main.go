// Snipebot - Market-Open Sniper for Polymarket Hourly Windows
//
// This bot exploits stale quotes in the first seconds after hourly
// prediction markets open.
//
// Strategy:
// 1. Wake ~30s before every hourly open and discover upcoming markets
// 2. Subscribe the WS book feed and pre-warm HTTP connections
// 3. Poll at sub-second intervals through the 60s snipe window
// 4. Buy any side offered at or below $0.48 before makers reprice
// 5. Buy YES+NO as an atomic pair when the combined cost locks a spread
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/snipebot/execution"
	"github.com/web3guy0/snipebot/feeds"
	"github.com/web3guy0/snipebot/internal/bot"
	"github.com/web3guy0/snipebot/internal/config"
	"github.com/web3guy0/snipebot/internal/database"
	"github.com/web3guy0/snipebot/pipeline"
	"github.com/web3guy0/snipebot/position"
	"github.com/web3guy0/snipebot/risk"
	"github.com/web3guy0/snipebot/scheduler"
	"github.com/web3guy0/snipebot/strategy"
)

const version = "1.0.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Str("mode", "market_open_snipe").
		Bool("dry_run", cfg.DryRun).
		Msg("⚡ Snipebot starting...")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// ====== CORE COMPONENTS ======

	// 1. Discovery + orderbook clients
	discovery := feeds.NewDiscovery(cfg.GammaAPIURL)
	books := feeds.NewOrderbookClient(cfg.CLOBURL)

	// 2. WS book feed with price cache
	cache := feeds.NewPriceCache()
	wsClient := feeds.NewWSClient(cfg.CLOBWSURL, cache)
	if err := wsClient.Connect(); err != nil {
		log.Warn().Err(err).Msg("⚠️ Failed to connect WebSocket - using HTTP polling only")
		wsClient = nil
	} else {
		log.Info().Msg("📡 WebSocket book feed connected")
	}

	// 3. Position ledger, restored from disk
	positions := position.NewManager(position.Config{
		Bankroll:           cfg.Bankroll,
		MaxPerMarket:       cfg.MaxPerMarket,
		MinPositionSize:    decimal.NewFromInt(1),
		MaxDailyDeployment: cfg.MaxDailyDeployment,
		MaxCycleEntries:    cfg.MaxCycleEntries,
		MaxCycleBudget:     cfg.MaxCycleBudget,
		MaxConcurrentPos:   cfg.MaxConcurrentPos,
		MaxExposureRatio:   cfg.MaxExposureRatio,
		MoneylineMinPrice:  cfg.MoneylineMinPrice,
		StatePath:          cfg.StatePath,
	})
	positions.LoadState()

	// 4. Risk controller + kill switch
	riskCtl := risk.NewController(risk.Config{
		DailyLossLimit:  cfg.DailyLossLimit,
		MaxPerMarket:    cfg.MaxPerMarket,
		MaxTotal:        cfg.MaxTotalExposure,
		MaxConsecLosses: cfg.MaxConsecLosses,
		Cooldown:        time.Duration(cfg.CooldownSeconds) * time.Second,
		DryRun:          cfg.DryRun,
	})
	kill := execution.NewKillSwitch(cfg.KillFile, cfg.MaxDailyLoss)
	if kill.IsActive() {
		log.Warn().Str("reason", kill.Reason()).Msg("🛑 Kill switch active from previous session")
	}

	// 5. CLOB client - only wired in live mode with credentials
	var submitter execution.Submitter
	if !cfg.DryRun && (cfg.WalletPrivateKey != "" || cfg.CLOBApiKey != "") {
		clobClient, err := execution.NewCLOBClient(execution.CLOBConfig{
			BaseURL:          cfg.CLOBURL,
			APIKey:           cfg.CLOBApiKey,
			APISecret:        cfg.CLOBApiSecret,
			Passphrase:       cfg.CLOBPassphrase,
			WalletPrivateKey: cfg.WalletPrivateKey,
			SignerAddress:    cfg.SignerAddress,
			FunderAddress:    cfg.FunderAddress,
			SignatureType:    cfg.SignatureType,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize CLOB client")
		}
		submitter = clobClient
		log.Info().Msg("💳 CLOB client initialized")
	}

	executor := execution.NewExecutor(submitter, execution.ExecutorConfig{
		MaxRetries:     2,
		FillTimeout:    5 * time.Second,
		PaperMode:      cfg.DryRun,
		SlippageBps:    10,
		UnwindAttempts: 3,
	})

	// 6. Detectors
	sniper := strategy.NewOpenSniperDetector(strategy.SniperConfig{
		Threshold:          cfg.SnipeThreshold,
		Window:             cfg.SnipeWindow,
		MinMeaningfulPrice: cfg.PairedMinPrice,
	})
	paired := strategy.NewPairedEntryDetector(strategy.PairedConfig{
		MaxCombinedCost: cfg.PairedMaxCost,
		MinPrice:        cfg.PairedMinPrice,
		MinSpread:       cfg.PairedMinSpread,
		MinSizeUSD:      cfg.PairedMinSize,
	})

	// ====== TELEGRAM BOT ======
	var notifier scheduler.Notifier
	var telegramBot *bot.Bot
	if cfg.TelegramToken != "" {
		telegramBot, err = bot.New(cfg, db, positions, riskCtl, kill)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Telegram bot unavailable - alerts disabled")
		} else {
			telegramBot.Start()
			notifier = telegramBot
		}
	}

	// ====== PAIRED PIPELINE ======
	pipeCfg := pipeline.DefaultConfig()
	pipe := pipeline.New(pipeCfg, positions, riskCtl, executor, kill,
		db, scheduler.NewPaperLog(cfg.PaperDir))

	// ====== EVENT LOOP ======
	schedule := scheduler.NewMarketOpenSchedule(cfg.PreOpenWindow, cfg.SnipeWindow, cfg.CooldownWindow)

	loopCfg := scheduler.DefaultLoopConfig()
	loopCfg.WSCacheMaxAge = cfg.WSCacheMaxAge
	loopCfg.MaxParallel = cfg.MaxParallel
	loopCfg.SnipeStakeUSD = cfg.MaxPerMarket

	var pairSub scheduler.PairSubscriber
	if wsClient != nil {
		pairSub = wsClient
	}

	loop := scheduler.NewEventLoop(
		loopCfg, schedule,
		discovery, books, cache, discovery, pairSub,
		sniper, paired,
		positions, riskCtl, pipe, kill,
		notifier, db,
	)
	go loop.Run(ctx)

	// ====== STARTUP COMPLETE ======
	log.Info().Msg("✅ All systems online")
	log.Info().Msg("")
	log.Info().Msg("╔══════════════════════════════════════════╗")
	log.Info().Msg("║      MARKET-OPEN SNIPER ACTIVE           ║")
	log.Info().Msg("║                                          ║")
	log.Info().Msg("║  Strategy: Snipe stale opening quotes    ║")
	log.Info().Msg("║                                          ║")
	log.Info().Msg("║  → Wake 30s before every hourly open     ║")
	log.Info().Msg("║  → Poll books at 200ms in first 10s      ║")
	log.Info().Msg("║  → Buy cheap sides below threshold       ║")
	log.Info().Msg("║  → Pair YES+NO when asks sum under $1    ║")
	log.Info().Msg("╚══════════════════════════════════════════╝")
	log.Info().Msg("")
	log.Info().Msg("💡 Use /help in Telegram for commands")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("🛑 Received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("🛑 Context cancelled")
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down...")
	cancel()

	if telegramBot != nil {
		telegramBot.Stop()
	}
	if wsClient != nil {
		wsClient.Close()
	}
	if err := positions.SaveState(); err != nil {
		log.Warn().Err(err).Msg("Failed to save position state")
	}
	pipe.LogSession()

	log.Info().Msg("👋 Goodbye!")
}
