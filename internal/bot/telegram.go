// Package bot provides Telegram bot functionality
//
// telegram.go - Telegram bot for snipe alerts and remote control
// Sends entry/settlement alerts and answers status queries for the
// market-open sniper.
package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/snipebot/execution"
	"github.com/web3guy0/snipebot/internal/config"
	"github.com/web3guy0/snipebot/internal/database"
	"github.com/web3guy0/snipebot/position"
	"github.com/web3guy0/snipebot/risk"
)

// Bot handles Telegram interactions for the sniper
type Bot struct {
	api       *tgbotapi.BotAPI
	cfg       *config.Config
	db        *database.Database
	positions *position.Manager
	riskCtl   *risk.Controller
	kill      *execution.KillSwitch
	stopCh    chan struct{}
}

// New creates the Telegram bot. db may be nil when history is disabled.
func New(cfg *config.Config, db *database.Database, positions *position.Manager,
	riskCtl *risk.Controller, kill *execution.KillSwitch) (*Bot, error) {

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot connected")

	return &Bot{
		api:       api,
		cfg:       cfg,
		db:        db,
		positions: positions,
		riskCtl:   riskCtl,
		kill:      kill,
		stopCh:    make(chan struct{}),
	}, nil
}

// Start begins the bot's command listener
func (b *Bot) Start() {
	go b.listenForCommands()

	if b.cfg.TelegramChatID != 0 {
		b.sendStartupMessage()
	}
}

// Stop stops the bot
func (b *Bot) Stop() {
	close(b.stopCh)
}

// Notify sends a plain alert to the configured chat. Errors are logged
// and swallowed; alerting never blocks the trading path.
func (b *Bot) Notify(text string) {
	if b.cfg.TelegramChatID == 0 {
		return
	}
	if err := b.sendText(b.cfg.TelegramChatID, text); err != nil {
		log.Warn().Err(err).Msg("Telegram notify failed")
	}
}

func (b *Bot) listenForCommands() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message != nil {
				go b.handleMessage(update.Message)
			}
			if update.CallbackQuery != nil {
				go b.handleCallback(update.CallbackQuery)
			}
		case <-b.stopCh:
			return
		}
	}
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	text := msg.Text

	log.Debug().
		Int64("chat_id", chatID).
		Str("text", text).
		Msg("Received message")

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.cmdStart(chatID)
		case "help":
			b.cmdHelp(chatID)
		case "status":
			b.cmdStatus(chatID)
		case "positions":
			b.cmdPositions(chatID)
		case "stats":
			b.cmdStats(chatID)
		case "halt":
			b.cmdHalt(chatID, msg.CommandArguments())
		case "resume":
			b.cmdResume(chatID)
		default:
			b.sendText(chatID, "❓ Unknown command. Use /help for available commands.")
		}
	}
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	data := cb.Data

	log.Debug().
		Int64("chat_id", chatID).
		Str("data", data).
		Msg("Received callback")

	b.api.Request(tgbotapi.NewCallback(cb.ID, ""))

	switch data {
	case "refresh_status":
		b.cmdStatus(chatID)
	case "refresh_positions":
		b.cmdPositions(chatID)
	case "refresh_stats":
		b.cmdStats(chatID)
	}
}

// Commands

func (b *Bot) cmdStart(chatID int64) {
	text := `🚀 *Welcome to Snipebot!*

Your market-open sniper for hourly prediction windows.

*What I do:*
• ⏰ Wake before every hourly open
• 🎯 Snipe mispriced sides in the first seconds
• 🤝 Lock in dutch-book spreads (YES+NO < $1)
• 📱 Alert you on every entry and settlement

*Quick Start:*
1️⃣ Use /status to check the current phase
2️⃣ Use /positions to see open positions
3️⃣ Use /stats for session performance

*Commands:*
/help - All commands
/status - Phase, bankroll & risk state
/positions - Open positions
/halt - Trip the kill switch

Let's trade! 💪`

	b.sendMarkdown(chatID, text)
}

func (b *Bot) cmdHelp(chatID int64) {
	text := `📚 *Snipebot Commands*

*📊 Monitoring:*
/status - Phase, bankroll & risk state
/positions - Open positions
/stats - Session statistics

*🛑 Control:*
/halt [reason] - Trip the kill switch
/resume - Clear the kill switch

*How It Works:*
Hourly crypto markets open on the hour. In the
first ~60 seconds quotes are often stale:
• A side below $0.48 gets sniped
• YES+NO asks under $0.94 get bought as a pair

All sizing goes through daily loss limits, a
consecutive-loss cooldown and per-market caps.`

	b.sendMarkdown(chatID, text)
}

func (b *Bot) cmdStatus(chatID int64) {
	stats := b.positions.GetStats()

	killStatus := "🟢 Clear"
	if b.kill != nil && b.kill.IsActive() {
		killStatus = fmt.Sprintf("🔴 ACTIVE (%s)", b.kill.Reason())
	}

	mode := "📝 Paper"
	if !b.cfg.DryRun {
		mode = "💵 LIVE"
	}

	text := fmt.Sprintf(`📊 *Bot Status*

🤖 *Bot:* Online
🎛 *Mode:* %s
🛑 *Kill Switch:* %s

*Bankroll:*
• Available: $%s
• Invested: $%s
• Cumulative P&L: $%s

*Risk:*
• Daily loss: $%s
• Loss streak: %d`,
		mode,
		killStatus,
		stats.Bankroll.StringFixed(2),
		stats.TotalInvested.StringFixed(2),
		stats.CumulativePnL.StringFixed(2),
		b.riskCtl.DailyLoss().StringFixed(2),
		b.riskCtl.LossStreak(),
	)

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Refresh", "refresh_status"),
			tgbotapi.NewInlineKeyboardButtonData("📊 Positions", "refresh_positions"),
		),
	)

	b.sendMarkdownWithKeyboard(chatID, text, keyboard)
}

func (b *Bot) cmdPositions(chatID int64) {
	open := b.positions.OpenPositions()
	if len(open) == 0 {
		b.sendText(chatID, "📊 No open positions.")
		return
	}

	text := fmt.Sprintf("📊 *Open Positions* (%d)\n\n", len(open))

	shown := 0
	for _, p := range open {
		if shown >= 10 {
			text += fmt.Sprintf("\n_...and %d more_", len(open)-10)
			break
		}
		text += fmt.Sprintf(`*%s*
├ Side: %s @ $%s
├ Size: $%s (%s shares)
└ Entered: %s

`,
			escapeMarkdown(truncate(p.Question, 60)),
			p.Side, p.EntryPrice.StringFixed(3),
			p.SizeUSD.StringFixed(2), p.Shares.StringFixed(1),
			p.EntryTime.Format("15:04:05"),
		)
		shown++
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Refresh", "refresh_positions"),
		),
	)

	b.sendMarkdownWithKeyboard(chatID, text, keyboard)
}

func (b *Bot) cmdStats(chatID int64) {
	stats := b.positions.GetStats()

	var pnlEmoji string
	switch {
	case stats.CumulativePnL.IsPositive():
		pnlEmoji = "🟢"
	case stats.CumulativePnL.IsNegative():
		pnlEmoji = "🔴"
	default:
		pnlEmoji = "⚪"
	}

	winRate := 0.0
	if stats.TotalSettled > 0 {
		winRate = float64(stats.Wins) / float64(stats.TotalSettled) * 100
	}

	text := fmt.Sprintf(`📈 *Trading Statistics*

*Performance:*
%s Total P/L: $%s
├ Win Rate: %.1f%%
├ Settled: %d
├ Wins: %d
└ Losses: %d

*Exposure:*
• Open positions: %d
• Invested: $%s
• Bankroll: $%s`,
		pnlEmoji,
		stats.CumulativePnL.StringFixed(2),
		winRate,
		stats.TotalSettled,
		stats.Wins,
		stats.Losses,
		stats.OpenPositions,
		stats.TotalInvested.StringFixed(2),
		stats.Bankroll.StringFixed(2),
	)

	if b.db != nil {
		if dbStats, err := b.db.GetStats(); err == nil {
			text += fmt.Sprintf("\n\n*History:*\n• Recorded legs: %v\n• Opportunities seen: %v",
				dbStats["total_trades"], dbStats["total_opportunities"])
		}
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Refresh", "refresh_stats"),
		),
	)

	b.sendMarkdownWithKeyboard(chatID, text, keyboard)
}

func (b *Bot) cmdHalt(chatID int64, args string) {
	if b.kill == nil {
		b.sendText(chatID, "❌ Kill switch not configured.")
		return
	}

	reason := strings.TrimSpace(args)
	if reason == "" {
		reason = "manual halt via Telegram"
	}

	b.kill.Activate(reason)
	b.sendText(chatID, fmt.Sprintf("🛑 Kill switch ACTIVATED: %s\n\nNo new entries until /resume.", reason))
}

func (b *Bot) cmdResume(chatID int64) {
	if b.kill == nil {
		b.sendText(chatID, "❌ Kill switch not configured.")
		return
	}

	b.kill.Deactivate()
	b.sendText(chatID, "🟢 Kill switch cleared. Trading resumed.")
}

func (b *Bot) sendStartupMessage() {
	mode := "paper"
	if !b.cfg.DryRun {
		mode = "LIVE"
	}

	text := fmt.Sprintf(`🟢 *Snipebot Online*

Market-open sniper active (%s mode).
Use /status to check the current state.`, mode)

	b.sendMarkdown(b.cfg.TelegramChatID, text)
}

// Helpers

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendMarkdown(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	msg.DisableWebPagePreview = true
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendMarkdownWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = keyboard
	_, err := b.api.Send(msg)
	return err
}

func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"`", "\\`",
	)
	return replacer.Replace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
