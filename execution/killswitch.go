package execution

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// KILL SWITCH - emergency stop for new trade admission
// ═══════════════════════════════════════════════════════════════════════════════
//
// Three triggers: a sentinel file on disk, the daily loss limit, and manual
// activation. Activation halts new admissions but the process keeps running
// so open positions can still be tracked to settlement.

// KillSwitch is safe for concurrent use.
type KillSwitch struct {
	mu           sync.Mutex
	killFile     string
	maxDailyLoss decimal.Decimal

	activated      bool
	reason         string
	dailyLoss      decimal.Decimal
	activationTime time.Time
}

// NewKillSwitch creates a switch watching the given sentinel path.
func NewKillSwitch(killFile string, maxDailyLoss decimal.Decimal) *KillSwitch {
	return &KillSwitch{
		killFile:     killFile,
		maxDailyLoss: maxDailyLoss,
	}
}

// IsActive checks every trigger, including the sentinel file.
func (k *KillSwitch) IsActive() bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.activated {
		return true
	}

	if _, err := os.Stat(k.killFile); err == nil {
		k.activated = true
		k.reason = fmt.Sprintf("kill file detected: %s", k.killFile)
		k.activationTime = time.Now().UTC()
		log.Error().Str("reason", k.reason).Msg("🛑 KILL SWITCH")
		return true
	}

	return false
}

// Reason returns why the switch tripped, if it did.
func (k *KillSwitch) Reason() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.reason
}

// Activate trips the switch and writes the sentinel file so the state
// survives a restart.
func (k *KillSwitch) Activate(reason string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.activate(reason)
}

func (k *KillSwitch) activate(reason string) {
	k.activated = true
	k.reason = reason
	k.activationTime = time.Now().UTC()
	log.Error().Str("reason", reason).Msg("🛑 KILL SWITCH ACTIVATED")

	if err := os.MkdirAll(filepath.Dir(k.killFile), 0o755); err == nil {
		content := fmt.Sprintf("Activated: %s\nReason: %s\n", k.activationTime.Format(time.RFC3339), reason)
		_ = os.WriteFile(k.killFile, []byte(content), 0o644)
	}
}

// Deactivate resets the switch and removes the sentinel file. Manual
// override only.
func (k *KillSwitch) Deactivate() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.activated = false
	k.reason = ""
	k.activationTime = time.Time{}

	if err := os.Remove(k.killFile); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to remove kill file")
	}

	log.Info().Msg("Kill switch deactivated")
}

// RecordLoss adds a realized loss (positive amount) and trips the switch
// if the daily limit is reached. Returns true when this loss tripped it.
func (k *KillSwitch) RecordLoss(amount decimal.Decimal) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	if amount.IsPositive() {
		k.dailyLoss = k.dailyLoss.Add(amount)
	}

	if k.dailyLoss.GreaterThanOrEqual(k.maxDailyLoss) {
		k.activate(fmt.Sprintf("daily loss limit exceeded: $%s >= $%s",
			k.dailyLoss.StringFixed(2), k.maxDailyLoss.StringFixed(2)))
		return true
	}

	return false
}

// ResetDaily clears the daily loss counter at the UTC midnight rollover.
func (k *KillSwitch) ResetDaily() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.dailyLoss = decimal.Zero
}

// Status returns a snapshot for reporting.
func (k *KillSwitch) Status() map[string]interface{} {
	active := k.IsActive()

	k.mu.Lock()
	defer k.mu.Unlock()

	_, fileErr := os.Stat(k.killFile)
	return map[string]interface{}{
		"active":           active,
		"reason":           k.reason,
		"daily_loss":       k.dailyLoss.StringFixed(2),
		"max_daily_loss":   k.maxDailyLoss.StringFixed(2),
		"kill_file":        k.killFile,
		"kill_file_exists": fileErr == nil,
	}
}
