package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// COOLDOWN MANAGER
// ═══════════════════════════════════════════════════════════════════════════════

// CooldownManager blocks entries for a fixed window after a streak of
// consecutive losses. The streak resets on any win; the cooldown starts
// lazily at the first check that sees a full streak and expires on its
// own.
type CooldownManager struct {
	mu             sync.Mutex
	maxConsecutive int
	cooldown       time.Duration

	streak        int
	cooldownStart time.Time
}

// NewCooldownManager creates a manager tripping after maxConsecutive
// losses.
func NewCooldownManager(maxConsecutive int, cooldown time.Duration) *CooldownManager {
	return &CooldownManager{
		maxConsecutive: maxConsecutive,
		cooldown:       cooldown,
	}
}

// RecordLoss extends the loss streak.
func (c *CooldownManager) RecordLoss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streak++
	if c.streak >= c.maxConsecutive {
		log.Warn().Int("streak", c.streak).Msg("⚠️ Consecutive loss streak at cooldown threshold")
	}
}

// RecordWin clears the streak and any pending cooldown.
func (c *CooldownManager) RecordWin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streak = 0
	c.cooldownStart = time.Time{}
}

// Check reports whether entries are allowed and, if not, how long the
// cooldown has left.
func (c *CooldownManager) Check() (bool, time.Duration, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.streak < c.maxConsecutive {
		return true, 0, ""
	}

	now := time.Now()
	if c.cooldownStart.IsZero() {
		c.cooldownStart = now
	}

	elapsed := now.Sub(c.cooldownStart)
	if elapsed >= c.cooldown {
		log.Info().Msg("Cooldown expired, loss streak reset")
		c.streak = 0
		c.cooldownStart = time.Time{}
		return true, 0, ""
	}

	remaining := c.cooldown - elapsed
	return false, remaining, fmt.Sprintf("cooling down after %d consecutive losses (%s remaining)",
		c.streak, remaining.Round(time.Second))
}

// Streak returns the current consecutive-loss count.
func (c *CooldownManager) Streak() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streak
}
