package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testSchedule() *MarketOpenSchedule {
	return NewMarketOpenSchedule(30*time.Second, 60*time.Second, 60*time.Second)
}

// at builds a wall-clock instant offset from an arbitrary hour boundary.
func at(offset time.Duration) time.Time {
	boundary := time.Date(2026, 8, 23, 14, 0, 0, 0, time.UTC)
	return boundary.Add(offset)
}

func TestSchedule_NextOpen(t *testing.T) {
	s := testSchedule()

	// Mid-hour rounds up.
	assert.Equal(t, at(time.Hour), s.NextOpen(at(25*time.Minute)))

	// At the exact boundary the next open is the following hour.
	assert.Equal(t, at(time.Hour), s.NextOpen(at(0)))

	// Just before the boundary.
	assert.Equal(t, at(0), s.NextOpen(at(-time.Second)))
}

func TestSchedule_UntilOpen(t *testing.T) {
	s := testSchedule()

	assert.Equal(t, time.Duration(0), s.UntilOpen(at(0)))
	assert.Equal(t, 15*time.Second, s.UntilOpen(at(-15*time.Second)))
	assert.Equal(t, 59*time.Minute, s.UntilOpen(at(time.Minute)))
}

func TestSchedule_SinceOpen(t *testing.T) {
	s := testSchedule()

	assert.Equal(t, time.Duration(0), s.SinceOpen(at(0)))
	assert.Equal(t, 90*time.Second, s.SinceOpen(at(90*time.Second)))
}

func TestSchedule_CurrentPhase(t *testing.T) {
	s := testSchedule()

	cases := []struct {
		name   string
		offset time.Duration
		want   Phase
	}{
		{"top of hour", 0, PhaseSnipe},
		{"15s before open", -15 * time.Second, PhasePreOpen},
		{"30s before open", -30 * time.Second, PhasePreOpen},
		{"31s before open", -31 * time.Second, PhaseIdle},
		{"30s after open", 30 * time.Second, PhaseSnipe},
		{"59s after open", 59 * time.Second, PhaseSnipe},
		{"60s after open", 60 * time.Second, PhaseCooldown},
		{"90s after open", 90 * time.Second, PhaseCooldown},
		{"120s after open", 120 * time.Second, PhaseIdle},
		{"5min after open", 5 * time.Minute, PhaseIdle},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, s.CurrentPhase(at(tc.offset)))
		})
	}
}

func TestSchedule_WindowPredicatesDisjoint(t *testing.T) {
	s := testSchedule()

	// Pre-open excludes the boundary itself; snipe claims it.
	assert.False(t, s.IsPreOpenWindow(at(0)))
	assert.True(t, s.IsSnipeWindow(at(0)))

	// Snipe/cooldown hand over exactly at 60s.
	assert.False(t, s.IsSnipeWindow(at(60*time.Second)))
	assert.True(t, s.IsCooldownWindow(at(60*time.Second)))
	assert.False(t, s.IsCooldownWindow(at(120*time.Second)))
}
