package execution

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKillSwitch(t *testing.T) (*KillSwitch, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "KILL_SWITCH")
	return NewKillSwitch(path, d("500")), path
}

func TestKillSwitch_ManualActivation(t *testing.T) {
	ks, path := testKillSwitch(t)
	assert.False(t, ks.IsActive())

	ks.Activate("manual halt")
	assert.True(t, ks.IsActive())
	assert.Equal(t, "manual halt", ks.Reason())

	// Sentinel file survives for the next process.
	_, err := os.Stat(path)
	assert.NoError(t, err)

	ks.Deactivate()
	assert.False(t, ks.IsActive())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestKillSwitch_SentinelFileActivates(t *testing.T) {
	ks, path := testKillSwitch(t)

	// An operator touching the file halts the bot without any API call.
	require.NoError(t, os.WriteFile(path, []byte("stop"), 0o644))
	assert.True(t, ks.IsActive())
}

func TestKillSwitch_DailyLossThreshold(t *testing.T) {
	ks, _ := testKillSwitch(t)

	assert.False(t, ks.RecordLoss(d("200")))
	assert.False(t, ks.IsActive())

	assert.True(t, ks.RecordLoss(d("300")))
	assert.True(t, ks.IsActive())

	status := ks.Status()
	assert.Equal(t, true, status["active"])
}

func TestKillSwitch_DailyResetClearsLossCounter(t *testing.T) {
	ks, _ := testKillSwitch(t)

	ks.RecordLoss(d("400"))
	ks.ResetDaily()

	// Counter starts over: the same loss no longer trips.
	assert.False(t, ks.RecordLoss(d("400")))
}
