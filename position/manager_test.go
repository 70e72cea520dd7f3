package position

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/snipebot/types"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func cryptoMarket(id string) *types.Market {
	return &types.Market{
		ID:       id,
		Question: "Will BTC be above $120,000 at 3pm ET?",
		Source:   types.SourceHourlyCrypto,
	}
}

func newTestManager(cfg Config) *Manager {
	if cfg.Bankroll.IsZero() {
		cfg.Bankroll = decimal.NewFromInt(1000)
	}
	if cfg.MaxPerMarket.IsZero() {
		cfg.MaxPerMarket = decimal.NewFromInt(100)
	}
	return NewManager(cfg)
}

func TestEnterPosition_SizingVector(t *testing.T) {
	m := newTestManager(Config{})

	// bankroll 1000, max 100, price 0.40 -> size 100, shares 250
	pos, err := m.EnterPosition(cryptoMarket("m1"), types.SideYes, d("0.40"))
	require.NoError(t, err)
	require.NotNil(t, pos)

	assert.True(t, pos.SizeUSD.Equal(d("100")), "size %s", pos.SizeUSD)
	assert.True(t, pos.Shares.Equal(d("250")), "shares %s", pos.Shares)
	assert.True(t, m.Bankroll().Equal(d("900")))
	assert.True(t, m.GetStats().TotalInvested.Equal(d("100")))
}

func TestEnterPosition_InvalidPrice(t *testing.T) {
	m := newTestManager(Config{})

	for _, price := range []string{"0", "-0.1", "1", "1.5"} {
		pos, err := m.EnterPosition(cryptoMarket("m1"), types.SideYes, d(price))
		assert.Error(t, err, "price %s", price)
		assert.Nil(t, pos)
	}
	assert.True(t, m.Bankroll().Equal(d("1000")))
}

func TestEnterPosition_DuplicateLeavesStateUnchanged(t *testing.T) {
	m := newTestManager(Config{})

	first, err := m.EnterPosition(cryptoMarket("m1"), types.SideYes, d("0.40"))
	require.NoError(t, err)
	require.NotNil(t, first)
	before := m.GetStats()

	dup, err := m.EnterPosition(cryptoMarket("m1"), types.SideNo, d("0.30"))
	require.NoError(t, err)
	assert.Nil(t, dup)

	after := m.GetStats()
	assert.Equal(t, before, after)
	assert.Equal(t, 1, after.OpenPositions)
}

func TestEnterPosition_SizeCappedByBankroll(t *testing.T) {
	m := newTestManager(Config{Bankroll: d("60"), MaxPerMarket: d("100")})

	pos, err := m.EnterPosition(cryptoMarket("m1"), types.SideYes, d("0.50"))
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.True(t, pos.SizeUSD.Equal(d("60")))
	assert.True(t, m.Bankroll().IsZero())
}

func TestSettlePosition_WinAndLoss(t *testing.T) {
	m := newTestManager(Config{})

	// Win: 100 @ 0.40 -> 250 shares -> payout 250, pnl +150, bankroll 1150.
	_, err := m.EnterPosition(cryptoMarket("m1"), types.SideYes, d("0.40"))
	require.NoError(t, err)

	pnl := m.SettlePosition("m1", types.SideYes)
	assert.True(t, pnl.Equal(d("150")), "pnl %s", pnl)
	assert.True(t, m.Bankroll().Equal(d("1150")))

	stats := m.GetStats()
	assert.Equal(t, 1, stats.Wins)
	assert.True(t, stats.TotalInvested.IsZero())

	// Loss: full cost gone, bankroll stays at post-entry level.
	_, err = m.EnterPosition(cryptoMarket("m2"), types.SideYes, d("0.40"))
	require.NoError(t, err)

	pnl = m.SettlePosition("m2", types.SideNo)
	assert.True(t, pnl.Equal(d("-100")))
	assert.True(t, m.Bankroll().Equal(d("1050")))
	assert.Equal(t, 1, m.GetStats().Losses)
	assert.True(t, m.GetStats().CumulativePnL.Equal(d("50")))
}

func TestRecordPairedEntry_BooksCombinedCost(t *testing.T) {
	m := newTestManager(Config{})

	pos := m.RecordPairedEntry(cryptoMarket("m1"), d("0.95"), d("100"))
	require.NotNil(t, pos)
	assert.True(t, pos.Paired)
	assert.True(t, pos.SizeUSD.Equal(d("95")))
	assert.True(t, pos.Shares.Equal(d("100")))

	assert.True(t, m.HasPosition("m1"))
	stats := m.GetStats()
	assert.True(t, stats.Bankroll.Equal(d("905")))
	assert.True(t, stats.TotalInvested.Equal(d("95")))
	assert.True(t, stats.DailyDeployed.Equal(d("95")))
}

func TestSettlePosition_PairedPaysEitherWinner(t *testing.T) {
	for _, winner := range []types.Side{types.SideYes, types.SideNo} {
		m := newTestManager(Config{})
		m.RecordPairedEntry(cryptoMarket("m1"), d("0.95"), d("100"))

		// 100 paired shares pay $100 whichever side wins: pnl +5.
		pnl := m.SettlePosition("m1", winner)
		assert.True(t, pnl.Equal(d("5")), "winner %s, pnl %s", winner, pnl)
		assert.True(t, m.Bankroll().Equal(d("1005")))
		assert.Equal(t, 1, m.GetStats().Wins)
		assert.True(t, m.GetStats().TotalInvested.IsZero())
	}
}

func TestRecordPairedEntry_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "positions.json")

	m := newTestManager(Config{StatePath: path})
	m.RecordPairedEntry(cryptoMarket("m1"), d("0.95"), d("100"))
	require.NoError(t, m.SaveState())

	restored := newTestManager(Config{StatePath: path})
	restored.LoadState()

	require.True(t, restored.HasPosition("m1"))
	open := restored.OpenPositions()
	assert.True(t, open["m1"].Paired)
	assert.True(t, open["m1"].SizeUSD.Equal(d("95")))
}

func TestSettlePosition_UnknownAndDuplicateAreNoOps(t *testing.T) {
	m := newTestManager(Config{})

	assert.True(t, m.SettlePosition("ghost", types.SideYes).IsZero())

	_, err := m.EnterPosition(cryptoMarket("m1"), types.SideYes, d("0.40"))
	require.NoError(t, err)
	m.SettlePosition("m1", types.SideYes)
	before := m.GetStats()

	// Settling again must not double-count.
	assert.True(t, m.SettlePosition("m1", types.SideYes).IsZero())
	assert.Equal(t, before, m.GetStats())
}

func TestEnterPosition_DailyDeploymentCap(t *testing.T) {
	m := newTestManager(Config{
		MaxPerMarket:       d("20"),
		MaxDailyDeployment: d("100"),
	})

	// Five $20 entries fill the cap.
	for i := 0; i < 5; i++ {
		pos, err := m.EnterPosition(cryptoMarket(string(rune('a'+i))), types.SideYes, d("0.50"))
		require.NoError(t, err)
		require.NotNil(t, pos, "entry %d", i)
		assert.True(t, pos.SizeUSD.Equal(d("20")))
	}
	assert.True(t, m.GetStats().DailyDeployed.Equal(d("100")))

	// Sixth is rejected, state untouched.
	pos, err := m.EnterPosition(cryptoMarket("f"), types.SideYes, d("0.50"))
	require.NoError(t, err)
	assert.Nil(t, pos)
	assert.True(t, m.GetStats().DailyDeployed.Equal(d("100")))

	// Midnight rollover re-admits.
	m.mu.Lock()
	m.dailyResetDate = "2000-01-01"
	m.mu.Unlock()

	pos, err = m.EnterPosition(cryptoMarket("f"), types.SideYes, d("0.50"))
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.True(t, m.GetStats().DailyDeployed.Equal(d("20")))
}

func TestEnterPosition_ResizesDownToDailyRoom(t *testing.T) {
	m := newTestManager(Config{
		MaxPerMarket:       d("100"),
		MaxDailyDeployment: d("130"),
	})

	_, err := m.EnterPosition(cryptoMarket("m1"), types.SideYes, d("0.50"))
	require.NoError(t, err)

	// $30 of daily room left: the entry shrinks instead of rejecting.
	pos, err := m.EnterPosition(cryptoMarket("m2"), types.SideYes, d("0.50"))
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.True(t, pos.SizeUSD.Equal(d("30")))
	assert.True(t, m.GetStats().DailyDeployed.Equal(d("130")))
}

func TestEnterPosition_CycleLimits(t *testing.T) {
	m := newTestManager(Config{
		MaxPerMarket:    d("20"),
		MaxCycleEntries: 2,
	})

	for _, id := range []string{"a", "b"} {
		pos, err := m.EnterPosition(cryptoMarket(id), types.SideYes, d("0.50"))
		require.NoError(t, err)
		require.NotNil(t, pos)
	}

	pos, err := m.EnterPosition(cryptoMarket("c"), types.SideYes, d("0.50"))
	require.NoError(t, err)
	assert.Nil(t, pos)

	m.ResetCycleEntries()
	pos, err = m.EnterPosition(cryptoMarket("c"), types.SideYes, d("0.50"))
	require.NoError(t, err)
	assert.NotNil(t, pos)
}

func TestShouldSkipEntry_MoneylineFloor(t *testing.T) {
	m := newTestManager(Config{MoneylineMinPrice: d("0.35")})

	sportsML := &types.Market{
		ID:       "nba1",
		Question: "Will the Knicks beat the Celtics?",
		Source:   types.SourceNBA,
	}

	skip, reason := m.ShouldSkipEntry(sportsML, d("0.20"), types.SideYes)
	assert.True(t, skip)
	assert.Contains(t, reason, "below floor")

	skip, _ = m.ShouldSkipEntry(sportsML, d("0.35"), types.SideYes)
	assert.False(t, skip)

	// Crypto is exempt at any price.
	skip, _ = m.ShouldSkipEntry(cryptoMarket("m1"), d("0.05"), types.SideYes)
	assert.False(t, skip)

	// Spread and O/U markets are exempt from the moneyline floor.
	spread := &types.Market{
		ID:       "nba2",
		Question: "Will the Knicks cover the spread (-5.5)?",
		Source:   types.SourceNBA,
	}
	skip, _ = m.ShouldSkipEntry(spread, d("0.20"), types.SideYes)
	assert.False(t, skip)
}

func TestEnterPosition_OneOverUnderPerEvent(t *testing.T) {
	m := newTestManager(Config{})

	ou := func(id string) *types.Market {
		return &types.Market{
			ID:       id,
			Question: "Over/Under 210.5 total points?",
			Source:   types.SourceNBA,
			EventID:  "event-7",
		}
	}

	pos, err := m.EnterPosition(ou("ou1"), types.SideYes, d("0.50"))
	require.NoError(t, err)
	require.NotNil(t, pos)

	// Second O/U line on the same event is filtered.
	pos, err = m.EnterPosition(ou("ou2"), types.SideYes, d("0.50"))
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestStatePersistence_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "positions.json")

	m := newTestManager(Config{StatePath: path})
	_, err := m.EnterPosition(cryptoMarket("m1"), types.SideNo, d("0.40"))
	require.NoError(t, err)
	require.NoError(t, m.SaveState())

	// Exact persisted keys.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range requiredStateKeys {
		assert.Contains(t, raw, key)
	}

	restored := newTestManager(Config{StatePath: path})
	restored.LoadState()

	ms, rs := m.GetStats(), restored.GetStats()
	assert.True(t, ms.Bankroll.Equal(rs.Bankroll))
	assert.True(t, ms.InitialBankroll.Equal(rs.InitialBankroll))
	assert.True(t, ms.TotalInvested.Equal(rs.TotalInvested))
	assert.True(t, ms.CumulativePnL.Equal(rs.CumulativePnL))
	assert.True(t, ms.DailyDeployed.Equal(rs.DailyDeployed))
	assert.Equal(t, ms.TotalSettled, rs.TotalSettled)
	assert.Equal(t, ms.Wins, rs.Wins)
	assert.Equal(t, ms.Losses, rs.Losses)

	open := restored.OpenPositions()
	require.Len(t, open, 1)
	assert.Equal(t, types.SideNo, open["m1"].Side)
	assert.True(t, open["m1"].Shares.Equal(d("250")))
}

func TestLoadState_MissingKeyFallsBackFresh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "positions.json")

	require.NoError(t, os.WriteFile(path, []byte(`{"bankroll":"42"}`), 0o644))

	m := newTestManager(Config{StatePath: path})
	m.LoadState()

	assert.True(t, m.Bankroll().Equal(d("1000")))
}

func TestLoadState_CorruptFileFallsBackFresh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "positions.json")

	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

	m := newTestManager(Config{StatePath: path})
	m.LoadState()

	assert.True(t, m.Bankroll().Equal(d("1000")))
	assert.Empty(t, m.OpenPositions())
}
