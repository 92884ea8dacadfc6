package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allendforbes/0dte-bot-v2-sub000/internal/feed"
)

func quote(symbol, contract string, bid, ask float64) feed.OptionTick {
	return feed.OptionTick{
		Symbol:   symbol,
		Contract: contract,
		Strike:   feed.Float(500),
		Right:    feed.Right("C"),
		Bid:      bid,
		Ask:      ask,
		RecvTS:   time.Now(),
	}
}

func TestMergeQuote_ComputesMid(t *testing.T) {
	a := NewAggregator([]string{"SPY"})
	a.MergeQuote(quote("SPY", "SPY251205C00500000", 0.95, 1.05))

	row, ok := a.Row("SPY", "SPY251205C00500000")
	require.True(t, ok)
	assert.InDelta(t, 1.00, row.Mid, 1e-9)
	assert.Equal(t, "C", row.Right)
	assert.Equal(t, 500.0, row.Strike)
}

func TestMergeQuote_RejectsInvalid(t *testing.T) {
	a := NewAggregator([]string{"SPY"})

	a.MergeQuote(quote("SPY", "c1", 0, 1.05))    // missing bid
	a.MergeQuote(quote("SPY", "c2", 1.00, 0))    // missing ask
	a.MergeQuote(quote("SPY", "c3", 1.10, 0.90)) // crossed

	assert.Equal(t, 0, a.RowCount("SPY"))

	// A crossed update must not clobber an existing good row either.
	a.MergeQuote(quote("SPY", "c4", 0.95, 1.05))
	a.MergeQuote(quote("SPY", "c4", 1.10, 0.90))
	row, ok := a.Row("SPY", "c4")
	require.True(t, ok)
	assert.Equal(t, 0.95, row.Bid)
	assert.Equal(t, 1.05, row.Ask)
}

func TestMergeAnalytics_PlaceholderThenQuote(t *testing.T) {
	a := NewAggregator([]string{"SPY"})

	a.MergeAnalytics(feed.AnalyticsUpdate{
		Symbol:   "SPY",
		Contract: "c1",
		Delta:    feed.Float(0.31),
		Gamma:    feed.Float(0.04),
	})

	// Hydration-only row exists but is not in the snapshot.
	assert.Equal(t, 1, a.RowCount("SPY"))
	assert.Empty(t, a.Snapshot("SPY").Rows)

	a.MergeQuote(quote("SPY", "c1", 0.95, 1.05))
	snap := a.Snapshot("SPY")
	require.Len(t, snap.Rows, 1)
	assert.True(t, snap.Rows[0].Hydrated)
	require.NotNil(t, snap.Rows[0].Delta)
	assert.Equal(t, 0.31, *snap.Rows[0].Delta)
}

func TestMergeAnalytics_OnlyNonNilFieldsMerge(t *testing.T) {
	a := NewAggregator([]string{"SPY"})
	a.MergeQuote(quote("SPY", "c1", 0.95, 1.05))
	a.MergeAnalytics(feed.AnalyticsUpdate{Symbol: "SPY", Contract: "c1", Delta: feed.Float(0.30)})
	a.MergeAnalytics(feed.AnalyticsUpdate{Symbol: "SPY", Contract: "c1", IV: feed.Float(0.22)})

	row, _ := a.Row("SPY", "c1")
	require.NotNil(t, row.Delta)
	assert.Equal(t, 0.30, *row.Delta, "second merge must not erase delta")
	require.NotNil(t, row.IV)
	assert.Equal(t, 0.22, *row.IV)
}

func TestSnapshot_DeltaWindow(t *testing.T) {
	a := NewAggregator([]string{"SPY"})

	inWindow := quote("SPY", "c1", 0.95, 1.05)
	inWindow.Delta = feed.Float(0.30)
	outWindow := quote("SPY", "c2", 0.95, 1.05)
	outWindow.Delta = feed.Float(0.70)
	noDelta := quote("SPY", "c3", 0.95, 1.05)

	a.MergeQuote(inWindow)
	a.MergeQuote(outWindow)
	a.MergeQuote(noDelta)

	// No window configured: everything usable is visible.
	assert.Len(t, a.Snapshot("SPY").Rows, 3)

	a.SetDeltaWindow("SPY", DeltaWindow{Min: 0.12, Max: 0.48})
	snap := a.Snapshot("SPY")
	require.Len(t, snap.Rows, 1)
	assert.Equal(t, "c1", snap.Rows[0].Contract)
}

func TestSnapshot_DeltaWindowUsesAbsoluteDelta(t *testing.T) {
	a := NewAggregator([]string{"SPY"})
	put := quote("SPY", "p1", 0.95, 1.05)
	put.Right = feed.Right("P")
	put.Delta = feed.Float(-0.30)
	a.MergeQuote(put)

	a.SetDeltaWindow("SPY", DeltaWindow{Min: 0.12, Max: 0.48})
	assert.Len(t, a.Snapshot("SPY").Rows, 1)
}

func TestSnapshot_IsACopy(t *testing.T) {
	a := NewAggregator([]string{"SPY"})
	a.MergeQuote(quote("SPY", "c1", 0.95, 1.05))

	snap := a.Snapshot("SPY")
	snap.Rows[0].Bid = 9.99

	row, _ := a.Row("SPY", "c1")
	assert.Equal(t, 0.95, row.Bid)
}

func TestFreshness_HoldDown(t *testing.T) {
	f := NewFreshnessMonitor(FreshnessConfig{OpenThresholdMs: 250, NormalThresholdMs: 120, RequiredFrames: 3})
	now := time.Unix(1_700_000_000, 0)
	f.now = func() time.Time { return now }

	f.MarkFrame("SPY")
	f.MarkHeartbeat("SPY")

	// Three consecutive good evaluations required.
	assert.False(t, f.IsFresh("SPY", false))
	assert.False(t, f.IsFresh("SPY", false))
	assert.True(t, f.IsFresh("SPY", false))

	// Stale frame resets the counter.
	now = now.Add(500 * time.Millisecond)
	assert.False(t, f.IsFresh("SPY", false))

	f.MarkFrame("SPY")
	f.MarkHeartbeat("SPY")
	assert.False(t, f.IsFresh("SPY", false), "counter restarted from zero")
}

func TestFreshness_HeartbeatBoundIsDouble(t *testing.T) {
	f := NewFreshnessMonitor(DefaultFreshnessConfig())
	now := time.Unix(1_700_000_000, 0)
	f.now = func() time.Time { return now }

	f.MarkHeartbeat("SPY")
	now = now.Add(200 * time.Millisecond)
	f.MarkFrame("SPY")

	// Frame fresh (0ms), heartbeat 200ms <= 2*120ms in normal window.
	assert.False(t, f.IsFresh("SPY", false)) // consec 1
	assert.False(t, f.IsFresh("SPY", false)) // consec 2
	assert.True(t, f.IsFresh("SPY", false))

	now = now.Add(100 * time.Millisecond)
	f.MarkFrame("SPY")
	// Heartbeat now 300ms > 240ms: fails despite fresh frame.
	assert.False(t, f.IsFresh("SPY", false))
}

func TestFreshness_OpenWindowThreshold(t *testing.T) {
	f := NewFreshnessMonitor(DefaultFreshnessConfig())
	now := time.Unix(1_700_000_000, 0)
	f.now = func() time.Time { return now }

	f.MarkFrame("SPY")
	f.MarkHeartbeat("SPY")
	now = now.Add(200 * time.Millisecond)

	// 200ms frame age: inside the 250ms open bound, outside 120ms.
	assert.False(t, f.IsFresh("SPY", false))
	f.IsFresh("SPY", true)
	f.IsFresh("SPY", true)
	assert.True(t, f.IsFresh("SPY", true))
}

func TestFreshness_NeverMarkedIsStale(t *testing.T) {
	f := NewFreshnessMonitor(DefaultFreshnessConfig())
	assert.False(t, f.IsFresh("SPY", true))
}
