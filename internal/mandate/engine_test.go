package mandate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allendforbes/0dte-bot-v2-sub000/internal/feed"
)

func newTestEngine() (*Engine, *time.Time) {
	e := NewEngine(DefaultConfig())
	now := time.Unix(1_750_000_000, 0)
	e.now = func() time.Time { return now }
	return e, &now
}

func snapWithVWAP(price, vwap, slope float64) Snapshot {
	return Snapshot{
		Price:            price,
		VWAP:             feed.Float(vwap),
		Dev:              feed.Float(price - vwap),
		Slope:            feed.Float(slope),
		SecondsSinceOpen: 1200,
	}
}

func TestAllowsEntryOnlyForEntryAllowed(t *testing.T) {
	assert.True(t, Mandate{State: EntryAllowed}.AllowsEntry())
	assert.False(t, Mandate{State: Suppressed}.AllowsEntry())
	assert.False(t, Mandate{State: NoTrade}.AllowsEntry())
}

func TestCooldownBeatsEverything(t *testing.T) {
	e, now := newTestEngine()
	e.SetLastExit(*now)

	m := e.Determine("SPY", snapWithVWAP(100.5, 100.0, 0.02))
	assert.Equal(t, NoTrade, m.State)
	assert.Equal(t, "post_exit_cooldown", m.Reason)

	// Past the window the same snapshot evaluates normally.
	*now = now.Add(31 * time.Second)
	m = e.Determine("SPY", snapWithVWAP(100.5, 100.0, 0.02))
	assert.NotEqual(t, "post_exit_cooldown", m.Reason)
}

func TestNoPriceData(t *testing.T) {
	e, _ := newTestEngine()
	m := e.Determine("SPY", Snapshot{})
	assert.Equal(t, NoTrade, m.State)
	assert.Equal(t, "no_price_data", m.Reason)
}

func TestNoReferencePrice(t *testing.T) {
	e, _ := newTestEngine()
	m := e.Determine("SPY", Snapshot{Price: 100, SecondsSinceOpen: 60})
	assert.Equal(t, NoTrade, m.State)
	assert.Equal(t, "no_reference_price", m.Reason)
}

func TestReferenceFallbackChain(t *testing.T) {
	e, _ := newTestEngine()
	e.SetReferencePrice("SPY", "prev_close", 99.0)
	e.SetReferencePrice("SPY", "onh", 101.0)

	// ONH outranks prev close.
	m := e.Determine("SPY", Snapshot{Price: 100, SecondsSinceOpen: 600})
	require.True(t, m.HasReference)
	assert.Equal(t, 101.0, m.ReferencePrice)
	assert.Equal(t, BiasPut, m.Bias, "price below ONH reference")

	// VWAP outranks everything once it prints.
	m = e.Determine("SPY", snapWithVWAP(100.5, 100.0, 0))
	assert.Equal(t, 100.0, m.ReferencePrice)
	assert.Equal(t, BiasCall, m.Bias)
}

func TestPinnedAtReference(t *testing.T) {
	e, _ := newTestEngine()
	m := e.Determine("SPY", snapWithVWAP(100.0, 100.0, 0))
	assert.Equal(t, NoTrade, m.State)
	assert.Equal(t, "pinned_at_reference", m.Reason)
	assert.True(t, m.HasReference)
}

func TestRegimeClassification(t *testing.T) {
	e, _ := newTestEngine()

	m := e.Determine("SPY", snapWithVWAP(100.5, 100.0, 0.03))
	assert.Equal(t, RegimeReclaim, m.Regime, "slope aligned with CALL")

	m = e.Determine("SPY", snapWithVWAP(100.5, 100.0, -0.03))
	assert.Equal(t, RegimeTrend, m.Regime, "slope against CALL")

	// No VWAP: slope is meaningless, regime defaults to TREND.
	e2, _ := newTestEngine()
	e2.SetReferencePrice("SPY", "open", 100.0)
	m = e2.Determine("SPY", Snapshot{Price: 100.5, SecondsSinceOpen: 600})
	assert.Equal(t, RegimeTrend, m.Regime)
}

func TestHoldBarsScenarioA(t *testing.T) {
	e, now := newTestEngine()

	m := e.Determine("SPY", snapWithVWAP(100.5, 100.0, 0.01))
	assert.Equal(t, Suppressed, m.State)

	*now = now.Add(5 * time.Second)
	m = e.Determine("SPY", snapWithVWAP(100.5, 100.0, 0.01))
	assert.Equal(t, EntryAllowed, m.State)
	assert.Equal(t, BiasCall, m.Bias)
	assert.Contains(t, m.Reason, "accepted:hold_bars")
}

func TestHoldBarsNeedFullInterval(t *testing.T) {
	e, now := newTestEngine()

	e.Determine("SPY", snapWithVWAP(100.5, 100.0, 0.01))
	// 2 seconds later: interval not elapsed, still one bar.
	*now = now.Add(2 * time.Second)
	m := e.Determine("SPY", snapWithVWAP(100.5, 100.0, 0.01))
	assert.Equal(t, Suppressed, m.State)
}

func TestMisalignmentResetsHoldBars(t *testing.T) {
	e, now := newTestEngine()

	e.Determine("SPY", snapWithVWAP(100.5, 100.0, 0.01))
	*now = now.Add(5 * time.Second)

	// A dip below VWAP flips bias, which starts acceptance over.
	e.Determine("SPY", snapWithVWAP(99.5, 100.0, -0.01))
	*now = now.Add(5 * time.Second)
	m := e.Determine("SPY", snapWithVWAP(100.5, 100.0, 0.01))
	assert.Equal(t, Suppressed, m.State, "flip started acceptance over")
}

func TestRangeBreakScenarioB(t *testing.T) {
	e, now := newTestEngine()

	m := e.Determine("SPY", snapWithVWAP(100.5, 100.0, 0.01))
	require.Equal(t, Suppressed, m.State)

	// One tick above the tracked high: immediate acceptance, no bars.
	*now = now.Add(1 * time.Second)
	m = e.Determine("SPY", snapWithVWAP(100.6, 100.0, 0.01))
	assert.Equal(t, EntryAllowed, m.State)
	assert.Contains(t, m.Reason, "accepted:range_break_high")
}

func TestRangeBreakLowForPuts(t *testing.T) {
	e, now := newTestEngine()

	m := e.Determine("SPY", snapWithVWAP(99.5, 100.0, -0.01))
	require.Equal(t, Suppressed, m.State)

	*now = now.Add(1 * time.Second)
	m = e.Determine("SPY", snapWithVWAP(99.4, 100.0, -0.01))
	assert.Equal(t, EntryAllowed, m.State)
	assert.Contains(t, m.Reason, "accepted:range_break_low")
}

func TestDeviationMagnitudeOnlyMovesConfidence(t *testing.T) {
	e, now := newTestEngine()
	small := e.Determine("SPY", snapWithVWAP(100.05, 100.0, 0.01))

	e2 := NewEngine(DefaultConfig())
	e2.now = func() time.Time { return *now }
	large := e2.Determine("SPY", snapWithVWAP(100.50, 100.0, 0.01))

	assert.Equal(t, small.State, large.State, "deviation magnitude must not change permission")
	assert.Greater(t, large.Confidence, small.Confidence)
}

func TestConfidenceClamped(t *testing.T) {
	e, _ := newTestEngine()
	m := e.Determine("SPY", snapWithVWAP(101.0, 100.0, 0.05))
	assert.LessOrEqual(t, m.Confidence, 1.0)
	assert.GreaterOrEqual(t, m.Confidence, 0.0)
}

func TestEarlySessionLowersConfidence(t *testing.T) {
	e, _ := newTestEngine()
	snap := snapWithVWAP(100.5, 100.0, 0)
	snap.SecondsSinceOpen = 60
	early := e.Determine("SPY", snap)

	e2, _ := newTestEngine()
	late := e2.Determine("SPY", snapWithVWAP(100.5, 100.0, 0))
	assert.Less(t, early.Confidence, late.Confidence)
	assert.Contains(t, early.Reason, "early_session")
}

func TestVWAPAbsenceIsMetadataNotBlock(t *testing.T) {
	e, _ := newTestEngine()
	e.SetReferencePrice("SPY", "open", 100.0)

	m := e.Determine("SPY", Snapshot{Price: 100.5, SecondsSinceOpen: 600})
	assert.NotEqual(t, NoTrade, m.State)
	assert.False(t, m.VWAPAvailable)
	assert.Contains(t, m.Reason, "vwap_unavailable")
}
