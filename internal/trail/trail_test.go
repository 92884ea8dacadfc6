package trail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTrail(entry, mult float64) *Trail {
	tr := New(DefaultConfig())
	tr.Initialize("SPY", "SPY251017C00450000", entry, mult)
	return tr
}

func TestInitialStopAndOneR(t *testing.T) {
	tr := newTrail(1.00, 2.0)
	assert.Equal(t, 0.50, tr.Stop())
	assert.Equal(t, 1.00, tr.Entry())
	assert.True(t, tr.Active())
	assert.NotEmpty(t, tr.PositionID)
}

func TestArmThenRatchet(t *testing.T) {
	tr := newTrail(1.00, 2.0)

	// Below the arming level the stop stays at the initial floor.
	assert.False(t, tr.OnTick(1.40))
	assert.Equal(t, 0.50, tr.Stop())

	// 2.05 >= entry + 2*0.50: armed, stop rises to mid - 1R.
	assert.False(t, tr.OnTick(2.05))
	assert.InDelta(t, 1.55, tr.Stop(), 1e-9)

	// Higher mid ratchets further.
	assert.False(t, tr.OnTick(2.30))
	assert.InDelta(t, 1.80, tr.Stop(), 1e-9)
}

func TestStopNeverLowers(t *testing.T) {
	tr := newTrail(1.00, 2.0)
	tr.OnTick(2.30)
	require.InDelta(t, 1.80, tr.Stop(), 1e-9)

	// A pullback above the stop must not widen it.
	assert.False(t, tr.OnTick(1.90))
	assert.InDelta(t, 1.80, tr.Stop(), 1e-9)
}

func TestExitOnStopHit(t *testing.T) {
	tr := newTrail(1.00, 2.0)
	tr.OnTick(2.05) // stop 1.55

	assert.True(t, tr.OnTick(1.50))
	assert.False(t, tr.Active())

	// Further ticks on a dead trail are no-ops.
	assert.False(t, tr.OnTick(0.10))
}

func TestExitAtInitialFloorWithoutArming(t *testing.T) {
	tr := newTrail(1.00, 2.0)
	assert.True(t, tr.OnTick(0.45), "max-loss floor works before arming")
}

func TestInvalidMidIgnored(t *testing.T) {
	tr := newTrail(1.00, 2.0)
	assert.False(t, tr.OnTick(0))
	assert.False(t, tr.OnTick(-1))
	assert.True(t, tr.Active())
	assert.Equal(t, 0.50, tr.Stop())
}

func TestHistoryBounded(t *testing.T) {
	tr := newTrail(1.00, 100.0) // never arms, never exits
	for i := 0; i < historyCap+50; i++ {
		tr.OnTick(1.10)
	}
	h := tr.History()
	assert.Len(t, h, historyCap)
	assert.Equal(t, 1.10, h[len(h)-1].Mid)
}

func TestHistoryRecordsRMultiple(t *testing.T) {
	tr := newTrail(1.00, 2.0)
	tr.OnTick(1.25)
	h := tr.History()
	require.Len(t, h, 1)
	assert.InDelta(t, 0.5, h[0].RMultiple, 1e-9)
	assert.False(t, h[0].Armed)
}
