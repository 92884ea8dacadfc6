// Package mandate is the single authority for entry permission.
// Everything downstream of it returns data and metrics, never a veto:
// the only boolean that may steer control flow is AllowsEntry.
package mandate

// State is the per-evaluation permission outcome. Re-derived on every
// tick, never sticky.
type State string

const (
	EntryAllowed State = "ENTRY_ALLOWED"
	Suppressed   State = "SUPPRESSED"
	NoTrade      State = "NO_TRADE"
)

// Bias labels, shared with the signal builder, selector, and gate.
const (
	BiasCall = "CALL"
	BiasPut  = "PUT"
)

// Regime labels (metadata only).
const (
	RegimeTrend   = "TREND"
	RegimeReclaim = "RECLAIM"
)

// Mandate is the immutable result of one evaluation. Only State
// governs control flow; bias, regime, confidence, and reason are
// observability metadata.
type Mandate struct {
	State          State
	Bias           string // BiasCall, BiasPut, or ""
	Regime         string // RegimeTrend or RegimeReclaim, "" when no bias
	Confidence     float64
	Reason         string
	ReferencePrice float64
	HasReference   bool
	VWAPAvailable  bool
	Dev            float64 // price - reference, 0 when no reference
	Slope          float64 // vwap slope used, 0 when unavailable
}

// AllowsEntry is the single permission gate.
func (m Mandate) AllowsEntry() bool {
	return m.State == EntryAllowed
}

// Snapshot is the market view one evaluation consumes. Nil pointers
// mean "not available", which the engine treats differently from zero.
type Snapshot struct {
	Price            float64
	VWAP             *float64
	Dev              *float64
	Slope            *float64
	SecondsSinceOpen float64

	OvernightHigh *float64
	OvernightLow  *float64
	PrevClose     *float64
	OpenPrice     *float64

	// ReferencePrice overrides the fallback chain when set.
	ReferencePrice *float64
}
