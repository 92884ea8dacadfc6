package mandate

import (
	"fmt"
	"sync"
	"time"

	"github.com/allendforbes/0dte-bot-v2-sub000/internal/observ"
)

// Config tunes acceptance and cooldown. Defaults match live tuning.
type Config struct {
	PostExitCooldownSec float64 `yaml:"post_exit_cooldown_sec"`
	HoldIntervalSec     float64 `yaml:"hold_interval_sec"`
	HoldBarsRequired    int     `yaml:"hold_bars_required"`
	EarlySessionSec     float64 `yaml:"early_session_sec"`
}

func DefaultConfig() Config {
	return Config{
		PostExitCooldownSec: 30,
		HoldIntervalSec:     5,
		HoldBarsRequired:    2,
		EarlySessionSec:     300,
	}
}

// acceptanceState tracks sustained alignment per symbol. Reset
// entirely on bias flip.
type acceptanceState struct {
	bias       string
	holdBars   int
	rangeHigh  float64
	rangeLow   float64
	hasRange   bool
	lastHoldTS time.Time
	holding    bool
}

// Engine derives a Mandate from each underlying evaluation. Single
// writer per symbol (the underlying dispatch goroutine); the mutex
// protects SetLastExit arriving from the option stream.
type Engine struct {
	cfg Config

	mu         sync.Mutex
	acceptance map[string]*acceptanceState
	refs       map[string]map[string]float64
	lastExit   time.Time
	hasExit    bool

	now func() time.Time
}

func NewEngine(cfg Config) *Engine {
	if cfg.HoldBarsRequired == 0 {
		cfg = DefaultConfig()
	}
	return &Engine{
		cfg:        cfg,
		acceptance: make(map[string]*acceptanceState),
		refs:       make(map[string]map[string]float64),
		now:        time.Now,
	}
}

// SetLastExit starts the post-exit cooldown. Called by the pipeline
// after any position close.
func (e *Engine) SetLastExit(ts time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastExit = ts
	e.hasExit = true
}

// SetReferencePrice stores a session reference. Kinds: "onh", "onl",
// "prev_close", "open".
func (e *Engine) SetReferencePrice(symbol, kind string, value float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.refs[symbol]
	if !ok {
		m = make(map[string]float64)
		e.refs[symbol] = m
	}
	m[kind] = value
}

// resolveReference walks the fallback chain:
// VWAP -> overnight high -> overnight low -> prev close -> open.
// Missing VWAP never blocks on its own; it just removes one link.
func (e *Engine) resolveReference(symbol string, snap Snapshot) (float64, string, bool) {
	refs := e.refs[symbol]

	pick := func(fromSnap *float64, kind string) (float64, bool) {
		if fromSnap != nil && *fromSnap > 0 {
			return *fromSnap, true
		}
		if v, ok := refs[kind]; ok && v > 0 {
			return v, true
		}
		return 0, false
	}

	if snap.VWAP != nil && *snap.VWAP > 0 {
		return *snap.VWAP, "vwap", true
	}
	if v, ok := pick(snap.OvernightHigh, "onh"); ok {
		return v, "onh", true
	}
	if v, ok := pick(snap.OvernightLow, "onl"); ok {
		return v, "onl", true
	}
	if v, ok := pick(snap.PrevClose, "prev_close"); ok {
		return v, "prev_close", true
	}
	if v, ok := pick(snap.OpenPrice, "open"); ok {
		return v, "open", true
	}
	return 0, "", false
}

func (e *Engine) acceptState(symbol string) *acceptanceState {
	st, ok := e.acceptance[symbol]
	if !ok {
		st = &acceptanceState{}
		e.acceptance[symbol] = st
	}
	return st
}

func noTrade(reason string) Mandate {
	return Mandate{State: NoTrade, Reason: reason}
}

// Determine runs one evaluation. Every branch returns a fully
// populated mandate; nothing here ever raises for missing optional
// data.
func (e *Engine) Determine(symbol string, snap Snapshot) Mandate {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()

	// 1. Cooldown, before anything else.
	if e.hasExit && now.Sub(e.lastExit) < time.Duration(e.cfg.PostExitCooldownSec*float64(time.Second)) {
		return noTrade("post_exit_cooldown")
	}

	// 2. Data validity.
	if snap.Price <= 0 {
		return noTrade("no_price_data")
	}
	price := snap.Price

	// 3. Reference resolution.
	vwapAvailable := snap.VWAP != nil && *snap.VWAP > 0
	var reference float64
	var refKind string
	if snap.ReferencePrice != nil && *snap.ReferencePrice > 0 {
		reference, refKind = *snap.ReferencePrice, "explicit"
	} else {
		var ok bool
		reference, refKind, ok = e.resolveReference(symbol, snap)
		if !ok {
			return noTrade("no_reference_price")
		}
	}

	// 4. Bias from location.
	dev := price - reference
	var bias string
	switch {
	case dev > 0:
		bias = BiasCall
	case dev < 0:
		bias = BiasPut
	default:
		m := noTrade("pinned_at_reference")
		m.ReferencePrice = reference
		m.HasReference = true
		return m
	}

	// 5. Regime classification (metadata only).
	slope := 0.0
	slopeKnown := vwapAvailable && snap.Slope != nil
	if slopeKnown {
		slope = *snap.Slope
	}
	slopeAligned := slopeKnown &&
		((bias == BiasCall && slope > 0) || (bias == BiasPut && slope < 0))
	regime := RegimeTrend
	if slopeAligned {
		regime = RegimeReclaim
	}

	// 6. Acceptance state. Bias flip resets everything first.
	st := e.acceptState(symbol)
	if st.bias != bias {
		*st = acceptanceState{
			bias:      bias,
			rangeHigh: price,
			rangeLow:  price,
			hasRange:  true,
		}
	}

	// Range break checked before the range is updated, so the first
	// tick beyond the prior extreme counts as the break.
	accepted := false
	acceptReason := ""
	if st.hasRange {
		if bias == BiasCall && price > st.rangeHigh {
			accepted = true
			acceptReason = "range_break_high"
		} else if bias == BiasPut && price < st.rangeLow {
			accepted = true
			acceptReason = "range_break_low"
		}
	}
	if !st.hasRange || price > st.rangeHigh {
		st.rangeHigh = price
		st.hasRange = true
	}
	if price < st.rangeLow {
		st.rangeLow = price
	}

	// Hold bars accumulate once per interval while price stays aligned
	// with bias relative to VWAP (reference when VWAP unavailable).
	alignmentRef := reference
	if vwapAvailable {
		alignmentRef = *snap.VWAP
	}
	aligned := (bias == BiasCall && price > alignmentRef) ||
		(bias == BiasPut && price < alignmentRef)
	interval := time.Duration(e.cfg.HoldIntervalSec * float64(time.Second))
	if aligned {
		if !st.holding || now.Sub(st.lastHoldTS) >= interval {
			st.holdBars++
			st.lastHoldTS = now
			st.holding = true
		}
	} else {
		st.holdBars = 0
		st.holding = false
	}

	if !accepted && st.holdBars >= e.cfg.HoldBarsRequired {
		accepted = true
		acceptReason = "hold_bars"
	}

	// 8. Confidence (metadata only).
	confidence := 0.5
	if snap.SecondsSinceOpen < e.cfg.EarlySessionSec {
		confidence = 0.3
	}
	if !vwapAvailable {
		confidence -= 0.1
	}
	if slopeAligned {
		confidence += 0.2
	}
	if dev > 0.15 || dev < -0.15 {
		confidence += 0.1
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	reason := buildReason(snap.SecondsSinceOpen < e.cfg.EarlySessionSec, vwapAvailable, accepted, acceptReason, st.holdBars)

	state := Suppressed
	if accepted {
		state = EntryAllowed
	}
	observ.SetGauge("mandate_hold_bars", float64(st.holdBars), map[string]string{"symbol": symbol})
	observ.SetGauge("mandate_reference_price", reference, map[string]string{"symbol": symbol, "source": refKind})

	return Mandate{
		State:          state,
		Bias:           bias,
		Regime:         regime,
		Confidence:     confidence,
		Reason:         reason,
		ReferencePrice: reference,
		HasReference:   true,
		VWAPAvailable:  vwapAvailable,
		Dev:            dev,
		Slope:          slope,
	}
}

func buildReason(early, vwapAvailable, accepted bool, acceptReason string, holdBars int) string {
	session := "normal_session"
	if early {
		session = "early_session"
	}
	out := session
	if !vwapAvailable {
		out += "|vwap_unavailable"
	}
	if accepted {
		out += "|accepted:" + acceptReason
	} else {
		out += fmt.Sprintf("|pending:hold_bars=%d", holdBars)
	}
	return out
}

// DebugState exposes acceptance internals for telemetry snapshots.
func (e *Engine) DebugState(symbol string) map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.acceptance[symbol]
	cooldownActive := e.hasExit &&
		e.now().Sub(e.lastExit) < time.Duration(e.cfg.PostExitCooldownSec*float64(time.Second))
	out := map[string]any{
		"cooldown_active":    cooldownActive,
		"hold_bars_required": e.cfg.HoldBarsRequired,
	}
	if st != nil {
		out["bias"] = st.bias
		out["hold_bars"] = st.holdBars
		out["range_high"] = st.rangeHigh
		out["range_low"] = st.rangeLow
	}
	return out
}
