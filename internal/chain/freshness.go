package chain

import (
	"sync"
	"time"

	"github.com/allendforbes/0dte-bot-v2-sub000/internal/observ"
)

// FreshnessConfig sets the dual-timer staleness bounds. The opening
// window carries its own frame bound; heartbeat bound is always twice
// the frame bound.
type FreshnessConfig struct {
	OpenThresholdMs   float64 `yaml:"open_threshold_ms"`
	NormalThresholdMs float64 `yaml:"normal_threshold_ms"`
	RequiredFrames    int     `yaml:"required_frames"`
}

func DefaultFreshnessConfig() FreshnessConfig {
	return FreshnessConfig{OpenThresholdMs: 250, NormalThresholdMs: 120, RequiredFrames: 3}
}

type freshnessState struct {
	lastFrame time.Time
	lastHB    time.Time
	consec    int
}

// FreshnessMonitor detects feed staleness per symbol with two timers
// (data-frame age, heartbeat age) and a consecutive-good hold-down. A
// reconnect can deliver one fresh frame while subscriptions are still
// being re-established; requiring several good evaluations in a row
// keeps that from flapping the pipeline back on too early.
type FreshnessMonitor struct {
	mu    sync.Mutex
	cfg   FreshnessConfig
	state map[string]*freshnessState
	now   func() time.Time
}

func NewFreshnessMonitor(cfg FreshnessConfig) *FreshnessMonitor {
	if cfg.RequiredFrames == 0 {
		cfg = DefaultFreshnessConfig()
	}
	return &FreshnessMonitor{
		cfg:   cfg,
		state: make(map[string]*freshnessState),
		now:   time.Now,
	}
}

func (f *FreshnessMonitor) get(symbol string) *freshnessState {
	st, ok := f.state[symbol]
	if !ok {
		st = &freshnessState{}
		f.state[symbol] = st
	}
	return st
}

// MarkFrame records arrival of a data frame.
func (f *FreshnessMonitor) MarkFrame(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.get(symbol).lastFrame = f.now()
}

// MarkHeartbeat records a transport heartbeat.
func (f *FreshnessMonitor) MarkHeartbeat(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.get(symbol).lastHB = f.now()
}

// IsFresh evaluates both timers against the window-appropriate bound.
// Either timer over its bound fails the check and resets the
// consecutive-good counter; fresh is reported only once the counter
// reaches RequiredFrames.
func (f *FreshnessMonitor) IsFresh(symbol string, isOpenWindow bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := f.get(symbol)
	now := f.now()

	frameAge := ageMs(now, st.lastFrame)
	hbAge := ageMs(now, st.lastHB)

	thresh := f.cfg.NormalThresholdMs
	if isOpenWindow {
		thresh = f.cfg.OpenThresholdMs
	}

	if frameAge > thresh || hbAge > thresh*2 {
		st.consec = 0
		observ.IncCounter("freshness_fail_total", map[string]string{"symbol": symbol})
		return false
	}

	st.consec++
	fresh := st.consec >= f.cfg.RequiredFrames
	observ.SetGauge("freshness_consec_good", float64(st.consec), map[string]string{"symbol": symbol})
	return fresh
}

// FrameAgeMs exposes the frame timer for telemetry.
func (f *FreshnessMonitor) FrameAgeMs(symbol string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return ageMs(f.now(), f.get(symbol).lastFrame)
}

// HeartbeatAgeMs exposes the heartbeat timer for telemetry.
func (f *FreshnessMonitor) HeartbeatAgeMs(symbol string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return ageMs(f.now(), f.get(symbol).lastHB)
}

func ageMs(now, then time.Time) float64 {
	if then.IsZero() {
		return 1e12
	}
	return float64(now.Sub(then)) / float64(time.Millisecond)
}
