// Package trail manages an open position's trailing stop. The stop is
// a ratchet: once armed it only rises, and a request to lower it is a
// silent no-op.
package trail

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/allendforbes/0dte-bot-v2-sub000/internal/observ"
)

const historyCap = 2048

type Config struct {
	MaxLossFraction float64 `yaml:"max_loss_fraction"`
}

func DefaultConfig() Config {
	return Config{MaxLossFraction: 0.50}
}

// StopAdjustment records one observed tick and the stop in force
// after it.
type StopAdjustment struct {
	TS        time.Time
	Mid       float64
	RMultiple float64
	Stop      float64
	Armed     bool
}

// Trail tracks one position from entry to exit signal.
type Trail struct {
	mu sync.Mutex

	PositionID string
	Symbol     string
	Contract   string

	cfg        Config
	active     bool
	entry      float64
	multiplier float64
	oneR       float64
	stop       float64
	armed      bool
	lastMid    float64
	history    []StopAdjustment

	now func() time.Time
}

func New(cfg Config) *Trail {
	if cfg.MaxLossFraction == 0 {
		cfg = DefaultConfig()
	}
	return &Trail{
		PositionID: uuid.NewString(),
		cfg:        cfg,
		now:        time.Now,
	}
}

// Initialize seeds the trail for a filled entry. 1R is the max-loss
// fraction of the entry premium; the initial stop sits 1R below entry.
func (t *Trail) Initialize(symbol, contract string, entryPrice, multiplier float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fraction := t.cfg.MaxLossFraction
	t.Symbol = symbol
	t.Contract = contract
	t.active = true
	t.entry = entryPrice
	t.multiplier = multiplier
	t.oneR = entryPrice * fraction
	t.stop = entryPrice * (1 - fraction)
	t.armed = false
	t.lastMid = entryPrice
	t.history = t.history[:0]

	observ.SetGauge("trail_stop", t.stop, map[string]string{"symbol": symbol})
	observ.Log("trail_initialized", map[string]any{
		"position_id": t.PositionID,
		"symbol":      symbol,
		"contract":    contract,
		"entry":       entryPrice,
		"multiplier":  multiplier,
		"one_r":       t.oneR,
		"stop":        t.stop,
	})
}

// OnTick ingests a mid price and returns whether the position should
// be exited. Inactive trails always return false.
func (t *Trail) OnTick(mid float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.active || mid <= 0 {
		return false
	}
	t.lastMid = mid

	rMultiple := (mid - t.entry) / t.oneR

	if !t.armed && mid >= t.entry+t.multiplier*t.oneR {
		t.armed = true
	}
	if t.armed {
		if next := mid - t.oneR; next > t.stop {
			t.stop = next
			observ.SetGauge("trail_stop", t.stop, map[string]string{"symbol": t.Symbol})
		}
	}

	t.record(mid, rMultiple)

	if mid <= t.stop {
		t.active = false
		observ.IncCounter("trail_exits_total", map[string]string{"symbol": t.Symbol})
		return true
	}
	return false
}

func (t *Trail) record(mid, rMultiple float64) {
	if len(t.history) >= historyCap {
		copy(t.history, t.history[1:])
		t.history = t.history[:historyCap-1]
	}
	t.history = append(t.history, StopAdjustment{
		TS:        t.now(),
		Mid:       mid,
		RMultiple: rMultiple,
		Stop:      t.stop,
		Armed:     t.armed,
	})
}

// Active reports whether the trail is still managing a position.
func (t *Trail) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Stop returns the stop currently in force.
func (t *Trail) Stop() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop
}

// Entry returns the fill price the trail was seeded with.
func (t *Trail) Entry() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entry
}

// LastMid returns the most recent observed mid.
func (t *Trail) LastMid() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastMid
}

// History returns a copy of the recorded tick trail.
func (t *Trail) History() []StopAdjustment {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]StopAdjustment, len(t.history))
	copy(out, t.history)
	return out
}
