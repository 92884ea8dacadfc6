// Package indicators holds the incremental reference-price trackers
// consumed by the mandate engine. Trackers are single-writer per
// symbol: only the underlying tick dispatcher mutates them.
package indicators

import "math"

// VWAPResult is one tracker observation. Valid is false until the
// tracker has seen enough ticks and volume to mean anything; callers
// must treat an invalid deviation as "no signal yet", not "flat".
type VWAPResult struct {
	VWAP  float64
	Dev   float64 // price - vwap
	Slope float64 // dev - previous dev
	Valid bool
}

// VWAPConfig sets the window and validity floor. WindowSize 0 means
// whole-session accumulation.
type VWAPConfig struct {
	WindowSize int     `yaml:"window_size"`
	MinTicks   int     `yaml:"min_ticks"`
	MinVolume  float64 `yaml:"min_volume"`
}

func DefaultVWAPConfig() VWAPConfig {
	return VWAPConfig{WindowSize: 0, MinTicks: 5, MinVolume: 100}
}

// VWAPTracker accumulates price*volume incrementally.
type VWAPTracker struct {
	cfg VWAPConfig

	prices  []float64
	volumes []float64
	sumPV   float64
	sumV    float64

	ticks     int
	totalVol  float64
	lastVWAP  float64
	lastDev   float64
	seenVWAP  bool
}

func NewVWAPTracker(cfg VWAPConfig) *VWAPTracker {
	if cfg.MinTicks == 0 && cfg.MinVolume == 0 && cfg.WindowSize == 0 {
		cfg = DefaultVWAPConfig()
	}
	return &VWAPTracker{cfg: cfg}
}

// Update folds one tick into the tracker and returns the current view.
// A non-positive price echoes the previous VWAP (or the raw price when
// nothing has been seen yet) with Valid forced false; it does not
// disturb the accumulated state.
func (t *VWAPTracker) Update(price, volume float64) VWAPResult {
	if price <= 0 {
		vwap := price
		if t.seenVWAP {
			vwap = t.lastVWAP
		}
		return VWAPResult{VWAP: vwap, Dev: t.lastDev, Slope: 0, Valid: false}
	}
	if volume <= 0 {
		volume = 1
	}

	t.sumPV += price * volume
	t.sumV += volume
	if t.cfg.WindowSize > 0 {
		t.prices = append(t.prices, price)
		t.volumes = append(t.volumes, volume)
		if len(t.prices) > t.cfg.WindowSize {
			t.sumPV -= t.prices[0] * t.volumes[0]
			t.sumV -= t.volumes[0]
			t.prices = t.prices[1:]
			t.volumes = t.volumes[1:]
		}
	}
	t.ticks++
	t.totalVol += volume

	vwap := price
	if t.sumV > 0 {
		vwap = t.sumPV / t.sumV
	}
	dev := price - vwap
	slope := dev - t.lastDev
	if !t.seenVWAP {
		slope = 0
	}

	t.lastVWAP = vwap
	t.lastDev = dev
	t.seenVWAP = true

	valid := t.ticks >= t.cfg.MinTicks && t.totalVol >= t.cfg.MinVolume
	return VWAPResult{VWAP: vwap, Dev: dev, Slope: slope, Valid: valid}
}

// VWAP returns the last computed value and whether one exists.
func (t *VWAPTracker) VWAP() (float64, bool) {
	return t.lastVWAP, t.seenVWAP
}

// Energy is an observability composite in [0,100] built from deviation
// magnitude, slope magnitude, and bias alignment.
func Energy(dev, slope float64, aligned bool) float64 {
	e := 50*math.Min(math.Abs(dev)/0.30, 1) + 30*math.Min(math.Abs(slope)/0.10, 1)
	if aligned {
		e += 20
	}
	return math.Min(e, 100)
}
