// Package signal turns an entry-permitting mandate into a scored,
// graded signal. Pure transforms: no state, no clocks, no I/O beyond
// metrics.
package signal

import (
	"math"

	"github.com/allendforbes/0dte-bot-v2-sub000/internal/indicators"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/mandate"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/observ"
)

// Grades, strongest first.
const (
	GradeAPlus = "A+"
	GradeA     = "A"
	GradeB     = "B"
)

// Signal is immutable once built. Score and grade drive downstream
// gate ceilings; VWAPEnergy is observability only.
type Signal struct {
	Bias       string
	Regime     string
	Score      float64
	Grade      string
	TrailMult  float64
	VWAPEnergy float64
	Confidence float64
}

// Config holds the boost thresholds. Zero value is unusable; call
// DefaultConfig.
type Config struct {
	SlopeBoostThreshold float64 `yaml:"slope_boost_threshold"`
	DevBoostThreshold   float64 `yaml:"dev_boost_threshold"`
	ConfidenceBoostMin  float64 `yaml:"confidence_boost_min"`
	HighConfidenceMin   float64 `yaml:"high_confidence_min"`
}

func DefaultConfig() Config {
	return Config{
		SlopeBoostThreshold: 0.05,
		DevBoostThreshold:   0.15,
		ConfidenceBoostMin:  0.70,
		HighConfidenceMin:   0.80,
	}
}

type Builder struct {
	cfg Config
}

func NewBuilder(cfg Config) *Builder {
	if cfg.SlopeBoostThreshold == 0 {
		cfg = DefaultConfig()
	}
	return &Builder{cfg: cfg}
}

// Build assumes m.AllowsEntry() held at the call site; it does not
// re-check permission.
func (b *Builder) Build(symbol string, m mandate.Mandate) Signal {
	score := 60.0
	if m.Regime == mandate.RegimeReclaim {
		score = 70.0
	}

	slopeAligned := (m.Bias == mandate.BiasCall && m.Slope > 0) ||
		(m.Bias == mandate.BiasPut && m.Slope < 0)

	if math.Abs(m.Slope) > b.cfg.SlopeBoostThreshold {
		score += 15
	}
	if math.Abs(m.Dev) > b.cfg.DevBoostThreshold {
		score += 10
	}
	if slopeAligned {
		score += 5
	}
	if m.Confidence >= b.cfg.ConfidenceBoostMin {
		score += 10
	}

	grade := GradeB
	switch {
	case score >= 90:
		grade = GradeAPlus
	case score >= 70:
		grade = GradeA
	}

	mult := trailMult(grade)
	if m.Confidence >= b.cfg.HighConfidenceMin {
		mult = 1.50
	}

	energy := indicators.Energy(m.Dev, m.Slope, slopeAligned)

	observ.IncCounter("signals_built_total", map[string]string{"symbol": symbol, "grade": grade})
	observ.SetGauge("signal_score", score, map[string]string{"symbol": symbol})

	return Signal{
		Bias:       m.Bias,
		Regime:     m.Regime,
		Score:      score,
		Grade:      grade,
		TrailMult:  mult,
		VWAPEnergy: energy,
		Confidence: m.Confidence,
	}
}

func trailMult(grade string) float64 {
	switch grade {
	case GradeAPlus:
		return 1.40
	case GradeA:
		return 1.30
	default:
		return 1.25
	}
}
