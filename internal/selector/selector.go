// Package selector picks one contract for a given bias from the chain
// aggregator's latest snapshot. The ranking is fully deterministic:
// the same rows always produce the same winner.
package selector

import (
	"math"
	"sort"

	"github.com/allendforbes/0dte-bot-v2-sub000/internal/chain"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/mandate"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/observ"
)

// Config bounds the candidate pool. PremiumCeilings is keyed by
// underlying symbol; DefaultCeiling applies when a symbol is missing.
type Config struct {
	MaxATMDistance  int                `yaml:"max_atm_distance"`
	DefaultCeiling  float64            `yaml:"default_ceiling"`
	PremiumCeilings map[string]float64 `yaml:"premium_ceilings"`
	DeltaTarget     float64            `yaml:"delta_target"`
}

func DefaultConfig() Config {
	return Config{
		MaxATMDistance: 2,
		DefaultCeiling: 2.50,
		DeltaTarget:    0.30,
	}
}

// Result is the finalized pick plus the derived fields used during
// ranking, kept for the decision log.
type Result struct {
	Contract        string
	Strike          float64
	Right           string
	Bid             float64
	Ask             float64
	Mid             float64
	CeilingDistance float64
	ATMDistance     float64
	Delta           *float64
	Gamma           *float64
}

type Selector struct {
	cfg Config
}

func NewSelector(cfg Config) *Selector {
	if cfg.MaxATMDistance == 0 {
		cfg = DefaultConfig()
	}
	return &Selector{cfg: cfg}
}

func (s *Selector) ceiling(symbol string) float64 {
	if v, ok := s.cfg.PremiumCeilings[symbol]; ok && v > 0 {
		return v
	}
	return s.cfg.DefaultCeiling
}

// Select returns the winning contract for the bias, or nil when no
// usable row survives filtering.
func (s *Selector) Select(snap chain.Snapshot, bias string, underlying float64) *Result {
	right := "C"
	deltaTarget := s.cfg.DeltaTarget
	if bias == mandate.BiasPut {
		right = "P"
		deltaTarget = -s.cfg.DeltaTarget
	}

	var rows []chain.Row
	for _, r := range snap.Rows {
		if r.Right != right || !r.Usable() {
			continue
		}
		rows = append(rows, r)
	}
	if len(rows) == 0 {
		observ.IncCounter("selector_empty_total", map[string]string{"symbol": snap.Symbol, "stage": "right"})
		return nil
	}

	rows = s.atmCluster(rows, underlying)

	ceiling := s.ceiling(snap.Symbol)
	kept := rows[:0]
	for _, r := range rows {
		if r.Mid <= ceiling {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		observ.IncCounter("selector_empty_total", map[string]string{"symbol": snap.Symbol, "stage": "ceiling"})
		return nil
	}

	sort.Slice(kept, func(i, j int) bool {
		a, b := &kept[i], &kept[j]
		if ca, cb := ceiling-a.Mid, ceiling-b.Mid; ca != cb {
			return ca < cb
		}
		if da, db := math.Abs(a.Strike-underlying), math.Abs(b.Strike-underlying); da != db {
			return da < db
		}
		if ga, gb := gammaOf(a), gammaOf(b); ga != gb {
			return ga > gb
		}
		if xa, xb := deltaDistance(a, deltaTarget), deltaDistance(b, deltaTarget); xa != xb {
			return xa < xb
		}
		return a.RecvTS.After(b.RecvTS)
	})

	w := kept[0]
	observ.IncCounter("selector_picks_total", map[string]string{"symbol": snap.Symbol, "right": right})
	return &Result{
		Contract:        w.Contract,
		Strike:          w.Strike,
		Right:           w.Right,
		Bid:             w.Bid,
		Ask:             w.Ask,
		Mid:             w.Mid,
		CeilingDistance: ceiling - w.Mid,
		ATMDistance:     math.Abs(w.Strike - underlying),
		Delta:           w.Delta,
		Gamma:           w.Gamma,
	}
}

// atmCluster keeps rows whose strike sits within MaxATMDistance
// positions of the nearest-to-money strike on the sorted strike
// ladder. Distance counts ladder steps, not price units, so a $5
// increment chain behaves like a $1 one.
func (s *Selector) atmCluster(rows []chain.Row, underlying float64) []chain.Row {
	strikes := make([]float64, 0, len(rows))
	seen := make(map[float64]bool)
	for _, r := range rows {
		if !seen[r.Strike] {
			seen[r.Strike] = true
			strikes = append(strikes, r.Strike)
		}
	}
	sort.Float64s(strikes)

	atmIdx := 0
	best := math.Inf(1)
	for i, k := range strikes {
		if d := math.Abs(k - underlying); d < best {
			best = d
			atmIdx = i
		}
	}

	index := make(map[float64]int, len(strikes))
	for i, k := range strikes {
		index[k] = i
	}

	out := rows[:0]
	for _, r := range rows {
		if abs(index[r.Strike]-atmIdx) <= s.cfg.MaxATMDistance {
			out = append(out, r)
		}
	}
	return out
}

func gammaOf(r *chain.Row) float64 {
	if r.Gamma == nil {
		return 0
	}
	return *r.Gamma
}

func deltaDistance(r *chain.Row, target float64) float64 {
	if r.Delta == nil {
		return math.Inf(1)
	}
	return math.Abs(*r.Delta - target)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
