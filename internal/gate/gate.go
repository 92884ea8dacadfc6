// Package gate validates the chosen contract's live tick at the
// moment of intended execution. Every rejection carries exactly one
// reason code; the gate never returns an error.
package gate

import (
	"math"

	"github.com/allendforbes/0dte-bot-v2-sub000/internal/feed"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/mandate"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/observ"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/signal"
)

// Rejection reasons, in check order.
const (
	ReasonMissingPrices   = "missing_prices"
	ReasonInvalidQuotes   = "invalid_quotes"
	ReasonLockedMarket    = "locked_market"
	ReasonStaleNBBO       = "stale_nbbo"
	ReasonWideSpread      = "wide_spread"
	ReasonMidDrift        = "mid_drift"
	ReasonSlippageRisk    = "slippage_risk"
	ReasonPremiumCeiling  = "premium_ceiling"
	ReasonDeltaMisaligned = "delta_misaligned"
	ReasonLowGamma        = "low_gamma"
	ReasonMicroReversal   = "micro_reversal"
	ReasonThinLiquidity   = "thin_liquidity"
	ReasonWeakFlow        = "weak_flow"
	ReasonIVSpike         = "iv_spike"
	ReasonLatencyExceeded = "latency_exceeded"
)

type Config struct {
	MaxChainAgeSec float64 `yaml:"max_chain_age_sec"`

	MaxSpreadA     float64 `yaml:"max_spread_a"`
	MaxSpreadAPlus float64 `yaml:"max_spread_a_plus"`

	MaxSlippageA     float64 `yaml:"max_slippage_a"`
	MaxSlippageAPlus float64 `yaml:"max_slippage_a_plus"`

	MaxMidDrift float64 `yaml:"max_mid_drift"`

	DefaultCeiling  float64            `yaml:"default_ceiling"`
	PremiumCeilings map[string]float64 `yaml:"premium_ceilings"`

	DeltaTarget    float64 `yaml:"delta_target"`
	DeltaTolerance float64 `yaml:"delta_tolerance"`
	MinGamma       float64 `yaml:"min_gamma"`

	ReversalSlope float64 `yaml:"reversal_slope"`
	MinQuoteSize  int64   `yaml:"min_quote_size"`
	MaxIVJump     float64 `yaml:"max_iv_jump"`

	DefaultLatencyCapMs float64            `yaml:"default_latency_cap_ms"`
	LatencyCapsMs       map[string]float64 `yaml:"latency_caps_ms"`
}

func DefaultConfig() Config {
	return Config{
		MaxChainAgeSec:      2.0,
		MaxSpreadA:          0.20,
		MaxSpreadAPlus:      0.30,
		MaxSlippageA:        0.12,
		MaxSlippageAPlus:    0.18,
		MaxMidDrift:         0.10,
		DefaultCeiling:      2.50,
		DeltaTarget:         0.30,
		DeltaTolerance:      0.18,
		MinGamma:            0.002,
		ReversalSlope:       0.01,
		MinQuoteSize:        5,
		MaxIVJump:           0.20,
		DefaultLatencyCapMs: 750,
	}
}

// Input is the execution-moment view: the live tick plus the context
// the pipeline carries from selection. Price is the premium the
// selector ranked on; slippage and drift measure against it.
type Input struct {
	Tick       feed.OptionTick
	Price      float64
	Slope      float64  // vwap deviation change, 0 when unknown
	PrevIV     *float64 // last observed IV for the contract
	VolumeSkew *float64 // signed flow imbalance, + = buy pressure
}

// Result carries the single outcome of one validation.
type Result struct {
	OK         bool
	LimitPrice float64
	Reason     string
}

func reject(reason string) Result { return Result{Reason: reason} }

type Gate struct {
	cfg Config
}

func NewGate(cfg Config) *Gate {
	if cfg.MaxChainAgeSec == 0 {
		cfg = DefaultConfig()
	}
	return &Gate{cfg: cfg}
}

// chainAgeSec normalizes a chain age reported in either milliseconds
// or seconds. A raw value above 100 cannot plausibly be seconds for a
// live feed, so it is read as milliseconds.
func chainAgeSec(raw float64) float64 {
	if raw > 100 {
		return raw / 1000
	}
	return raw
}

// Validate applies the full check sequence for the bias and grade.
// The spread/drift/slippage trio runs in bias-dependent order: CALL
// checks spread first, PUT checks slippage first.
func (g *Gate) Validate(symbol string, in Input, bias, grade string) Result {
	res := g.validate(symbol, in, bias, grade)
	if !res.OK {
		observ.IncCounter("gate_rejects_total", map[string]string{"symbol": symbol, "reason": res.Reason})
	} else {
		observ.IncCounter("gate_passes_total", map[string]string{"symbol": symbol})
	}
	return res
}

func (g *Gate) validate(symbol string, in Input, bias, grade string) Result {
	t := in.Tick
	price := in.Price

	if price == 0 || (t.Bid == 0 && t.Ask == 0) {
		return reject(ReasonMissingPrices)
	}
	if t.Bid <= 0 || t.Ask <= 0 || price <= 0 {
		return reject(ReasonInvalidQuotes)
	}
	if t.Bid >= t.Ask {
		return reject(ReasonLockedMarket)
	}

	if t.ChainAgeMs != nil && chainAgeSec(*t.ChainAgeMs) > g.cfg.MaxChainAgeSec {
		return reject(ReasonStaleNBBO)
	}

	mid := (t.Bid + t.Ask) / 2
	limitSide := t.Ask
	if bias == mandate.BiasPut {
		limitSide = t.Bid
	}

	den := math.Max(price, 0.01)
	spreadPct := (t.Ask - t.Bid) / den
	midDrift := math.Abs(mid-price) / den
	slippage := math.Abs(limitSide-price) / den

	maxSpread := g.cfg.MaxSpreadA
	maxSlippage := g.cfg.MaxSlippageA
	if grade == signal.GradeAPlus {
		maxSpread = g.cfg.MaxSpreadAPlus
		maxSlippage = g.cfg.MaxSlippageAPlus
	}

	if bias == mandate.BiasCall {
		if spreadPct > maxSpread {
			return reject(ReasonWideSpread)
		}
		if midDrift > g.cfg.MaxMidDrift {
			return reject(ReasonMidDrift)
		}
		if slippage > maxSlippage {
			return reject(ReasonSlippageRisk)
		}
	} else {
		if slippage > maxSlippage {
			return reject(ReasonSlippageRisk)
		}
		if spreadPct > maxSpread {
			return reject(ReasonWideSpread)
		}
		if midDrift > g.cfg.MaxMidDrift {
			return reject(ReasonMidDrift)
		}
	}

	if mid > g.ceiling(symbol) {
		return reject(ReasonPremiumCeiling)
	}

	if t.Delta != nil {
		target := g.cfg.DeltaTarget
		if bias == mandate.BiasPut {
			target = -g.cfg.DeltaTarget
		}
		if math.Abs(*t.Delta-target) > g.cfg.DeltaTolerance {
			return reject(ReasonDeltaMisaligned)
		}
	}
	if t.Gamma != nil && *t.Gamma < g.cfg.MinGamma {
		return reject(ReasonLowGamma)
	}

	if bias == mandate.BiasCall && in.Slope < -g.cfg.ReversalSlope {
		return reject(ReasonMicroReversal)
	}
	if bias == mandate.BiasPut && in.Slope > g.cfg.ReversalSlope {
		return reject(ReasonMicroReversal)
	}

	if t.BidSize != nil && *t.BidSize < g.cfg.MinQuoteSize {
		return reject(ReasonThinLiquidity)
	}
	if t.AskSize != nil && *t.AskSize < g.cfg.MinQuoteSize {
		return reject(ReasonThinLiquidity)
	}

	if in.VolumeSkew != nil {
		if (bias == mandate.BiasCall && *in.VolumeSkew < 0) ||
			(bias == mandate.BiasPut && *in.VolumeSkew > 0) {
			return reject(ReasonWeakFlow)
		}
	}
	if in.PrevIV != nil && t.IV != nil && *t.IV-*in.PrevIV > g.cfg.MaxIVJump {
		return reject(ReasonIVSpike)
	}

	if t.LatencyMs != nil && *t.LatencyMs > g.latencyCap(symbol) {
		return reject(ReasonLatencyExceeded)
	}

	return Result{OK: true, LimitPrice: limitSide}
}

func (g *Gate) ceiling(symbol string) float64 {
	if v, ok := g.cfg.PremiumCeilings[symbol]; ok && v > 0 {
		return v
	}
	return g.cfg.DefaultCeiling
}

func (g *Gate) latencyCap(symbol string) float64 {
	if v, ok := g.cfg.LatencyCapsMs[symbol]; ok && v > 0 {
		return v
	}
	return g.cfg.DefaultLatencyCapMs
}
