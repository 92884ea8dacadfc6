package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/allendforbes/0dte-bot-v2-sub000/internal/chain"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/contracts"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/decision"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/gate"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/indicators"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/mandate"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/selector"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/signal"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/trail"
)

type Logging struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | console
}

type DecisionLog struct {
	Dir   string `yaml:"dir"`
	Phase string `yaml:"phase"` // shadow | paper | live
}

type Risk struct {
	ExposurePct float64 `yaml:"exposure_pct"`
	MaxContract int     `yaml:"max_contract"`
}

type Root struct {
	Symbols     []string                      `yaml:"symbols"`
	MetricsAddr string                        `yaml:"metrics_addr"`
	Logging     Logging                       `yaml:"logging"`
	DecisionLog DecisionLog                   `yaml:"decision_log"`
	Risk        Risk                          `yaml:"risk"`
	Pipeline    decision.Config               `yaml:"pipeline"`
	Freshness   chain.FreshnessConfig         `yaml:"freshness"`
	DeltaWindow map[string]chain.DeltaWindow  `yaml:"delta_windows"`
	Contracts   contracts.Config              `yaml:"contracts"`
	Vwap        indicators.VWAPConfig         `yaml:"vwap"`
	Mandate     mandate.Config                `yaml:"mandate"`
	Signal      signal.Config                 `yaml:"signal"`
	Selector    selector.Config               `yaml:"selector"`
	Gate        gate.Config                   `yaml:"gate"`
	Trail       trail.Config                  `yaml:"trail"`
}

func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}

	if len(c.Symbols) == 0 {
		c.Symbols = []string{"SPY", "QQQ"}
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9090"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.DecisionLog.Dir == "" {
		c.DecisionLog.Dir = "data/decisions"
	}
	if c.DecisionLog.Phase == "" {
		c.DecisionLog.Phase = "shadow"
	}
	if c.Risk.ExposurePct == 0 {
		c.Risk.ExposurePct = 0.05
	}
	if c.Risk.MaxContract == 0 {
		c.Risk.MaxContract = 5
	}
	if c.Pipeline.Equity == 0 {
		c.Pipeline = decision.DefaultConfig()
	}
	if c.Freshness.RequiredFrames == 0 {
		c.Freshness = chain.DefaultFreshnessConfig()
	}
	if c.Contracts.ClusterWidth == 0 {
		c.Contracts = contracts.DefaultConfig()
	}
	if c.Vwap.MinTicks == 0 {
		c.Vwap = indicators.DefaultVWAPConfig()
	}
	if c.Mandate.HoldBarsRequired == 0 {
		c.Mandate = mandate.DefaultConfig()
	}
	if c.Signal.SlopeBoostThreshold == 0 {
		c.Signal = signal.DefaultConfig()
	}
	if c.Selector.MaxATMDistance == 0 {
		c.Selector = selector.DefaultConfig()
	}
	if c.Gate.MaxChainAgeSec == 0 {
		c.Gate = gate.DefaultConfig()
	}
	if c.Trail.MaxLossFraction == 0 {
		c.Trail = trail.DefaultConfig()
	}
	return c, nil
}
