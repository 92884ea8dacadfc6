package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"SPY", "QQQ"}, c.Symbols)
	assert.Equal(t, "shadow", c.DecisionLog.Phase)
	assert.Equal(t, 3, c.Freshness.RequiredFrames)
	assert.Equal(t, 2, c.Contracts.ClusterWidth)
	assert.Equal(t, 2, c.Mandate.HoldBarsRequired)
	assert.Equal(t, 2.0, c.Gate.MaxChainAgeSec)
	assert.Equal(t, 0.50, c.Trail.MaxLossFraction)
	assert.Equal(t, 0.05, c.Risk.ExposurePct)
}

func TestLoadOverrides(t *testing.T) {
	c, err := Load(writeConfig(t, `
symbols: [NVDA]
decision_log:
  phase: paper
mandate:
  post_exit_cooldown_sec: 45
  hold_interval_sec: 5
  hold_bars_required: 3
  early_session_sec: 300
contracts:
  cluster_width: 1
  refresh_cooldown_sec: 7
  expiry_check_sec: 60
  strike_increments:
    NVDA: 5
gate:
  max_chain_age_sec: 1.5
  max_spread_a: 0.20
  max_spread_a_plus: 0.30
  max_slippage_a: 0.12
  max_slippage_a_plus: 0.18
  max_mid_drift: 0.10
  default_ceiling: 2.50
  delta_target: 0.30
  delta_tolerance: 0.18
  min_gamma: 0.002
  reversal_slope: 0.01
  min_quote_size: 5
  max_iv_jump: 0.20
  default_latency_cap_ms: 750
  latency_caps_ms:
    NVDA: 200
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"NVDA"}, c.Symbols)
	assert.Equal(t, "paper", c.DecisionLog.Phase)
	assert.Equal(t, 3, c.Mandate.HoldBarsRequired)
	assert.Equal(t, 45.0, c.Mandate.PostExitCooldownSec)
	assert.Equal(t, 1, c.Contracts.ClusterWidth)
	assert.Equal(t, 5.0, c.Contracts.StrikeIncrements["NVDA"])
	assert.Equal(t, 1.5, c.Gate.MaxChainAgeSec)
	assert.Equal(t, 200.0, c.Gate.LatencyCapsMs["NVDA"])
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformed(t *testing.T) {
	_, err := Load(writeConfig(t, "symbols: [unclosed\n"))
	assert.Error(t, err)
}
