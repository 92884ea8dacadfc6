// Package decision wires the full evaluation pipeline: every
// underlying tick flows subscription refresh -> vwap -> freshness ->
// mandate -> signal -> selection -> gate -> sizing -> trail, and every
// evaluation emits exactly one decision record.
package decision

import (
	"context"
	"sync"
	"time"

	"github.com/allendforbes/0dte-bot-v2-sub000/internal/chain"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/contracts"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/decisionlog"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/feed"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/gate"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/indicators"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/mandate"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/observ"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/selector"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/signal"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/trail"
)

type Config struct {
	Equity        float64 `yaml:"equity"`
	OpenWindowSec float64 `yaml:"open_window_sec"`

	Vwap  indicators.VWAPConfig `yaml:"vwap"`
	Trail trail.Config          `yaml:"trail"`
}

func DefaultConfig() Config {
	return Config{
		Equity:        25000,
		OpenWindowSec: 300,
		Vwap:          indicators.DefaultVWAPConfig(),
		Trail:         trail.DefaultConfig(),
	}
}

// Engine owns the per-symbol pipeline state. Underlying and option
// callbacks may arrive on different goroutines.
type Engine struct {
	cfg Config

	agg       *chain.Aggregator
	fresh     *chain.FreshnessMonitor
	contracts *contracts.Engine
	mandates  *mandate.Engine
	signals   *signal.Builder
	selector  *selector.Selector
	gate      *gate.Gate
	sizer     feed.Sizer
	log       *decisionlog.Logger

	mu     sync.Mutex
	vwaps  map[string]*indicators.VWAPTracker
	trails map[string]*trail.Trail
	curIV  map[string]float64 // contract -> latest observed IV
	prevIV map[string]float64 // contract -> IV before the latest observation

	loc *time.Location
	now func() time.Time
}

// Deps are the collaborators the pipeline composes.
type Deps struct {
	Aggregator *chain.Aggregator
	Freshness  *chain.FreshnessMonitor
	Contracts  *contracts.Engine
	Mandates   *mandate.Engine
	Signals    *signal.Builder
	Selector   *selector.Selector
	Gate       *gate.Gate
	Sizer      feed.Sizer
	Log        *decisionlog.Logger
}

func NewEngine(cfg Config, d Deps) *Engine {
	if cfg.Equity == 0 {
		cfg = DefaultConfig()
	}
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("EST", -5*3600)
	}
	return &Engine{
		cfg:       cfg,
		agg:       d.Aggregator,
		fresh:     d.Freshness,
		contracts: d.Contracts,
		mandates:  d.Mandates,
		signals:   d.Signals,
		selector:  d.Selector,
		gate:      d.Gate,
		sizer:     d.Sizer,
		log:       d.Log,
		vwaps:     make(map[string]*indicators.VWAPTracker),
		trails:    make(map[string]*trail.Trail),
		curIV:     make(map[string]float64),
		prevIV:    make(map[string]float64),
		loc:       loc,
		now:       time.Now,
	}
}

// SetReferencePrice forwards session levels to the mandate engine.
func (e *Engine) SetReferencePrice(symbol, kind string, value float64) {
	e.mandates.SetReferencePrice(symbol, kind, value)
}

// secondsSinceOpen measures from the 9:30 cash open in New York. A
// pre-open timestamp yields a negative value; callers treat that the
// same as the opening window.
func (e *Engine) secondsSinceOpen(ts time.Time) float64 {
	local := ts.In(e.loc)
	open := time.Date(local.Year(), local.Month(), local.Day(), 9, 30, 0, 0, e.loc)
	return local.Sub(open).Seconds()
}

func (e *Engine) vwap(symbol string) *indicators.VWAPTracker {
	if t, ok := e.vwaps[symbol]; ok {
		return t
	}
	t := indicators.NewVWAPTracker(e.cfg.Vwap)
	e.vwaps[symbol] = t
	return t
}

// OnUnderlying runs one full evaluation for the tick's symbol.
func (e *Engine) OnUnderlying(ctx context.Context, t feed.UnderlyingTick) {
	start := e.now()
	symbol := t.Symbol
	price := t.Price

	e.contracts.OnUnderlyingTick(ctx, symbol, price)

	e.mu.Lock()
	volume := 0.0
	if t.Volume != nil {
		volume = *t.Volume
	}
	vres := e.vwap(symbol).Update(price, volume)
	tr := e.trails[symbol]
	e.mu.Unlock()

	secs := e.secondsSinceOpen(t.Timestamp)
	openWindow := secs < e.cfg.OpenWindowSec

	defer func() {
		observ.Observe("evaluation_seconds", e.now().Sub(start).Seconds(), map[string]string{"symbol": symbol})
	}()

	// An open position suspends entry evaluation for the symbol; the
	// trail runs off the option stream.
	if tr != nil && tr.Active() {
		e.record(symbol, decisionlog.KindHold, "position_open", 0, "", 0)
		return
	}

	if !e.fresh.IsFresh(symbol, openWindow) {
		e.record(symbol, decisionlog.KindBlock, "feed_not_fresh", 0, "", 0)
		return
	}

	snap := mandate.Snapshot{Price: price, SecondsSinceOpen: secs}
	if vres.Valid {
		snap.VWAP = feed.Float(vres.VWAP)
		snap.Dev = feed.Float(vres.Dev)
		snap.Slope = feed.Float(vres.Slope)
	}

	m := e.mandates.Determine(symbol, snap)
	if !m.AllowsEntry() {
		kind := decisionlog.KindHold
		if m.State == mandate.NoTrade {
			kind = decisionlog.KindBlock
		}
		e.record(symbol, kind, m.Reason, 0, "", 0)
		return
	}

	sig := e.signals.Build(symbol, m)

	chainSnap := e.agg.Snapshot(symbol)
	sel := e.selector.Select(chainSnap, sig.Bias, price)
	if sel == nil {
		e.record(symbol, decisionlog.KindHold, "no_liquid_strikes", sig.Score, sig.Grade, 0)
		return
	}

	gres := e.gate.Validate(symbol, e.gateInput(symbol, sel, vres), sig.Bias, sig.Grade)
	if !gres.OK {
		e.record(symbol, decisionlog.KindBlock, gres.Reason, sig.Score, sig.Grade, sel.Mid)
		return
	}

	qty := e.sizer.Size(e.cfg.Equity, gres.LimitPrice)
	if qty <= 0 {
		e.record(symbol, decisionlog.KindHold, "insufficient_risk_budget", sig.Score, sig.Grade, gres.LimitPrice)
		return
	}

	e.mu.Lock()
	tr = trail.New(e.cfg.Trail)
	tr.Initialize(symbol, sel.Contract, gres.LimitPrice, sig.TrailMult)
	e.trails[symbol] = tr
	e.mu.Unlock()

	observ.IncCounter("entries_total", map[string]string{"symbol": symbol, "bias": sig.Bias, "grade": sig.Grade})
	observ.Log("entry_opened", map[string]any{
		"position_id": tr.PositionID,
		"symbol":      symbol,
		"contract":    sel.Contract,
		"bias":        sig.Bias,
		"grade":       sig.Grade,
		"score":       sig.Score,
		"limit":       gres.LimitPrice,
		"qty":         qty,
	})
	e.record(symbol, decisionlog.KindEntry, "gate_passed", sig.Score, sig.Grade, gres.LimitPrice)
}

// gateInput snapshots the selected contract's live row at the moment
// of validation, not the row selection ranked on.
func (e *Engine) gateInput(symbol string, sel *selector.Result, vres indicators.VWAPResult) gate.Input {
	in := gate.Input{Price: sel.Mid}
	if vres.Valid {
		in.Slope = vres.Slope
	}

	row, ok := e.agg.Row(symbol, sel.Contract)
	if !ok {
		in.Tick = feed.OptionTick{Symbol: symbol, Contract: sel.Contract, Bid: sel.Bid, Ask: sel.Ask}
		return in
	}
	in.Tick = feed.OptionTick{
		Symbol:   symbol,
		Contract: sel.Contract,
		Bid:      row.Bid,
		Ask:      row.Ask,
		Delta:    row.Delta,
		Gamma:    row.Gamma,
		IV:       row.IV,
	}
	snap := e.agg.Snapshot(symbol)
	if !snap.LastUpdate.IsZero() {
		in.Tick.ChainAgeMs = feed.Float(float64(e.now().Sub(snap.LastUpdate).Milliseconds()))
	}
	e.mu.Lock()
	if prev, ok := e.prevIV[sel.Contract]; ok {
		in.PrevIV = feed.Float(prev)
	}
	e.mu.Unlock()
	return in
}

// OnOption merges the quote and, when the tick belongs to the open
// position's contract, advances the trail.
func (e *Engine) OnOption(ctx context.Context, t feed.OptionTick) {
	e.trackIV(t.Contract, t.IV)
	e.agg.MergeQuote(t)
	e.fresh.MarkFrame(t.Symbol)

	e.mu.Lock()
	tr := e.trails[t.Symbol]
	e.mu.Unlock()
	if tr == nil || !tr.Active() || tr.Contract != t.Contract {
		return
	}
	if t.Bid <= 0 || t.Ask <= 0 || t.Bid >= t.Ask {
		return
	}
	mid := (t.Bid + t.Ask) / 2
	if !tr.OnTick(mid) {
		return
	}

	now := e.now()
	e.mandates.SetLastExit(now)
	observ.Log("position_exited", map[string]any{
		"position_id": tr.PositionID,
		"symbol":      t.Symbol,
		"contract":    t.Contract,
		"entry":       tr.Entry(),
		"exit_mid":    mid,
		"stop":        tr.Stop(),
	})
	e.record(t.Symbol, decisionlog.KindExit, "trail_stop", 0, "", mid)

	e.mu.Lock()
	delete(e.trails, t.Symbol)
	e.mu.Unlock()
}

// OnAnalytics merges REST-sourced greeks; arrival order relative to
// quotes does not matter.
func (e *Engine) OnAnalytics(u feed.AnalyticsUpdate) {
	e.trackIV(u.Contract, u.IV)
	e.agg.MergeAnalytics(u)
}

// trackIV keeps one step of IV history per contract for the gate's
// spike check.
func (e *Engine) trackIV(contract string, iv *float64) {
	if iv == nil || contract == "" {
		return
	}
	e.mu.Lock()
	if cur, ok := e.curIV[contract]; ok {
		e.prevIV[contract] = cur
	}
	e.curIV[contract] = *iv
	e.mu.Unlock()
}

// OnHeartbeat feeds the freshness monitor's second timer.
func (e *Engine) OnHeartbeat(symbol string) {
	e.fresh.MarkHeartbeat(symbol)
}

// OnReconnect resubmits the active subscription set.
func (e *Engine) OnReconnect(ctx context.Context, symbol string) {
	e.contracts.OnReconnect(ctx, symbol)
}

// ActiveTrail exposes the open position's trail, if any.
func (e *Engine) ActiveTrail(symbol string) *trail.Trail {
	e.mu.Lock()
	defer e.mu.Unlock()
	if tr := e.trails[symbol]; tr != nil && tr.Active() {
		return tr
	}
	return nil
}

func (e *Engine) record(symbol, kind, reason string, score float64, grade string, price float64) {
	if e.log == nil {
		return
	}
	if err := e.log.Write(symbol, kind, reason, score, grade, price); err != nil {
		observ.Warn("decision_log_write_failed", map[string]any{"symbol": symbol, "error": err.Error()})
	}
}
