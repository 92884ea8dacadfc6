// Package contracts owns dynamic OCC subscription management: it
// converts underlying prices into an ATM strike cluster and keeps the
// options feed subscribed to it. This is the only component in the
// core with concurrent writers, so every symbol's state sits behind
// its own mutex.
package contracts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/allendforbes/0dte-bot-v2-sub000/internal/feed"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/observ"
)

// Config tunes cluster shape and refresh churn.
type Config struct {
	ClusterWidth       int                `yaml:"cluster_width"`       // strikes each side of ATM
	RefreshCooldownSec float64            `yaml:"refresh_cooldown_sec"` // min interval between price-driven refreshes
	ExpiryCheckSec     float64            `yaml:"expiry_check_sec"`    // how often to re-ask the calendar
	StrikeIncrements   map[string]float64 `yaml:"strike_increments"`   // per-symbol, default 1
}

func DefaultConfig() Config {
	return Config{
		ClusterWidth:       2,
		RefreshCooldownSec: 7,
		ExpiryCheckSec:     60,
		StrikeIncrements:   map[string]float64{"NVDA": 5},
	}
}

type symbolState struct {
	mu sync.Mutex

	expiry          time.Time
	expiryOK        bool
	lastExpiryCheck time.Time

	initialized bool
	lastPrice   float64
	lastCenter  float64
	active      []string
	lastRefresh time.Time
}

// Engine maintains the per-symbol subscription set.
type Engine struct {
	cfg      Config
	calendar feed.ExpiryCalendar
	sink     feed.SubscriptionSink

	mu    sync.Mutex
	state map[string]*symbolState

	now func() time.Time
}

func NewEngine(cfg Config, calendar feed.ExpiryCalendar, sink feed.SubscriptionSink) *Engine {
	if cfg.ClusterWidth == 0 {
		cfg.ClusterWidth = 2
	}
	if cfg.RefreshCooldownSec == 0 {
		cfg.RefreshCooldownSec = 7
	}
	if cfg.ExpiryCheckSec == 0 {
		cfg.ExpiryCheckSec = 60
	}
	return &Engine{
		cfg:      cfg,
		calendar: calendar,
		sink:     sink,
		state:    make(map[string]*symbolState),
		now:      time.Now,
	}
}

func (e *Engine) get(symbol string) *symbolState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.state[symbol]
	if !ok {
		st = &symbolState{}
		e.state[symbol] = st
	}
	return st
}

func (e *Engine) increment(symbol string) float64 {
	if inc, ok := e.cfg.StrikeIncrements[symbol]; ok && inc > 0 {
		return inc
	}
	return 1
}

// Active returns the current subscription set for a symbol.
func (e *Engine) Active(symbol string) []string {
	st := e.get(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]string{}, st.active...)
}

// OnUnderlyingTick is the sole mutator of subscription state. Refresh
// priority: expiry roll beats cooldown, first price seeds immediately,
// otherwise the ATM strike must move at least one increment and the
// cooldown must have elapsed.
func (e *Engine) OnUnderlyingTick(ctx context.Context, symbol string, price float64) {
	if price <= 0 {
		return
	}

	st := e.get(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	now := e.now()
	rolled := e.checkExpiryRoll(st, symbol, now)
	st.lastPrice = price

	if !st.expiryOK {
		return // symbol inactive for the session
	}

	inc := e.increment(symbol)
	center := atmStrike(price, inc)

	switch {
	case rolled:
		e.refresh(ctx, st, symbol, price, now, "expiry_roll")
	case !st.initialized:
		e.refresh(ctx, st, symbol, price, now, "seed")
	default:
		moved := center != st.lastCenter
		cooled := now.Sub(st.lastRefresh) >= time.Duration(e.cfg.RefreshCooldownSec*float64(time.Second))
		if moved && cooled {
			e.refresh(ctx, st, symbol, price, now, "atm_shift")
		}
	}
}

// OnReconnect resubmits the last known active set verbatim. Price-
// driven recomputation during a reconnect storm could desync from what
// downstream expects to see refreshed shortly after.
func (e *Engine) OnReconnect(ctx context.Context, symbol string) {
	st := e.get(symbol)
	st.mu.Lock()
	subs := append([]string{}, st.active...)
	st.mu.Unlock()

	if len(subs) == 0 {
		return
	}
	observ.Log("occ_resubscribe", map[string]any{"symbol": symbol, "contracts": len(subs)})
	if err := e.sink.Subscribe(ctx, subs); err != nil {
		observ.Warn("occ_subscribe_failed", map[string]any{"symbol": symbol, "error": err.Error()})
	}
}

func (e *Engine) checkExpiryRoll(st *symbolState, symbol string, now time.Time) bool {
	interval := time.Duration(e.cfg.ExpiryCheckSec * float64(time.Second))
	if !st.lastExpiryCheck.IsZero() && now.Sub(st.lastExpiryCheck) < interval {
		return false
	}
	st.lastExpiryCheck = now

	expiry, ok := e.calendar.ExpiryFor(symbol)
	if !ok {
		if st.expiryOK {
			observ.Warn("occ_symbol_inactive", map[string]any{"symbol": symbol})
		}
		st.expiryOK = false
		return false
	}

	rolled := st.expiryOK && !expiry.Equal(st.expiry)
	if rolled {
		observ.Log("occ_expiry_roll", map[string]any{
			"symbol": symbol,
			"from":   st.expiry.Format("2006-01-02"),
			"to":     expiry.Format("2006-01-02"),
		})
	}
	st.expiry = expiry
	st.expiryOK = true
	return rolled
}

// refresh recomputes the cluster and subscribes only when the set
// actually changed. Idempotent by construction.
func (e *Engine) refresh(ctx context.Context, st *symbolState, symbol string, price float64, now time.Time, trigger string) {
	occs := e.clusterLocked(st, symbol, price)

	st.initialized = true
	st.lastCenter = atmStrike(price, e.increment(symbol))
	st.lastRefresh = now

	if equalSets(occs, st.active) {
		return
	}
	st.active = occs

	observ.Log("occ_refresh", map[string]any{
		"symbol":    symbol,
		"trigger":   trigger,
		"center":    st.lastCenter,
		"contracts": len(occs),
	})
	observ.IncCounter("occ_refresh_total", map[string]string{"symbol": symbol, "trigger": trigger})

	if err := e.sink.Subscribe(ctx, occs); err != nil {
		observ.Warn("occ_subscribe_failed", map[string]any{"symbol": symbol, "error": err.Error()})
	}
}

func (e *Engine) clusterLocked(st *symbolState, symbol string, price float64) []string {
	inc := e.increment(symbol)
	atm := atmStrike(price, inc)

	seen := map[string]bool{}
	var occs []string
	for k := -e.cfg.ClusterWidth; k <= e.cfg.ClusterWidth; k++ {
		strike := atm + float64(k)*inc
		if strike <= 0 {
			continue
		}
		for _, right := range []string{"C", "P"} {
			occ := EncodeOCC(symbol, st.expiry, right, strike)
			if !seen[occ] {
				seen[occ] = true
				occs = append(occs, occ)
			}
		}
	}
	sort.Strings(occs)
	return occs
}

func atmStrike(price, inc float64) float64 {
	steps := int64(price/inc + 0.5)
	return float64(steps) * inc
}

func equalSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
