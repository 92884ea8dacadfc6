// Package chain maintains the per-symbol option chain cache: NBBO
// quotes merged with asynchronously-arriving analytics, plus the feed
// freshness monitor. The aggregator is the only writer of its rows;
// readers get copies via Snapshot.
package chain

import (
	"sync"
	"time"

	"github.com/allendforbes/0dte-bot-v2-sub000/internal/feed"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/observ"
)

// Row is one contract's current knowledge. Analytics pointers are nil
// until hydration merges them. A row with quotes but no analytics (or
// the reverse) is visible but excluded from tradeable snapshots.
type Row struct {
	Symbol   string
	Contract string
	Strike   float64
	Right    string
	Bid      float64
	Ask      float64
	Mid      float64

	Delta        *float64
	Gamma        *float64
	Theta        *float64
	Vega         *float64
	IV           *float64
	Volume       *int64
	OpenInterest *int64

	RecvTS     time.Time
	Hydrated   bool
	HydratedTS time.Time
}

// Usable reports whether the row can participate in selection.
func (r *Row) Usable() bool {
	return r.Bid > 0 && r.Ask > 0 && r.Bid < r.Ask
}

// Snapshot is a read-only view of a symbol's usable rows. Never
// mutated after creation.
type Snapshot struct {
	Symbol     string
	Rows       []Row
	LastUpdate time.Time
}

// Age returns wall-clock staleness of the snapshot.
func (s *Snapshot) Age(now time.Time) time.Duration {
	if s.LastUpdate.IsZero() {
		return time.Duration(1<<62 - 1)
	}
	return now.Sub(s.LastUpdate)
}

// DeltaWindow restricts snapshot rows to |delta| within [Min,Max].
type DeltaWindow struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Aggregator merges NBBO and analytics into per-symbol row maps.
type Aggregator struct {
	mu           sync.RWMutex
	rows         map[string]map[string]*Row // symbol -> contract -> row
	lastUpdate   map[string]time.Time
	deltaWindows map[string]DeltaWindow
}

func NewAggregator(symbols []string) *Aggregator {
	a := &Aggregator{
		rows:         make(map[string]map[string]*Row),
		lastUpdate:   make(map[string]time.Time),
		deltaWindows: make(map[string]DeltaWindow),
	}
	for _, s := range symbols {
		a.rows[s] = make(map[string]*Row)
	}
	return a
}

// SetDeltaWindow configures the per-symbol |delta| filter applied by
// Snapshot. Rows missing delta are excluded only when a window exists.
func (a *Aggregator) SetDeltaWindow(symbol string, w DeltaWindow) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deltaWindows[symbol] = w
}

// MergeQuote inserts or updates a row from an NBBO tick. Events with
// non-positive or crossed quotes never create or mutate a row.
func (a *Aggregator) MergeQuote(t feed.OptionTick) {
	if t.Symbol == "" || t.Contract == "" {
		return
	}
	if t.Bid <= 0 || t.Ask <= 0 || t.Ask < t.Bid {
		observ.IncCounter("chain_quote_rejected_total", map[string]string{"symbol": t.Symbol})
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.rows[t.Symbol]
	if !ok {
		m = make(map[string]*Row)
		a.rows[t.Symbol] = m
	}

	row, ok := m[t.Contract]
	if !ok {
		row = &Row{Symbol: t.Symbol, Contract: t.Contract}
		m[t.Contract] = row
	}

	row.Bid = t.Bid
	row.Ask = t.Ask
	row.Mid = (t.Bid + t.Ask) / 2
	if t.Strike != nil {
		row.Strike = *t.Strike
	}
	if t.Right != nil {
		row.Right = *t.Right
	}
	row.RecvTS = t.RecvTS
	if row.RecvTS.IsZero() {
		row.RecvTS = time.Now()
	}

	// Bundled analytics ride along when the venue provides them.
	mergeAnalyticsFields(row, t.Delta, t.Gamma, t.Theta, t.Vega, t.IV, t.Volume, t.OpenInterest)

	a.lastUpdate[t.Symbol] = row.RecvTS
}

// MergeAnalytics merges non-nil analytic fields into an existing row,
// or creates a hydration-only placeholder when the quote has not
// arrived yet. Arrival order of quote vs analytics does not matter.
func (a *Aggregator) MergeAnalytics(u feed.AnalyticsUpdate) {
	if u.Symbol == "" || u.Contract == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.rows[u.Symbol]
	if !ok {
		m = make(map[string]*Row)
		a.rows[u.Symbol] = m
	}

	row, ok := m[u.Contract]
	if !ok {
		row = &Row{Symbol: u.Symbol, Contract: u.Contract}
		m[u.Contract] = row
	}

	mergeAnalyticsFields(row, u.Delta, u.Gamma, u.Theta, u.Vega, u.IV, u.Volume, u.OpenInterest)
	row.Hydrated = true
	row.HydratedTS = time.Now()
}

func mergeAnalyticsFields(row *Row, delta, gamma, theta, vega, iv *float64, volume, oi *int64) {
	if delta != nil {
		row.Delta = delta
	}
	if gamma != nil {
		row.Gamma = gamma
	}
	if theta != nil {
		row.Theta = theta
	}
	if vega != nil {
		row.Vega = vega
	}
	if iv != nil {
		row.IV = iv
	}
	if volume != nil {
		row.Volume = volume
	}
	if oi != nil {
		row.OpenInterest = oi
	}
}

// Snapshot returns the symbol's usable rows, filtered by the delta
// window when one is configured.
func (a *Aggregator) Snapshot(symbol string) Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snap := Snapshot{Symbol: symbol, LastUpdate: a.lastUpdate[symbol]}
	window, hasWindow := a.deltaWindows[symbol]

	for _, row := range a.rows[symbol] {
		if !row.Usable() {
			continue
		}
		if hasWindow {
			if row.Delta == nil {
				continue
			}
			ad := *row.Delta
			if ad < 0 {
				ad = -ad
			}
			if ad < window.Min || ad > window.Max {
				continue
			}
		}
		snap.Rows = append(snap.Rows, *row)
	}
	return snap
}

// RowCount reports total cached rows for a symbol, usable or not.
func (a *Aggregator) RowCount(symbol string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.rows[symbol])
}

// Row returns a copy of one contract's row.
func (a *Aggregator) Row(symbol, contract string) (Row, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	row, ok := a.rows[symbol][contract]
	if !ok {
		return Row{}, false
	}
	return *row, true
}
