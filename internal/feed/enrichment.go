package feed

import (
	"context"
	"time"

	"github.com/allendforbes/0dte-bot-v2-sub000/internal/observ"
)

// AnalyticsFetcher pulls greeks for one contract from the enrichment
// provider. Implementations own auth, transport, and retry policy.
type AnalyticsFetcher interface {
	Fetch(ctx context.Context, symbol, contract string) (AnalyticsUpdate, error)
}

// EnrichmentPoller hydrates the active contract set on an interval,
// spending the request budget and tracking provider health. Contracts
// skipped on an exhausted budget are picked up next cycle; the chain
// just stays unhydrated a little longer.
type EnrichmentPoller struct {
	fetcher  AnalyticsFetcher
	budget   *RequestBudget
	health   *ProviderHealth
	interval time.Duration

	active func(symbol string) []string // current subscription set
	emit   func(AnalyticsUpdate)
}

func NewEnrichmentPoller(
	fetcher AnalyticsFetcher,
	budget *RequestBudget,
	health *ProviderHealth,
	interval time.Duration,
	active func(symbol string) []string,
	emit func(AnalyticsUpdate),
) *EnrichmentPoller {
	return &EnrichmentPoller{
		fetcher:  fetcher,
		budget:   budget,
		health:   health,
		interval: interval,
		active:   active,
		emit:     emit,
	}
}

// PollOnce fetches analytics for every active contract of the symbol,
// honoring the request budget. Returns the number of updates emitted.
func (p *EnrichmentPoller) PollOnce(ctx context.Context, symbol string) int {
	if p.health.Status() == ProviderFailed {
		observ.IncCounter("enrichment_skipped_total", map[string]string{"symbol": symbol, "reason": "provider_failed"})
		return 0
	}

	emitted := 0
	for _, contract := range p.active(symbol) {
		if ctx.Err() != nil {
			return emitted
		}
		if !p.budget.Allow() {
			// Next cycle retries; hydration is best-effort.
			return emitted
		}
		start := time.Now()
		u, err := p.fetcher.Fetch(ctx, symbol, contract)
		if err != nil {
			p.health.RecordError(err)
			continue
		}
		p.health.RecordSuccess(time.Since(start))
		p.emit(u)
		emitted++
	}
	return emitted
}

// Run polls all symbols until the context is cancelled.
func (p *EnrichmentPoller) Run(ctx context.Context, symbols []string) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range symbols {
				p.PollOnce(ctx, s)
			}
		}
	}
}
