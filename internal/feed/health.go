package feed

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/allendforbes/0dte-bot-v2-sub000/internal/observ"
)

// ProviderStatus is the health state of an upstream data provider.
type ProviderStatus string

const (
	ProviderHealthy  ProviderStatus = "healthy"
	ProviderDegraded ProviderStatus = "degraded"
	ProviderFailed   ProviderStatus = "failed"
)

// ProviderHealth tracks reliability of the analytics enrichment
// client. The pipeline never retries transport itself; it reads this
// state and lets freshness do the refusing.
type ProviderHealth struct {
	mu                sync.RWMutex
	name              string
	status            ProviderStatus
	lastSuccess       time.Time
	lastError         time.Time
	successCount      int64
	errorCount        int64
	consecutiveErrors int

	degradedErrorRate    float64
	failedErrorRate      float64
	maxConsecutiveErrors int
	recoveryWindow       time.Duration
}

func NewProviderHealth(name string) *ProviderHealth {
	return &ProviderHealth{
		name:                 name,
		status:               ProviderHealthy,
		degradedErrorRate:    0.01,
		failedErrorRate:      0.10,
		maxConsecutiveErrors: 5,
		recoveryWindow:       5 * time.Minute,
	}
}

func (ph *ProviderHealth) RecordSuccess(latency time.Duration) {
	ph.mu.Lock()
	defer ph.mu.Unlock()

	ph.lastSuccess = time.Now()
	ph.successCount++
	ph.consecutiveErrors = 0

	if ph.status != ProviderHealthy && ph.shouldRecover() {
		old := ph.status
		ph.status = ProviderHealthy
		observ.Log("provider_recovered", map[string]any{"provider": ph.name, "was": string(old)})
		observ.IncCounter("provider_status_change_total", map[string]string{
			"provider": ph.name, "from": string(old), "to": string(ProviderHealthy),
		})
	}

	observ.IncCounter("provider_operations_total", map[string]string{
		"provider": ph.name, "result": "success",
	})
	observ.Observe("provider_latency_seconds", latency.Seconds(), map[string]string{
		"provider": ph.name,
	})
}

func (ph *ProviderHealth) RecordError(err error) {
	ph.mu.Lock()
	defer ph.mu.Unlock()

	ph.lastError = time.Now()
	ph.errorCount++
	ph.consecutiveErrors++

	old := ph.status
	ph.updateStatus()
	if old != ph.status {
		observ.Warn("provider_status_change", map[string]any{
			"provider": ph.name, "from": string(old), "to": string(ph.status),
			"consecutive_errors": ph.consecutiveErrors, "error": err.Error(),
		})
		observ.IncCounter("provider_status_change_total", map[string]string{
			"provider": ph.name, "from": string(old), "to": string(ph.status),
		})
	}

	observ.IncCounter("provider_operations_total", map[string]string{
		"provider": ph.name, "result": "error",
	})
}

func (ph *ProviderHealth) Status() ProviderStatus {
	ph.mu.RLock()
	defer ph.mu.RUnlock()
	return ph.status
}

func (ph *ProviderHealth) updateStatus() {
	if ph.consecutiveErrors >= ph.maxConsecutiveErrors {
		ph.status = ProviderFailed
		return
	}
	total := ph.successCount + ph.errorCount
	if total == 0 {
		return
	}
	errorRate := float64(ph.errorCount) / float64(total)
	if errorRate >= ph.failedErrorRate {
		ph.status = ProviderFailed
	} else if errorRate >= ph.degradedErrorRate {
		ph.status = ProviderDegraded
	}
}

func (ph *ProviderHealth) shouldRecover() bool {
	if time.Since(ph.lastSuccess) > ph.recoveryWindow {
		return false
	}
	if time.Since(ph.lastError) < ph.recoveryWindow {
		return false
	}
	return ph.consecutiveErrors == 0
}

// RequestBudget bounds outbound analytics requests. Burst covers the
// per-symbol fan-out right after a subscription refresh.
type RequestBudget struct {
	limiter *rate.Limiter
}

func NewRequestBudget(perSecond float64, burst int) *RequestBudget {
	return &RequestBudget{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow reports whether one request may be sent now.
func (rb *RequestBudget) Allow() bool {
	ok := rb.limiter.Allow()
	if !ok {
		observ.IncCounter("analytics_budget_exhausted_total", map[string]string{})
	}
	return ok
}
