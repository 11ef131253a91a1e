package worker

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

const defaultRefreshBurst = 5

// Limiter paces background refresh lookups. Every provider gets its own
// token bucket on first use, sized from its override when one is configured.
type Limiter struct {
	buckets   sync.Map // provider id -> *rate.Limiter
	fallback  rate.Limit
	burst     int
	overrides map[string]float64
}

// NewLimiter creates a limiter allowing perSecond lookups per provider.
// overrides replaces that rate for the providers it names.
func NewLimiter(perSecond float64, burst int, overrides map[string]float64) *Limiter {
	if burst <= 0 {
		burst = defaultRefreshBurst
	}
	return &Limiter{
		fallback:  rate.Limit(perSecond),
		burst:     burst,
		overrides: overrides,
	}
}

// Wait blocks until providerID has budget or ctx is done
func (l *Limiter) Wait(ctx context.Context, providerID string) error {
	return l.bucket(providerID).Wait(ctx)
}

func (l *Limiter) bucket(providerID string) *rate.Limiter {
	if b, ok := l.buckets.Load(providerID); ok {
		return b.(*rate.Limiter)
	}
	limit := l.fallback
	if perSecond, ok := l.overrides[providerID]; ok {
		limit = rate.Limit(perSecond)
	}
	b, _ := l.buckets.LoadOrStore(providerID, rate.NewLimiter(limit, l.burst))
	return b.(*rate.Limiter)
}
