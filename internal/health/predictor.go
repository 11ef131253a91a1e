package health

import (
	"context"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/sourcerank/internal/model"
)

const (
	// History weight reaches 0.5 of its maximum at this many samples
	historyHalfWeight = 20.0
	maxHistoryWeight  = 0.8

	baseConfidence  = 0.25
	confidenceSpan  = 0.75
	confidenceCap   = 0.9
	liveDataCap     = 0.95
	cachedSpeedup   = 0.1
	minSpeedFactor  = 0.5
	maxSpeedFactor  = 3.0
	bytesPerMB      = 1_000_000
	defaultRingSize = 200
)

type record struct {
	predicted time.Duration
	actual    time.Duration
	success   bool
}

// ring is a fixed-capacity append-only buffer of outcomes
type ring struct {
	buf  []record
	next int
	full bool
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]record, capacity)}
}

func (r *ring) add(rec record) {
	r.buf[r.next] = rec
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

func (r *ring) records() []record {
	if !r.full {
		return r.buf[:r.next]
	}
	return append(slices.Clone(r.buf[r.next:]), r.buf[:r.next]...)
}

// ProviderStats summarises the history kept for one provider
type ProviderStats struct {
	ProviderID  string  `json:"provider_id"`
	Samples     int     `json:"samples"`
	SuccessRate float64 `json:"success_rate"`
	SpeedFactor float64 `json:"speed_factor"` // Mean actual/predicted time
}

// Predictor keeps per-provider download history and predicts reliability
// and download time from it. UpdateHistoricalData is its only mutator.
type Predictor struct {
	mu        sync.RWMutex
	providers map[string]*ring
	capacity  int

	bandwidth float64 // bytes per second
	monitor   *Monitor
	store     HistoryStore
	logger    zerolog.Logger
	now       func() time.Time
}

// NewPredictor creates a predictor. store may be nil to keep history in memory only.
func NewPredictor(cfg model.HealthConfig, store HistoryStore, logger zerolog.Logger) *Predictor {
	capacity := cfg.HistorySize
	if capacity <= 0 {
		capacity = defaultRingSize
	}
	mbps := cfg.BandwidthMBps
	if mbps <= 0 {
		mbps = 5
	}
	return &Predictor{
		providers: make(map[string]*ring),
		capacity:  capacity,
		bandwidth: mbps * bytesPerMB,
		monitor:   NewMonitor(cfg),
		store:     store,
		logger:    logger,
		now:       time.Now,
	}
}

// Replay loads persisted outcomes into the ring buffers. It does not write
// them back to the store.
func (p *Predictor) Replay(ctx context.Context) (int, error) {
	if p.store == nil {
		return 0, nil
	}
	outcomes, err := p.store.Recent(ctx, p.capacity)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, o := range outcomes {
		p.ringFor(o.ProviderID).add(record{predicted: o.PredictedTime, actual: o.ActualTime, success: o.Success})
	}
	return len(outcomes), nil
}

// PredictReliability blends the instantaneous health score with the
// provider's historical success rate. History weight and confidence grow
// with the sample count.
func (p *Predictor) PredictReliability(src model.SourceMetadata, h model.HealthData) model.ReliabilityPrediction {
	n, successRate := p.successRate(src.Provider.ID)

	w := 0.0
	if n > 0 {
		w = maxHistoryWeight * float64(n) / (float64(n) + historyHalfWeight)
	}
	probability := (1-w)*float64(h.OverallScore)/100 + w*successRate

	limit := confidenceCap
	if hasLiveData(src, h) {
		limit = liveDataCap
	}
	confidence := math.Min(limit, baseConfidence+confidenceSpan*float64(n)/(float64(n)+historyHalfWeight))

	return model.ReliabilityPrediction{
		Probability: clampFloat(probability, 0, 1),
		Confidence:  confidence,
		Samples:     n,
	}
}

// EstimateDownloadTime is size/bandwidth scaled by a P2P health multiplier
// and the provider's historical speed factor.
func (p *Predictor) EstimateDownloadTime(src model.SourceMetadata, h model.HealthData) time.Duration {
	return time.Duration(p.baseEstimate(src, h) * p.speedFactor(src.Provider.ID) * float64(time.Second))
}

// baseEstimate is the estimate in seconds before the provider speed factor.
// Outcomes are recorded against it so the factor never compounds.
func (p *Predictor) baseEstimate(src model.SourceMetadata, h model.HealthData) float64 {
	if src.File.SizeBytes <= 0 {
		return 0
	}
	p2p := cachedSpeedup
	if !src.Cached {
		p2p = 1 + float64(100-h.P2PScore)/50
	}
	return float64(src.File.SizeBytes) / p.bandwidth * p2p
}

// UpdateHistoricalData records a finished transfer. The ring buffer is
// updated even when persisting the outcome fails.
func (p *Predictor) UpdateHistoricalData(ctx context.Context, providerID string, actual time.Duration, success bool, src model.SourceMetadata) error {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		providerID = src.Provider.ID
	}
	predicted := time.Duration(p.baseEstimate(src, p.monitor.Assess(src)) * float64(time.Second))

	p.mu.Lock()
	p.ringFor(providerID).add(record{predicted: predicted, actual: actual, success: success})
	p.mu.Unlock()

	if p.store == nil {
		return nil
	}
	err := p.store.Record(ctx, Outcome{
		ProviderID:    providerID,
		SourceID:      src.ID,
		PredictedTime: predicted,
		ActualTime:    actual,
		Success:       success,
		RecordedAt:    p.now(),
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("provider", providerID).Msg("Failed to persist download outcome")
		return err
	}
	return nil
}

// Stats returns a snapshot of every provider's history, sorted by id.
func (p *Predictor) Stats() []ProviderStats {
	p.mu.RLock()
	ids := make([]string, 0, len(p.providers))
	for id := range p.providers {
		ids = append(ids, id)
	}
	p.mu.RUnlock()
	slices.Sort(ids)

	stats := make([]ProviderStats, 0, len(ids))
	for _, id := range ids {
		n, rate := p.successRate(id)
		stats = append(stats, ProviderStats{
			ProviderID:  id,
			Samples:     n,
			SuccessRate: rate,
			SpeedFactor: p.speedFactor(id),
		})
	}
	return stats
}

// Samples returns how many outcomes are held for providerID.
func (p *Predictor) Samples(providerID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if r, ok := p.providers[providerID]; ok {
		return r.len()
	}
	return 0
}

func (p *Predictor) successRate(providerID string) (int, float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	r, ok := p.providers[providerID]
	if !ok || r.len() == 0 {
		return 0, 0
	}
	succeeded := 0
	for _, rec := range r.records() {
		if rec.success {
			succeeded++
		}
	}
	return r.len(), float64(succeeded) / float64(r.len())
}

// speedFactor is the mean actual/predicted ratio over successful transfers.
func (p *Predictor) speedFactor(providerID string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	r, ok := p.providers[providerID]
	if !ok {
		return 1
	}
	var sum float64
	var n int
	for _, rec := range r.records() {
		if !rec.success || rec.predicted <= 0 {
			continue
		}
		sum += float64(rec.actual) / float64(rec.predicted)
		n++
	}
	if n == 0 {
		return 1
	}
	return clampFloat(sum/float64(n), minSpeedFactor, maxSpeedFactor)
}

// ringFor must be called with mu held for writing.
func (p *Predictor) ringFor(providerID string) *ring {
	r, ok := p.providers[providerID]
	if !ok {
		r = newRing(p.capacity)
		p.providers[providerID] = r
	}
	return r
}

// hasLiveData reports whether the health snapshot corroborates history:
// fresh counters from a source that scored at all.
func hasLiveData(src model.SourceMetadata, h model.HealthData) bool {
	return h.OverallScore > 0 && h.FreshnessScore == 100 && !src.LastUpdated.IsZero()
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
