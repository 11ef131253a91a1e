// Package health scores the point-in-time health of a source and predicts
// its reliability from per-provider download history.
package health

import (
	"fmt"
	"math"
	"time"

	"github.com/ppiankov/sourcerank/internal/model"
)

const (
	// Seeder count at which the logarithmic part of the P2P score saturates
	seederSaturation = 200

	// Overall score ceiling for a source with no seeders
	zeroSeederCap = 20

	// Freshness half-life style decay constant past the fresh window
	freshnessDecay = 24 * time.Hour

	debridFreshWindow = time.Hour
	directFreshWindow = 24 * time.Hour
)

// Risk thresholds on the overall score
const (
	lowRiskMin    = 75
	mediumRiskMin = 50
	highRiskMin   = 25
)

var tierScores = map[model.ReliabilityTier]int{
	model.TierPremium: 100,
	model.TierHigh:    85,
	model.TierMedium:  65,
	model.TierLow:     40,
	model.TierUnknown: 50,
}

// Monitor computes health scores. It holds no mutable state and is safe for
// concurrent use.
type Monitor struct {
	freshWindow time.Duration
	now         func() time.Time
}

// NewMonitor creates a monitor using the configured P2P freshness window
func NewMonitor(cfg model.HealthConfig) *Monitor {
	window := cfg.FreshnessWindow
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Monitor{freshWindow: window, now: time.Now}
}

// WithClock replaces the clock used for ComputedAt. Intended for tests.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// FreshWindow returns the P2P freshness window.
func (m *Monitor) FreshWindow() time.Duration {
	return m.freshWindow
}

// Assess scores a whole source. Malformed sources score 0 with CRITICAL risk.
func (m *Monitor) Assess(src model.SourceMetadata) model.HealthData {
	if err := src.Validate(); err != nil {
		return m.malformed(src.LastUpdated)
	}
	h := m.Calculate(src.Health, src.Provider)
	h.SnapshotAt = src.LastUpdated
	return h
}

// Calculate derives HealthData from raw counters and provider info.
func (m *Monitor) Calculate(raw model.RawHealth, provider model.ProviderInfo) model.HealthData {
	if !validCounters(raw) {
		return m.malformed(time.Time{})
	}

	p2p, _ := m.p2pScore(raw)
	prov, _ := m.providerScore(provider)
	avail, _ := m.availabilityScore(raw)
	fresh, _ := m.freshnessScore(raw, provider)

	overall := clamp(int(math.Round(float64(p2p+prov+avail+fresh)/4)), 0, 100)
	if raw.Seeders == 0 && overall > zeroSeederCap {
		overall = zeroSeederCap
	}

	return model.HealthData{
		OverallScore:      overall,
		P2PScore:          p2p,
		ProviderScore:     prov,
		AvailabilityScore: avail,
		FreshnessScore:    fresh,
		Risk:              riskFor(overall, raw.Seeders),
		ComputedAt:        m.now(),
	}
}

// Explain returns one signal per sub-score with the inputs that produced it.
func (m *Monitor) Explain(src model.SourceMetadata) []model.Signal {
	if err := src.Validate(); err != nil {
		return []model.Signal{{
			Type:        model.SignalMalformed,
			Severity:    model.SeverityCritical,
			Description: err.Error(),
		}}
	}

	_, p2p := m.p2pScore(src.Health)
	_, prov := m.providerScore(src.Provider)
	_, avail := m.availabilityScore(src.Health)
	_, fresh := m.freshnessScore(src.Health, src.Provider)
	signals := []model.Signal{p2p, prov, avail, fresh}

	if src.Health.Seeders == 0 {
		signals = append(signals, model.Signal{
			Type:        model.SignalZeroSeeders,
			Severity:    model.SeverityCritical,
			Description: fmt.Sprintf("No seeders: overall capped at %d, risk CRITICAL", zeroSeederCap),
		})
	}
	return signals
}

// p2pScore scales seeders logarithmically (saturating near 200) and adds a
// seeder:leecher ratio bonus.
func (m *Monitor) p2pScore(raw model.RawHealth) (int, model.Signal) {
	if raw.Seeders == 0 {
		return 0, model.Signal{
			Type:        model.SignalP2P,
			Severity:    model.SeverityCritical,
			Description: "No seeders",
			Data:        map[string]any{"seeders": 0, "leechers": raw.Leechers},
		}
	}

	s := float64(raw.Seeders)
	logPart := 70 * math.Min(1, math.Log1p(s)/math.Log1p(seederSaturation))
	ratio := s / float64(raw.Leechers+1)
	ratioPart := 30 * math.Min(1, ratio/2)
	score := clamp(int(math.Round(logPart+ratioPart)), 0, 100)

	severity := model.SeverityInfo
	if score < 40 {
		severity = model.SeverityWarning
	}

	return score, model.Signal{
		Type:        model.SignalP2P,
		Severity:    severity,
		Description: fmt.Sprintf("%d seeders, ratio %.2f", raw.Seeders, ratio),
		Data: map[string]any{
			"seeders":  raw.Seeders,
			"leechers": raw.Leechers,
			"ratio":    ratio,
			"score":    score,
			"formula":  "70*min(1, ln(1+s)/ln(201)) + 30*min(1, s/(l+1)/2)",
		},
	}
}

func (m *Monitor) providerScore(p model.ProviderInfo) (int, model.Signal) {
	score, ok := tierScores[p.Tier]
	if !ok {
		score = tierScores[model.TierUnknown]
	}
	severity := model.SeverityInfo
	if p.Tier == model.TierLow {
		severity = model.SeverityWarning
	}
	return score, model.Signal{
		Type:        model.SignalProvider,
		Severity:    severity,
		Description: fmt.Sprintf("Provider tier %s", p.Tier),
		Data:        map[string]any{"provider": p.ID, "tier": p.Tier.String(), "score": score},
	}
}

func (m *Monitor) availabilityScore(raw model.RawHealth) (int, model.Signal) {
	score := clamp(int(math.Round(raw.Availability*100)), 0, 100)
	severity := model.SeverityInfo
	if raw.Availability < 1 {
		severity = model.SeverityWarning
	}
	return score, model.Signal{
		Type:        model.SignalAvailability,
		Severity:    severity,
		Description: fmt.Sprintf("Availability %.0f%%", raw.Availability*100),
		Data:        map[string]any{"availability": raw.Availability, "score": score, "formula": "100*availability"},
	}
}

// freshnessScore is 100 inside the provider kind's fresh window and decays
// exponentially afterwards.
func (m *Monitor) freshnessScore(raw model.RawHealth, p model.ProviderInfo) (int, model.Signal) {
	window := m.windowFor(p.Kind)
	age := raw.Age()

	score := 100
	if age > window {
		score = clamp(int(math.Round(100*math.Exp(-float64(age-window)/float64(freshnessDecay)))), 0, 100)
	}

	severity := model.SeverityInfo
	if score < 50 {
		severity = model.SeverityWarning
	}
	return score, model.Signal{
		Type:        model.SignalFreshness,
		Severity:    severity,
		Description: fmt.Sprintf("Counters %s old (fresh window %s)", age, window),
		Data: map[string]any{
			"age_seconds":    raw.AgeSeconds,
			"window_seconds": int64(window / time.Second),
			"score":          score,
			"formula":        "100 if age <= window else 100*exp(-(age-window)/24h)",
		},
	}
}

func (m *Monitor) windowFor(kind model.SourceKind) time.Duration {
	switch kind {
	case model.KindDebrid:
		return debridFreshWindow
	case model.KindDirect:
		return directFreshWindow
	default:
		return m.freshWindow
	}
}

func (m *Monitor) malformed(snapshot time.Time) model.HealthData {
	return model.HealthData{
		Risk:       model.RiskCritical,
		ComputedAt: m.now(),
		SnapshotAt: snapshot,
	}
}

func riskFor(overall, seeders int) model.RiskLevel {
	switch {
	case seeders == 0:
		return model.RiskCritical
	case overall >= lowRiskMin:
		return model.RiskLow
	case overall >= mediumRiskMin:
		return model.RiskMedium
	case overall >= highRiskMin:
		return model.RiskHigh
	default:
		return model.RiskCritical
	}
}

func validCounters(raw model.RawHealth) bool {
	return raw.Seeders >= 0 && raw.Leechers >= 0 && raw.AgeSeconds >= 0 &&
		!math.IsNaN(raw.Availability) && raw.Availability >= 0 && raw.Availability <= 1
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
