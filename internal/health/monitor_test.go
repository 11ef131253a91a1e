package health

import (
	"math"
	"testing"
	"time"

	"github.com/ppiankov/sourcerank/internal/model"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestMonitor() *Monitor {
	return NewMonitor(model.DefaultConfig().Health).WithClock(func() time.Time { return fixedNow })
}

func TestCalculate_ZeroSeedersAlwaysCritical(t *testing.T) {
	m := newTestMonitor()

	tiers := []model.ReliabilityTier{model.TierUnknown, model.TierLow, model.TierPremium}
	for _, tier := range tiers {
		for _, avail := range []float64{0, 0.5, 1} {
			for _, leechers := range []int{0, 3, 1000} {
				h := m.Calculate(
					model.RawHealth{Seeders: 0, Leechers: leechers, Availability: avail},
					model.ProviderInfo{Tier: tier},
				)
				if h.Risk != model.RiskCritical {
					t.Errorf("tier=%s avail=%v leechers=%d: expected CRITICAL, got %s", tier, avail, leechers, h.Risk)
				}
				if h.OverallScore > 20 {
					t.Errorf("tier=%s avail=%v leechers=%d: expected score <= 20, got %d", tier, avail, leechers, h.OverallScore)
				}
			}
		}
	}
}

func TestCalculate_HealthySwarm(t *testing.T) {
	m := newTestMonitor()

	h := m.Calculate(
		model.RawHealth{Seeders: 500, Leechers: 10, Availability: 1},
		model.ProviderInfo{Tier: model.TierPremium},
	)

	if h.P2PScore != 100 {
		t.Errorf("expected saturated P2P score, got %d", h.P2PScore)
	}
	if h.OverallScore != 100 {
		t.Errorf("expected 100, got %d", h.OverallScore)
	}
	if h.Risk != model.RiskLow {
		t.Errorf("expected LOW, got %s", h.Risk)
	}
	if !h.ComputedAt.Equal(fixedNow) {
		t.Errorf("expected ComputedAt from clock, got %v", h.ComputedAt)
	}
}

func TestP2PScore_DiminishingReturns(t *testing.T) {
	m := newTestMonitor()

	prev := 0
	for _, seeders := range []int{1, 5, 20, 100, 200} {
		score, _ := m.p2pScore(model.RawHealth{Seeders: seeders, Leechers: seeders})
		if score < prev {
			t.Errorf("p2p score decreased at %d seeders: %d < %d", seeders, score, prev)
		}
		prev = score
	}

	at200, _ := m.p2pScore(model.RawHealth{Seeders: 200})
	at5000, _ := m.p2pScore(model.RawHealth{Seeders: 5000})
	if at200 != at5000 {
		t.Errorf("expected saturation above 200 seeders, got %d vs %d", at200, at5000)
	}
}

func TestCalculate_MalformedInput(t *testing.T) {
	m := newTestMonitor()

	bad := []model.RawHealth{
		{Seeders: -1},
		{Seeders: 10, Leechers: -5},
		{Seeders: 10, Availability: 1.5},
		{Seeders: 10, Availability: math.NaN()},
		{Seeders: 10, AgeSeconds: -1},
	}
	for i, raw := range bad {
		h := m.Calculate(raw, model.ProviderInfo{Tier: model.TierPremium})
		if h.OverallScore != 0 || h.Risk != model.RiskCritical {
			t.Errorf("case %d: expected 0/CRITICAL, got %d/%s", i, h.OverallScore, h.Risk)
		}
	}
}

func TestAssess_EmptyIDIsMalformed(t *testing.T) {
	m := newTestMonitor()

	h := m.Assess(model.SourceMetadata{Health: model.RawHealth{Seeders: 100, Availability: 1}})
	if h.OverallScore != 0 || h.Risk != model.RiskCritical {
		t.Errorf("expected 0/CRITICAL, got %d/%s", h.OverallScore, h.Risk)
	}
}

func TestAssess_RecordsSnapshot(t *testing.T) {
	m := newTestMonitor()
	snap := fixedNow.Add(-time.Minute)

	h := m.Assess(model.SourceMetadata{ID: "a", Health: model.RawHealth{Seeders: 10}, LastUpdated: snap})
	if !h.SnapshotAt.Equal(snap) {
		t.Errorf("expected snapshot %v, got %v", snap, h.SnapshotAt)
	}
}

func TestFreshnessScore_DecaysPastWindow(t *testing.T) {
	m := newTestMonitor()
	torrent := model.ProviderInfo{Kind: model.KindTorrent}

	fresh, _ := m.freshnessScore(model.RawHealth{AgeSeconds: 60}, torrent)
	if fresh != 100 {
		t.Errorf("expected 100 inside window, got %d", fresh)
	}

	day := int64((24*time.Hour + 5*time.Minute) / time.Second)
	stale, _ := m.freshnessScore(model.RawHealth{AgeSeconds: day}, torrent)
	if stale < 35 || stale > 38 {
		t.Errorf("expected ~37 one decay constant past window, got %d", stale)
	}

	// A debrid link keeps a wider window
	debrid, _ := m.freshnessScore(model.RawHealth{AgeSeconds: 1800}, model.ProviderInfo{Kind: model.KindDebrid})
	if debrid != 100 {
		t.Errorf("expected 100 for 30m-old debrid counters, got %d", debrid)
	}
}

func TestRiskFor(t *testing.T) {
	tests := []struct {
		overall int
		seeders int
		want    model.RiskLevel
	}{
		{100, 50, model.RiskLow},
		{75, 50, model.RiskLow},
		{74, 50, model.RiskMedium},
		{50, 50, model.RiskMedium},
		{49, 50, model.RiskHigh},
		{25, 50, model.RiskHigh},
		{24, 50, model.RiskCritical},
		{100, 0, model.RiskCritical},
	}
	for _, tt := range tests {
		if got := riskFor(tt.overall, tt.seeders); got != tt.want {
			t.Errorf("riskFor(%d, %d) = %s, want %s", tt.overall, tt.seeders, got, tt.want)
		}
	}
}

func TestExplain_IncludesZeroSeederSignal(t *testing.T) {
	m := newTestMonitor()

	signals := m.Explain(model.SourceMetadata{ID: "b"})
	if len(signals) != 5 {
		t.Fatalf("expected 5 signals, got %d", len(signals))
	}
	if signals[4].Type != model.SignalZeroSeeders {
		t.Errorf("expected zero_seeders signal last, got %s", signals[4].Type)
	}
}
