package rank

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/ppiankov/sourcerank/internal/health"
	"github.com/ppiankov/sourcerank/internal/model"
	"github.com/ppiankov/sourcerank/internal/score"
)

func process(src model.SourceMetadata) model.ProcessedSourceData {
	monitor := health.NewMonitor(model.DefaultConfig().Health)
	b := score.NewScorer().Calculate(src, model.SourcePreferences{}, nil)
	return model.ProcessedSourceData{
		Source:       src,
		Health:       monitor.Assess(src),
		QualityScore: b.Total,
	}
}

func order(items []model.ProcessedSourceData) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Source.ID
	}
	return out
}

func TestSorter_CachedFirstThenDeadSwarmLast(t *testing.T) {
	s := NewSorter(model.DefaultConfig().Ranking)

	items := []model.ProcessedSourceData{
		process(model.SourceMetadata{
			ID:      "A",
			Quality: model.QualityInfo{Resolution: model.Resolution1080p},
			Health:  model.RawHealth{Seeders: 500, Availability: 1},
		}),
		process(model.SourceMetadata{
			ID:      "B",
			Quality: model.QualityInfo{Resolution: model.Resolution2160p},
			Health:  model.RawHealth{Seeders: 0, Availability: 1},
		}),
		process(model.SourceMetadata{
			ID:      "C",
			Quality: model.QualityInfo{Resolution: model.Resolution720p},
			Health:  model.RawHealth{Seeders: 10, Availability: 1},
			Cached:  true,
		}),
	}

	got := order(s.Sort(items, model.SourcePreferences{}))
	want := []string{"C", "A", "B"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestSorter_HierarchicalTiebreaks(t *testing.T) {
	s := NewSorter(model.RankingConfig{BlacklistedGroups: []string{"YIFY"}, TrustedGroups: []string{"FraMeSToR"}})

	base := func(id string) model.ProcessedSourceData {
		return model.ProcessedSourceData{
			Source: model.SourceMetadata{
				ID:       id,
				File:     model.FileInfo{SizeBytes: 10_000_000_000},
				Release:  model.ReleaseInfo{Group: "NTb"},
				Provider: model.ProviderInfo{Tier: model.TierHigh},
			},
			Health:       model.HealthData{OverallScore: 80, Risk: model.RiskLow},
			QualityScore: 300,
		}
	}

	higherQuality := base("q")
	higherQuality.QualityScore = 301

	healthier := base("h")
	healthier.Health.OverallScore = 81

	betterTier := base("t")
	betterTier.Source.Provider.Tier = model.TierPremium

	trusted := base("g")
	trusted.Source.Release.Group = "FraMeSToR"

	blacklisted := base("b")
	blacklisted.Source.Release.Group = "YIFY"

	closerSize := base("s")
	closerSize.Source.File.SizeBytes = 8_000_000_000

	plainB := base("y")
	plainA := base("x")

	items := []model.ProcessedSourceData{plainB, blacklisted, closerSize, plainA, trusted, betterTier, healthier, higherQuality}
	got := order(s.Sort(items, model.SourcePreferences{TargetSizeBytes: 8_000_000_000}))
	want := []string{"q", "h", "t", "g", "s", "x", "y", "b"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestSorter_Idempotent(t *testing.T) {
	s := NewSorter(model.DefaultConfig().Ranking)
	items := fixture()
	prefs := model.SourcePreferences{TargetSizeBytes: 5_000_000_000}

	once := s.Sort(items, prefs)
	twice := s.Sort(once, prefs)
	if !slices.Equal(order(once), order(twice)) {
		t.Errorf("sort is not a fixed point: %v then %v", order(once), order(twice))
	}
}

func TestSorter_DeterministicUnderPermutation(t *testing.T) {
	s := NewSorter(model.DefaultConfig().Ranking)
	items := fixture()
	want := order(s.Sort(items, model.SourcePreferences{}))

	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 20; i++ {
		shuffled := slices.Clone(items)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		if got := order(s.Sort(shuffled, model.SourcePreferences{})); !slices.Equal(got, want) {
			t.Fatalf("permutation %d: expected %v, got %v", i, want, got)
		}
	}
}

func TestSorter_DoesNotModifyInput(t *testing.T) {
	s := NewSorter(model.DefaultConfig().Ranking)
	items := fixture()
	before := order(items)

	_ = s.Sort(items, model.SourcePreferences{})
	if !slices.Equal(order(items), before) {
		t.Error("input slice was reordered")
	}
}

func TestSorter_GroupPenalty(t *testing.T) {
	s := NewSorter(model.RankingConfig{BlacklistedGroups: []string{"YIFY", " "}, TrustedGroups: []string{"FLUX"}})

	tests := []struct {
		group string
		want  int
	}{
		{"", penaltyUnknown},
		{"yify", penaltyBlacklisted},
		{"YIFY1", penaltyBlacklisted},
		{"flux", penaltyTrusted},
		{"NTb", penaltyNeutral},
		{"YIFYRELEASES", penaltyNeutral},
	}
	for _, tt := range tests {
		if got := s.GroupPenalty(tt.group); got != tt.want {
			t.Errorf("GroupPenalty(%q) = %d, want %d", tt.group, got, tt.want)
		}
	}
}

func TestSorter_GroupFromTitle(t *testing.T) {
	s := NewSorter(model.RankingConfig{BlacklistedGroups: []string{"YIFY"}})

	a := model.ProcessedSourceData{Source: model.SourceMetadata{ID: "a", Title: "Movie.2020.1080p.WEBRip.x264-YIFY"}}
	b := model.ProcessedSourceData{Source: model.SourceMetadata{ID: "b", Title: "Movie.2020.1080p.WEBRip.x264-NTb"}}

	if c := s.Compare(a, b, model.SourcePreferences{}); c <= 0 {
		t.Errorf("expected blacklisted title group to sort after, got %d", c)
	}
}

func fixture() []model.ProcessedSourceData {
	var items []model.ProcessedSourceData
	resolutions := []model.Resolution{model.Resolution720p, model.Resolution1080p, model.Resolution2160p}
	for i, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"} {
		items = append(items, process(model.SourceMetadata{
			ID:       id,
			File:     model.FileInfo{SizeBytes: int64(i+1) * 1_000_000_000},
			Quality:  model.QualityInfo{Resolution: resolutions[i%3]},
			Release:  model.ReleaseInfo{Group: []string{"", "YIFY", "NTb"}[i%3]},
			Provider: model.ProviderInfo{ID: "p", Tier: model.ReliabilityTier(i % 5)},
			Health:   model.RawHealth{Seeders: (i % 4) * 25, Availability: 0.9},
			Cached:   i%4 == 3,
		}))
	}
	return items
}
