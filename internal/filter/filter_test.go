package filter

import (
	"slices"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/sourcerank/internal/health"
	"github.com/ppiankov/sourcerank/internal/model"
)

func newTestSystem() *System {
	return NewSystem(health.NewMonitor(model.DefaultConfig().Health), zerolog.Nop())
}

func healthySource(id string, res model.Resolution, size int64) model.SourceMetadata {
	return model.SourceMetadata{
		ID:       id,
		File:     model.FileInfo{SizeBytes: size},
		Quality:  model.QualityInfo{Resolution: res},
		Codec:    model.CodecInfo{Video: "hevc"},
		Audio:    model.AudioInfo{Codec: "eac3", Channels: "5.1"},
		Release:  model.ReleaseInfo{Group: "NTb", Type: model.ReleaseWebDL},
		Provider: model.ProviderInfo{ID: "tracker-a", Tier: model.TierPremium, Kind: model.KindTorrent},
		Health:   model.RawHealth{Seeders: 200, Availability: 1},
	}
}

func mixedSources() []model.SourceMetadata {
	dead := healthySource("dead", model.Resolution1080p, 4*gb)
	dead.Health = model.RawHealth{Seeders: 0, Leechers: 3, Availability: 0.2}
	dead.Provider.Tier = model.TierUnknown

	cached := healthySource("cached", model.Resolution1080p, 6*gb)
	cached.Cached = true
	cached.Provider = model.ProviderInfo{ID: "debrid-x", Tier: model.TierHigh, Kind: model.KindDebrid}

	uhd := healthySource("uhd", model.Resolution2160p, 25*gb)
	uhd.Quality.DolbyVision = true
	uhd.Codec.Video = "h264"

	return []model.SourceMetadata{
		healthySource("plain", model.Resolution720p, 2*gb),
		dead,
		cached,
		uhd,
	}
}

func ids(sources []model.SourceMetadata) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = s.ID
	}
	return out
}

func TestFilterSources_ResultIsSubsetOfInput(t *testing.T) {
	s := newTestSystem()
	sources := mixedSources()

	filters := []model.AdvancedSourceFilter{
		{},
		{Quality: model.QualityFilter{MinResolution: model.Resolution1080p}},
		{Health: model.HealthFilter{MinHealthScore: 50}},
		{Codec: model.CodecFilter{Excluded: []string{"x264"}}},
		{SourceType: model.SourceTypeFilter{Kinds: []model.SourceKind{model.KindDebrid}}},
		{FileSize: model.FileSizeFilter{MinBytes: 3 * gb, MaxBytes: 10 * gb}},
	}

	for _, f := range filters {
		result, err := s.FilterSources(sources, f)
		require.NoError(t, err)
		assert.Equal(t, len(sources), result.TotalSourcesEvaluated)

		for _, src := range result.FilteredSources {
			assert.True(t, slices.ContainsFunc(sources, func(in model.SourceMetadata) bool { return in.ID == src.ID }))
			ok, err := s.Matches(src, f)
			require.NoError(t, err)
			assert.True(t, ok, "source %s returned but does not match", src.ID)
		}
	}
}

func TestFilterSources_KeepsInputOrder(t *testing.T) {
	s := newTestSystem()

	result, err := s.FilterSources(mixedSources(), model.AdvancedSourceFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"plain", "dead", "cached", "uhd"}, ids(result.FilteredSources))
	assert.Empty(t, result.AppliedFilters)
}

func TestFilterSources_StrictEmptyWithoutResolution(t *testing.T) {
	s := newTestSystem()
	sources := []model.SourceMetadata{
		healthySource("a", model.Resolution1080p, 4*gb),
		healthySource("b", model.Resolution720p, 2*gb),
	}

	result, err := s.FilterSources(sources, model.AdvancedSourceFilter{
		Quality: model.QualityFilter{MinResolution: model.Resolution2160p},
	})
	require.NoError(t, err)
	assert.Empty(t, result.FilteredSources)
	assert.NotNil(t, result.FilteredSources)
	assert.Equal(t, 2, result.TotalSourcesEvaluated)
	assert.False(t, result.Relaxed)
	assert.Equal(t, []string{"quality: >= 2160p"}, result.AppliedFilters)
}

func TestFilterSources_RelaxesQualityOneTierAtATime(t *testing.T) {
	s := newTestSystem()
	sources := []model.SourceMetadata{
		healthySource("a", model.Resolution1080p, 4*gb),
		healthySource("b", model.Resolution720p, 2*gb),
	}

	result, err := s.FilterSources(sources, model.AdvancedSourceFilter{
		Quality:            model.QualityFilter{MinResolution: model.Resolution2160p},
		ConflictResolution: model.ConflictResolution{Enabled: true},
	})
	require.NoError(t, err)
	assert.True(t, result.Relaxed)
	assert.Equal(t, []string{"a"}, ids(result.FilteredSources))
	assert.Contains(t, result.AppliedFilters, "quality: >= 1080p")
	assert.Equal(t, "relaxed widen-quality: min quality 1080p", result.AppliedFilters[len(result.AppliedFilters)-1])
}

func TestFilterSources_DropsStrictRequirements(t *testing.T) {
	s := newTestSystem()
	sources := []model.SourceMetadata{healthySource("a", model.Resolution1080p, 4*gb)}

	result, err := s.FilterSources(sources, model.AdvancedSourceFilter{
		SourceType:         model.SourceTypeFilter{CachedOnly: true},
		ConflictResolution: model.ConflictResolution{Enabled: true},
	})
	require.NoError(t, err)
	assert.True(t, result.Relaxed)
	assert.Equal(t, []string{"a"}, ids(result.FilteredSources))
	assert.Equal(t, []string{"relaxed drop-strict: strict requirements dropped"}, result.AppliedFilters)
}

func TestFilterSources_CombinesStrategiesWhenNoneSucceedsAlone(t *testing.T) {
	s := newTestSystem()
	sources := []model.SourceMetadata{healthySource("big", model.Resolution1080p, 20*gb)}

	result, err := s.FilterSources(sources, model.AdvancedSourceFilter{
		Quality:            model.QualityFilter{MinResolution: model.Resolution2160p},
		FileSize:           model.FileSizeFilter{MaxBytes: 5 * gb},
		ConflictResolution: model.ConflictResolution{Enabled: true},
	})
	require.NoError(t, err)
	assert.True(t, result.Relaxed)
	assert.Equal(t, []string{"big"}, ids(result.FilteredSources))
	assert.Equal(t, "relaxed widen-quality + widen-size", result.AppliedFilters[len(result.AppliedFilters)-1])
}

func TestFilterSources_RespectsConfiguredStrategies(t *testing.T) {
	s := newTestSystem()
	sources := []model.SourceMetadata{healthySource("a", model.Resolution1080p, 4*gb)}

	result, err := s.FilterSources(sources, model.AdvancedSourceFilter{
		Quality: model.QualityFilter{MinResolution: model.Resolution2160p},
		ConflictResolution: model.ConflictResolution{
			Enabled:    true,
			Strategies: []model.RelaxationStrategy{model.RelaxSize, model.RelaxHealth},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, result.FilteredSources)
	assert.False(t, result.Relaxed)
	assert.Equal(t, exhaustedNote, result.AppliedFilters[len(result.AppliedFilters)-1])
}

func TestFilterSources_ExhaustedKeepsStrictNames(t *testing.T) {
	s := newTestSystem()

	result, err := s.FilterSources(mixedSources(), model.AdvancedSourceFilter{
		Predicates: []model.Predicate{{
			Name:  "never",
			Match: func(model.SourceMetadata) bool { return false },
		}},
		ConflictResolution: model.ConflictResolution{Enabled: true},
	})
	require.NoError(t, err)
	assert.Empty(t, result.FilteredSources)
	assert.False(t, result.Relaxed)
	assert.Equal(t, []string{"predicate: never", exhaustedNote}, result.AppliedFilters)
}

func TestFilterSources_HealthConstraints(t *testing.T) {
	s := newTestSystem()

	result, err := s.FilterSources(mixedSources(), model.AdvancedSourceFilter{
		Health: model.HealthFilter{MinHealthScore: 50, MaxRisk: model.RiskMedium},
	})
	require.NoError(t, err)
	assert.NotContains(t, ids(result.FilteredSources), "dead")
	assert.Len(t, result.FilteredSources, 3)
}

func TestFilterSources_InvalidExpression(t *testing.T) {
	s := newTestSystem()

	_, err := s.FilterSources(mixedSources(), model.AdvancedSourceFilter{
		Predicates: []model.Predicate{{Name: "broken", Expr: "Seeders >"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidPredicate)
	assert.Contains(t, err.Error(), "broken")

	_, err = s.FilterSources(mixedSources(), model.AdvancedSourceFilter{
		Predicates: []model.Predicate{{Name: "not-bool", Expr: "Seeders + 1"}},
	})
	assert.ErrorIs(t, err, model.ErrInvalidPredicate)
}

func TestFilterSources_ExpressionPredicate(t *testing.T) {
	s := newTestSystem()

	result, err := s.FilterSources(mixedSources(), model.AdvancedSourceFilter{
		Predicates: []model.Predicate{{Expr: `Codec == "hevc" && SizeGB > 3 && Health >= 50`}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"cached"}, ids(result.FilteredSources))
	assert.Equal(t, []string{"predicate: #1"}, result.AppliedFilters)
}

func TestFilterSources_MatchTakesPrecedenceOverExpr(t *testing.T) {
	s := newTestSystem()

	result, err := s.FilterSources(mixedSources(), model.AdvancedSourceFilter{
		Predicates: []model.Predicate{{
			Name:  "cached-only",
			Expr:  "this does not compile ((",
			Match: func(src model.SourceMetadata) bool { return src.Cached },
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"cached"}, ids(result.FilteredSources))
}

func TestFilterSources_CodecAliases(t *testing.T) {
	s := newTestSystem()

	result, err := s.FilterSources(mixedSources(), model.AdvancedSourceFilter{
		Codec: model.CodecFilter{Allowed: []string{"x264"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"uhd"}, ids(result.FilteredSources))
}

func TestCheapPass_NeverRejectsWhatFullFilterKeeps(t *testing.T) {
	s := newTestSystem()
	sources := mixedSources()
	f := model.AdvancedSourceFilter{
		SourceType: model.SourceTypeFilter{CachedOnly: true},
		Quality:    model.QualityFilter{MinResolution: model.Resolution2160p},
	}

	cheap := s.CheapPass(sources, f)
	assert.Equal(t, []string{"cached"}, ids(cheap), "only field checks should run")

	full, err := s.FilterSources(sources, f)
	require.NoError(t, err)
	for _, src := range full.FilteredSources {
		assert.Contains(t, ids(cheap), src.ID)
	}
}

func TestCheapPass_NoFieldChecksReturnsInput(t *testing.T) {
	s := newTestSystem()
	sources := mixedSources()

	out := s.CheapPass(sources, model.AdvancedSourceFilter{
		Quality: model.QualityFilter{RequireHDR: true},
	})
	assert.Len(t, out, len(sources))
}

func TestWithHealth_OverridesScoring(t *testing.T) {
	s := newTestSystem().WithHealth(func(model.SourceMetadata) model.HealthData {
		return model.HealthData{OverallScore: 10, Risk: model.RiskCritical}
	})

	result, err := s.FilterSources(mixedSources(), model.AdvancedSourceFilter{
		Health: model.HealthFilter{MinHealthScore: 20},
	})
	require.NoError(t, err)
	assert.Empty(t, result.FilteredSources)
}

func TestValidateExpr(t *testing.T) {
	s := newTestSystem()

	assert.NoError(t, s.ValidateExpr(`Resolution >= 3 && !Cached`))
	assert.ErrorIs(t, s.ValidateExpr(""), model.ErrInvalidPredicate)
	assert.ErrorIs(t, s.ValidateExpr("Unknown == 1"), model.ErrInvalidPredicate)
}

func TestPreset_AllNamesResolve(t *testing.T) {
	names := PresetNames()
	assert.Equal(t, []string{
		"balanced",
		"bandwidth-constrained",
		"hdr-enthusiast",
		"instant-playback",
		"mobile",
		"quality-focused",
	}, names)

	for _, name := range names {
		p, err := Preset(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name)
		assert.True(t, p.Filter.ConflictResolution.Enabled)
		assert.NotEmpty(t, p.Description)
	}
}

func TestPreset_Unknown(t *testing.T) {
	_, err := Preset("cinema")
	assert.ErrorIs(t, err, model.ErrUnknownPreset)
}

func TestPreset_ReturnsIndependentCopies(t *testing.T) {
	a, err := Preset("Mobile")
	require.NoError(t, err)
	a.Filter.Codec.Allowed[0] = "mpeg2"

	b, err := Preset("mobile")
	require.NoError(t, err)
	assert.Equal(t, "h264", b.Filter.Codec.Allowed[0])
}

func TestPreset_InstantPlaybackFallsBackWhenNothingCached(t *testing.T) {
	s := newTestSystem()
	p, err := Preset("instant-playback")
	require.NoError(t, err)

	sources := []model.SourceMetadata{healthySource("a", model.Resolution1080p, 4*gb)}
	result, err := s.FilterSources(sources, p.Filter)
	require.NoError(t, err)
	assert.True(t, result.Relaxed)
	assert.Len(t, result.FilteredSources, 1)
}
