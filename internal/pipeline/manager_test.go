package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/sourcerank/internal/cache"
	"github.com/ppiankov/sourcerank/internal/model"
	"github.com/ppiankov/sourcerank/internal/worker"
)

var desktop = worker.DeviceProfile{MemoryMB: 16384, Cores: 8}

func testConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.Cache.PersistentPath = ""
	return cfg
}

func newTestManager(t *testing.T, cfg *model.Config) *Manager {
	t.Helper()
	m := NewManager(cfg, Options{Device: &desktop, Logger: zerolog.Nop()})
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func exampleSources() []model.SourceMetadata {
	return []model.SourceMetadata{
		{
			ID:      "A",
			Quality: model.QualityInfo{Resolution: model.Resolution1080p},
			Health:  model.RawHealth{Seeders: 500, Leechers: 20, Availability: 1},
		},
		{
			ID:      "B",
			Quality: model.QualityInfo{Resolution: model.Resolution2160p},
			Health:  model.RawHealth{Seeders: 0, Leechers: 4, Availability: 1},
		},
		{
			ID:      "C",
			Quality: model.QualityInfo{Resolution: model.Resolution720p},
			Health:  model.RawHealth{Seeders: 10, Availability: 1},
			Cached:  true,
		},
	}
}

func manySources(n int) []model.SourceMetadata {
	out := make([]model.SourceMetadata, n)
	for i := range out {
		out[i] = model.SourceMetadata{
			ID:       fmt.Sprintf("src-%03d", i),
			File:     model.FileInfo{SizeBytes: int64(i+1) * 500_000_000},
			Quality:  model.QualityInfo{Resolution: model.Resolution(1 + i%4)},
			Provider: model.ProviderInfo{ID: fmt.Sprintf("p%d", i%3), Tier: model.ReliabilityTier(i % 5)},
			Health:   model.RawHealth{Seeders: (i * 7) % 120, Leechers: i % 9, Availability: 0.8},
			Cached:   i%5 == 0,
		}
	}
	return out
}

func ids(items []model.ProcessedSourceData) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Source.ID
	}
	return out
}

func TestBatchProcessSources_EmptyInput(t *testing.T) {
	m := newTestManager(t, testConfig())

	_, err := m.BatchProcessSources(context.Background(), nil)
	assert.ErrorIs(t, err, model.ErrEmptyInput)
}

func TestBatchProcessSources_CachedFirstDeadSwarmLast(t *testing.T) {
	m := newTestManager(t, testConfig())

	res, err := m.BatchProcessSources(context.Background(), exampleSources())
	require.NoError(t, err)

	assert.Equal(t, []string{"C", "A", "B"}, ids(res.Sources))
	assert.True(t, res.Complete)
	assert.Equal(t, worker.StrategyDirect, res.Strategy)
	assert.NotEmpty(t, res.RunID)

	b := res.Sources[2]
	assert.Equal(t, model.RiskCritical, b.Health.Risk)
	assert.LessOrEqual(t, b.Health.OverallScore, 20)
}

func TestBatchProcessSources_Deterministic(t *testing.T) {
	m := newTestManager(t, testConfig())
	sources := manySources(60)

	first, err := m.BatchProcessSources(context.Background(), sources)
	require.NoError(t, err)
	second, err := m.BatchProcessSources(context.Background(), sources)
	require.NoError(t, err)

	require.Equal(t, ids(first.Sources), ids(second.Sources))
	for i := range first.Sources {
		assert.Equal(t, first.Sources[i].QualityScore, second.Sources[i].QualityScore)
		assert.Equal(t, first.Sources[i].Health.OverallScore, second.Sources[i].Health.OverallScore)
		assert.Equal(t, first.Sources[i].Prediction, second.Sources[i].Prediction)
	}
}

func TestBatchProcessSources_StrategiesAgree(t *testing.T) {
	sources := manySources(40)

	direct := newTestManager(t, testConfig())
	want, err := direct.BatchProcessSources(context.Background(), sources)
	require.NoError(t, err)
	require.Equal(t, worker.StrategyDirect, want.Strategy)

	cfg := testConfig()
	cfg.Workers.DirectThreshold = 5
	cfg.Workers.MinChunkSize = 3
	chunked := newTestManager(t, cfg)
	got, err := chunked.BatchProcessSources(context.Background(), sources)
	require.NoError(t, err)
	require.Equal(t, worker.StrategyChunked, got.Strategy)
	assert.Equal(t, ids(want.Sources), ids(got.Sources))

	cfg = testConfig()
	cfg.Workers.DirectThreshold = 5
	cfg.Workers.StreamThreshold = 10
	cfg.Workers.MinChunkSize = 3
	streamed := newTestManager(t, cfg)
	got, err = streamed.BatchProcessSources(context.Background(), sources)
	require.NoError(t, err)
	require.Equal(t, worker.StrategyStream, got.Strategy)
	assert.Equal(t, ids(want.Sources), ids(got.Sources))
}

func TestRun_MalformedSourcePassesThrough(t *testing.T) {
	m := newTestManager(t, testConfig())
	sources := exampleSources()
	sources = append(sources, model.SourceMetadata{
		ID:      "bad",
		Quality: model.QualityInfo{Resolution: model.Resolution1080p},
		Health:  model.RawHealth{Seeders: -3, Availability: 1},
	})

	res, err := m.BatchProcessSources(context.Background(), sources)
	require.NoError(t, err)
	require.Len(t, res.Sources, 4)
	assert.Equal(t, 1, res.ErrorCount)

	last := res.Sources[3]
	assert.Equal(t, "bad", last.Source.ID)
	assert.True(t, last.HasError)
	assert.Contains(t, last.ErrorMessage, "malformed source")
	assert.Equal(t, 0, last.Health.OverallScore)
	assert.Positive(t, last.QualityScore, "raw metadata is still scored")
}

func TestProcessSource_ComputesOnceWithinTTL(t *testing.T) {
	m := newTestManager(t, testConfig())
	src := exampleSources()[0]

	first := m.ProcessSource(context.Background(), src)
	second := m.ProcessSource(context.Background(), src)

	assert.Equal(t, first.Health.OverallScore, second.Health.OverallScore)
	// One health and one prediction computation
	assert.EqualValues(t, 2, m.CacheStats().Computations)
	assert.GreaterOrEqual(t, m.CacheStats().MemoryHits, int64(2))
}

func TestProcessSource_NewSnapshotRecomputes(t *testing.T) {
	m := newTestManager(t, testConfig())
	src := exampleSources()[0]
	src.LastUpdated = time.Now().Add(-time.Minute)

	_ = m.ProcessSource(context.Background(), src)

	updated := src
	updated.LastUpdated = time.Now()
	updated.Health.Seeders = 3
	got := m.ProcessSource(context.Background(), updated)

	assert.True(t, updated.LastUpdated.Equal(got.Health.SnapshotAt))
	assert.EqualValues(t, 4, m.CacheStats().Computations)
}

// slowCache is a persistent tier whose reads take longer than the source budget
type slowCache struct {
	delay time.Duration
}

func (c *slowCache) Get(string) (cache.Entry, bool, error) {
	time.Sleep(c.delay)
	return cache.Entry{}, false, nil
}
func (c *slowCache) Set(string, cache.Entry) error { return nil }
func (c *slowCache) Delete(string) error           { return nil }
func (c *slowCache) Clear() error                  { return nil }

func TestProcessSource_TimeoutFallsBackToRawMetadata(t *testing.T) {
	cfg := testConfig()
	cfg.Health.SourceTimeout = 20 * time.Millisecond
	store := cache.NewManager(cache.NewMemoryCache(16, time.Minute), &slowCache{delay: 300 * time.Millisecond}, zerolog.Nop())
	m := NewManager(cfg, Options{Cache: store, Device: &desktop, Logger: zerolog.Nop()})

	src := exampleSources()[0]
	got := m.ProcessSource(context.Background(), src)

	assert.True(t, got.HasError)
	assert.Contains(t, got.ErrorMessage, model.ErrComputationTimeout.Error())
	assert.Positive(t, got.QualityScore)
	assert.Equal(t, []string{"1080p"}, got.QualityBadges)
}

func TestRun_CancelledReturnsPartialResult(t *testing.T) {
	m := newTestManager(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := m.BatchProcessSources(ctx, exampleSources())
	require.NoError(t, err)
	assert.False(t, res.Complete)
	assert.Empty(t, res.Sources)
}

func TestRun_WithFilter(t *testing.T) {
	m := newTestManager(t, testConfig())

	res, err := m.Run(context.Background(), Request{
		Sources: exampleSources(),
		Filter: &model.AdvancedSourceFilter{
			Quality: model.QualityFilter{MinResolution: model.Resolution1080p},
			Health:  model.HealthFilter{MinSeeders: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids(res.Sources))
	require.NotNil(t, res.Filter)
	assert.Equal(t, 3, res.Filter.TotalSourcesEvaluated)
}

func TestRun_InvalidPredicate(t *testing.T) {
	m := newTestManager(t, testConfig())

	_, err := m.Run(context.Background(), Request{
		Sources: exampleSources(),
		Filter: &model.AdvancedSourceFilter{
			Predicates: []model.Predicate{{Name: "oops", Expr: "Seeders >>> 1"}},
		},
	})
	assert.ErrorIs(t, err, model.ErrInvalidPredicate)
}

func TestRun_StreamStopsAtQuotaUnlessExhaustive(t *testing.T) {
	cfg := testConfig()
	cfg.Workers.DirectThreshold = 5
	cfg.Workers.StreamThreshold = 10
	cfg.Workers.MinChunkSize = 5
	cfg.Workers.MaxChunkSize = 5
	m := newTestManager(t, cfg)
	sources := manySources(100)
	f := &model.AdvancedSourceFilter{}

	quick, err := m.Run(context.Background(), Request{Sources: sources, Filter: f, Quota: 5})
	require.NoError(t, err)
	assert.Equal(t, worker.StrategyStream, quick.Strategy)
	assert.Less(t, len(quick.Sources), 100)
	assert.GreaterOrEqual(t, len(quick.Sources), 5)

	full, err := m.Run(context.Background(), Request{Sources: sources, Filter: f, Quota: 5, Exhaustive: true})
	require.NoError(t, err)
	assert.Len(t, full.Sources, 100)
}

func TestRun_StreamPreFilters(t *testing.T) {
	cfg := testConfig()
	cfg.Workers.DirectThreshold = 5
	cfg.Workers.StreamThreshold = 10
	m := newTestManager(t, cfg)

	res, err := m.Run(context.Background(), Request{
		Sources: manySources(50),
		Filter:  &model.AdvancedSourceFilter{SourceType: model.SourceTypeFilter{CachedOnly: true}},
	})
	require.NoError(t, err)
	assert.Len(t, res.Sources, 10)
	for _, s := range res.Sources {
		assert.True(t, s.Source.Cached)
	}
	assert.Equal(t, 50, res.Filter.TotalSourcesEvaluated)
}

func TestRecordOutcome_RefreshesPrediction(t *testing.T) {
	m := newTestManager(t, testConfig())
	src := manySources(2)[1]

	before := m.ProcessSource(context.Background(), src)
	assert.Zero(t, before.Prediction.Samples)

	require.NoError(t, m.RecordOutcome(context.Background(), src.Provider.ID, time.Minute, false, src))

	after := m.ProcessSource(context.Background(), src)
	assert.Equal(t, 1, after.Prediction.Samples)
	assert.Less(t, after.Prediction.Probability, before.Prediction.Probability)

	stats := m.ProviderStats()
	require.Len(t, stats, 1)
	assert.Equal(t, src.Provider.ID, stats[0].ProviderID)
}

func TestRefreshOnce_WarmsRecentSources(t *testing.T) {
	m := newTestManager(t, testConfig())
	_, err := m.BatchProcessSources(context.Background(), exampleSources())
	require.NoError(t, err)

	n, err := m.RefreshOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestFilterSources_UsesCachedHealth(t *testing.T) {
	m := newTestManager(t, testConfig())

	res, err := m.FilterSources(context.Background(), exampleSources(), model.AdvancedSourceFilter{
		Health: model.HealthFilter{MaxRisk: model.RiskHigh},
	})
	require.NoError(t, err)
	require.Len(t, res.FilteredSources, 2)
	assert.ElementsMatch(t, []string{"A", "C"}, []string{res.FilteredSources[0].ID, res.FilteredSources[1].ID})
	assert.EqualValues(t, 3, m.CacheStats().Computations)
}

func TestRun_StrategiesAgreeWhenFilterNeedsRelaxation(t *testing.T) {
	sources := manySources(30)
	for i := range sources {
		sources[i].Cached = false
	}
	f := &model.AdvancedSourceFilter{
		SourceType:         model.SourceTypeFilter{CachedOnly: true},
		ConflictResolution: model.ConflictResolution{Enabled: true},
	}

	direct := newTestManager(t, testConfig())
	want, err := direct.Run(context.Background(), Request{Sources: sources, Filter: f})
	require.NoError(t, err)
	require.Equal(t, worker.StrategyDirect, want.Strategy)

	cfg := testConfig()
	cfg.Workers.DirectThreshold = 5
	cfg.Workers.StreamThreshold = 10
	streamed := newTestManager(t, cfg)
	got, err := streamed.Run(context.Background(), Request{Sources: sources, Filter: f})
	require.NoError(t, err)
	require.Equal(t, worker.StrategyStream, got.Strategy)

	assert.Len(t, got.Sources, 30)
	assert.Equal(t, ids(want.Sources), ids(got.Sources))
	assert.True(t, got.Filter.Relaxed)
	assert.Equal(t, want.Filter.AppliedFilters, got.Filter.AppliedFilters)
}

func TestRun_UsesConfiguredStrategies(t *testing.T) {
	cfg := testConfig()
	cfg.Filter.Strategies = []string{string(model.RelaxHealth)}
	m := newTestManager(t, cfg)

	// Only a quality or strict relaxation could match anything here
	f := &model.AdvancedSourceFilter{
		Quality:            model.QualityFilter{MinResolution: model.Resolution2160p},
		SourceType:         model.SourceTypeFilter{CachedOnly: true},
		ConflictResolution: model.ConflictResolution{Enabled: true},
	}
	res, err := m.Run(context.Background(), Request{Sources: exampleSources(), Filter: f})
	require.NoError(t, err)
	assert.Empty(t, res.Sources)
	assert.Contains(t, res.Filter.AppliedFilters, "all constraints relaxed, still empty")
	assert.Nil(t, f.ConflictResolution.Strategies, "caller's filter must not be modified")

	fr, err := m.FilterSources(context.Background(), exampleSources(), *f)
	require.NoError(t, err)
	assert.Empty(t, fr.FilteredSources)

	f.ConflictResolution.Strategies = []model.RelaxationStrategy{model.RelaxQuality}
	res, err = m.Run(context.Background(), Request{Sources: exampleSources(), Filter: f})
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, ids(res.Sources))
}

func TestRun_DropsRepeatedIDs(t *testing.T) {
	m := newTestManager(t, testConfig())

	dup := exampleSources()[0]
	dup.Title = "dup"
	dup.Health.Seeders = 0
	sources := append(exampleSources(), dup)

	res, err := m.Run(context.Background(), Request{
		Sources: sources,
		Filter:  &model.AdvancedSourceFilter{Health: model.HealthFilter{MinSeeders: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A"}, ids(res.Sources))
	assert.Equal(t, 500, res.Sources[1].Source.Health.Seeders)
	assert.Equal(t, 3, res.Filter.TotalSourcesEvaluated)
}

func TestStartRefresher_SweepsPersistentCache(t *testing.T) {
	bolt, err := cache.OpenBoltCache(filepath.Join(t.TempDir(), "health.db"), time.Hour, 0)
	require.NoError(t, err)
	require.NoError(t, bolt.Set("stale", cache.Entry{Payload: []byte("{}"), StoredAt: time.Now().Add(-2 * time.Hour)}))

	cfg := testConfig()
	cfg.Cache.SweepInterval = 10 * time.Millisecond
	cfg.Health.RefreshInterval = 0
	store := cache.NewManager(cache.NewMemoryCache(10, time.Minute), bolt, zerolog.Nop())
	m := NewManager(cfg, Options{Cache: store, Device: &desktop, Logger: zerolog.Nop()})
	t.Cleanup(func() { _ = m.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartRefresher(ctx)

	assert.Eventually(t, func() bool { return bolt.Len() == 0 }, time.Second, 10*time.Millisecond)
}
