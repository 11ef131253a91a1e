// Package pipeline orchestrates enrichment, filtering, ranking and
// recommendation of candidate sources.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/ppiankov/sourcerank/internal/cache"
	"github.com/ppiankov/sourcerank/internal/filter"
	"github.com/ppiankov/sourcerank/internal/health"
	"github.com/ppiankov/sourcerank/internal/model"
	"github.com/ppiankov/sourcerank/internal/rank"
	"github.com/ppiankov/sourcerank/internal/score"
	"github.com/ppiankov/sourcerank/internal/season"
	"github.com/ppiankov/sourcerank/internal/worker"
)

// Options carries the collaborators a Manager may share with its caller.
// Zero fields are built from configuration.
type Options struct {
	Cache   *cache.Manager
	History health.HistoryStore
	Device  *worker.DeviceProfile
	Logger  zerolog.Logger
}

// Manager is the entry point for processing sources. It is safe for
// concurrent use; the cache and predictor history are its only mutable state.
type Manager struct {
	cfg       *model.Config
	monitor   *health.Monitor
	predictor *health.Predictor
	detector  *season.Detector
	scorer    *score.Scorer
	filters   *filter.System
	sorter    *rank.Sorter
	cache     *cache.Manager
	scheduler *worker.Scheduler
	limiter   *worker.Limiter
	recent    *gocache.Cache
	history   health.HistoryStore
	logger    zerolog.Logger
}

// NewManager wires every component from cfg. cfg must not be modified
// afterwards.
func NewManager(cfg *model.Config, opts Options) *Manager {
	logger := opts.Logger

	store := opts.Cache
	if store == nil {
		store = cache.NewFromConfig(cfg.Cache, logger)
	}

	device := worker.DetectDevice(cfg.Device)
	if opts.Device != nil {
		device = *opts.Device
	}

	monitor := health.NewMonitor(cfg.Health)

	recentTTL := cfg.Health.RecentSourceTTL
	if recentTTL <= 0 {
		recentTTL = 30 * time.Minute
	}

	return &Manager{
		cfg:       cfg,
		monitor:   monitor,
		predictor: health.NewPredictor(cfg.Health, opts.History, logger),
		detector:  season.NewDetector(cfg.Season),
		scorer:    score.NewScorer(),
		filters:   filter.NewSystem(monitor, logger),
		sorter:    rank.NewSorter(cfg.Ranking),
		cache:     store,
		scheduler: worker.NewScheduler(cfg.Workers, device),
		limiter:   worker.NewLimiter(cfg.Health.RefreshPerSecond, cfg.Health.RefreshBurst, cfg.Health.ProviderRefreshRates),
		recent:    gocache.New(recentTTL, recentTTL),
		history:   opts.History,
		logger:    logger,
	}
}

// Request describes one batch run
type Request struct {
	Sources     []model.SourceMetadata
	Filter      *model.AdvancedSourceFilter // nil applies no filter
	Preferences model.SourcePreferences
	Profile     *model.UserProfile
	Quota       int  // Stop streaming once this many sources pass; 0 means all
	Exhaustive  bool // Never stop early, even with a quota
}

// BatchResult is the sorted outcome of a batch run
type BatchResult struct {
	Sources    []model.ProcessedSourceData `json:"sources"`
	Complete   bool                        `json:"complete"` // False when cancelled before every source was processed
	Strategy   worker.Strategy             `json:"strategy"`
	RunID      string                      `json:"run_id"`
	ErrorCount int                         `json:"error_count"`
	Duration   time.Duration               `json:"duration"`
	Filter     *model.FilterResult         `json:"filter,omitempty"`
}

// ProcessSource enriches a single source. It never fails; problems are
// reported through HasError.
func (m *Manager) ProcessSource(ctx context.Context, src model.SourceMetadata) model.ProcessedSourceData {
	return m.process(ctx, src, model.SourcePreferences{}, nil)
}

// BatchProcessSources enriches and sorts sources with default preferences.
func (m *Manager) BatchProcessSources(ctx context.Context, sources []model.SourceMetadata) (BatchResult, error) {
	return m.Run(ctx, Request{Sources: sources})
}

// FilterSources applies f to sources, scoring health through the cache.
func (m *Manager) FilterSources(ctx context.Context, sources []model.SourceMetadata, f model.AdvancedSourceFilter) (model.FilterResult, error) {
	sys := m.filters.WithHealth(func(src model.SourceMetadata) model.HealthData {
		h, err := m.healthFor(ctx, src)
		if err != nil {
			return m.monitor.Assess(src)
		}
		return h
	})
	return sys.FilterSources(sources, *m.withConfiguredStrategies(&f))
}

// Run processes a batch: optional pre-filter, enrichment, filtering and
// sorting. Sources repeating an earlier ID are dropped. Only an empty source
// list or an invalid filter is an error; cancellation returns what was
// processed with Complete set to false.
func (m *Manager) Run(ctx context.Context, req Request) (BatchResult, error) {
	if len(req.Sources) == 0 {
		return BatchResult{}, model.ErrEmptyInput
	}
	req.Sources = dedupe(req.Sources)
	req.Filter = m.withConfiguredStrategies(req.Filter)
	if req.Filter != nil {
		for _, p := range req.Filter.Predicates {
			if p.Match == nil {
				if err := m.filters.ValidateExpr(p.Expr); err != nil {
					return BatchResult{}, fmt.Errorf("predicate %q: %w", p.Name, err)
				}
			}
		}
	}

	start := time.Now()
	runID := uuid.NewString()
	plan := m.scheduler.Plan(len(req.Sources))
	logger := m.logger.With().Str("run", runID).Logger()

	process := func(ctx context.Context, src model.SourceMetadata) model.ProcessedSourceData {
		return m.process(ctx, src, req.Preferences, req.Profile)
	}
	batch := worker.NewBatchProcessor(process, plan.Workers, plan.ChunkSize)

	var items []model.ProcessedSourceData
	var complete bool
	switch plan.Strategy {
	case worker.StrategyDirect:
		items, complete = batch.ProcessDirect(ctx, req.Sources)
	case worker.StrategyChunked:
		items, complete = batch.ProcessChunked(ctx, req.Sources)
	default:
		sources := req.Sources
		// Relaxation needs every source, so only a strict filter may pre-filter
		if req.Filter != nil && !req.Filter.ConflictResolution.Enabled {
			sources = m.filters.CheapPass(sources, *req.Filter)
			logger.Debug().Int("before", len(req.Sources)).Int("after", len(sources)).Msg("Pre-filtered batch")
		}
		quota := req.Quota
		if req.Exhaustive {
			quota = 0
		}
		items, complete = batch.ProcessStream(ctx, sources, quota, m.acceptor(req.Filter))
	}

	result := BatchResult{
		Complete: complete,
		Strategy: plan.Strategy,
		RunID:    runID,
	}

	if req.Filter != nil {
		filtered, fr, err := m.applyFilter(items, *req.Filter)
		if err != nil {
			return BatchResult{}, err
		}
		items = filtered
		fr.TotalSourcesEvaluated = len(req.Sources)
		result.Filter = &fr
	}

	result.Sources = m.sorter.Sort(items, req.Preferences)
	for _, it := range result.Sources {
		if it.HasError {
			result.ErrorCount++
		}
	}
	result.Duration = time.Since(start)

	logger.Info().
		Str("strategy", string(plan.Strategy)).
		Int("workers", plan.Workers).
		Int("input", len(req.Sources)).
		Int("output", len(result.Sources)).
		Int("errors", result.ErrorCount).
		Bool("complete", complete).
		Dur("duration", result.Duration).
		Msg("Batch processed")

	return result, nil
}

// acceptor reports whether a processed source counts toward the quota
func (m *Manager) acceptor(f *model.AdvancedSourceFilter) func(model.ProcessedSourceData) bool {
	if f == nil {
		return func(model.ProcessedSourceData) bool { return true }
	}
	return func(p model.ProcessedSourceData) bool {
		sys := m.filters.WithHealth(func(model.SourceMetadata) model.HealthData { return p.Health })
		ok, err := sys.Matches(p.Source, *f)
		return err == nil && ok
	}
}

// withConfiguredStrategies fills in the configured relaxation order for a
// filter that enables resolution without naming strategies. f is not modified.
func (m *Manager) withConfiguredStrategies(f *model.AdvancedSourceFilter) *model.AdvancedSourceFilter {
	if f == nil || !f.ConflictResolution.Enabled || len(f.ConflictResolution.Strategies) > 0 {
		return f
	}
	out := *f
	out.ConflictResolution.Strategies = m.cfg.Filter.Resolution().Strategies
	return &out
}

// applyFilter filters processed items using the health they were enriched
// with. Item IDs are unique.
func (m *Manager) applyFilter(items []model.ProcessedSourceData, f model.AdvancedSourceFilter) ([]model.ProcessedSourceData, model.FilterResult, error) {
	byID := make(map[string]model.ProcessedSourceData, len(items))
	sources := make([]model.SourceMetadata, len(items))
	for i, it := range items {
		byID[it.Source.ID] = it
		sources[i] = it.Source
	}

	sys := m.filters.WithHealth(func(src model.SourceMetadata) model.HealthData {
		return byID[src.ID].Health
	})
	fr, err := sys.FilterSources(sources, f)
	if err != nil {
		return nil, model.FilterResult{}, err
	}

	out := make([]model.ProcessedSourceData, 0, len(fr.FilteredSources))
	for _, src := range fr.FilteredSources {
		out = append(out, byID[src.ID])
	}
	return out, fr, nil
}

// enrichment is everything derived for a source that may be cached or time out
type enrichment struct {
	health     model.HealthData
	prediction model.ReliabilityPrediction
	estimate   time.Duration
	season     model.SeasonPackInfo
}

// process enriches one source within the per-source budget. Scoring is
// pure and always runs, so a source that times out still sorts by its raw
// metadata.
func (m *Manager) process(ctx context.Context, src model.SourceMetadata, prefs model.SourcePreferences, profile *model.UserProfile) model.ProcessedSourceData {
	breakdown := m.scorer.Calculate(src, prefs, profile)
	out := model.ProcessedSourceData{
		Source:       src,
		QualityScore: breakdown.Total,
	}

	if err := src.Validate(); err != nil {
		m.logger.Debug().Err(err).Str("source", src.ID).Msg("Malformed source")
		out.Health = m.monitor.Assess(src)
		out.Season = m.detector.DetectSource(src)
		out.QualityBadges = score.Badges(breakdown.Traits, src, out.Season)
		out.HasError = true
		out.ErrorMessage = err.Error()
		return out
	}

	m.recent.Set(src.ID, src, gocache.DefaultExpiration)

	e, err := m.enrichWithBudget(ctx, src)
	if err != nil {
		m.logger.Debug().Err(err).Str("source", src.ID).Msg("Enrichment failed")
		out.QualityBadges = score.Badges(breakdown.Traits, src, model.SeasonPackInfo{})
		out.HasError = true
		out.ErrorMessage = err.Error()
		return out
	}

	out.Health = e.health
	out.Prediction = e.prediction
	out.EstimatedTime = e.estimate
	out.Season = e.season
	out.QualityBadges = score.Badges(breakdown.Traits, src, e.season)
	return out
}

// enrichWithBudget runs enrich under the configured per-source timeout
func (m *Manager) enrichWithBudget(ctx context.Context, src model.SourceMetadata) (enrichment, error) {
	budget := m.cfg.Health.SourceTimeout
	if budget <= 0 {
		return m.enrich(ctx, src)
	}

	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type outcome struct {
		e   enrichment
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		e, err := m.enrich(ctx, src)
		done <- outcome{e, err}
	}()

	select {
	case o := <-done:
		return o.e, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return enrichment{}, fmt.Errorf("%w: %s after %s", model.ErrComputationTimeout, src.ID, budget)
		}
		return enrichment{}, ctx.Err()
	}
}

func (m *Manager) enrich(ctx context.Context, src model.SourceMetadata) (enrichment, error) {
	h, err := m.healthFor(ctx, src)
	if err != nil {
		return enrichment{}, err
	}

	p, err := m.predictionFor(ctx, src, h)
	if err != nil {
		return enrichment{}, err
	}
	h.PredictedReliability = p.Prediction.Probability

	return enrichment{
		health:     h,
		prediction: p.Prediction,
		estimate:   p.Estimate,
		season:     m.detector.DetectSource(src),
	}, nil
}

// healthFor returns cached health while it still describes the same counter
// snapshot and is inside the freshness window.
func (m *Manager) healthFor(ctx context.Context, src model.SourceMetadata) (model.HealthData, error) {
	window := m.monitor.FreshWindow()
	valid := func(h model.HealthData) bool {
		return h.SnapshotAt.Equal(src.LastUpdated) && time.Since(h.ComputedAt) <= window
	}
	return cache.Load(ctx, m.cache, cache.Key(cache.KindHealth, src.ID), valid, func() (model.HealthData, error) {
		return m.monitor.Assess(src), nil
	})
}

// predictionEntry is the cached form of a prediction. It is reused only for
// the same health assessment and the same amount of provider history.
type predictionEntry struct {
	Prediction model.ReliabilityPrediction `json:"prediction"`
	Estimate   time.Duration               `json:"estimate"`
	HealthAt   time.Time                   `json:"health_at"`
	Samples    int                         `json:"samples"`
}

func (m *Manager) predictionFor(ctx context.Context, src model.SourceMetadata, h model.HealthData) (predictionEntry, error) {
	samples := m.predictor.Samples(src.Provider.ID)
	valid := func(e predictionEntry) bool {
		return e.Samples == samples && e.HealthAt.Equal(h.ComputedAt)
	}
	return cache.Load(ctx, m.cache, cache.Key(cache.KindPrediction, src.ID), valid, func() (predictionEntry, error) {
		return predictionEntry{
			Prediction: m.predictor.PredictReliability(src, h),
			Estimate:   m.predictor.EstimateDownloadTime(src, h),
			HealthAt:   h.ComputedAt,
			Samples:    samples,
		}, nil
	})
}

// RecordOutcome feeds a finished transfer back into the predictor.
func (m *Manager) RecordOutcome(ctx context.Context, providerID string, actual time.Duration, success bool, src model.SourceMetadata) error {
	return m.predictor.UpdateHistoricalData(ctx, providerID, actual, success, src)
}

// ReplayHistory loads persisted outcomes into the predictor.
func (m *Manager) ReplayHistory(ctx context.Context) (int, error) {
	n, err := m.predictor.Replay(ctx)
	if err != nil {
		return 0, fmt.Errorf("replay history: %w", err)
	}
	if n > 0 {
		m.logger.Debug().Int("outcomes", n).Msg("Replayed download history")
	}
	return n, nil
}

// ProviderStats returns the predictor's per-provider history summary.
func (m *Manager) ProviderStats() []health.ProviderStats {
	return m.predictor.Stats()
}

// CacheStats returns the cache counters.
func (m *Manager) CacheStats() cache.Stats {
	return m.cache.Stats()
}

// Explain returns the health signals behind a source's score.
func (m *Manager) Explain(src model.SourceMetadata) []model.Signal {
	return m.monitor.Explain(src)
}

// Plan returns the strategy a batch of n sources would use.
func (m *Manager) Plan(n int) worker.Plan {
	return m.scheduler.Plan(n)
}

// Device returns the device profile batches are planned against.
func (m *Manager) Device() worker.DeviceProfile {
	return m.scheduler.Device()
}

// Close releases the cache and history store.
func (m *Manager) Close() error {
	var errs []error
	if err := m.cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close cache: %w", err))
	}
	if m.history != nil {
		if err := m.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	return errors.Join(errs...)
}
