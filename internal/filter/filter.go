// Package filter evaluates declarative source filters, relaxing them when a
// strict pass matches nothing.
package filter

import (
	"fmt"
	"slices"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/ppiankov/sourcerank/internal/health"
	"github.com/ppiankov/sourcerank/internal/model"
	"github.com/ppiankov/sourcerank/internal/release"
)

// Note appended when every relaxation failed
const exhaustedNote = "all constraints relaxed, still empty"

// HealthFunc supplies the health of a source during filtering
type HealthFunc func(model.SourceMetadata) model.HealthData

// System evaluates AdvancedSourceFilter values. It is safe for concurrent use.
type System struct {
	health   HealthFunc
	programs *gocache.Cache
	logger   zerolog.Logger
}

// NewSystem creates a filter system that scores health with monitor
func NewSystem(monitor *health.Monitor, logger zerolog.Logger) *System {
	return &System{
		health:   monitor.Assess,
		programs: gocache.New(5*time.Minute, 10*time.Minute),
		logger:   logger,
	}
}

// WithHealth returns a copy that reads health from fn, sharing the compiled
// predicate cache.
func (s *System) WithHealth(fn HealthFunc) *System {
	c := *s
	c.health = fn
	return &c
}

// candidate caches the derived values one source needs during evaluation
type candidate struct {
	src       model.SourceMetadata
	traits    *release.Traits
	health    *model.HealthData
	healthFor HealthFunc
}

func (c *candidate) Traits() release.Traits {
	if c.traits == nil {
		t := release.Inspect(c.src)
		c.traits = &t
	}
	return *c.traits
}

func (c *candidate) Health() model.HealthData {
	if c.health == nil {
		h := c.healthFor(c.src)
		c.health = &h
	}
	return *c.health
}

// check is one compiled category predicate
type check struct {
	name string
	cost int
	pass func(c *candidate) bool
}

// FilterSources returns the sources that satisfy f. If nothing matches and
// conflict resolution is enabled, relaxations are tried in order. An empty
// result is not an error; only invalid predicates are.
func (s *System) FilterSources(sources []model.SourceMetadata, f model.AdvancedSourceFilter) (model.FilterResult, error) {
	start := time.Now()

	checks, err := s.compile(f)
	if err != nil {
		return model.FilterResult{}, err
	}

	result := model.FilterResult{
		FilteredSources:       s.apply(sources, checks),
		AppliedFilters:        names(checks),
		TotalSourcesEvaluated: len(sources),
	}

	if len(result.FilteredSources) == 0 && len(sources) > 0 && f.ConflictResolution.Enabled {
		relaxed, applied, err := s.resolve(sources, f)
		if err != nil {
			return model.FilterResult{}, err
		}
		result.FilteredSources = relaxed
		result.AppliedFilters = applied
		result.Relaxed = len(relaxed) > 0
	}

	result.ProcessingTime = time.Since(start)
	return result, nil
}

// Matches reports whether src passes f strictly.
func (s *System) Matches(src model.SourceMetadata, f model.AdvancedSourceFilter) (bool, error) {
	checks, err := s.compile(f)
	if err != nil {
		return false, err
	}
	return passes(&candidate{src: src, healthFor: s.health}, checks), nil
}

// CheapPass filters with only the categories that need neither title
// parsing, health scoring nor predicates. It never rejects a source the full
// filter would keep.
func (s *System) CheapPass(sources []model.SourceMetadata, f model.AdvancedSourceFilter) []model.SourceMetadata {
	var cheap []check
	for _, c := range s.fieldChecks(f) {
		if c.cost == costField {
			cheap = append(cheap, c)
		}
	}
	if len(cheap) == 0 {
		return sources
	}
	return s.apply(sources, cheap)
}

func (s *System) apply(sources []model.SourceMetadata, checks []check) []model.SourceMetadata {
	out := make([]model.SourceMetadata, 0, len(sources))
	for _, src := range sources {
		if passes(&candidate{src: src, healthFor: s.health}, checks) {
			out = append(out, src)
		}
	}
	return out
}

// passes ANDs the checks, stopping at the first failure
func passes(c *candidate, checks []check) bool {
	for _, ch := range checks {
		if !ch.pass(c) {
			return false
		}
	}
	return true
}

// Evaluation cost classes; checks run cheapest first
const (
	costField = iota
	costTraits
	costHealth
	costPredicate
)

func (s *System) compile(f model.AdvancedSourceFilter) ([]check, error) {
	checks := s.fieldChecks(f)

	preds, err := s.compilePredicates(f.Predicates)
	if err != nil {
		return nil, err
	}
	checks = append(checks, preds...)

	slices.SortStableFunc(checks, func(a, b check) int { return a.cost - b.cost })
	return checks, nil
}

// fieldChecks builds every non-predicate category check that is enabled
func (s *System) fieldChecks(f model.AdvancedSourceFilter) []check {
	var checks []check
	add := func(name string, cost int, pass func(c *candidate) bool) {
		checks = append(checks, check{name: name, cost: cost, pass: pass})
	}

	// Source type
	if f.SourceType.CachedOnly {
		add("source-type: cached only", costField, func(c *candidate) bool { return c.src.Cached })
	}
	if len(f.SourceType.Kinds) > 0 {
		kinds := f.SourceType.Kinds
		add("source-type: "+joinKinds(kinds), costField, func(c *candidate) bool {
			return slices.Contains(kinds, kindOf(c.src))
		})
	}

	// Provider
	if len(f.Provider.Allowed) > 0 {
		allowed := f.Provider.Allowed
		add("provider: only "+strings.Join(allowed, ", "), costField, func(c *candidate) bool {
			return providerIn(c.src.Provider, allowed)
		})
	}
	if len(f.Provider.Excluded) > 0 {
		excluded := f.Provider.Excluded
		add("provider: exclude "+strings.Join(excluded, ", "), costField, func(c *candidate) bool {
			return !providerIn(c.src.Provider, excluded)
		})
	}
	if f.Provider.MinTier > model.TierUnknown {
		minTier := f.Provider.MinTier
		add("provider: tier >= "+minTier.String(), costField, func(c *candidate) bool {
			return c.src.Provider.Tier >= minTier
		})
	}

	// File size
	if f.FileSize.MinBytes > 0 {
		minBytes := f.FileSize.MinBytes
		add(fmt.Sprintf("size: >= %d bytes", minBytes), costField, func(c *candidate) bool {
			return c.src.File.SizeBytes >= minBytes
		})
	}
	if f.FileSize.MaxBytes > 0 {
		maxBytes := f.FileSize.MaxBytes
		add(fmt.Sprintf("size: <= %d bytes", maxBytes), costField, func(c *candidate) bool {
			return c.src.File.SizeBytes <= maxBytes
		})
	}

	// Age
	if f.Age.MaxAge > 0 {
		maxAge := f.Age.MaxAge
		add("age: <= "+maxAge.String(), costField, func(c *candidate) bool {
			return c.src.Health.Age() <= maxAge
		})
	}

	// Raw seeders need no scoring
	if f.Health.MinSeeders > 0 {
		minSeeders := f.Health.MinSeeders
		add(fmt.Sprintf("health: seeders >= %d", minSeeders), costField, func(c *candidate) bool {
			return c.src.Health.Seeders >= minSeeders
		})
	}

	// Quality
	if f.Quality.MinResolution > model.ResolutionUnknown {
		minRes := f.Quality.MinResolution
		add("quality: >= "+minRes.String(), costTraits, func(c *candidate) bool {
			return c.Traits().Resolution >= minRes
		})
	}
	if f.Quality.MaxResolution > model.ResolutionUnknown {
		maxRes := f.Quality.MaxResolution
		add("quality: <= "+maxRes.String(), costTraits, func(c *candidate) bool {
			return c.Traits().Resolution <= maxRes
		})
	}
	if f.Quality.RequireHDR {
		add("quality: HDR required", costTraits, func(c *candidate) bool { return c.Traits().HasHDR() })
	}

	// Codec
	if len(f.Codec.Allowed) > 0 {
		allowed := normalizeAll(f.Codec.Allowed, release.NormalizeCodec)
		add("codec: only "+strings.Join(allowed, ", "), costTraits, func(c *candidate) bool {
			return slices.Contains(allowed, c.Traits().Codec)
		})
	}
	if len(f.Codec.Excluded) > 0 {
		excluded := normalizeAll(f.Codec.Excluded, release.NormalizeCodec)
		add("codec: exclude "+strings.Join(excluded, ", "), costTraits, func(c *candidate) bool {
			return !slices.Contains(excluded, c.Traits().Codec)
		})
	}

	// Audio
	if len(f.Audio.Allowed) > 0 {
		allowed := normalizeAll(f.Audio.Allowed, release.NormalizeAudio)
		add("audio: only "+strings.Join(allowed, ", "), costTraits, func(c *candidate) bool {
			return slices.Contains(allowed, c.Traits().Audio)
		})
	}
	if f.Audio.RequireAtmos {
		add("audio: Atmos required", costTraits, func(c *candidate) bool { return c.Traits().Atmos })
	}

	// Release type
	if len(f.ReleaseType.Allowed) > 0 {
		allowed := f.ReleaseType.Allowed
		add("release-type: only "+joinTypes(allowed), costTraits, func(c *candidate) bool {
			return slices.Contains(allowed, c.Traits().Type)
		})
	}
	if len(f.ReleaseType.Excluded) > 0 {
		excluded := f.ReleaseType.Excluded
		add("release-type: exclude "+joinTypes(excluded), costTraits, func(c *candidate) bool {
			return !slices.Contains(excluded, c.Traits().Type)
		})
	}

	// Scored health
	if f.Health.MinHealthScore > 0 {
		minScore := f.Health.MinHealthScore
		add(fmt.Sprintf("health: score >= %d", minScore), costHealth, func(c *candidate) bool {
			return c.Health().OverallScore >= minScore
		})
	}
	if f.Health.MaxRisk != "" && f.Health.MaxRisk != model.RiskCritical {
		maxRisk := f.Health.MaxRisk
		add("health: risk <= "+string(maxRisk), costHealth, func(c *candidate) bool {
			return c.Health().Risk.AtMost(maxRisk)
		})
	}

	return checks
}

func names(checks []check) []string {
	out := make([]string, 0, len(checks))
	for _, c := range checks {
		out = append(out, c.name)
	}
	return out
}

func kindOf(src model.SourceMetadata) model.SourceKind {
	if src.Provider.Kind != "" {
		return src.Provider.Kind
	}
	return model.KindTorrent
}

func providerIn(p model.ProviderInfo, list []string) bool {
	for _, v := range list {
		if strings.EqualFold(v, p.ID) || (p.Name != "" && strings.EqualFold(v, p.Name)) {
			return true
		}
	}
	return false
}

func normalizeAll(values []string, norm func(string) string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if n := norm(v); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func joinKinds(kinds []model.SourceKind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}

func joinTypes(types []model.ReleaseType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}
