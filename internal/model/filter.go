package model

import (
	"fmt"
	"strings"
	"time"
)

// AdvancedSourceFilter combines independent filter categories. Zero values
// disable a category. It is built once per filter operation and never
// mutated; relaxation works on copies.
type AdvancedSourceFilter struct {
	Quality            QualityFilter      `json:"quality" yaml:"quality"`
	SourceType         SourceTypeFilter   `json:"source_type" yaml:"source_type"`
	Health             HealthFilter       `json:"health" yaml:"health"`
	FileSize           FileSizeFilter     `json:"file_size" yaml:"file_size"`
	Codec              CodecFilter        `json:"codec" yaml:"codec"`
	Audio              AudioFilter        `json:"audio" yaml:"audio"`
	ReleaseType        ReleaseTypeFilter  `json:"release_type" yaml:"release_type"`
	Provider           ProviderFilter     `json:"provider" yaml:"provider"`
	Age                AgeFilter          `json:"age" yaml:"age"`
	Predicates         []Predicate        `json:"predicates,omitempty" yaml:"predicates,omitempty"`
	ConflictResolution ConflictResolution `json:"conflict_resolution" yaml:"conflict_resolution"`
}

type QualityFilter struct {
	MinResolution Resolution `json:"min_resolution,omitempty" yaml:"min_resolution,omitempty"`
	MaxResolution Resolution `json:"max_resolution,omitempty" yaml:"max_resolution,omitempty"`
	RequireHDR    bool       `json:"require_hdr,omitempty" yaml:"require_hdr,omitempty"` // strict
}

type SourceTypeFilter struct {
	CachedOnly bool         `json:"cached_only,omitempty" yaml:"cached_only,omitempty"` // strict
	Kinds      []SourceKind `json:"kinds,omitempty" yaml:"kinds,omitempty"`
}

type HealthFilter struct {
	MinSeeders     int       `json:"min_seeders,omitempty" yaml:"min_seeders,omitempty"`
	MinHealthScore int       `json:"min_health_score,omitempty" yaml:"min_health_score,omitempty"`
	MaxRisk        RiskLevel `json:"max_risk,omitempty" yaml:"max_risk,omitempty"`
}

type FileSizeFilter struct {
	MinBytes int64 `json:"min_bytes,omitempty" yaml:"min_bytes,omitempty"`
	MaxBytes int64 `json:"max_bytes,omitempty" yaml:"max_bytes,omitempty"`
}

type CodecFilter struct {
	Allowed  []string `json:"allowed,omitempty" yaml:"allowed,omitempty"`
	Excluded []string `json:"excluded,omitempty" yaml:"excluded,omitempty"`
}

type AudioFilter struct {
	Allowed      []string `json:"allowed,omitempty" yaml:"allowed,omitempty"`
	RequireAtmos bool     `json:"require_atmos,omitempty" yaml:"require_atmos,omitempty"` // strict
}

type ReleaseTypeFilter struct {
	Allowed  []ReleaseType `json:"allowed,omitempty" yaml:"allowed,omitempty"`
	Excluded []ReleaseType `json:"excluded,omitempty" yaml:"excluded,omitempty"`
}

type ProviderFilter struct {
	Allowed  []string        `json:"allowed,omitempty" yaml:"allowed,omitempty"`
	Excluded []string        `json:"excluded,omitempty" yaml:"excluded,omitempty"`
	MinTier  ReliabilityTier `json:"min_tier,omitempty" yaml:"min_tier,omitempty"`
}

type AgeFilter struct {
	MaxAge time.Duration `json:"max_age,omitempty" yaml:"max_age,omitempty"`
}

// Predicate is an arbitrary extra condition. Match takes precedence; otherwise
// Expr is compiled as a boolean expression over the predicate environment.
type Predicate struct {
	Name  string                    `json:"name" yaml:"name"`
	Expr  string                    `json:"expr,omitempty" yaml:"expr,omitempty"`
	Match func(SourceMetadata) bool `json:"-" yaml:"-"`
}

// RelaxationStrategy is one step of the conflict-resolution ladder
type RelaxationStrategy string

const (
	RelaxQuality    RelaxationStrategy = "widen-quality"
	RelaxHealth     RelaxationStrategy = "widen-health"
	RelaxSize       RelaxationStrategy = "widen-size"
	RelaxDropStrict RelaxationStrategy = "drop-strict"
)

// AllStrategies returns the default relaxation order.
func AllStrategies() []RelaxationStrategy {
	return []RelaxationStrategy{RelaxQuality, RelaxHealth, RelaxSize, RelaxDropStrict}
}

// ParseStrategy parses a strategy name.
func ParseStrategy(s string) (RelaxationStrategy, error) {
	switch v := RelaxationStrategy(strings.ToLower(strings.TrimSpace(s))); v {
	case RelaxQuality, RelaxHealth, RelaxSize, RelaxDropStrict:
		return v, nil
	default:
		return "", fmt.Errorf("unknown relaxation strategy %q", s)
	}
}

// ConflictResolution configures what happens when the strict filter matches nothing
type ConflictResolution struct {
	Enabled    bool                 `json:"enabled" yaml:"enabled"`
	Strategies []RelaxationStrategy `json:"strategies,omitempty" yaml:"strategies,omitempty"`
}

// FilterResult is the outcome of one filter operation
type FilterResult struct {
	FilteredSources       []SourceMetadata `json:"filtered_sources"`
	AppliedFilters        []string         `json:"applied_filters"`
	TotalSourcesEvaluated int              `json:"total_sources_evaluated"`
	ProcessingTime        time.Duration    `json:"processing_time"`
	Relaxed               bool             `json:"relaxed"`
}
