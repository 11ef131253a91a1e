package model

import (
	"fmt"
	"time"
)

// Config holds all engine configuration. It is built once at startup and
// treated as read-only afterwards.
type Config struct {
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Workers WorkerConfig  `yaml:"workers" mapstructure:"workers"`
	Device  DeviceConfig  `yaml:"device" mapstructure:"device"`
	Health  HealthConfig  `yaml:"health" mapstructure:"health"`
	Filter  FilterConfig  `yaml:"filter" mapstructure:"filter"`
	Season  SeasonConfig  `yaml:"season" mapstructure:"season"`
	Ranking RankingConfig `yaml:"ranking" mapstructure:"ranking"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// CacheConfig sizes the two cache tiers
type CacheConfig struct {
	Enabled           bool          `yaml:"enabled" mapstructure:"enabled"` // False keeps entries in process memory only
	MemoryEntries     int           `yaml:"memory_entries" mapstructure:"memory_entries"`
	MemoryTTL         time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	PersistentPath    string        `yaml:"persistent_path" mapstructure:"persistent_path"` // Empty disables the persistent tier
	PersistentEntries int           `yaml:"persistent_entries" mapstructure:"persistent_entries"`
	PersistentTTL     time.Duration `yaml:"persistent_ttl" mapstructure:"persistent_ttl"`
	SweepInterval     time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`
}

// WorkerConfig bounds the batch worker pool and strategy thresholds
type WorkerConfig struct {
	Min             int `yaml:"min" mapstructure:"min"`
	Max             int `yaml:"max" mapstructure:"max"`
	MinChunkSize    int `yaml:"min_chunk_size" mapstructure:"min_chunk_size"`
	MaxChunkSize    int `yaml:"max_chunk_size" mapstructure:"max_chunk_size"`
	DirectThreshold int `yaml:"direct_threshold" mapstructure:"direct_threshold"` // At or below: single pass
	StreamThreshold int `yaml:"stream_threshold" mapstructure:"stream_threshold"` // Above: pre-filter then stream
}

// DeviceConfig overrides host capability detection (useful off target hardware)
type DeviceConfig struct {
	Override bool `yaml:"override" mapstructure:"override"`
	MemoryMB int  `yaml:"memory_mb" mapstructure:"memory_mb"`
	Cores    int  `yaml:"cores" mapstructure:"cores"`
}

// HealthConfig tunes health scoring, prediction and refresh
type HealthConfig struct {
	FreshnessWindow  time.Duration `yaml:"freshness_window" mapstructure:"freshness_window"`
	SourceTimeout    time.Duration `yaml:"source_timeout" mapstructure:"source_timeout"`
	BandwidthMBps    float64       `yaml:"bandwidth_mbps" mapstructure:"bandwidth_mbps"` // Assumed download bandwidth, megabytes/s
	HistorySize      int           `yaml:"history_size" mapstructure:"history_size"`     // Ring buffer length per provider
	HistoryPath      string        `yaml:"history_path" mapstructure:"history_path"`     // SQLite file; empty keeps history in memory
	RefreshInterval  time.Duration `yaml:"refresh_interval" mapstructure:"refresh_interval"`
	RefreshPerSecond float64       `yaml:"refresh_per_second" mapstructure:"refresh_per_second"`
	RefreshBurst     int           `yaml:"refresh_burst" mapstructure:"refresh_burst"`
	RecentSourceTTL  time.Duration `yaml:"recent_source_ttl" mapstructure:"recent_source_ttl"`

	// ProviderRefreshRates overrides RefreshPerSecond by provider id
	ProviderRefreshRates map[string]float64 `yaml:"provider_refresh_rates,omitempty" mapstructure:"provider_refresh_rates"`
}

// FilterConfig holds the default conflict-resolution policy
type FilterConfig struct {
	ConflictResolution bool     `yaml:"conflict_resolution" mapstructure:"conflict_resolution"`
	Strategies         []string `yaml:"strategies" mapstructure:"strategies"`
}

// SeasonConfig tunes season-pack detection
type SeasonConfig struct {
	ConfidenceThreshold int `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
}

// RankingConfig lists release groups that adjust the ordering penalty
type RankingConfig struct {
	BlacklistedGroups []string `yaml:"blacklisted_groups" mapstructure:"blacklisted_groups"`
	TrustedGroups     []string `yaml:"trusted_groups" mapstructure:"trusted_groups"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // console or json
	File   string `yaml:"file" mapstructure:"file"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			Enabled:           true,
			MemoryEntries:     2048,
			MemoryTTL:         5 * time.Minute,
			PersistentEntries: 50000,
			PersistentTTL:     24 * time.Hour,
			SweepInterval:     10 * time.Minute,
		},
		Workers: WorkerConfig{
			Min:             2,
			Max:             8,
			MinChunkSize:    25,
			MaxChunkSize:    250,
			DirectThreshold: 200,
			StreamThreshold: 2000,
		},
		Health: HealthConfig{
			FreshnessWindow:  5 * time.Minute,
			SourceTimeout:    2 * time.Second,
			BandwidthMBps:    5,
			HistorySize:      200,
			RefreshInterval:  time.Minute,
			RefreshPerSecond: 20,
			RefreshBurst:     10,
			RecentSourceTTL:  30 * time.Minute,
		},
		Filter: FilterConfig{
			ConflictResolution: true,
			Strategies: []string{
				string(RelaxQuality),
				string(RelaxHealth),
				string(RelaxSize),
				string(RelaxDropStrict),
			},
		},
		Season: SeasonConfig{
			ConfidenceThreshold: 60,
		},
		Ranking: RankingConfig{
			BlacklistedGroups: []string{"YIFY", "YTS", "EVO", "MeGusta"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate rejects settings no component can honour.
func (c *Config) Validate() error {
	if c.Cache.MemoryEntries < 0 || c.Cache.PersistentEntries < 0 {
		return fmt.Errorf("cache entry limits must not be negative")
	}
	if c.Workers.Min <= 0 || c.Workers.Max < c.Workers.Min {
		return fmt.Errorf("workers: need 0 < min <= max, got min=%d max=%d", c.Workers.Min, c.Workers.Max)
	}
	if c.Workers.MinChunkSize <= 0 || c.Workers.MaxChunkSize < c.Workers.MinChunkSize {
		return fmt.Errorf("workers: invalid chunk bounds %d..%d", c.Workers.MinChunkSize, c.Workers.MaxChunkSize)
	}
	if c.Workers.StreamThreshold < c.Workers.DirectThreshold {
		return fmt.Errorf("workers: stream_threshold below direct_threshold")
	}
	if c.Season.ConfidenceThreshold < 0 || c.Season.ConfidenceThreshold > 100 {
		return fmt.Errorf("season: confidence_threshold must be within 0-100")
	}
	for id, perSecond := range c.Health.ProviderRefreshRates {
		if perSecond <= 0 {
			return fmt.Errorf("health: refresh rate for provider %q must be positive", id)
		}
	}
	if _, err := c.Filter.ParsedStrategies(); err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	return nil
}

// Resolution returns the configured policy as a filter setting. Names are
// checked by Validate, so unknown ones are skipped here.
func (f FilterConfig) Resolution() ConflictResolution {
	out := ConflictResolution{Enabled: f.ConflictResolution}
	for _, name := range f.Strategies {
		if s, err := ParseStrategy(name); err == nil {
			out.Strategies = append(out.Strategies, s)
		}
	}
	return out
}

// ParsedStrategies converts the configured strategy names.
func (f FilterConfig) ParsedStrategies() ([]RelaxationStrategy, error) {
	out := make([]RelaxationStrategy, 0, len(f.Strategies))
	for _, name := range f.Strategies {
		s, err := ParseStrategy(name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
