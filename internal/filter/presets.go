package filter

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ppiankov/sourcerank/internal/model"
)

const gb = 1_000_000_000

// PresetConfig is a named filter plus the preferences that go with it
type PresetConfig struct {
	Name        string                     `json:"name" yaml:"name"`
	Description string                     `json:"description" yaml:"description"`
	Filter      model.AdvancedSourceFilter `json:"filter" yaml:"filter"`
	Preferences model.SourcePreferences    `json:"preferences" yaml:"preferences"`
}

// Each preset is built fresh on lookup so callers may modify the result
var presets = map[string]func() PresetConfig{
	"quality-focused": func() PresetConfig {
		return PresetConfig{
			Description: "Best picture and sound, healthy sources only",
			Filter: model.AdvancedSourceFilter{
				Quality:     model.QualityFilter{MinResolution: model.Resolution1080p},
				Health:      model.HealthFilter{MinHealthScore: 40},
				ReleaseType: model.ReleaseTypeFilter{Excluded: []model.ReleaseType{model.ReleaseCam}},
			},
			Preferences: model.SourcePreferences{
				PreferredResolution:   model.Resolution2160p,
				PreferredCodecs:       []string{"av1", "hevc"},
				PreferredReleaseTypes: []model.ReleaseType{model.ReleaseRemux, model.ReleaseBluRay},
				PreferredAudio:        []string{"truehd", "dts-hd"},
				PreferHDR:             true,
			},
		}
	},
	"bandwidth-constrained": func() PresetConfig {
		return PresetConfig{
			Description: "Small efficient encodes up to 1080p",
			Filter: model.AdvancedSourceFilter{
				Quality:  model.QualityFilter{MaxResolution: model.Resolution1080p},
				FileSize: model.FileSizeFilter{MaxBytes: 8 * gb},
				Health:   model.HealthFilter{MinSeeders: 5},
			},
			Preferences: model.SourcePreferences{
				PreferredResolution: model.Resolution1080p,
				PreferredCodecs:     []string{"hevc", "av1"},
				TargetSizeBytes:     4 * gb,
			},
		}
	},
	"instant-playback": func() PresetConfig {
		return PresetConfig{
			Description: "Sources that are already cached and can start immediately",
			Filter: model.AdvancedSourceFilter{
				SourceType: model.SourceTypeFilter{CachedOnly: true},
			},
			Preferences: model.SourcePreferences{
				PreferredResolution: model.Resolution1080p,
			},
		}
	},
	"balanced": func() PresetConfig {
		return PresetConfig{
			Description: "Good quality with reasonable health",
			Filter: model.AdvancedSourceFilter{
				Quality:     model.QualityFilter{MinResolution: model.Resolution720p},
				Health:      model.HealthFilter{MinHealthScore: 50},
				ReleaseType: model.ReleaseTypeFilter{Excluded: []model.ReleaseType{model.ReleaseCam}},
			},
			Preferences: model.SourcePreferences{
				PreferredResolution: model.Resolution1080p,
				PreferredCodecs:     []string{"hevc"},
				TargetSizeBytes:     10 * gb,
			},
		}
	},
	"hdr-enthusiast": func() PresetConfig {
		return PresetConfig{
			Description: "4K HDR only, Dolby Vision preferred",
			Filter: model.AdvancedSourceFilter{
				Quality:     model.QualityFilter{MinResolution: model.Resolution2160p, RequireHDR: true},
				ReleaseType: model.ReleaseTypeFilter{Excluded: []model.ReleaseType{model.ReleaseCam, model.ReleaseHDTV}},
			},
			Preferences: model.SourcePreferences{
				PreferredResolution:   model.Resolution2160p,
				PreferredReleaseTypes: []model.ReleaseType{model.ReleaseRemux},
				PreferredAudio:        []string{"truehd"},
				PreferHDR:             true,
			},
		}
	},
	"mobile": func() PresetConfig {
		return PresetConfig{
			Description: "Small files for phones and tablets",
			Filter: model.AdvancedSourceFilter{
				Quality:  model.QualityFilter{MaxResolution: model.Resolution720p},
				FileSize: model.FileSizeFilter{MaxBytes: 2 * gb},
				Codec:    model.CodecFilter{Allowed: []string{"h264", "hevc"}},
			},
			Preferences: model.SourcePreferences{
				PreferredResolution: model.Resolution720p,
				PreferredAudio:      []string{"aac"},
				TargetSizeBytes:     1 * gb,
			},
		}
	},
}

// Preset returns the named preset with conflict resolution enabled.
func Preset(name string) (PresetConfig, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	build, ok := presets[key]
	if !ok {
		return PresetConfig{}, fmt.Errorf("%w: %q (available: %s)", model.ErrUnknownPreset, name, strings.Join(PresetNames(), ", "))
	}
	p := build()
	p.Name = key
	p.Filter.ConflictResolution = model.ConflictResolution{
		Enabled:    true,
		Strategies: model.AllStrategies(),
	}
	return p, nil
}

// PresetNames lists the available presets, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
