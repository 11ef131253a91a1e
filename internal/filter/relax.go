package filter

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/ppiankov/sourcerank/internal/model"
)

const (
	healthStep    = 20
	sizeFactor    = 1.5
	sizeWidenings = 3
)

// step is one progressively looser version of a filter
type step struct {
	filter model.AdvancedSourceFilter
	note   string
}

// resolve runs the relaxation ladder. Each strategy is first tried on its
// own against the strict filter, widening its category step by step. If no
// single strategy helps, all of them are applied together.
func (s *System) resolve(sources []model.SourceMetadata, f model.AdvancedSourceFilter) ([]model.SourceMetadata, []string, error) {
	strategies := f.ConflictResolution.Strategies
	if len(strategies) == 0 {
		strategies = model.AllStrategies()
	}

	for _, strategy := range strategies {
		for _, st := range steps(f, strategy) {
			out, applied, err := s.attempt(sources, st.filter)
			if err != nil {
				return nil, nil, err
			}
			if len(out) > 0 {
				note := fmt.Sprintf("relaxed %s: %s", strategy, st.note)
				s.logger.Debug().Str("strategy", string(strategy)).Str("step", st.note).Int("matched", len(out)).Msg("Filter relaxed")
				return out, append(applied, note), nil
			}
		}
	}

	if len(strategies) > 1 {
		combined := f
		var used []string
		for _, strategy := range strategies {
			if st := steps(combined, strategy); len(st) > 0 {
				combined = st[len(st)-1].filter
				used = append(used, string(strategy))
			}
		}
		if len(used) > 1 {
			out, applied, err := s.attempt(sources, combined)
			if err != nil {
				return nil, nil, err
			}
			if len(out) > 0 {
				note := "relaxed " + strings.Join(used, " + ")
				s.logger.Debug().Strs("strategies", used).Int("matched", len(out)).Msg("Filter relaxed")
				return out, append(applied, note), nil
			}
		}
	}

	checks, err := s.compile(f)
	if err != nil {
		return nil, nil, err
	}
	return []model.SourceMetadata{}, append(names(checks), exhaustedNote), nil
}

func (s *System) attempt(sources []model.SourceMetadata, f model.AdvancedSourceFilter) ([]model.SourceMetadata, []string, error) {
	checks, err := s.compile(f)
	if err != nil {
		return nil, nil, err
	}
	return s.apply(sources, checks), names(checks), nil
}

// steps returns the widening sequence for one strategy, loosest last. Each
// step changes only the strategy's own category.
func steps(f model.AdvancedSourceFilter, strategy model.RelaxationStrategy) []step {
	switch strategy {
	case model.RelaxQuality:
		return qualitySteps(f)
	case model.RelaxHealth:
		return healthSteps(f)
	case model.RelaxSize:
		return sizeSteps(f)
	case model.RelaxDropStrict:
		return strictSteps(f)
	default:
		return nil
	}
}

// qualitySteps lowers the minimum resolution one tier at a time; the last
// step also lifts the maximum.
func qualitySteps(f model.AdvancedSourceFilter) []step {
	q := f.Quality
	if q.MinResolution == model.ResolutionUnknown && q.MaxResolution == model.ResolutionUnknown {
		return nil
	}

	var out []step
	for r := q.MinResolution - 1; r > model.ResolutionUnknown; r-- {
		next := f
		next.Quality.MinResolution = r
		out = append(out, step{filter: next, note: "min quality " + r.String()})
	}
	last := f
	last.Quality.MinResolution = model.ResolutionUnknown
	last.Quality.MaxResolution = model.ResolutionUnknown
	return append(out, step{filter: last, note: "any quality"})
}

// healthSteps lowers the minimum score by healthStep; the last step drops
// the seeder and risk limits too.
func healthSteps(f model.AdvancedSourceFilter) []step {
	h := f.Health
	if h.MinHealthScore <= 0 && h.MinSeeders <= 0 && (h.MaxRisk == "" || h.MaxRisk == model.RiskCritical) {
		return nil
	}

	var out []step
	for score := h.MinHealthScore - healthStep; score > 0; score -= healthStep {
		next := f
		next.Health.MinHealthScore = score
		out = append(out, step{filter: next, note: fmt.Sprintf("min health %d", score)})
	}
	last := f
	last.Health = model.HealthFilter{}
	return append(out, step{filter: last, note: "any health"})
}

// sizeSteps grows the maximum size by sizeFactor a few times, then removes
// both size bounds.
func sizeSteps(f model.AdvancedSourceFilter) []step {
	sz := f.FileSize
	if sz.MaxBytes <= 0 && sz.MinBytes <= 0 {
		return nil
	}

	var out []step
	if sz.MaxBytes > 0 {
		limit := float64(sz.MaxBytes)
		for i := 0; i < sizeWidenings; i++ {
			limit *= sizeFactor
			next := f
			next.FileSize.MaxBytes = int64(limit)
			out = append(out, step{filter: next, note: "max size " + humanize.Bytes(uint64(limit))})
		}
	}
	last := f
	last.FileSize = model.FileSizeFilter{}
	return append(out, step{filter: last, note: "any size"})
}

// strictSteps drops the HDR, cached-only and Atmos requirements at once.
func strictSteps(f model.AdvancedSourceFilter) []step {
	if !f.Quality.RequireHDR && !f.SourceType.CachedOnly && !f.Audio.RequireAtmos {
		return nil
	}
	next := f
	next.Quality.RequireHDR = false
	next.SourceType.CachedOnly = false
	next.Audio.RequireAtmos = false
	return []step{{filter: next, note: "strict requirements dropped"}}
}
