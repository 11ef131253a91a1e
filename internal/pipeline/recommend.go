package pipeline

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ppiankov/sourcerank/internal/model"
	"github.com/ppiankov/sourcerank/internal/release"
)

const (
	cachedBonus       = 100
	preferCachedBonus = 50
	seasonPackBonus   = 60

	// A preferred size within this fraction counts as matched
	sizeTolerance = 0.25
)

var riskPenalty = map[model.RiskLevel]int{
	model.RiskLow:      0,
	model.RiskMedium:   25,
	model.RiskHigh:     75,
	model.RiskCritical: 200,
}

// RecommendationResult is the annotated, sorted outcome of a recommendation run
type RecommendationResult struct {
	Recommendations []model.SourceRecommendation `json:"recommendations"`
	Complete        bool                         `json:"complete"`
	RunID           string                       `json:"run_id"`
	Filter          *model.FilterResult          `json:"filter,omitempty"`
}

// GetRecommendedSources processes sources and annotates each with a
// recommendation score, reasoning, user compatibility and download
// priority. profile may be nil.
func (m *Manager) GetRecommendedSources(ctx context.Context, sources []model.SourceMetadata, profile *model.UserProfile, prefs model.SourcePreferences) ([]model.SourceRecommendation, error) {
	res, err := m.Recommend(ctx, Request{Sources: sources, Profile: profile, Preferences: prefs})
	if err != nil {
		return nil, err
	}
	return res.Recommendations, nil
}

// Recommend runs req and annotates the sorted result.
func (m *Manager) Recommend(ctx context.Context, req Request) (RecommendationResult, error) {
	batch, err := m.Run(ctx, req)
	if err != nil {
		return RecommendationResult{}, err
	}

	recs := make([]model.SourceRecommendation, len(batch.Sources))
	for i, p := range batch.Sources {
		recs[i] = recommend(p, req.Preferences, req.Profile)
	}
	return RecommendationResult{
		Recommendations: recs,
		Complete:        batch.Complete,
		RunID:           batch.RunID,
		Filter:          batch.Filter,
	}, nil
}

func recommend(p model.ProcessedSourceData, prefs model.SourcePreferences, profile *model.UserProfile) model.SourceRecommendation {
	var prof model.UserProfile
	if profile != nil {
		prof = *profile
	}
	tr := release.Inspect(p.Source)

	return model.SourceRecommendation{
		ProcessedSourceData: p,
		RecommendationScore: recommendationScore(p, prof),
		Reasoning:           reasoning(p),
		UserCompatibility:   compatibility(p, tr, prefs, prof),
		DownloadPriority:    priorityFor(p.Health),
	}
}

// recommendationScore scales the quality score by predicted reliability and
// subtracts a risk penalty
func recommendationScore(p model.ProcessedSourceData, prof model.UserProfile) int {
	s := float64(p.QualityScore) * (0.5 + 0.5*p.Prediction.Probability)
	s -= float64(riskPenalty[p.Health.Risk])

	if p.Source.Cached {
		s += cachedBonus
		if prof.PreferCached {
			s += preferCachedBonus
		}
	}
	if prof.PreferSeasonPacks && p.Season.IsSeasonPack {
		s += seasonPackBonus * p.Season.Completeness
	}
	if p.HasError {
		s -= float64(riskPenalty[model.RiskCritical])
	}
	return max(int(math.Round(s)), 0)
}

func priorityFor(h model.HealthData) model.DownloadPriority {
	switch {
	case h.OverallScore >= 90 && h.Risk == model.RiskLow:
		return model.PriorityUrgent
	case h.OverallScore >= 75 && h.Risk.AtMost(model.RiskMedium) && h.Risk != "":
		return model.PriorityHigh
	case h.OverallScore >= 60:
		return model.PriorityNormal
	case h.OverallScore >= 40:
		return model.PriorityLow
	default:
		return model.PriorityAvoid
	}
}

// compatibility is the fraction of the stated preferences the source meets.
// With no preferences every source is fully compatible.
func compatibility(p model.ProcessedSourceData, tr release.Traits, prefs model.SourcePreferences, prof model.UserProfile) float64 {
	var total, met float64
	check := func(weight float64, ok bool) {
		weight = model.Weight(weight)
		total += weight
		if ok {
			met += weight
		}
	}

	if prefs.PreferredResolution != model.ResolutionUnknown {
		check(prof.ResolutionWeight, tr.Resolution >= prefs.PreferredResolution)
	}
	if len(prefs.PreferredCodecs) > 0 {
		check(prof.CodecWeight, slices.ContainsFunc(prefs.PreferredCodecs, func(c string) bool {
			return release.NormalizeCodec(c) == tr.Codec
		}))
	}
	if len(prefs.PreferredAudio) > 0 {
		check(prof.AudioWeight, slices.ContainsFunc(prefs.PreferredAudio, func(a string) bool {
			return release.NormalizeAudio(a) == tr.Audio
		}))
	}
	if len(prefs.PreferredReleaseTypes) > 0 {
		check(1, slices.Contains(prefs.PreferredReleaseTypes, tr.Type))
	}
	if prefs.PreferHDR {
		check(1, tr.HasHDR())
	}
	if prefs.TargetSizeBytes > 0 {
		diff := math.Abs(float64(p.Source.File.SizeBytes - prefs.TargetSizeBytes))
		check(prof.SizeWeight, diff <= sizeTolerance*float64(prefs.TargetSizeBytes))
	}
	if prof.PreferCached {
		check(1, p.Source.Cached)
	}
	if prof.PreferSeasonPacks {
		check(1, p.Season.IsSeasonPack)
	}

	if total == 0 {
		return 1
	}
	return math.Round(met/total*100) / 100
}

func reasoning(p model.ProcessedSourceData) []string {
	var out []string

	if p.HasError {
		out = append(out, "Enrichment incomplete: "+p.ErrorMessage)
	}
	if p.Source.Cached {
		out = append(out, "Cached: playback can start immediately")
	}
	if len(p.QualityBadges) > 0 {
		out = append(out, fmt.Sprintf("Quality %d: %s", p.QualityScore, strings.Join(p.QualityBadges, ", ")))
	}
	if !p.HasError {
		out = append(out, fmt.Sprintf("Health %d/100, %s risk", p.Health.OverallScore, strings.ToLower(string(p.Health.Risk))))
	}

	kind := p.Source.Provider.Kind
	if (kind == "" || kind == model.KindTorrent) && !p.Source.Cached {
		switch s := p.Source.Health.Seeders; s {
		case 0:
			out = append(out, "No seeders: download may never complete")
		default:
			out = append(out, fmt.Sprintf("%s seeders, %s leechers", humanize.Comma(int64(s)), humanize.Comma(int64(p.Source.Health.Leechers))))
		}
	}

	if p.Prediction.Samples > 0 {
		out = append(out, fmt.Sprintf("Predicted success %.0f%% from %d past downloads", p.Prediction.Probability*100, p.Prediction.Samples))
	}
	if p.Source.File.SizeBytes > 0 {
		line := humanize.Bytes(uint64(p.Source.File.SizeBytes))
		if p.EstimatedTime > 0 {
			line += ", about " + p.EstimatedTime.Round(time.Second).String() + " to download"
		}
		out = append(out, line)
	}

	if p.Season.IsSeasonPack {
		out = append(out, seasonLine(p.Season))
	}
	return out
}

func seasonLine(s model.SeasonPackInfo) string {
	var span string
	switch len(s.Seasons) {
	case 0:
		span = "Season pack"
	case 1:
		span = fmt.Sprintf("Season %d pack", s.Seasons[0])
	default:
		span = fmt.Sprintf("Seasons %d-%d", s.Seasons[0], s.Seasons[len(s.Seasons)-1])
	}
	if s.IsCompleteSeries {
		span += " (complete series)"
	}
	if s.Completeness < 1 {
		span += fmt.Sprintf(", %.0f%% of episodes", s.Completeness*100)
	}
	return span
}
