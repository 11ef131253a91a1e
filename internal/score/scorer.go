// Package score computes the quality score of a source and its badges.
package score

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/ppiankov/sourcerank/internal/model"
	"github.com/ppiankov/sourcerank/internal/release"
)

var resolutionBase = map[model.Resolution]int{
	model.Resolution2160p:   400,
	model.Resolution1080p:   300,
	model.Resolution720p:    200,
	model.Resolution480p:    100,
	model.ResolutionUnknown: 50,
}

var codecBonus = map[string]int{
	"av1":  25,
	"hevc": 20,
	"h264": 10,
}

var audioBonus = map[string]int{
	"truehd": 20,
	"dts-hd": 20,
	"eac3":   12,
	"dts":    10,
	"ac3":    8,
	"aac":    4,
}

var channelBonus = map[string]int{
	"7.1": 10,
	"5.1": 6,
}

var releaseBonus = map[model.ReleaseType]int{
	model.ReleaseRemux:  60,
	model.ReleaseBluRay: 45,
	model.ReleaseWebDL:  35,
	model.ReleaseWebRip: 25,
	model.ReleaseHDTV:   10,
	model.ReleaseDVD:    0,
	model.ReleaseCam:    -200,
}

// Preference match bonuses before profile weights
const (
	prefResolutionBonus = 50
	prefCodecBonus      = 20
	prefReleaseBonus    = 20
	prefAudioBonus      = 15
	prefHDRBonus        = 15
	atmosBonus          = 25
)

// Component is one named contribution to the quality score
type Component struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
	Detail string `json:"detail,omitempty"`
}

// Breakdown is the full, explainable quality assessment of one source
type Breakdown struct {
	Total      int            `json:"total"`
	Components []Component    `json:"components"`
	Traits     release.Traits `json:"-"`
}

// Points returns the points a named component contributed.
func (b Breakdown) Points(name string) int {
	for _, c := range b.Components {
		if c.Name == name {
			return c.Points
		}
	}
	return 0
}

// Scorer calculates quality scores. It is stateless.
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Calculate scores src against the user's preferences. profile may be nil.
func (s *Scorer) Calculate(src model.SourceMetadata, prefs model.SourcePreferences, profile *model.UserProfile) Breakdown {
	tr := release.Inspect(src)
	var p model.UserProfile
	if profile != nil {
		p = *profile
	}

	components := []Component{
		s.resolution(tr),
		s.hdr(tr),
		s.codec(tr),
		s.audio(tr),
		s.releaseType(tr),
	}
	components = append(components, s.preferences(tr, prefs, p)...)

	total := 0
	for _, c := range components {
		total += c.Points
	}

	return Breakdown{
		Total:      max(total, 0),
		Components: components,
		Traits:     tr,
	}
}

// resolution returns the base score for the resolution class
func (s *Scorer) resolution(tr release.Traits) Component {
	return Component{
		Name:   "resolution",
		Points: resolutionBase[tr.Resolution],
		Detail: tr.Resolution.String(),
	}
}

// hdr awards the best HDR format only
func (s *Scorer) hdr(tr release.Traits) Component {
	switch {
	case tr.DolbyVision:
		return Component{Name: "hdr", Points: 40, Detail: "Dolby Vision"}
	case tr.HDR10Plus:
		return Component{Name: "hdr", Points: 30, Detail: "HDR10+"}
	case tr.HDR10:
		return Component{Name: "hdr", Points: 25, Detail: "HDR10"}
	default:
		return Component{Name: "hdr"}
	}
}

func (s *Scorer) codec(tr release.Traits) Component {
	return Component{Name: "codec", Points: codecBonus[tr.Codec], Detail: tr.Codec}
}

// audio sums codec, channel layout and Atmos bonuses
func (s *Scorer) audio(tr release.Traits) Component {
	points := audioBonus[tr.Audio] + channelBonus[tr.Channels]
	detail := strings.TrimSpace(tr.Audio + " " + tr.Channels)
	if tr.Atmos {
		points += atmosBonus
		detail = strings.TrimSpace(detail + " atmos")
	}
	return Component{Name: "audio", Points: points, Detail: detail}
}

func (s *Scorer) releaseType(tr release.Traits) Component {
	return Component{Name: "release_type", Points: releaseBonus[tr.Type], Detail: string(tr.Type)}
}

// preferences returns one component per satisfied preference, scaled by the
// profile weights.
func (s *Scorer) preferences(tr release.Traits, prefs model.SourcePreferences, p model.UserProfile) []Component {
	var out []Component

	if prefs.PreferredResolution != model.ResolutionUnknown && tr.Resolution == prefs.PreferredResolution {
		out = append(out, Component{
			Name:   "pref_resolution",
			Points: weighted(prefResolutionBonus, p.ResolutionWeight),
			Detail: fmt.Sprintf("matches preferred %s", prefs.PreferredResolution),
		})
	}
	if tr.Codec != "" && slices.ContainsFunc(prefs.PreferredCodecs, func(c string) bool {
		return release.NormalizeCodec(c) == tr.Codec
	}) {
		out = append(out, Component{
			Name:   "pref_codec",
			Points: weighted(prefCodecBonus, p.CodecWeight),
			Detail: "matches preferred codec " + tr.Codec,
		})
	}
	if tr.Type != model.ReleaseUnknown && slices.Contains(prefs.PreferredReleaseTypes, tr.Type) {
		out = append(out, Component{
			Name:   "pref_release_type",
			Points: prefReleaseBonus,
			Detail: "matches preferred release type " + string(tr.Type),
		})
	}
	if tr.Audio != "" && slices.ContainsFunc(prefs.PreferredAudio, func(a string) bool {
		return release.NormalizeAudio(a) == tr.Audio
	}) {
		out = append(out, Component{
			Name:   "pref_audio",
			Points: weighted(prefAudioBonus, p.AudioWeight),
			Detail: "matches preferred audio " + tr.Audio,
		})
	}
	if prefs.PreferHDR && tr.HasHDR() {
		out = append(out, Component{Name: "pref_hdr", Points: prefHDRBonus, Detail: "HDR preferred"})
	}

	return out
}

func weighted(points int, weight float64) int {
	return int(math.Round(float64(points) * model.Weight(weight)))
}
