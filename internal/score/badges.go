package score

import (
	"strings"

	"github.com/ppiankov/sourcerank/internal/model"
	"github.com/ppiankov/sourcerank/internal/release"
)

// Badges returns the display tags for a source in a fixed order:
// resolution, HDR formats, codec, Atmos, channels, release type, cached,
// season pack.
func Badges(tr release.Traits, src model.SourceMetadata, season model.SeasonPackInfo) []string {
	var badges []string

	switch tr.Resolution {
	case model.Resolution2160p:
		badges = append(badges, "4K")
	case model.ResolutionUnknown:
	default:
		badges = append(badges, tr.Resolution.String())
	}

	if tr.DolbyVision {
		badges = append(badges, "DV")
	}
	if tr.HDR10Plus {
		badges = append(badges, "HDR10+")
	}
	if tr.HDR10 {
		badges = append(badges, "HDR10")
	}

	switch tr.Codec {
	case "av1", "hevc", "h264":
		badges = append(badges, strings.ToUpper(tr.Codec))
	}

	if tr.Atmos {
		badges = append(badges, "ATMOS")
	}
	if tr.Channels != "" {
		badges = append(badges, tr.Channels)
	}
	if tr.Type != model.ReleaseUnknown {
		badges = append(badges, string(tr.Type))
	}
	if src.Cached {
		badges = append(badges, "CACHED")
	}
	if season.IsSeasonPack {
		badges = append(badges, "SEASON PACK")
	}

	return badges
}
