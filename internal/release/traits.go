// Package release resolves the quality traits of a source, preferring the
// structured metadata a scraper supplied and falling back to what can be
// parsed out of the release title.
package release

import (
	"strings"

	"github.com/moistari/rls"

	"github.com/ppiankov/sourcerank/internal/model"
)

// Traits is the effective view of a source's quality attributes
type Traits struct {
	Resolution  model.Resolution
	HDR10       bool
	HDR10Plus   bool
	DolbyVision bool
	Codec       string // av1, hevc, h264, mpeg2, ...
	Audio       string // truehd, dts-hd, dts, eac3, ac3, aac, ...
	Channels    string
	Atmos       bool
	Group       string
	Type        model.ReleaseType
	Series      int  // Season number parsed from the title, 0 if none
	Episode     int  // Episode number parsed from the title, 0 if none
	SeriesPack  bool // Title parses as a whole-season release
	FromTitle   bool // At least one trait came from the title
}

// HasHDR reports whether any HDR format is present.
func (t Traits) HasHDR() bool {
	return t.HDR10 || t.HDR10Plus || t.DolbyVision
}

// Inspect resolves the traits of src without modifying it.
func Inspect(src model.SourceMetadata) Traits {
	t := Traits{
		Resolution:  src.Quality.Resolution,
		HDR10:       src.Quality.HDR10,
		HDR10Plus:   src.Quality.HDR10Plus,
		DolbyVision: src.Quality.DolbyVision,
		Codec:       NormalizeCodec(src.Codec.Video),
		Audio:       NormalizeAudio(src.Audio.Codec),
		Channels:    src.Audio.Channels,
		Atmos:       src.Audio.Atmos,
		Group:       strings.TrimSpace(src.Release.Group),
		Type:        src.Release.Type,
	}

	title := src.Title
	if title == "" {
		title = src.File.Name
	}
	if strings.TrimSpace(title) == "" {
		return t
	}

	r := rls.ParseString(title)
	t.Series = r.Series
	t.Episode = r.Episode
	t.SeriesPack = r.Type == rls.Series

	if t.Resolution == model.ResolutionUnknown {
		if res := model.ParseResolution(r.Resolution); res != model.ResolutionUnknown {
			t.Resolution = res
			t.FromTitle = true
		}
	}
	if !t.HasHDR() && len(r.HDR) > 0 {
		for _, h := range r.HDR {
			switch strings.ToUpper(h) {
			case "DV", "DOVI", "DOLBY VISION":
				t.DolbyVision = true
			case "HDR10+":
				t.HDR10Plus = true
			case "HDR", "HDR10":
				t.HDR10 = true
			}
		}
		t.FromTitle = t.FromTitle || t.HasHDR()
	}
	if t.Codec == "" {
		for _, c := range r.Codec {
			if n := NormalizeCodec(c); n != "" {
				t.Codec = n
				t.FromTitle = true
				break
			}
		}
	}
	if t.Audio == "" {
		for _, a := range r.Audio {
			if strings.EqualFold(a, "Atmos") {
				t.Atmos = true
				continue
			}
			if n := NormalizeAudio(a); n != "" && t.Audio == "" {
				t.Audio = n
				t.FromTitle = true
			}
		}
	}
	if t.Channels == "" && r.Channels != "" {
		t.Channels = r.Channels
	}
	if t.Group == "" && r.Group != "" {
		t.Group = r.Group
		t.FromTitle = true
	}
	if t.Type == model.ReleaseUnknown {
		if typ := typeFromTitle(r); typ != model.ReleaseUnknown {
			t.Type = typ
			t.FromTitle = true
		}
	}

	return t
}

// typeFromTitle maps rls source/other tags onto a release type. REMUX shows
// up in Other rather than Source.
func typeFromTitle(r rls.Release) model.ReleaseType {
	for _, o := range r.Other {
		if strings.EqualFold(o, "REMUX") {
			return model.ReleaseRemux
		}
	}
	return model.ParseReleaseType(r.Source)
}

// NormalizeCodec folds encoder and codec spellings to a canonical name.
func NormalizeCodec(s string) string {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.NewReplacer(".", "", "-", "", " ", "").Replace(v)
	switch v {
	case "":
		return ""
	case "av1":
		return "av1"
	case "hevc", "h265", "x265":
		return "hevc"
	case "h264", "x264", "avc":
		return "h264"
	case "mpeg2", "mpeg2video":
		return "mpeg2"
	case "xvid", "divx":
		return "xvid"
	case "vp9":
		return "vp9"
	default:
		return v
	}
}

// NormalizeAudio folds audio codec spellings to a canonical name.
func NormalizeAudio(s string) string {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.NewReplacer(".", "", " ", "", "_", "").Replace(v)
	switch v {
	case "":
		return ""
	case "truehd", "dolbytruehd":
		return "truehd"
	case "dtshd", "dts-hd", "dtshdma", "dts-hdma", "dtsx", "dts-x":
		return "dts-hd"
	case "dts":
		return "dts"
	case "ddp", "dd+", "eac3", "e-ac3", "ddplus":
		return "eac3"
	case "dd", "ac3", "dolbydigital":
		return "ac3"
	case "aac":
		return "aac"
	case "flac":
		return "flac"
	case "opus":
		return "opus"
	case "mp3":
		return "mp3"
	default:
		return v
	}
}
