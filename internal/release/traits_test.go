package release

import (
	"testing"

	"github.com/ppiankov/sourcerank/internal/model"
)

func TestInspect_StructuredFieldsWin(t *testing.T) {
	src := model.SourceMetadata{
		ID:      "a",
		Title:   "Show.S01E01.720p.HDTV.x264-GRP",
		Quality: model.QualityInfo{Resolution: model.Resolution2160p, DolbyVision: true},
		Codec:   model.CodecInfo{Video: "H.265"},
		Audio:   model.AudioInfo{Codec: "DD+", Channels: "5.1"},
		Release: model.ReleaseInfo{Group: "FLUX", Type: model.ReleaseWebDL},
	}

	tr := Inspect(src)

	if tr.Resolution != model.Resolution2160p {
		t.Errorf("expected 2160p, got %s", tr.Resolution)
	}
	if tr.Codec != "hevc" {
		t.Errorf("expected hevc, got %q", tr.Codec)
	}
	if tr.Audio != "eac3" {
		t.Errorf("expected eac3, got %q", tr.Audio)
	}
	if tr.Group != "FLUX" {
		t.Errorf("expected FLUX, got %q", tr.Group)
	}
	if tr.Type != model.ReleaseWebDL {
		t.Errorf("expected WEB-DL, got %q", tr.Type)
	}
	if !tr.HasHDR() {
		t.Error("expected HDR from structured flags")
	}
}

func TestInspect_EmptyTitle(t *testing.T) {
	tr := Inspect(model.SourceMetadata{ID: "x"})
	if tr.Resolution != model.ResolutionUnknown || tr.FromTitle {
		t.Errorf("expected untouched traits, got %+v", tr)
	}
}

func TestInspect_TitleFallbackResolution(t *testing.T) {
	tr := Inspect(model.SourceMetadata{ID: "x", Title: "Some.Movie.2019.1080p.BluRay.x264-GROUP"})
	if tr.Resolution != model.Resolution1080p {
		t.Errorf("expected 1080p from title, got %s", tr.Resolution)
	}
	if !tr.FromTitle {
		t.Error("expected FromTitle to be set")
	}
}

func TestNormalizeCodec(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"x265", "hevc"},
		{"H.265", "hevc"},
		{"HEVC", "hevc"},
		{"x264", "h264"},
		{"AVC", "h264"},
		{"AV1", "av1"},
		{"", ""},
		{"MPEG-2", "mpeg2"},
	}
	for _, tt := range tests {
		if got := NormalizeCodec(tt.in); got != tt.want {
			t.Errorf("NormalizeCodec(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeAudio(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"TrueHD", "truehd"},
		{"DTS-HD MA", "dts-hd"},
		{"DDP", "eac3"},
		{"DD+", "eac3"},
		{"AC3", "ac3"},
		{"AAC", "aac"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeAudio(tt.in); got != tt.want {
			t.Errorf("NormalizeAudio(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
