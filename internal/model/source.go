package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// SourceMetadata describes one candidate stream as delivered by a scraper.
// It is treated as immutable: every derived value is computed alongside it
// and keyed by ID, never written back into it.
type SourceMetadata struct {
	ID          string       `json:"id" yaml:"id"`
	Title       string       `json:"title" yaml:"title"`
	File        FileInfo     `json:"file" yaml:"file"`
	Quality     QualityInfo  `json:"quality" yaml:"quality"`
	Codec       CodecInfo    `json:"codec" yaml:"codec"`
	Audio       AudioInfo    `json:"audio" yaml:"audio"`
	Release     ReleaseInfo  `json:"release" yaml:"release"`
	Provider    ProviderInfo `json:"provider" yaml:"provider"`
	Health      RawHealth    `json:"health" yaml:"health"`
	Cached      bool         `json:"cached" yaml:"cached"`                                 // Already materialized on a debrid service
	LastUpdated time.Time    `json:"last_updated,omitempty" yaml:"last_updated,omitempty"` // When the counters were observed
	Episodes    *EpisodeHint `json:"episodes,omitempty" yaml:"episodes,omitempty"`         // Optional season-pack file listing hint
}

// FileInfo holds the primary file name and total size.
type FileInfo struct {
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	SizeBytes int64  `json:"size_bytes" yaml:"size_bytes"`
}

// QualityInfo holds resolution and HDR flags.
type QualityInfo struct {
	Resolution  Resolution `json:"resolution" yaml:"resolution"`
	HDR10       bool       `json:"hdr10,omitempty" yaml:"hdr10,omitempty"`
	HDR10Plus   bool       `json:"hdr10_plus,omitempty" yaml:"hdr10_plus,omitempty"`
	DolbyVision bool       `json:"dolby_vision,omitempty" yaml:"dolby_vision,omitempty"`
}

// HasHDR reports whether any HDR format is flagged.
func (q QualityInfo) HasHDR() bool {
	return q.HDR10 || q.HDR10Plus || q.DolbyVision
}

// CodecInfo holds the video codec (normalized lowercase: av1, hevc, h264, ...).
type CodecInfo struct {
	Video      string `json:"video,omitempty" yaml:"video,omitempty"`
	BitDepth   int    `json:"bit_depth,omitempty" yaml:"bit_depth,omitempty"`
	BitrateBPS int64  `json:"bitrate_bps,omitempty" yaml:"bitrate_bps,omitempty"`
}

// AudioInfo holds the main audio track description.
type AudioInfo struct {
	Codec    string `json:"codec,omitempty" yaml:"codec,omitempty"`       // truehd, dts-hd, eac3, ac3, aac, ...
	Channels string `json:"channels,omitempty" yaml:"channels,omitempty"` // "2.0", "5.1", "7.1"
	Atmos    bool   `json:"atmos,omitempty" yaml:"atmos,omitempty"`
}

// ReleaseInfo holds the release group and type.
type ReleaseInfo struct {
	Group string      `json:"group,omitempty" yaml:"group,omitempty"`
	Type  ReleaseType `json:"type,omitempty" yaml:"type,omitempty"`
}

// ProviderInfo identifies where a source came from.
type ProviderInfo struct {
	ID   string          `json:"id" yaml:"id"`
	Name string          `json:"name,omitempty" yaml:"name,omitempty"`
	Tier ReliabilityTier `json:"tier" yaml:"tier"`
	Kind SourceKind      `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// RawHealth holds the swarm/provider counters reported with the source.
type RawHealth struct {
	Seeders      int     `json:"seeders" yaml:"seeders"`
	Leechers     int     `json:"leechers" yaml:"leechers"`
	Availability float64 `json:"availability" yaml:"availability"` // 0.0-1.0 fraction of pieces available
	AgeSeconds   int64   `json:"age_seconds,omitempty" yaml:"age_seconds,omitempty"`
}

// Age returns the age of the counter snapshot.
func (h RawHealth) Age() time.Duration {
	return time.Duration(h.AgeSeconds) * time.Second
}

// EpisodeHint carries episode counts from provider metadata or a file listing.
type EpisodeHint struct {
	Present          int `json:"present" yaml:"present"`
	Expected         int `json:"expected" yaml:"expected"`
	KnownSeasonCount int `json:"known_season_count,omitempty" yaml:"known_season_count,omitempty"`
}

// Validate checks the fields every downstream computation relies on.
func (s SourceMetadata) Validate() error {
	switch {
	case strings.TrimSpace(s.ID) == "":
		return fmt.Errorf("%w: empty id", ErrMalformedSource)
	case s.Health.Seeders < 0 || s.Health.Leechers < 0:
		return fmt.Errorf("%w: %s: negative peer counters", ErrMalformedSource, s.ID)
	case math.IsNaN(s.Health.Availability) || s.Health.Availability < 0 || s.Health.Availability > 1:
		return fmt.Errorf("%w: %s: availability %v outside [0,1]", ErrMalformedSource, s.ID, s.Health.Availability)
	case s.File.SizeBytes < 0:
		return fmt.Errorf("%w: %s: negative size", ErrMalformedSource, s.ID)
	case s.Health.AgeSeconds < 0:
		return fmt.Errorf("%w: %s: negative counter age", ErrMalformedSource, s.ID)
	}
	return nil
}

// Resolution is an ordered video resolution class.
type Resolution int

const (
	ResolutionUnknown Resolution = iota
	Resolution480p
	Resolution720p
	Resolution1080p
	Resolution2160p
)

func (r Resolution) String() string {
	switch r {
	case Resolution480p:
		return "480p"
	case Resolution720p:
		return "720p"
	case Resolution1080p:
		return "1080p"
	case Resolution2160p:
		return "2160p"
	default:
		return "unknown"
	}
}

// ParseResolution maps common spellings ("4K", "UHD", "1080p", "FHD", ...) to a Resolution.
func ParseResolution(s string) Resolution {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "2160p", "4k", "uhd", "2160":
		return Resolution2160p
	case "1080p", "1080i", "fhd", "1080":
		return Resolution1080p
	case "720p", "hd", "720":
		return Resolution720p
	case "480p", "576p", "sd", "480", "576":
		return Resolution480p
	default:
		return ResolutionUnknown
	}
}

func (r Resolution) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Resolution) UnmarshalText(text []byte) error {
	*r = ParseResolution(string(text))
	return nil
}

// ReleaseType classifies how a release was sourced.
type ReleaseType string

const (
	ReleaseUnknown ReleaseType = ""
	ReleaseRemux   ReleaseType = "REMUX"
	ReleaseBluRay  ReleaseType = "BLURAY"
	ReleaseWebDL   ReleaseType = "WEB-DL"
	ReleaseWebRip  ReleaseType = "WEBRIP"
	ReleaseHDTV    ReleaseType = "HDTV"
	ReleaseDVD     ReleaseType = "DVD"
	ReleaseCam     ReleaseType = "CAM"
)

// ParseReleaseType normalizes a source tag such as "WEB-DL", "web", "BDRip" or "TS".
func ParseReleaseType(s string) ReleaseType {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.NewReplacer(".", "", "_", "", " ", "").Replace(v)
	switch v {
	case "REMUX", "BDREMUX", "UHDREMUX":
		return ReleaseRemux
	case "BLURAY", "BDRIP", "BRRIP", "BD", "UHDBLURAY":
		return ReleaseBluRay
	case "WEB-DL", "WEBDL", "WEB":
		return ReleaseWebDL
	case "WEBRIP", "WEB-RIP":
		return ReleaseWebRip
	case "HDTV", "PDTV", "TV":
		return ReleaseHDTV
	case "DVD", "DVDRIP", "DVD-R":
		return ReleaseDVD
	case "CAM", "HDCAM", "TS", "TELESYNC", "TC", "TELECINE", "HDTS":
		return ReleaseCam
	default:
		return ReleaseUnknown
	}
}

// ReliabilityTier is the provider's reputation class.
type ReliabilityTier int

const (
	TierUnknown ReliabilityTier = iota
	TierLow
	TierMedium
	TierHigh
	TierPremium
)

func (t ReliabilityTier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	case TierPremium:
		return "premium"
	default:
		return "unknown"
	}
}

func (t ReliabilityTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ReliabilityTier) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "low", "1":
		*t = TierLow
	case "medium", "2":
		*t = TierMedium
	case "high", "3":
		*t = TierHigh
	case "premium", "4":
		*t = TierPremium
	default:
		*t = TierUnknown
	}
	return nil
}

// SourceKind is the transport behind a source.
type SourceKind string

const (
	KindTorrent SourceKind = "torrent"
	KindDebrid  SourceKind = "debrid"
	KindDirect  SourceKind = "direct"
)
