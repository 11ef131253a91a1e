package model

// SourcePreferences are the user's/device's wishes for a pick
type SourcePreferences struct {
	PreferredResolution   Resolution    `json:"preferred_resolution,omitempty" yaml:"preferred_resolution,omitempty"`
	PreferredCodecs       []string      `json:"preferred_codecs,omitempty" yaml:"preferred_codecs,omitempty"`
	PreferredReleaseTypes []ReleaseType `json:"preferred_release_types,omitempty" yaml:"preferred_release_types,omitempty"`
	PreferredAudio        []string      `json:"preferred_audio,omitempty" yaml:"preferred_audio,omitempty"`
	PreferHDR             bool          `json:"prefer_hdr,omitempty" yaml:"prefer_hdr,omitempty"`
	TargetSizeBytes       int64         `json:"target_size_bytes,omitempty" yaml:"target_size_bytes,omitempty"`
}

// UserProfile holds optional viewing-history-derived weights. Weights of 0
// are treated as 1.
type UserProfile struct {
	ResolutionWeight  float64 `json:"resolution_weight,omitempty" yaml:"resolution_weight,omitempty"`
	CodecWeight       float64 `json:"codec_weight,omitempty" yaml:"codec_weight,omitempty"`
	AudioWeight       float64 `json:"audio_weight,omitempty" yaml:"audio_weight,omitempty"`
	SizeWeight        float64 `json:"size_weight,omitempty" yaml:"size_weight,omitempty"`
	PreferCached      bool    `json:"prefer_cached,omitempty" yaml:"prefer_cached,omitempty"`
	PreferSeasonPacks bool    `json:"prefer_season_packs,omitempty" yaml:"prefer_season_packs,omitempty"`
}

// Weight returns w, or 1 when unset.
func Weight(w float64) float64 {
	if w <= 0 {
		return 1
	}
	return w
}

// DownloadPriority is the suggested urgency for fetching a source
type DownloadPriority string

const (
	PriorityUrgent DownloadPriority = "URGENT"
	PriorityHigh   DownloadPriority = "HIGH"
	PriorityNormal DownloadPriority = "NORMAL"
	PriorityLow    DownloadPriority = "LOW"
	PriorityAvoid  DownloadPriority = "AVOID"
)

// SourceRecommendation annotates a processed source for presentation
type SourceRecommendation struct {
	ProcessedSourceData
	RecommendationScore int              `json:"recommendation_score"`
	Reasoning           []string         `json:"reasoning"`
	UserCompatibility   float64          `json:"user_compatibility"` // 0.0-1.0
	DownloadPriority    DownloadPriority `json:"download_priority"`
}
