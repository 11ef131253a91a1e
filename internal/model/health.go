package model

import "time"

// HealthData is a point-in-time health assessment of one source
type HealthData struct {
	OverallScore         int       `json:"overall_score"`         // 0-100, mean of the four sub-scores
	P2PScore             int       `json:"p2p_score"`             // Seeder count and seeder:leecher ratio
	ProviderScore        int       `json:"provider_score"`        // Reliability tier lookup
	AvailabilityScore    int       `json:"availability_score"`    // Linear in reported availability
	FreshnessScore       int       `json:"freshness_score"`       // Decays with counter age
	PredictedReliability float64   `json:"predicted_reliability"` // 0.0-1.0, filled by the predictor
	Risk                 RiskLevel `json:"risk"`
	ComputedAt           time.Time `json:"computed_at"`
	SnapshotAt           time.Time `json:"snapshot_at,omitempty"` // LastUpdated of the source it was derived from
}

// RiskLevel classifies how likely a source is to fail
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Rank orders risk levels from 0 (LOW) to 3 (CRITICAL). Unset ranks as MEDIUM.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return 1
	}
}

// AtMost reports whether r is no riskier than limit.
func (r RiskLevel) AtMost(limit RiskLevel) bool {
	return r.Rank() <= limit.Rank()
}

// ReliabilityPrediction is the predictor's estimate for one source
type ReliabilityPrediction struct {
	Probability float64 `json:"probability"` // Chance the download succeeds
	Confidence  float64 `json:"confidence"`  // 0.0-0.95, grows with provider sample count
	Samples     int     `json:"samples"`     // Historical outcomes behind the estimate
}

// SeasonPackInfo describes whether a title bundles whole seasons
type SeasonPackInfo struct {
	IsSeasonPack     bool    `json:"is_season_pack"`
	Seasons          []int   `json:"seasons,omitempty"` // Sorted ascending
	Completeness     float64 `json:"completeness"`      // Fraction of expected episodes present
	Confidence       int     `json:"confidence"`        // 0-100 pattern certainty
	IsCompleteSeries bool    `json:"is_complete_series"`
	Pattern          string  `json:"pattern,omitempty"` // Which rule matched
}

// ProcessedSourceData joins a source with everything derived from it
type ProcessedSourceData struct {
	Source        SourceMetadata        `json:"source"`
	Health        HealthData            `json:"health"`
	Prediction    ReliabilityPrediction `json:"prediction"`
	Season        SeasonPackInfo        `json:"season"`
	QualityScore  int                   `json:"quality_score"`
	QualityBadges []string              `json:"quality_badges,omitempty"`
	EstimatedTime time.Duration         `json:"estimated_time"`
	HasError      bool                  `json:"has_error"`
	ErrorMessage  string                `json:"error_message,omitempty"`
}
