package model

// Signal is a diagnostic with the inputs behind one scoring component
type Signal struct {
	Type        SignalType     `json:"type"`
	Severity    SignalSeverity `json:"severity"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"` // Formula inputs
}

// SignalType names the component a signal explains
type SignalType string

const (
	SignalP2P          SignalType = "p2p"          // Seeders and ratio
	SignalProvider     SignalType = "provider"     // Reliability tier
	SignalAvailability SignalType = "availability" // Piece availability
	SignalFreshness    SignalType = "freshness"    // Counter age
	SignalMalformed    SignalType = "malformed"
	SignalZeroSeeders  SignalType = "zero_seeders"
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)
