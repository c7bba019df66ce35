package domain

import "time"

// PatternType classifies a detected structure across correlations
type PatternType string

const (
	PatternRecurring PatternType = "recurring"
	PatternAnomaly   PatternType = "anomaly"
	PatternSeasonal  PatternType = "seasonal"
	PatternTrend     PatternType = "trend"
)

// Pattern is a recurring, anomalous, or trending structure detected
// across many correlations. Unlike events and correlations, patterns
// are versioned: confidence and frequency update in place as new
// evidence arrives.
type Pattern struct {
	ID   string      `json:"id"`
	Type PatternType `json:"type"`

	// Key is the stable identity the detector updates in place,
	// e.g. "recurring|external:order|spatial" or "anomaly|driver:D42"
	Key string `json:"key"`

	Confidence float64 `json:"confidence"`
	Frequency  int     `json:"frequency"`

	AffectedEntities []EntityRef        `json:"affected_entities"`
	Metrics          map[string]float64 `json:"metrics,omitempty"`

	// Correlation IDs supporting the pattern, most recent last
	SupportingCorrelations []string `json:"supporting_correlations,omitempty"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Version   int       `json:"version"`
}

// Touch records a re-evaluation of the pattern with fresh evidence
func (p *Pattern) Touch(now time.Time) {
	p.LastSeen = now
	p.Version++
}
