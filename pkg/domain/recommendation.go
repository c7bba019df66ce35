package domain

import "time"

// Recommendation maps a resolved root cause to an actionable mitigation
// step. Derived and read-mostly: regenerated when the source analysis's
// evidence changes materially.
type Recommendation struct {
	ID          string `json:"id"`
	RootCauseID string `json:"root_cause_id"`

	Title      string `json:"title"`
	ActionText string `json:"action_text"`

	// Priority = severity weight x estimated impact x feasibility
	Priority        float64 `json:"priority"`
	EstimatedImpact float64 `json:"estimated_impact"` // fraction of failures avoidable
	Feasibility     float64 `json:"feasibility"`      // [0,1]

	CostEstimateINR float64       `json:"cost_estimate_inr,omitempty"`
	Timeline        time.Duration `json:"timeline,omitempty"`

	// Fingerprint of the evidence trail this recommendation was
	// generated from
	EvidenceFingerprint string `json:"evidence_fingerprint,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
