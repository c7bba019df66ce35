package domain

import (
	"fmt"
	"time"
)

// FailureCategory classifies the underlying cause of a delivery failure
type FailureCategory string

const (
	CategoryAddressInvalid      FailureCategory = "address_invalid"
	CategoryCustomerUnavailable FailureCategory = "customer_unavailable"
	CategoryWeather             FailureCategory = "weather"
	CategoryTraffic             FailureCategory = "traffic"
	CategoryWarehouseDelay      FailureCategory = "warehouse_delay"
	CategoryFleetBreakdown      FailureCategory = "fleet_breakdown"
	CategoryStockout            FailureCategory = "stockout"
	CategoryOperational         FailureCategory = "operational"
)

// Severity grades the impact of a resolved cause
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Weight returns the numeric weight used in recommendation priority
func (s Severity) Weight() float64 {
	switch s {
	case SeverityCritical:
		return 1.0
	case SeverityHigh:
		return 0.75
	case SeverityMedium:
		return 0.5
	case SeverityLow:
		return 0.25
	}
	return 0.25
}

// ResolutionStatus tracks the lifecycle of a root cause analysis
type ResolutionStatus string

const (
	StatusPending      ResolutionStatus = "pending"
	StatusInProgress   ResolutionStatus = "in_progress"
	StatusResolved     ResolutionStatus = "resolved"
	StatusClosed       ResolutionStatus = "closed"
	StatusInconclusive ResolutionStatus = "inconclusive"
)

// CanTransitionTo reports whether the status transition is legal.
// Pending moves forward to InProgress or directly to Resolved,
// InProgress to Resolved, Resolved to Closed. Resolved may fall back
// to InProgress when contradicting evidence arrives before closing.
// Closed is terminal.
func (s ResolutionStatus) CanTransitionTo(next ResolutionStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusInProgress || next == StatusResolved
	case StatusInProgress:
		return next == StatusResolved
	case StatusResolved:
		return next == StatusClosed || next == StatusInProgress
	}
	return false
}

// EvidenceKind distinguishes correlation from pattern references in an
// evidence trail
type EvidenceKind string

const (
	EvidenceCorrelation EvidenceKind = "correlation"
	EvidencePattern     EvidenceKind = "pattern"
	EvidenceEvent       EvidenceKind = "event"
)

// EvidenceRef is a typed reference into the correlation/pattern stores.
// The trail is an ordered list of these, not a loose document.
type EvidenceRef struct {
	Kind EvidenceKind `json:"kind"`
	ID   string       `json:"id"`
}

// Cause is a single candidate explanation with its score components
type Cause struct {
	Category    FailureCategory `json:"category"`
	Description string          `json:"description"`
	Score       float64         `json:"score"`
	Confidence  float64         `json:"confidence"`
	Frequency   int             `json:"frequency"`

	// Timestamp of the earliest event supporting this cause, used for
	// tie-breaking: earlier is presumed more upstream
	EarliestEvidence time.Time `json:"earliest_evidence"`
}

// BusinessImpact estimates the operational cost of a cause
type BusinessImpact struct {
	CostPerIncidentINR float64 `json:"cost_per_incident_inr"`
	SatisfactionDelta  float64 `json:"satisfaction_delta"`
	EfficiencyLossPct  float64 `json:"efficiency_loss_pct"`
}

// RootCause is the ranked explanation for one failure event
type RootCause struct {
	AnalysisID     string `json:"analysis_id"`
	SubjectEventID string `json:"subject_event_id"`

	PrimaryCause       *Cause  `json:"primary_cause,omitempty"`
	ContributingCauses []Cause `json:"contributing_causes,omitempty"`

	Category   FailureCategory `json:"category,omitempty"`
	Severity   Severity        `json:"severity,omitempty"`
	Confidence float64         `json:"confidence"`

	EvidenceTrail []EvidenceRef   `json:"evidence_trail,omitempty"`
	Impact        *BusinessImpact `json:"impact,omitempty"`

	Status    ResolutionStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Inconclusive reports whether no candidate cleared the score cutoff
func (r *RootCause) Inconclusive() bool {
	return r.Status == StatusInconclusive
}

// Transition moves the analysis to a new resolution status, enforcing
// the state machine. Mutation of a RootCause happens only here.
func (r *RootCause) Transition(next ResolutionStatus, now time.Time) error {
	if r.Status == StatusInconclusive {
		return fmt.Errorf("inconclusive analysis has no resolution lifecycle")
	}
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("invalid resolution transition %s -> %s", r.Status, next)
	}
	r.Status = next
	r.UpdatedAt = now
	return nil
}

// EvidenceFingerprint returns a stable digest of the evidence trail,
// used to detect material evidence changes for re-recommendation
func (r *RootCause) EvidenceFingerprint() string {
	fp := ""
	for _, ref := range r.EvidenceTrail {
		fp += string(ref.Kind) + ":" + ref.ID + ";"
	}
	return fp
}
