package query

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/causewaylabs/causeway/pkg/domain"
	"github.com/causewaylabs/causeway/pkg/storage"
)

// FailureReport bundles everything known about one analyzed failure:
// the subject event, its correlations, the resolved root cause, and
// the recommendations derived from it.
type FailureReport struct {
	Subject         *domain.Event            `json:"subject"`
	Correlations    []*domain.Correlation    `json:"correlations,omitempty"`
	Analysis        *domain.RootCause        `json:"analysis,omitempty"`
	Recommendations []*domain.Recommendation `json:"recommendations,omitempty"`
}

// EntitySummary aggregates failures for one business entity over a
// time range
type EntitySummary struct {
	Entity       domain.EntityRef    `json:"entity"`
	From         time.Time           `json:"from"`
	To           time.Time           `json:"to"`
	TotalEvents  int                 `json:"total_events"`
	FailureCount int                 `json:"failure_count"`
	Analyses     []*domain.RootCause `json:"analyses,omitempty"`
}

// Service is the read side of the system: it answers questions about
// finished analyses without touching the processing pipeline.
type Service struct {
	logger *zap.Logger
	store  storage.Store
}

// NewService creates a query service over the given store
func NewService(logger *zap.Logger, store storage.Store) (*Service, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	return &Service{logger: logger, store: store}, nil
}

// ReportForEvent assembles the full failure report for one subject
// event. Missing analysis or recommendations leave those sections
// empty rather than failing the report.
func (s *Service) ReportForEvent(ctx context.Context, eventID string) (*FailureReport, error) {
	subject, err := s.store.EventByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("loading event %s: %w", eventID, err)
	}
	if subject == nil {
		return nil, &storage.NotFoundError{Kind: "event", Key: eventID}
	}

	report := &FailureReport{Subject: subject}

	report.Correlations, err = s.store.CorrelationsForEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("loading correlations for %s: %w", eventID, err)
	}

	analysis, err := s.store.AnalysisForEvent(ctx, eventID)
	if err != nil {
		if !storage.IsNotFound(err) {
			return nil, fmt.Errorf("loading analysis for %s: %w", eventID, err)
		}
		return report, nil
	}
	report.Analysis = analysis

	report.Recommendations, err = s.store.RecommendationsForAnalysis(ctx, analysis.AnalysisID)
	if err != nil {
		return nil, fmt.Errorf("loading recommendations for %s: %w", analysis.AnalysisID, err)
	}
	return report, nil
}

// SummaryForEntity aggregates an entity's failure history over a range
func (s *Service) SummaryForEntity(ctx context.Context, ref domain.EntityRef, from, to time.Time) (*EntitySummary, error) {
	events, err := s.store.EventsByEntity(ctx, ref, from, to)
	if err != nil {
		return nil, fmt.Errorf("loading events for %s: %w", ref.Key(), err)
	}

	summary := &EntitySummary{Entity: ref, From: from, To: to, TotalEvents: len(events)}
	for _, evt := range events {
		if !evt.IsFailure() {
			continue
		}
		summary.FailureCount++

		analysis, err := s.store.AnalysisForEvent(ctx, evt.ID)
		if err != nil {
			if storage.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("loading analysis for %s: %w", evt.ID, err)
		}
		summary.Analyses = append(summary.Analyses, analysis)
	}
	return summary, nil
}

// AnalysesInRange returns analyses created inside the range, oldest
// first
func (s *Service) AnalysesInRange(ctx context.Context, from, to time.Time) ([]*domain.RootCause, error) {
	return s.store.AnalysesInRange(ctx, from, to)
}

// CategoryBreakdown counts analyses per failure category over a range.
// Inconclusive analyses count under the empty category.
func (s *Service) CategoryBreakdown(ctx context.Context, from, to time.Time) (map[domain.FailureCategory]int, error) {
	analyses, err := s.store.AnalysesInRange(ctx, from, to)
	if err != nil {
		return nil, err
	}

	out := make(map[domain.FailureCategory]int)
	for _, rc := range analyses {
		out[rc.Category]++
	}
	return out, nil
}
