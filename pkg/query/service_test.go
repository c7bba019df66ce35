package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/causewaylabs/causeway/pkg/config"
	"github.com/causewaylabs/causeway/pkg/domain"
	"github.com/causewaylabs/causeway/pkg/storage"
)

var queryBase = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func seededService(t *testing.T) (*Service, storage.Store) {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore(config.DefaultConfig().Storage, zaptest.NewLogger(t))

	driver := domain.EntityRef{Kind: "driver", ID: "D1"}
	failed := &domain.Event{
		ID: "o1", Type: domain.EventTypeOrder, Timestamp: queryBase,
		Entities: []domain.EntityRef{{Kind: "order", ID: "o1"}, driver},
		Order:    &domain.OrderData{Status: "Failed"},
	}
	delivered := &domain.Event{
		ID: "o2", Type: domain.EventTypeOrder, Timestamp: queryBase.Add(time.Hour),
		Entities: []domain.EntityRef{{Kind: "order", ID: "o2"}, driver},
		Order:    &domain.OrderData{Status: "Delivered"},
	}
	traffic := &domain.Event{
		ID: "t1", Type: domain.EventTypeExternal, Timestamp: queryBase.Add(-20 * time.Minute),
		Entities: []domain.EntityRef{{Kind: "route", ID: "R1"}},
		External: &domain.ExternalData{TrafficCondition: "Heavy"},
	}
	for _, evt := range []*domain.Event{failed, delivered, traffic} {
		require.NoError(t, store.AppendEvent(ctx, evt))
	}

	require.NoError(t, store.AppendCorrelation(ctx, &domain.Correlation{
		ID: "c1", PrimaryEventID: "t1", SecondaryEventID: "o1",
		Type: domain.CorrelationCausal, Strength: 0.8, Confidence: 0.7, Directed: true,
		CreatedAt: queryBase,
	}))
	require.NoError(t, store.SaveAnalysis(ctx, &domain.RootCause{
		AnalysisID: "a1", SubjectEventID: "o1",
		PrimaryCause: &domain.Cause{Category: domain.CategoryTraffic, Score: 0.3},
		Category:     domain.CategoryTraffic,
		Severity:     domain.SeverityHigh,
		Status:       domain.StatusPending,
		CreatedAt:    queryBase, UpdatedAt: queryBase,
	}))
	require.NoError(t, store.AppendRecommendations(ctx, []*domain.Recommendation{
		{ID: "r1", RootCauseID: "a1", Title: "Traffic-aware dispatch scheduling"},
	}))

	svc, err := NewService(zaptest.NewLogger(t), store)
	require.NoError(t, err)
	return svc, store
}

func TestReportForEvent(t *testing.T) {
	svc, _ := seededService(t)

	report, err := svc.ReportForEvent(context.Background(), "o1")
	require.NoError(t, err)

	assert.Equal(t, "o1", report.Subject.ID)
	require.Len(t, report.Correlations, 1)
	assert.Equal(t, "c1", report.Correlations[0].ID)
	require.NotNil(t, report.Analysis)
	assert.Equal(t, domain.CategoryTraffic, report.Analysis.Category)
	require.Len(t, report.Recommendations, 1)
}

func TestReportForEventWithoutAnalysis(t *testing.T) {
	svc, _ := seededService(t)

	// t1 has a correlation but no analysis: report stays partial
	report, err := svc.ReportForEvent(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, report.Correlations, 1)
	assert.Nil(t, report.Analysis)
	assert.Empty(t, report.Recommendations)
}

func TestReportForMissingEvent(t *testing.T) {
	svc, _ := seededService(t)

	_, err := svc.ReportForEvent(context.Background(), "nope")
	assert.True(t, storage.IsNotFound(err))
}

func TestSummaryForEntity(t *testing.T) {
	svc, _ := seededService(t)
	driver := domain.EntityRef{Kind: "driver", ID: "D1"}

	summary, err := svc.SummaryForEntity(context.Background(), driver, queryBase.Add(-time.Hour), queryBase.Add(2*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalEvents)
	assert.Equal(t, 1, summary.FailureCount)
	require.Len(t, summary.Analyses, 1)
	assert.Equal(t, "a1", summary.Analyses[0].AnalysisID)
}

func TestCategoryBreakdown(t *testing.T) {
	svc, store := seededService(t)
	require.NoError(t, store.SaveAnalysis(context.Background(), &domain.RootCause{
		AnalysisID: "a2", SubjectEventID: "o9",
		Status:    domain.StatusInconclusive,
		CreatedAt: queryBase.Add(time.Minute), UpdatedAt: queryBase.Add(time.Minute),
	}))

	breakdown, err := svc.CategoryBreakdown(context.Background(), queryBase.Add(-time.Hour), queryBase.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 1, breakdown[domain.CategoryTraffic])
	assert.Equal(t, 1, breakdown[domain.FailureCategory("")], "inconclusive counts under the empty category")
}
