package recommend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/causewaylabs/causeway/pkg/config"
	"github.com/causewaylabs/causeway/pkg/domain"
)

func newTestSynthesizer(t *testing.T) *Synthesizer {
	t.Helper()
	cfg := config.DefaultConfig()
	s, err := NewSynthesizer(zaptest.NewLogger(t), cfg.Recommend, cfg.RootCause.SeverityMap)
	require.NoError(t, err)
	return s
}

func trafficAnalysis(status domain.ResolutionStatus) *domain.RootCause {
	return &domain.RootCause{
		AnalysisID:     "a1",
		SubjectEventID: "o1",
		PrimaryCause: &domain.Cause{
			Category: domain.CategoryTraffic, Score: 0.3, Confidence: 0.7, Frequency: 2,
		},
		Category:   domain.CategoryTraffic,
		Severity:   domain.SeverityHigh,
		Confidence: 0.7,
		EvidenceTrail: []domain.EvidenceRef{
			{Kind: domain.EvidenceCorrelation, ID: "c1"},
			{Kind: domain.EvidenceCorrelation, ID: "c2"},
		},
		Status: status,
	}
}

func TestSynthesizeTrafficRecommendations(t *testing.T) {
	s := newTestSynthesizer(t)
	rc := trafficAnalysis(domain.StatusPending)

	recs, err := s.Synthesize(context.Background(), rc)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	first := recs[0]
	assert.Equal(t, "a1", first.RootCauseID)
	assert.Contains(t, first.Title, "dispatch")
	assert.Equal(t, rc.EvidenceFingerprint(), first.EvidenceFingerprint)
	assert.NotZero(t, first.CostEstimateINR)
	assert.NotZero(t, first.Timeline)

	// severity_weight x impact x feasibility, best first
	assert.InDelta(t, 0.75*0.5*0.75, first.Priority, 1e-9)
	assert.Greater(t, first.Priority, recs[1].Priority)
}

func TestSynthesizeContributingCauses(t *testing.T) {
	s := newTestSynthesizer(t)
	rc := trafficAnalysis(domain.StatusPending)
	rc.ContributingCauses = []domain.Cause{
		{Category: domain.CategoryStockout, Score: 0.08, Confidence: 0.36, Frequency: 1},
	}

	recs, err := s.Synthesize(context.Background(), rc)
	require.NoError(t, err)
	require.Len(t, recs, 4)

	categories := map[string]bool{}
	for _, r := range recs {
		categories[r.Title] = true
	}
	assert.True(t, categories["Review inventory reorder points"])
}

func TestSynthesizeInconclusiveYieldsNothing(t *testing.T) {
	s := newTestSynthesizer(t)
	rc := &domain.RootCause{AnalysisID: "a2", Status: domain.StatusInconclusive}

	recs, err := s.Synthesize(context.Background(), rc)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSynthesizeSkipsResolvedUnlessEvidenceChanges(t *testing.T) {
	s := newTestSynthesizer(t)

	rc := trafficAnalysis(domain.StatusPending)
	first, err := s.Synthesize(context.Background(), rc)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// Resolved with the same evidence: nothing new to say
	now := time.Date(2024, 3, 15, 13, 0, 0, 0, time.UTC)
	require.NoError(t, rc.Transition(domain.StatusInProgress, now))
	require.NoError(t, rc.Transition(domain.StatusResolved, now))

	again, err := s.Synthesize(context.Background(), rc)
	require.NoError(t, err)
	assert.Empty(t, again)

	// New evidence re-triggers synthesis despite resolved status
	rc.EvidenceTrail = append(rc.EvidenceTrail, domain.EvidenceRef{Kind: domain.EvidenceCorrelation, ID: "c3"})
	retriggered, err := s.Synthesize(context.Background(), rc)
	require.NoError(t, err)
	assert.NotEmpty(t, retriggered)
}

func TestSynthesizeSeverityGatedRule(t *testing.T) {
	s := newTestSynthesizer(t)

	critical := &domain.RootCause{
		AnalysisID:   "a3",
		PrimaryCause: &domain.Cause{Category: domain.CategoryFleetBreakdown, Confidence: 0.8},
		Category:     domain.CategoryFleetBreakdown,
		Severity:     domain.SeverityCritical,
		Status:       domain.StatusPending,
	}
	recs, err := s.Synthesize(context.Background(), critical)
	require.NoError(t, err)
	require.Len(t, recs, 2, "standby pool unlocks at critical severity")

	medium := &domain.RootCause{
		AnalysisID:   "a4",
		PrimaryCause: &domain.Cause{Category: domain.CategoryFleetBreakdown, Confidence: 0.8},
		Category:     domain.CategoryFleetBreakdown,
		Severity:     domain.SeverityMedium,
		Status:       domain.StatusPending,
	}
	recs, err = s.Synthesize(context.Background(), medium)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0].Title, "maintenance")
}

func TestSynthesizeCapsPerCause(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Recommend.MaxPerCause = 1
	s, err := NewSynthesizer(zaptest.NewLogger(t), cfg.Recommend, cfg.RootCause.SeverityMap)
	require.NoError(t, err)

	recs, err := s.Synthesize(context.Background(), trafficAnalysis(domain.StatusPending))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0].Title, "Traffic-aware")
}
