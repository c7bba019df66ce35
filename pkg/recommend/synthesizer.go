package recommend

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/causewaylabs/causeway/pkg/config"
	"github.com/causewaylabs/causeway/pkg/domain"
)

// Synthesizer turns ranked root causes into prioritized mitigation
// recommendations from the category rule table. Analyses already
// resolved are skipped unless their evidence trail changed since the
// last synthesis.
type Synthesizer struct {
	logger     *zap.Logger
	cfg        config.RecommendConfig
	severities map[domain.FailureCategory]domain.Severity
	rules      map[domain.FailureCategory][]Rule
	metrics    *Metrics

	mu   sync.Mutex
	seen map[string]string // analysis ID -> evidence fingerprint
}

// NewSynthesizer creates a recommendation synthesizer
func NewSynthesizer(logger *zap.Logger, cfg config.RecommendConfig, severities map[domain.FailureCategory]domain.Severity) (*Synthesizer, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	metrics, err := NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating synthesizer metrics: %w", err)
	}

	return &Synthesizer{
		logger:     logger,
		cfg:        cfg,
		severities: severities,
		rules:      defaultRules(),
		metrics:    metrics,
		seen:       make(map[string]string),
	}, nil
}

// Synthesize produces recommendations for an analysis, highest
// priority first. Inconclusive analyses yield nothing. Resolved and
// closed analyses are skipped unless the evidence fingerprint moved
// since they were last synthesized.
func (s *Synthesizer) Synthesize(ctx context.Context, rc *domain.RootCause) ([]*domain.Recommendation, error) {
	if rc.Inconclusive() || rc.PrimaryCause == nil {
		return nil, nil
	}

	fingerprint := rc.EvidenceFingerprint()
	if s.skipSettled(rc, fingerprint) {
		s.metrics.skippedSettled.Add(ctx, 1)
		s.logger.Debug("Skipping settled analysis",
			zap.String("analysis", rc.AnalysisID),
			zap.String("status", string(rc.Status)))
		return nil, nil
	}

	now := time.Now().UTC()
	var out []*domain.Recommendation

	out = append(out, s.forCause(rc, *rc.PrimaryCause, rc.Severity, fingerprint, now)...)
	for _, cause := range rc.ContributingCauses {
		out = append(out, s.forCause(rc, cause, s.severityFor(cause.Category), fingerprint, now)...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})

	s.mu.Lock()
	s.seen[rc.AnalysisID] = fingerprint
	s.mu.Unlock()

	s.metrics.recordSynthesized(ctx, string(rc.Category), len(out))
	s.logger.Info("Recommendations synthesized",
		zap.String("analysis", rc.AnalysisID),
		zap.String("category", string(rc.Category)),
		zap.Int("count", len(out)))

	return out, nil
}

// skipSettled reports whether the analysis is resolved or closed with
// unchanged evidence
func (s *Synthesizer) skipSettled(rc *domain.RootCause, fingerprint string) bool {
	if rc.Status != domain.StatusResolved && rc.Status != domain.StatusClosed {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.seen[rc.AnalysisID]
	return ok && last == fingerprint
}

func (s *Synthesizer) severityFor(cat domain.FailureCategory) domain.Severity {
	if sev, ok := s.severities[cat]; ok {
		return sev
	}
	return domain.SeverityLow
}

// forCause instantiates the category's templates, capped per cause
func (s *Synthesizer) forCause(rc *domain.RootCause, cause domain.Cause, severity domain.Severity, fingerprint string, now time.Time) []*domain.Recommendation {
	var out []*domain.Recommendation
	for _, rule := range s.rules[cause.Category] {
		if !severityAtLeast(severity, rule.MinSeverity) {
			continue
		}
		if s.cfg.MaxPerCause > 0 && len(out) >= s.cfg.MaxPerCause {
			break
		}
		out = append(out, &domain.Recommendation{
			ID:                  domain.NewRecommendationID(rc.AnalysisID, rule.Title),
			RootCauseID:         rc.AnalysisID,
			Title:               rule.Title,
			ActionText:          rule.ActionText,
			Priority:            severity.Weight() * rule.EstimatedImpact * rule.Feasibility,
			EstimatedImpact:     rule.EstimatedImpact,
			Feasibility:         rule.Feasibility,
			CostEstimateINR:     rule.CostEstimateINR,
			Timeline:            rule.Timeline,
			EvidenceFingerprint: fingerprint,
			CreatedAt:           now,
		})
	}
	return out
}
