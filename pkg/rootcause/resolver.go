package rootcause

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/causewaylabs/causeway/pkg/config"
	"github.com/causewaylabs/causeway/pkg/domain"
)

// CorrelationSource provides the correlations touching an event
type CorrelationSource interface {
	CorrelationsForEvent(ctx context.Context, eventID string) ([]*domain.Correlation, error)
}

// EventSource resolves event IDs back to events
type EventSource interface {
	EventByID(ctx context.Context, id string) (*domain.Event, error)
}

// PatternSource provides above-floor patterns affecting an entity
type PatternSource interface {
	PatternsForEntity(ref domain.EntityRef) []*domain.Pattern
}

// Resolver ranks candidate explanations for a failure event. Candidates
// come from three places: correlated counterpart events, patterns
// affecting the failure's entities, and the failure reason recorded on
// the order itself. Each candidate scores as
// impact_weight x frequency factor x confidence; the highest becomes
// the primary cause, the rest above the cutoff are contributing.
type Resolver struct {
	logger  *zap.Logger
	cfg     config.RootCauseConfig
	metrics *Metrics

	events       EventSource
	correlations CorrelationSource
	patterns     PatternSource
}

// NewResolver creates a root cause resolver
func NewResolver(logger *zap.Logger, cfg config.RootCauseConfig, events EventSource, correlations CorrelationSource, patterns PatternSource) (*Resolver, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	metrics, err := NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating resolver metrics: %w", err)
	}

	return &Resolver{
		logger:       logger,
		cfg:          cfg,
		metrics:      metrics,
		events:       events,
		correlations: correlations,
		patterns:     patterns,
	}, nil
}

// candidate accumulates evidence for one failure category. Confidence
// combines contributions as a noisy-OR so independent corroboration
// raises it and a weak extra signal never lowers it.
type candidate struct {
	category    domain.FailureCategory
	description string
	frequency   int
	missProb    float64
	earliest    time.Time
	evidence    []domain.EvidenceRef
}

func (c *candidate) observe(confidence float64, at time.Time, ref domain.EvidenceRef) {
	c.frequency++
	c.missProb *= 1 - confidence
	if c.earliest.IsZero() || at.Before(c.earliest) {
		c.earliest = at
	}
	c.evidence = append(c.evidence, ref)
}

func (c *candidate) confidence() float64 {
	return 1 - c.missProb
}

// Resolve analyzes one failure event and returns its ranked root cause.
// When no candidate clears the score cutoff the analysis is returned
// Inconclusive with an empty evidence trail, not an error.
func (r *Resolver) Resolve(ctx context.Context, subject *domain.Event) (*domain.RootCause, error) {
	start := time.Now()

	if !subject.IsFailure() {
		return nil, &NotFailureError{EventID: subject.ID, Type: string(subject.Type)}
	}

	candidates := make(map[domain.FailureCategory]*candidate)
	observe := func(cat domain.FailureCategory, desc string, conf float64, at time.Time, ref domain.EvidenceRef) {
		c, ok := candidates[cat]
		if !ok {
			c = &candidate{category: cat, description: desc, missProb: 1}
			candidates[cat] = c
		}
		c.observe(conf, at, ref)
	}

	// The order's own recorded failure reason, trusted less than
	// correlated evidence
	if subject.Order != nil {
		if cat, desc, ok := categoryForReason(subject.Order.FailureReason); ok {
			observe(cat, desc, 0.5, subject.Timestamp,
				domain.EvidenceRef{Kind: domain.EvidenceEvent, ID: subject.ID})
		}
	}

	corrs, err := r.correlations.CorrelationsForEvent(ctx, subject.ID)
	if err != nil {
		return nil, &EvidenceFetchError{SubjectEventID: subject.ID, Stage: "correlation", Err: err}
	}

	for _, corr := range corrs {
		otherID := corr.SecondaryEventID
		if otherID == subject.ID {
			otherID = corr.PrimaryEventID
		}

		other, err := r.events.EventByID(ctx, otherID)
		if err != nil {
			return nil, &EvidenceFetchError{SubjectEventID: subject.ID, Stage: "event", Err: err}
		}
		if other == nil {
			continue
		}

		cat, desc, ok := categoryForEvent(other)
		if !ok {
			continue
		}

		observe(cat, desc, corr.Strength*corr.Confidence, other.Timestamp,
			domain.EvidenceRef{Kind: domain.EvidenceCorrelation, ID: corr.ID})
	}

	// Anomaly patterns on the failure's entities point at a systemic
	// problem with that entity rather than a one-off counterpart event
	if r.patterns != nil {
		seen := make(map[string]bool)
		for _, ref := range subject.Entities {
			for _, p := range r.patterns.PatternsForEntity(ref) {
				if p.Type != domain.PatternAnomaly || seen[p.ID] {
					continue
				}
				seen[p.ID] = true
				observe(domain.CategoryOperational,
					"abnormal failure rate for "+ref.Key(),
					p.Confidence*0.6, p.FirstSeen,
					domain.EvidenceRef{Kind: domain.EvidencePattern, ID: p.ID})
			}
		}
	}

	causes := r.rankCandidates(candidates)
	now := time.Now().UTC()

	if len(causes) == 0 {
		r.metrics.inconclusive.Add(ctx, 1)
		r.metrics.resolveLatency.Record(ctx, time.Since(start).Seconds())
		r.logger.Info("Analysis inconclusive",
			zap.String("subject_event", subject.ID),
			zap.Int("candidates_considered", len(candidates)))
		return &domain.RootCause{
			AnalysisID:     domain.NewAnalysisID(subject.ID),
			SubjectEventID: subject.ID,
			Status:         domain.StatusInconclusive,
			CreatedAt:      now,
			UpdatedAt:      now,
		}, nil
	}

	primary := causes[0]
	severity := r.cfg.SeverityMap[primary.Category]
	if severity == "" {
		severity = domain.SeverityLow
	}

	rc := &domain.RootCause{
		AnalysisID:         domain.NewAnalysisID(subject.ID),
		SubjectEventID:     subject.ID,
		PrimaryCause:       &primary,
		ContributingCauses: causes[1:],
		Category:           primary.Category,
		Severity:           severity,
		Confidence:         primary.Confidence,
		EvidenceTrail:      r.evidenceTrail(candidates, causes),
		Impact:             ImpactFor(primary.Category),
		Status:             domain.StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	r.metrics.recordResolved(ctx, string(primary.Category), primary.Score)
	r.metrics.resolveLatency.Record(ctx, time.Since(start).Seconds())
	r.logger.Info("Root cause resolved",
		zap.String("subject_event", subject.ID),
		zap.String("category", string(primary.Category)),
		zap.Float64("score", primary.Score),
		zap.Int("contributing", len(rc.ContributingCauses)))

	return rc, nil
}

// Reopen moves a resolved analysis back to in-progress when
// contradicting evidence arrives. Closed analyses stay closed.
func (r *Resolver) Reopen(rc *domain.RootCause, now time.Time) error {
	if err := rc.Transition(domain.StatusInProgress, now); err != nil {
		return err
	}
	r.logger.Warn("Analysis reopened on new evidence",
		zap.String("analysis", rc.AnalysisID),
		zap.String("subject_event", rc.SubjectEventID))
	return nil
}

// rankCandidates scores candidates and returns those above the cutoff,
// best first. Ties break toward the earlier evidence timestamp since
// the earlier signal is presumed more upstream.
func (r *Resolver) rankCandidates(candidates map[domain.FailureCategory]*candidate) []domain.Cause {
	var causes []domain.Cause
	for _, c := range candidates {
		weight, ok := r.cfg.ImpactWeights[c.category]
		if !ok {
			weight = 0.5
		}
		score := weight * frequencyFactor(c.frequency) * c.confidence()
		if score < r.cfg.MinScore {
			continue
		}
		causes = append(causes, domain.Cause{
			Category:         c.category,
			Description:      c.description,
			Score:            score,
			Confidence:       c.confidence(),
			Frequency:        c.frequency,
			EarliestEvidence: c.earliest,
		})
	}

	sort.SliceStable(causes, func(i, j int) bool {
		if causes[i].Score != causes[j].Score {
			return causes[i].Score > causes[j].Score
		}
		return causes[i].EarliestEvidence.Before(causes[j].EarliestEvidence)
	})
	return causes
}

// evidenceTrail orders evidence refs by cause rank, primary first
func (r *Resolver) evidenceTrail(candidates map[domain.FailureCategory]*candidate, causes []domain.Cause) []domain.EvidenceRef {
	var trail []domain.EvidenceRef
	for _, cause := range causes {
		trail = append(trail, candidates[cause.Category].evidence...)
	}
	return trail
}

// frequencyFactor saturates toward 1 as supporting observations
// accumulate, keeping scores comparable across candidates with very
// different evidence volumes
func frequencyFactor(frequency int) float64 {
	return 1 - math.Pow(0.7, float64(frequency))
}
