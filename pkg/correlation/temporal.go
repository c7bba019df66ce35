package correlation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/causewaylabs/causeway/pkg/domain"
)

// TemporalCorrelator relates events whose timestamps fall within the
// configured window and that share at least one entity reference or
// geographic proximity.
type TemporalCorrelator struct {
	logger *zap.Logger
	scorer *ConfidenceScorer

	window   time.Duration
	radiusKM float64
}

// NewTemporalCorrelator creates a temporal correlator
func NewTemporalCorrelator(logger *zap.Logger, scorer *ConfidenceScorer, window time.Duration, radiusKM float64) *TemporalCorrelator {
	return &TemporalCorrelator{
		logger:   logger,
		scorer:   scorer,
		window:   window,
		radiusKM: radiusKM,
	}
}

func (t *TemporalCorrelator) Name() string { return "temporal" }

// Process finds temporally related events in the window
func (t *TemporalCorrelator) Process(ctx context.Context, event *domain.Event, window *EventWindow) ([]*domain.Correlation, error) {
	start := event.Timestamp.Add(-t.window)
	end := event.Timestamp.Add(t.window)

	var correlations []*domain.Correlation
	for _, nearby := range window.EventsInRange(start, end) {
		if nearby.ID == event.ID {
			continue
		}

		shared := event.SharedEntities(nearby)
		proximate := t.proximate(event, nearby)
		if len(shared) == 0 && !proximate {
			continue
		}

		delta := event.Timestamp.Sub(nearby.Timestamp)
		if delta < 0 {
			delta = -delta
		}

		// Strength decays linearly with temporal distance; entity
		// overlap anchors it harder than mere proximity
		strength := 1 - float64(delta)/float64(t.window)
		if len(shared) == 0 {
			strength *= 0.7
		}

		c := &domain.Correlation{
			PrimaryEventID:   nearby.ID,
			SecondaryEventID: event.ID,
			Type:             domain.CorrelationTemporal,
			Strength:         strength,
			Confidence: t.scorer.Score(Features{
				TimeDelta:      delta,
				Window:         t.window,
				SharedEntities: len(shared),
				Proximate:      proximate,
			}),
			Window:    t.window,
			Evidence:  t.explain(nearby, event, shared, delta),
			CreatedAt: time.Now(),
		}
		correlations = append(correlations, c)
	}
	return correlations, nil
}

func (t *TemporalCorrelator) proximate(a, b *domain.Event) bool {
	if d := a.Location.DistanceKM(b.Location); d >= 0 {
		return d <= t.radiusKM
	}
	return a.Location.SameCity(b.Location)
}

func (t *TemporalCorrelator) explain(a, b *domain.Event, shared []domain.EntityRef, delta time.Duration) string {
	if len(shared) > 0 {
		return fmt.Sprintf("%s and %s events %s apart sharing entity %s",
			a.Type, b.Type, delta.Round(time.Second), shared[0].Key())
	}
	return fmt.Sprintf("%s and %s events %s apart in geographic proximity",
		a.Type, b.Type, delta.Round(time.Second))
}
