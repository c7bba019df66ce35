package correlation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/causewaylabs/causeway/pkg/domain"
)

// SpatialCorrelator relates events within a configurable radius,
// independent of entity overlap. Candidates are still drawn from the
// temporal window so the evaluation stays incremental.
type SpatialCorrelator struct {
	logger *zap.Logger
	scorer *ConfidenceScorer

	radiusKM float64
	window   time.Duration
}

// NewSpatialCorrelator creates a spatial correlator
func NewSpatialCorrelator(logger *zap.Logger, scorer *ConfidenceScorer, radiusKM float64, window time.Duration) *SpatialCorrelator {
	return &SpatialCorrelator{
		logger:   logger,
		scorer:   scorer,
		radiusKM: radiusKM,
		window:   window,
	}
}

func (s *SpatialCorrelator) Name() string { return "spatial" }

// Process finds spatially related events in the window
func (s *SpatialCorrelator) Process(ctx context.Context, event *domain.Event, window *EventWindow) ([]*domain.Correlation, error) {
	if !event.Location.HasCoordinates() && event.Location.City == "" {
		return nil, nil
	}

	start := event.Timestamp.Add(-s.window)
	end := event.Timestamp.Add(s.window)

	var correlations []*domain.Correlation
	for _, nearby := range window.EventsInRange(start, end) {
		if nearby.ID == event.ID {
			continue
		}

		var strength float64
		var evidence string
		if d := event.Location.DistanceKM(nearby.Location); d >= 0 {
			if d > s.radiusKM {
				continue
			}
			strength = 1 - d/s.radiusKM
			evidence = fmt.Sprintf("%s and %s events %.1f km apart", nearby.Type, event.Type, d)
		} else if event.Location.SameCity(nearby.Location) {
			// City-only records: proximity is known, distance is not
			strength = 0.4
			evidence = fmt.Sprintf("%s and %s events in %s", nearby.Type, event.Type, event.Location.City)
		} else {
			continue
		}

		delta := event.Timestamp.Sub(nearby.Timestamp)
		if delta < 0 {
			delta = -delta
		}

		c := &domain.Correlation{
			PrimaryEventID:   nearby.ID,
			SecondaryEventID: event.ID,
			Type:             domain.CorrelationSpatial,
			Strength:         strength,
			Confidence: s.scorer.Score(Features{
				TimeDelta:      delta,
				Window:         s.window,
				SharedEntities: len(event.SharedEntities(nearby)),
				Proximate:      true,
			}),
			Window:    s.window,
			Evidence:  evidence,
			CreatedAt: time.Now(),
		}
		correlations = append(correlations, c)
	}
	return correlations, nil
}
