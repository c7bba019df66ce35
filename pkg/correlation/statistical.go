package correlation

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/causewaylabs/causeway/pkg/domain"
)

// typePair is an unordered event type pair
type typePair struct {
	a, b domain.EventType
}

func makeTypePair(x, y domain.EventType) typePair {
	if y < x {
		x, y = y, x
	}
	return typePair{a: x, b: y}
}

// StatisticalCorrelator measures co-occurrence of event type pairs
// over binned time series and emits correlations whose strength is
// normalized pointwise mutual information.
type StatisticalCorrelator struct {
	logger *zap.Logger
	scorer *ConfidenceScorer

	binSize    time.Duration
	minCoOccur int

	mu sync.Mutex
	// Bins each type has appeared in, and pair co-occupancy counts
	typeBins  map[domain.EventType]map[int64]bool
	pairBins  map[typePair]int
	totalBins map[int64]bool
	// Latest event per (type, bin) to anchor emitted correlations
	latest map[domain.EventType]map[int64]*domain.Event
}

// NewStatisticalCorrelator creates a statistical correlator
func NewStatisticalCorrelator(logger *zap.Logger, scorer *ConfidenceScorer, binSize time.Duration, minCoOccur int) *StatisticalCorrelator {
	return &StatisticalCorrelator{
		logger:     logger,
		scorer:     scorer,
		binSize:    binSize,
		minCoOccur: minCoOccur,
		typeBins:   make(map[domain.EventType]map[int64]bool),
		pairBins:   make(map[typePair]int),
		totalBins:  make(map[int64]bool),
		latest:     make(map[domain.EventType]map[int64]*domain.Event),
	}
}

func (s *StatisticalCorrelator) Name() string { return "statistical" }

// Process records the event's bin occupancy and emits correlations
// for type pairs whose co-occurrence clears the minimum count
func (s *StatisticalCorrelator) Process(ctx context.Context, event *domain.Event, window *EventWindow) ([]*domain.Correlation, error) {
	bin := event.Timestamp.UnixNano() / int64(s.binSize)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalBins[bin] = true

	if s.typeBins[event.Type] == nil {
		s.typeBins[event.Type] = make(map[int64]bool)
	}
	firstInBin := !s.typeBins[event.Type][bin]
	s.typeBins[event.Type][bin] = true

	if s.latest[event.Type] == nil {
		s.latest[event.Type] = make(map[int64]*domain.Event)
	}
	s.latest[event.Type][bin] = event

	var correlations []*domain.Correlation
	for other, bins := range s.typeBins {
		if other == event.Type || !bins[bin] {
			continue
		}

		pair := makeTypePair(event.Type, other)
		if firstInBin {
			s.pairBins[pair]++
		}
		if s.pairBins[pair] < s.minCoOccur {
			continue
		}

		strength := s.npmi(pair)
		if strength <= 0 {
			continue
		}

		anchor := s.latest[other][bin]
		if anchor == nil || anchor.ID == event.ID {
			continue
		}

		delta := event.Timestamp.Sub(anchor.Timestamp)
		if delta < 0 {
			delta = -delta
		}

		correlations = append(correlations, &domain.Correlation{
			PrimaryEventID:   anchor.ID,
			SecondaryEventID: event.ID,
			Type:             domain.CorrelationStatistical,
			Strength:         strength,
			Confidence: s.scorer.Score(Features{
				TimeDelta:   delta,
				Window:      s.binSize,
				Occurrences: s.pairBins[pair],
			}),
			Window: s.binSize,
			Evidence: fmt.Sprintf("types %s and %s co-occur in %d bins (npmi %.2f)",
				pair.a, pair.b, s.pairBins[pair], strength),
			CreatedAt: time.Now(),
		})
	}
	return correlations, nil
}

// Prune drops bin state older than the cutoff so a long-lived stream
// does not accumulate bins forever. Pair co-occupancy counts are
// decremented for each pruned bin, keeping npmi denominators coherent.
func (s *StatisticalCorrelator) Prune(cutoff time.Time) {
	limit := cutoff.UnixNano() / int64(s.binSize)

	s.mu.Lock()
	defer s.mu.Unlock()

	for bin := range s.totalBins {
		if bin >= limit {
			continue
		}

		var present []domain.EventType
		for typ, bins := range s.typeBins {
			if bins[bin] {
				present = append(present, typ)
			}
		}
		for i := 0; i < len(present); i++ {
			for j := i + 1; j < len(present); j++ {
				pair := makeTypePair(present[i], present[j])
				if s.pairBins[pair] > 0 {
					s.pairBins[pair]--
				}
			}
		}

		for typ := range s.typeBins {
			delete(s.typeBins[typ], bin)
		}
		for typ := range s.latest {
			delete(s.latest[typ], bin)
		}
		delete(s.totalBins, bin)
	}
}

// npmi computes normalized pointwise mutual information for a type
// pair over the observed bins, mapped onto [0,1] (negative association
// clamps to 0)
func (s *StatisticalCorrelator) npmi(pair typePair) float64 {
	n := float64(len(s.totalBins))
	if n == 0 {
		return 0
	}

	pA := float64(len(s.typeBins[pair.a])) / n
	pB := float64(len(s.typeBins[pair.b])) / n
	pAB := float64(s.pairBins[pair]) / n
	if pA == 0 || pB == 0 || pAB == 0 {
		return 0
	}

	pmi := math.Log(pAB / (pA * pB))
	if pAB >= 1 {
		return 1
	}
	normalized := pmi / -math.Log(pAB)
	if normalized < 0 {
		return 0
	}
	return normalized
}
