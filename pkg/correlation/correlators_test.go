package correlation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/causewaylabs/causeway/pkg/domain"
)

var testBase = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func failedOrderEvent(id string, ts time.Time, lat, lon float64) *domain.Event {
	return &domain.Event{
		ID:        id,
		Type:      domain.EventTypeOrder,
		Timestamp: ts,
		Location:  domain.Location{Latitude: lat, Longitude: lon, City: "Mumbai"},
		Entities:  []domain.EntityRef{{Kind: "order", ID: id}},
		Order:     &domain.OrderData{Status: "Failed", FailureReason: "Traffic congestion"},
	}
}

func trafficEvent(id string, ts time.Time, lat, lon float64) *domain.Event {
	return &domain.Event{
		ID:        id,
		Type:      domain.EventTypeExternal,
		Timestamp: ts,
		Location:  domain.Location{Latitude: lat, Longitude: lon, City: "Mumbai"},
		Entities:  []domain.EntityRef{{Kind: "factor", ID: id}},
		External:  &domain.ExternalData{TrafficCondition: "Heavy"},
	}
}

func testScorer() *ConfidenceScorer {
	return NewConfidenceScorer(DefaultFeatureWeights())
}

func TestTemporalCorrelatorSharedEntity(t *testing.T) {
	tc := NewTemporalCorrelator(zaptest.NewLogger(t), testScorer(), 2*time.Hour, 5.0)
	w := NewEventWindow(4*time.Hour, 1000)

	order := domain.EntityRef{Kind: "order", ID: "1001"}
	a := &domain.Event{
		ID: "a", Type: domain.EventTypeWarehouse, Timestamp: testBase,
		Entities:  []domain.EntityRef{order, {Kind: "warehouse", ID: "W1"}},
		Warehouse: &domain.WarehouseData{DelayedMinute: 40},
	}
	b := &domain.Event{
		ID: "b", Type: domain.EventTypeOrder, Timestamp: testBase.Add(30 * time.Minute),
		Entities: []domain.EntityRef{order},
		Order:    &domain.OrderData{Status: "Failed"},
	}

	w.Add(a)
	w.Add(b)

	found, err := tc.Process(context.Background(), b, w)
	require.NoError(t, err)
	require.Len(t, found, 1)

	c := found[0]
	assert.Equal(t, domain.CorrelationTemporal, c.Type)
	assert.Equal(t, "a", c.PrimaryEventID)
	assert.Equal(t, "b", c.SecondaryEventID)
	assert.Greater(t, c.Strength, 0.5, "30min delta in a 2h window should stay strong")
	assert.NoError(t, c.Validate())
}

func TestTemporalCorrelatorIgnoresUnrelated(t *testing.T) {
	tc := NewTemporalCorrelator(zaptest.NewLogger(t), testScorer(), 2*time.Hour, 5.0)
	w := NewEventWindow(4*time.Hour, 1000)

	// Different entities, different cities, no coordinates
	a := &domain.Event{
		ID: "a", Type: domain.EventTypeOrder, Timestamp: testBase,
		Location: domain.Location{City: "Delhi"},
		Entities: []domain.EntityRef{{Kind: "order", ID: "1"}},
	}
	b := &domain.Event{
		ID: "b", Type: domain.EventTypeOrder, Timestamp: testBase.Add(time.Minute),
		Location: domain.Location{City: "Mumbai"},
		Entities: []domain.EntityRef{{Kind: "order", ID: "2"}},
	}

	w.Add(a)
	w.Add(b)

	found, err := tc.Process(context.Background(), b, w)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSpatialCorrelatorRadius(t *testing.T) {
	sc := NewSpatialCorrelator(zaptest.NewLogger(t), testScorer(), 5.0, 2*time.Hour)
	w := NewEventWindow(4*time.Hour, 1000)

	// ~1.2km apart in Mumbai
	a := failedOrderEvent("a", testBase, 19.0760, 72.8777)
	b := failedOrderEvent("b", testBase.Add(20*time.Minute), 19.0860, 72.8820)
	// ~1150km away in Delhi
	far := failedOrderEvent("far", testBase.Add(10*time.Minute), 28.6139, 77.2090)
	far.Location.City = "Delhi"

	w.Add(a)
	w.Add(far)
	w.Add(b)

	found, err := sc.Process(context.Background(), b, w)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "a", found[0].PrimaryEventID)
	assert.Greater(t, found[0].Strength, 0.7)
}

func TestCausalCorrelatorTrafficRule(t *testing.T) {
	cc := NewCausalCorrelator(zaptest.NewLogger(t), testScorer(), DefaultCausalRules(), 2*time.Hour, 5.0)
	w := NewEventWindow(4*time.Hour, 1000)

	traffic := trafficEvent("t1", testBase, 19.0760, 72.8777)
	failure := failedOrderEvent("o1", testBase.Add(45*time.Minute), 19.0800, 72.8800)

	w.Add(traffic)
	w.Add(failure)

	found, err := cc.Process(context.Background(), failure, w)
	require.NoError(t, err)
	require.Len(t, found, 1)

	c := found[0]
	assert.Equal(t, domain.CorrelationCausal, c.Type)
	assert.True(t, c.Directed)
	assert.Equal(t, "t1", c.PrimaryEventID, "cause precedes effect")
	assert.Equal(t, "o1", c.SecondaryEventID)
}

func TestCausalCorrelatorRequiresStrictOrdering(t *testing.T) {
	cc := NewCausalCorrelator(zaptest.NewLogger(t), testScorer(), DefaultCausalRules(), 2*time.Hour, 5.0)
	w := NewEventWindow(4*time.Hour, 1000)

	// Traffic factor recorded after the failure cannot cause it
	failure := failedOrderEvent("o1", testBase, 19.0760, 72.8777)
	traffic := trafficEvent("t1", testBase.Add(30*time.Minute), 19.0760, 72.8777)

	w.Add(failure)
	w.Add(traffic)

	found, err := cc.Process(context.Background(), traffic, w)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestCausalCorrelatorLateArrivingCause(t *testing.T) {
	cc := NewCausalCorrelator(zaptest.NewLogger(t), testScorer(), DefaultCausalRules(), 2*time.Hour, 5.0)
	w := NewEventWindow(4*time.Hour, 1000)

	// Effect ingested first, cause arrives later with an earlier timestamp
	failure := failedOrderEvent("o1", testBase.Add(time.Hour), 19.0760, 72.8777)
	w.Add(failure)

	traffic := trafficEvent("t1", testBase, 19.0760, 72.8777)
	w.Add(traffic)

	found, err := cc.Process(context.Background(), traffic, w)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "t1", found[0].PrimaryEventID)
}

func TestStatisticalCorrelatorNeedsMinCoOccurrence(t *testing.T) {
	sc := NewStatisticalCorrelator(zaptest.NewLogger(t), testScorer(), 15*time.Minute, 3)
	w := NewEventWindow(24*time.Hour, 10000)
	ctx := context.Background()

	var lastFound []*domain.Correlation
	// External + order events in the same bin, across several bins;
	// unrelated fleet events occupy other bins so neither type of the
	// pair is ubiquitous and the co-occurrence stays informative
	for i := 0; i < 4; i++ {
		binStart := testBase.Add(time.Duration(i) * time.Hour)

		ext := trafficEvent(fmt.Sprintf("t%d", i), binStart, 19.07, 72.87)
		ord := failedOrderEvent(fmt.Sprintf("o%d", i), binStart.Add(time.Minute), 19.07, 72.87)
		lone := &domain.Event{
			ID: fmt.Sprintf("f%d", i), Type: domain.EventTypeFleet,
			Timestamp: binStart.Add(30 * time.Minute),
			Entities:  []domain.EntityRef{{Kind: "driver", ID: "D9"}},
			Fleet:     &domain.FleetData{RouteCode: "R1"},
		}

		w.Add(ext)
		w.Add(ord)
		w.Add(lone)

		_, err := sc.Process(ctx, ext, w)
		require.NoError(t, err)
		found, err := sc.Process(ctx, ord, w)
		require.NoError(t, err)
		_, err = sc.Process(ctx, lone, w)
		require.NoError(t, err)

		if i < 2 {
			assert.Empty(t, found, "below minimum co-occurrence at round %d", i)
		}
		lastFound = found
	}

	require.NotEmpty(t, lastFound, "co-occurrence threshold reached")
	c := lastFound[0]
	assert.Equal(t, domain.CorrelationStatistical, c.Type)
	assert.Greater(t, c.Strength, 0.0)
	assert.LessOrEqual(t, c.Strength, 1.0)
}

func TestStatisticalCorrelatorPruneBoundsState(t *testing.T) {
	sc := NewStatisticalCorrelator(zaptest.NewLogger(t), testScorer(), 15*time.Minute, 3)
	w := NewEventWindow(24*time.Hour, 10000)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		binStart := testBase.Add(time.Duration(i) * time.Hour)
		ext := trafficEvent(fmt.Sprintf("pt%d", i), binStart, 19.07, 72.87)
		ord := failedOrderEvent(fmt.Sprintf("po%d", i), binStart.Add(time.Minute), 19.07, 72.87)
		w.Add(ext)
		w.Add(ord)

		_, err := sc.Process(ctx, ext, w)
		require.NoError(t, err)
		_, err = sc.Process(ctx, ord, w)
		require.NoError(t, err)
	}

	pair := makeTypePair(domain.EventTypeExternal, domain.EventTypeOrder)
	require.Equal(t, 8, sc.pairBins[pair])
	require.Len(t, sc.totalBins, 8)

	// Bins before the cutoff drop, and co-occupancy counts follow
	sc.Prune(testBase.Add(4 * time.Hour))

	assert.Len(t, sc.totalBins, 4)
	assert.Len(t, sc.typeBins[domain.EventTypeExternal], 4)
	assert.Len(t, sc.typeBins[domain.EventTypeOrder], 4)
	assert.Len(t, sc.latest[domain.EventTypeOrder], 4)
	assert.Equal(t, 4, sc.pairBins[pair])
}

func TestConfidenceScorerMonotonicInOccurrences(t *testing.T) {
	s := testScorer()

	base := Features{TimeDelta: time.Minute, Window: time.Hour}
	prev := -1.0
	for occ := 0; occ <= 20; occ += 2 {
		f := base
		f.Occurrences = occ
		score := s.Score(f)
		assert.GreaterOrEqual(t, score, prev, "confidence never decreases with more observations")
		assert.LessOrEqual(t, score, 1.0)
		prev = score
	}
}
