package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationDistanceKM(t *testing.T) {
	delhi := Location{Latitude: 28.6139, Longitude: 77.2090}
	mumbai := Location{Latitude: 19.0760, Longitude: 72.8777}

	d := delhi.DistanceKM(mumbai)
	// Great-circle distance Delhi-Mumbai is about 1150km
	assert.InDelta(t, 1150, d, 30)

	// Same point
	assert.InDelta(t, 0, delhi.DistanceKM(delhi), 0.001)

	// Missing coordinates
	assert.Equal(t, float64(-1), delhi.DistanceKM(Location{City: "Pune"}))
}

func TestEventValidate(t *testing.T) {
	valid := &Event{
		ID:        "evt-1",
		Type:      EventTypeOrder,
		Timestamp: time.Now(),
		Entities:  []EntityRef{{Kind: "order", ID: "1001"}},
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Event)
	}{
		{"missing id", func(e *Event) { e.ID = "" }},
		{"unknown type", func(e *Event) { e.Type = "bogus" }},
		{"zero timestamp", func(e *Event) { e.Timestamp = time.Time{} }},
		{"no entities", func(e *Event) { e.Entities = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := *valid
			e.Entities = append([]EntityRef{}, valid.Entities...)
			tt.mutate(&e)
			assert.Error(t, e.Validate())
		})
	}
}

func TestEventSharedEntities(t *testing.T) {
	order := EntityRef{Kind: "order", ID: "1001"}
	driver := EntityRef{Kind: "driver", ID: "D42"}

	a := &Event{Entities: []EntityRef{order, driver}}
	b := &Event{Entities: []EntityRef{driver, {Kind: "warehouse", ID: "W7"}}}

	shared := a.SharedEntities(b)
	require.Len(t, shared, 1)
	assert.Equal(t, driver, shared[0])
}

func TestCorrelationValidate(t *testing.T) {
	c := &Correlation{
		PrimaryEventID:   "a",
		SecondaryEventID: "a",
		Type:             CorrelationTemporal,
		Strength:         0.5,
		Confidence:       0.5,
	}
	assert.Error(t, c.Validate(), "self-correlation must be rejected")

	c.SecondaryEventID = "b"
	assert.NoError(t, c.Validate())

	c.Strength = 1.5
	assert.Error(t, c.Validate())
}

func TestCorrelationKeyUndirectedNormalizes(t *testing.T) {
	ab := &Correlation{PrimaryEventID: "a", SecondaryEventID: "b", Type: CorrelationSpatial}
	ba := &Correlation{PrimaryEventID: "b", SecondaryEventID: "a", Type: CorrelationSpatial}
	assert.Equal(t, ab.Key(), ba.Key())

	// Causal correlations are directed, order matters
	cab := &Correlation{PrimaryEventID: "a", SecondaryEventID: "b", Type: CorrelationCausal, Directed: true}
	cba := &Correlation{PrimaryEventID: "b", SecondaryEventID: "a", Type: CorrelationCausal, Directed: true}
	assert.NotEqual(t, cab.Key(), cba.Key())
}

func TestResolutionStatusTransitions(t *testing.T) {
	now := time.Now()
	rc := &RootCause{AnalysisID: "an-1", Status: StatusPending}

	require.NoError(t, rc.Transition(StatusInProgress, now))
	require.NoError(t, rc.Transition(StatusResolved, now))
	require.NoError(t, rc.Transition(StatusClosed, now))

	// Closed is terminal
	assert.Error(t, rc.Transition(StatusPending, now))
	assert.Error(t, rc.Transition(StatusInProgress, now))

	// Resolved can reopen to InProgress
	rc2 := &RootCause{Status: StatusResolved}
	assert.NoError(t, rc2.Transition(StatusInProgress, now))

	// Pending may resolve directly, then close
	rc3 := &RootCause{Status: StatusPending}
	require.NoError(t, rc3.Transition(StatusResolved, now))
	require.NoError(t, rc3.Transition(StatusClosed, now))
	assert.Error(t, rc3.Transition(StatusPending, now))

	// Pending never closes without resolving
	rc5 := &RootCause{Status: StatusPending}
	assert.Error(t, rc5.Transition(StatusClosed, now))

	// Inconclusive has no lifecycle
	rc4 := &RootCause{Status: StatusInconclusive}
	assert.Error(t, rc4.Transition(StatusInProgress, now))
}

func TestEventIsFailure(t *testing.T) {
	failed := &Event{Type: EventTypeOrder, Order: &OrderData{Status: "Failed"}}
	assert.True(t, failed.IsFailure())

	delivered := &Event{Type: EventTypeOrder, Order: &OrderData{Status: "Delivered"}}
	assert.False(t, delivered.IsFailure())

	breakdown := &Event{Type: EventTypeFleet, Fleet: &FleetData{BreakdownFlag: true}}
	assert.True(t, breakdown.IsFailure())

	external := &Event{Type: EventTypeExternal, External: &ExternalData{TrafficCondition: "Heavy"}}
	assert.False(t, external.IsFailure())
}
