package correlation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/causewaylabs/causeway/pkg/config"
	"github.com/causewaylabs/causeway/pkg/domain"
)

type captureStore struct {
	mu           sync.Mutex
	correlations []*domain.Correlation
}

func (s *captureStore) AppendCorrelation(_ context.Context, c *domain.Correlation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.correlations = append(s.correlations, c)
	return nil
}

func newTestEngine(t *testing.T, store Store) *Engine {
	t.Helper()
	cfg := config.DefaultConfig().Correlation
	cfg.MaxLateness = 0 // deterministic ordering in tests
	e, err := NewEngine(zaptest.NewLogger(t), cfg, store)
	require.NoError(t, err)
	return e
}

// trafficScenario builds the canonical cluster: three failed orders in
// the same city within two hours, plus a heavy traffic factor within
// 5km of all of them.
func trafficScenario() []*domain.Event {
	return []*domain.Event{
		trafficEvent("traffic", testBase, 19.0760, 72.8777),
		failedOrderEvent("order1", testBase.Add(20*time.Minute), 19.0800, 72.8800),
		failedOrderEvent("order2", testBase.Add(50*time.Minute), 19.0700, 72.8700),
		failedOrderEvent("order3", testBase.Add(80*time.Minute), 19.0850, 72.8900),
	}
}

func TestEngineTrafficClusterScenario(t *testing.T) {
	store := &captureStore{}
	e := newTestEngine(t, store)

	found, err := e.CorrelateBatch(context.Background(), trafficScenario())
	require.NoError(t, err)
	require.NotEmpty(t, found)

	// Index correlated pairs by type
	type pair struct{ a, b string }
	linked := map[domain.CorrelationType]map[pair]bool{}
	for _, c := range found {
		if linked[c.Type] == nil {
			linked[c.Type] = map[pair]bool{}
		}
		linked[c.Type][pair{c.PrimaryEventID, c.SecondaryEventID}] = true
		linked[c.Type][pair{c.SecondaryEventID, c.PrimaryEventID}] = true
	}

	// Spatial and temporal correlations among all three orders and the
	// traffic factor
	for _, id := range []string{"order1", "order2", "order3"} {
		assert.True(t, linked[domain.CorrelationSpatial][pair{"traffic", id}],
			"expected spatial correlation traffic<->%s", id)
		assert.True(t, linked[domain.CorrelationTemporal][pair{"traffic", id}] ||
			linked[domain.CorrelationSpatial][pair{"traffic", id}],
			"expected temporal proximity traffic<->%s", id)
	}
	assert.True(t, linked[domain.CorrelationSpatial][pair{"order1", "order2"}])
	assert.True(t, linked[domain.CorrelationSpatial][pair{"order2", "order3"}])

	// Causal rule fires for each failure
	for _, id := range []string{"order1", "order2", "order3"} {
		assert.True(t, linked[domain.CorrelationCausal][pair{"traffic", id}],
			"expected causal correlation traffic->%s", id)
	}

	// Everything retained was persisted
	assert.Len(t, store.correlations, len(found))
}

func TestEngineIdempotentOnReplay(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	events := trafficScenario()
	first, err := e.CorrelateBatch(ctx, events)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := e.CorrelateBatch(ctx, events)
	require.NoError(t, err)
	assert.Empty(t, second, "replaying the same batch must not produce duplicates")
}

func TestEngineThresholdFiltering(t *testing.T) {
	ctx := context.Background()

	strict := config.DefaultConfig().Correlation
	strict.MaxLateness = 0
	strict.MinStrength = 0.9
	se, err := NewEngine(zaptest.NewLogger(t), strict, nil)
	require.NoError(t, err)

	loose := strict
	loose.MinStrength = 0.1
	le, err := NewEngine(zaptest.NewLogger(t), loose, nil)
	require.NoError(t, err)

	strictFound, err := se.CorrelateBatch(ctx, trafficScenario())
	require.NoError(t, err)
	looseFound, err := le.CorrelateBatch(ctx, trafficScenario())
	require.NoError(t, err)

	// Raising the threshold never adds correlations: the strict set is
	// a subset of the loose one
	looseKeys := map[string]bool{}
	for _, c := range looseFound {
		looseKeys[c.Key()] = true
		assert.Greater(t, c.Strength, loose.MinStrength)
	}
	for _, c := range strictFound {
		assert.Greater(t, c.Strength, strict.MinStrength)
		assert.True(t, looseKeys[c.Key()], "strict result %s missing from loose set", c.Key())
	}
	assert.Less(t, len(strictFound), len(looseFound))
}

func TestEngineRejectsInvalidEvent(t *testing.T) {
	e := newTestEngine(t, nil)

	_, err := e.Correlate(context.Background(), &domain.Event{ID: "x"})
	assert.Error(t, err)
}

func TestEngineStreamingSubmit(t *testing.T) {
	e := newTestEngine(t, nil)
	require.NoError(t, e.Start())

	ctx := context.Background()
	for _, evt := range trafficScenario() {
		require.NoError(t, e.Submit(ctx, evt))
	}

	// Collect asynchronously delivered results
	var got []*domain.Correlation
	deadline := time.After(5 * time.Second)
	for len(got) == 0 {
		select {
		case c, ok := <-e.Results():
			if !ok {
				t.Fatal("results channel closed early")
			}
			got = append(got, c)
		case <-deadline:
			t.Fatal("no correlations delivered")
		}
	}

	require.NoError(t, e.Stop())
}

func TestEngineStopReturnsPromptly(t *testing.T) {
	e := newTestEngine(t, nil)
	require.NoError(t, e.Start())

	ctx := context.Background()
	for _, evt := range trafficScenario() {
		require.NoError(t, e.Submit(ctx, evt))
	}

	done := make(chan error, 1)
	go func() { done <- e.Stop() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return after draining the workers")
	}

	// A stopped engine rejects further submissions instead of
	// panicking on a closed channel
	assert.Error(t, e.Submit(ctx, trafficEvent("late", testBase, 19.07, 72.87)))
	assert.NoError(t, e.Stop(), "Stop is idempotent")
}

func TestEngineReplayAfterRestartHitsSameRows(t *testing.T) {
	store := &captureStore{}
	events := trafficScenario()
	ctx := context.Background()

	first := newTestEngine(t, store)
	found, err := first.CorrelateBatch(ctx, events)
	require.NoError(t, err)
	require.NotEmpty(t, found)

	for _, c := range found {
		assert.Equal(t, domain.NewCorrelationID(c.Key()), c.ID)
	}

	// A fresh engine over the same store re-derives identical IDs, so
	// keyed appends land on existing rows instead of duplicating them
	second := newTestEngine(t, store)
	_, err = second.CorrelateBatch(ctx, events)
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, c := range store.correlations {
		ids[c.ID] = true
	}
	assert.Len(t, ids, len(found), "restart replay must not mint new correlation IDs")
}

func TestEngineLateEventFlagged(t *testing.T) {
	cfg := config.DefaultConfig().Correlation
	cfg.MaxLateness = 10 * time.Minute
	e, err := NewEngine(zaptest.NewLogger(t), cfg, nil)
	require.NoError(t, err)

	ctx := context.Background()

	// Advance the watermark well past the straggler
	_, err = e.Correlate(ctx, trafficEvent("head", testBase.Add(3*time.Hour), 19.07, 72.87))
	require.NoError(t, err)

	// Straggler pairs causally with an order near its own timestamp
	_, err = e.Correlate(ctx, failedOrderEvent("o-old", testBase.Add(2*time.Hour+50*time.Minute), 19.08, 72.88))
	require.NoError(t, err)

	found, err := e.Correlate(ctx, trafficEvent("straggler", testBase.Add(time.Hour), 19.0700, 72.8700))
	require.NoError(t, err)

	require.NotEmpty(t, found)
	for _, c := range found {
		assert.True(t, c.Late, "correlations from a beyond-tolerance event carry the late flag")
	}
}
