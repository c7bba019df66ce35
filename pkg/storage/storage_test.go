package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/causewaylabs/causeway/pkg/config"
	"github.com/causewaylabs/causeway/pkg/domain"
)

var storeBase = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

// backends the shared suite runs against. Neo4j needs a live server
// and is exercised in integration environments instead.
func openBackends(t *testing.T) map[string]Store {
	t.Helper()
	logger := zaptest.NewLogger(t)

	memCfg := config.DefaultConfig().Storage
	mem := NewMemoryStore(memCfg, logger)

	sqlCfg := config.DefaultConfig().Storage
	sqlCfg.Backend = "sqlite"
	sqlCfg.SQLitePath = filepath.Join(t.TempDir(), "causeway.db")
	sqlite, err := NewSQLiteStore(sqlCfg, logger)
	require.NoError(t, err)

	t.Cleanup(func() {
		mem.Close(context.Background())
		sqlite.Close(context.Background())
	})

	return map[string]Store{"memory": mem, "sqlite": sqlite}
}

func storeEvent(id string, ts time.Time, refs ...domain.EntityRef) *domain.Event {
	if len(refs) == 0 {
		refs = []domain.EntityRef{{Kind: "order", ID: id}}
	}
	return &domain.Event{
		ID: id, Type: domain.EventTypeOrder, Timestamp: ts,
		Entities: refs,
		Order:    &domain.OrderData{Status: "Failed", FailureReason: "Address not found"},
	}
}

func TestEventRoundTrip(t *testing.T) {
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			evt := storeEvent("e1", storeBase)

			require.NoError(t, store.AppendEvent(ctx, evt))
			// Re-append is a no-op, not an error
			require.NoError(t, store.AppendEvent(ctx, evt))

			got, err := store.EventByID(ctx, "e1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, evt.ID, got.ID)
			assert.Equal(t, evt.Type, got.Type)
			require.NotNil(t, got.Order)
			assert.Equal(t, "Address not found", got.Order.FailureReason)
			assert.True(t, evt.Timestamp.Equal(got.Timestamp))

			missing, err := store.EventByID(ctx, "nope")
			require.NoError(t, err)
			assert.Nil(t, missing)
		})
	}
}

func TestEventsByEntityAndRange(t *testing.T) {
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			driver := domain.EntityRef{Kind: "driver", ID: "D1"}

			for i := 0; i < 5; i++ {
				evt := storeEvent(fmt.Sprintf("e%d", i), storeBase.Add(time.Duration(i)*time.Hour), driver)
				require.NoError(t, store.AppendEvent(ctx, evt))
			}
			// Different entity, same range
			require.NoError(t, store.AppendEvent(ctx, storeEvent("other", storeBase.Add(time.Hour))))

			got, err := store.EventsByEntity(ctx, driver, storeBase.Add(time.Hour), storeBase.Add(3*time.Hour))
			require.NoError(t, err)
			require.Len(t, got, 3)
			assert.Equal(t, "e1", got[0].ID)
			assert.Equal(t, "e3", got[2].ID)

			all, err := store.EventsInRange(ctx, storeBase, storeBase.Add(4*time.Hour))
			require.NoError(t, err)
			assert.Len(t, all, 6)
			for i := 1; i < len(all); i++ {
				assert.False(t, all[i].Timestamp.Before(all[i-1].Timestamp), "timestamp order")
			}
		})
	}
}

func TestCorrelationLookups(t *testing.T) {
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.AppendEvent(ctx, storeEvent("a", storeBase)))
			require.NoError(t, store.AppendEvent(ctx, storeEvent("b", storeBase.Add(time.Minute))))
			require.NoError(t, store.AppendEvent(ctx, storeEvent("c", storeBase.Add(2*time.Minute))))

			c1 := &domain.Correlation{
				ID: "c1", PrimaryEventID: "a", SecondaryEventID: "b",
				Type: domain.CorrelationTemporal, Strength: 0.5, Confidence: 0.5,
				CreatedAt: storeBase.Add(time.Minute),
			}
			c2 := &domain.Correlation{
				ID: "c2", PrimaryEventID: "c", SecondaryEventID: "b",
				Type: domain.CorrelationCausal, Strength: 0.8, Confidence: 0.7, Directed: true,
				CreatedAt: storeBase.Add(2 * time.Minute),
			}
			require.NoError(t, store.AppendCorrelation(ctx, c1))
			require.NoError(t, store.AppendCorrelation(ctx, c2))

			// b appears on both sides
			forB, err := store.CorrelationsForEvent(ctx, "b")
			require.NoError(t, err)
			require.Len(t, forB, 2)

			forA, err := store.CorrelationsForEvent(ctx, "a")
			require.NoError(t, err)
			require.Len(t, forA, 1)
			assert.Equal(t, "c1", forA[0].ID)

			ranged, err := store.CorrelationsInRange(ctx, storeBase.Add(90*time.Second), storeBase.Add(3*time.Minute))
			require.NoError(t, err)
			require.Len(t, ranged, 1)
			assert.Equal(t, "c2", ranged[0].ID)
			assert.True(t, ranged[0].Directed)
		})
	}
}

func TestAnalysisUpsertAndLookup(t *testing.T) {
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.AppendEvent(ctx, storeEvent("o1", storeBase)))

			rc := &domain.RootCause{
				AnalysisID:     "a1",
				SubjectEventID: "o1",
				PrimaryCause:   &domain.Cause{Category: domain.CategoryTraffic, Score: 0.3},
				Category:       domain.CategoryTraffic,
				Severity:       domain.SeverityHigh,
				Status:         domain.StatusPending,
				CreatedAt:      storeBase,
				UpdatedAt:      storeBase,
			}
			require.NoError(t, store.SaveAnalysis(ctx, rc))

			// Status update persists through re-save
			require.NoError(t, rc.Transition(domain.StatusInProgress, storeBase.Add(time.Hour)))
			require.NoError(t, store.SaveAnalysis(ctx, rc))

			got, err := store.AnalysisByID(ctx, "a1")
			require.NoError(t, err)
			assert.Equal(t, domain.StatusInProgress, got.Status)
			require.NotNil(t, got.PrimaryCause)
			assert.Equal(t, domain.CategoryTraffic, got.PrimaryCause.Category)

			byEvent, err := store.AnalysisForEvent(ctx, "o1")
			require.NoError(t, err)
			assert.Equal(t, "a1", byEvent.AnalysisID)

			_, err = store.AnalysisByID(ctx, "nope")
			assert.True(t, IsNotFound(err))
		})
	}
}

func TestRecommendationsByAnalysis(t *testing.T) {
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			recs := []*domain.Recommendation{
				{ID: "r1", RootCauseID: "a1", Title: "Traffic-aware dispatch scheduling", Priority: 0.28},
				{ID: "r2", RootCauseID: "a1", Title: "Stagger dispatch around peak congestion", Priority: 0.2},
				{ID: "r3", RootCauseID: "a2", Title: "Review inventory reorder points", Priority: 0.21},
			}
			require.NoError(t, store.AppendRecommendations(ctx, recs))

			got, err := store.RecommendationsForAnalysis(ctx, "a1")
			require.NoError(t, err)
			assert.Len(t, got, 2)

			// Re-appending the same IDs is a no-op
			require.NoError(t, store.AppendRecommendations(ctx, recs))
			again, err := store.RecommendationsForAnalysis(ctx, "a1")
			require.NoError(t, err)
			assert.Len(t, again, 2)

			empty, err := store.RecommendationsForAnalysis(ctx, "none")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestMemoryStoreEvictsOldest(t *testing.T) {
	cfg := config.DefaultConfig().Storage
	cfg.MaxSize = 3
	store := NewMemoryStore(cfg, zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendEvent(ctx, storeEvent(fmt.Sprintf("e%d", i), storeBase.Add(time.Duration(i)*time.Minute))))
	}

	gone, err := store.EventByID(ctx, "e0")
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := store.EventByID(ctx, "e4")
	require.NoError(t, err)
	assert.NotNil(t, kept)

	// Entity index follows the eviction
	evicted, err := store.EventsByEntity(ctx, domain.EntityRef{Kind: "order", ID: "e0"}, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, evicted)
}

func TestOpenSelectsBackend(t *testing.T) {
	logger := zaptest.NewLogger(t)

	cfg := config.DefaultConfig().Storage
	mem, err := Open(cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, mem)

	cfg.Backend = "bogus"
	_, err = Open(cfg, logger)
	assert.Error(t, err)
}
