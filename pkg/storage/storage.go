package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/causewaylabs/causeway/pkg/config"
	"github.com/causewaylabs/causeway/pkg/domain"
)

// Store is the persistence surface for the analysis pipeline. Events,
// correlations and recommendations are append-only; analyses are
// upserted so resolution status updates land on the stored record.
type Store interface {
	AppendEvent(ctx context.Context, evt *domain.Event) error
	EventByID(ctx context.Context, id string) (*domain.Event, error)
	EventsByEntity(ctx context.Context, ref domain.EntityRef, from, to time.Time) ([]*domain.Event, error)
	EventsInRange(ctx context.Context, from, to time.Time) ([]*domain.Event, error)

	AppendCorrelation(ctx context.Context, c *domain.Correlation) error
	CorrelationsForEvent(ctx context.Context, eventID string) ([]*domain.Correlation, error)
	CorrelationsInRange(ctx context.Context, from, to time.Time) ([]*domain.Correlation, error)

	SaveAnalysis(ctx context.Context, rc *domain.RootCause) error
	AnalysisByID(ctx context.Context, analysisID string) (*domain.RootCause, error)
	AnalysisForEvent(ctx context.Context, subjectEventID string) (*domain.RootCause, error)
	AnalysesInRange(ctx context.Context, from, to time.Time) ([]*domain.RootCause, error)

	AppendRecommendations(ctx context.Context, recs []*domain.Recommendation) error
	RecommendationsForAnalysis(ctx context.Context, analysisID string) ([]*domain.Recommendation, error)

	Close(ctx context.Context) error
}

// NotFoundError reports a missing record by kind and key
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// Open constructs the configured backend
func Open(cfg config.StorageConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(cfg, logger), nil
	case "sqlite":
		return NewSQLiteStore(cfg, logger)
	case "neo4j":
		return NewGraphStore(cfg, logger)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}
