package correlation

import (
	"context"

	"github.com/causewaylabs/causeway/pkg/domain"
)

// Correlator finds relationships between a newly arrived event and
// the window of recent events. Implementations must not mutate events.
type Correlator interface {
	Name() string
	Process(ctx context.Context, event *domain.Event, window *EventWindow) ([]*domain.Correlation, error)
}

// Store is the engine's append-only write path for correlations
type Store interface {
	AppendCorrelation(ctx context.Context, c *domain.Correlation) error
}
