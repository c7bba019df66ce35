package normalizer

import (
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/causewaylabs/causeway/pkg/domain"
)

// schemaFn maps a raw record's fields onto an event, returning a
// SchemaMismatchError when required fields are absent
type schemaFn func(rec *RawRecord, evt *domain.Event) error

// Normalizer converts heterogeneous raw records into the typed event
// stream. Pure transform: no side effects, idempotent aside from
// event ID generation when the record does not carry one.
type Normalizer struct {
	logger  *zap.Logger
	schemas map[string]schemaFn

	normalized  atomic.Int64
	quarantined atomic.Int64
}

// New creates a normalizer with the standard delivery-domain schemas
// registered
func New(logger *zap.Logger) *Normalizer {
	n := &Normalizer{
		logger:  logger,
		schemas: make(map[string]schemaFn),
	}
	n.schemas[SchemaOrders] = normalizeOrder
	n.schemas[SchemaFleetLogs] = normalizeFleet
	n.schemas[SchemaWarehouseLogs] = normalizeWarehouse
	n.schemas[SchemaExternalFactors] = normalizeExternal
	n.schemas[SchemaFeedback] = normalizeFeedback
	return n
}

// Normalize converts one raw record into one event, or fails with a
// SchemaMismatchError. Never returns a partially populated event.
func (n *Normalizer) Normalize(rec *RawRecord) (*domain.Event, error) {
	fn, ok := n.schemas[rec.SchemaID]
	if !ok {
		n.quarantined.Add(1)
		return nil, ErrUnknownSchema(rec.SchemaID)
	}

	evt := &domain.Event{
		ID:         rec.EventID,
		IngestedAt: rec.IngestedAt,
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}

	if err := fn(rec, evt); err != nil {
		n.quarantined.Add(1)
		return nil, err
	}

	if err := evt.Validate(); err != nil {
		n.quarantined.Add(1)
		return nil, &SchemaMismatchError{SchemaID: rec.SchemaID, Message: err.Error()}
	}

	n.normalized.Add(1)
	return evt, nil
}

// NormalizeBatch normalizes a batch, isolating per-record failures.
// Malformed records are logged and counted, never abort the batch.
func (n *Normalizer) NormalizeBatch(recs []*RawRecord) []*domain.Event {
	events := make([]*domain.Event, 0, len(recs))
	for _, rec := range recs {
		evt, err := n.Normalize(rec)
		if err != nil {
			n.logger.Warn("Quarantined malformed record",
				zap.String("schema", rec.SchemaID),
				zap.Error(err))
			continue
		}
		events = append(events, evt)
	}
	return events
}

// Stats returns lifetime normalized and quarantined record counts
func (n *Normalizer) Stats() (normalized, quarantined int64) {
	return n.normalized.Load(), n.quarantined.Load()
}
