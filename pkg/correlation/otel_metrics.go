package correlation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics provides OTEL instruments for the correlation engine
type Metrics struct {
	eventsProcessed   metric.Int64Counter
	eventsLate        metric.Int64Counter
	correlationsFound metric.Int64Counter
	correlationsWeak  metric.Int64Counter
	duplicatesSkipped metric.Int64Counter
	processingLatency metric.Float64Histogram
	strengthHist      metric.Float64Histogram
}

// NewMetrics creates the engine's metric instruments
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("causeway.correlation")

	eventsProcessed, err := meter.Int64Counter(
		"causeway.correlation.events.processed",
		metric.WithDescription("Events processed by the correlation engine"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	eventsLate, err := meter.Int64Counter(
		"causeway.correlation.events.late",
		metric.WithDescription("Events that arrived beyond the lateness tolerance"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	correlationsFound, err := meter.Int64Counter(
		"causeway.correlation.found",
		metric.WithDescription("Correlations retained above the strength threshold"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	correlationsWeak, err := meter.Int64Counter(
		"causeway.correlation.dropped.weak",
		metric.WithDescription("Correlations dropped below the strength threshold"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	duplicatesSkipped, err := meter.Int64Counter(
		"causeway.correlation.dropped.duplicate",
		metric.WithDescription("Correlations skipped as duplicates of retained ones"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	processingLatency, err := meter.Float64Histogram(
		"causeway.correlation.processing.latency",
		metric.WithDescription("Per-event correlation latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	strengthHist, err := meter.Float64Histogram(
		"causeway.correlation.strength",
		metric.WithDescription("Strength distribution of retained correlations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		eventsProcessed:   eventsProcessed,
		eventsLate:        eventsLate,
		correlationsFound: correlationsFound,
		correlationsWeak:  correlationsWeak,
		duplicatesSkipped: duplicatesSkipped,
		processingLatency: processingLatency,
		strengthHist:      strengthHist,
	}, nil
}

func (m *Metrics) recordRetained(ctx context.Context, corrType string, strength float64) {
	attrs := metric.WithAttributes(attribute.String("type", corrType))
	m.correlationsFound.Add(ctx, 1, attrs)
	m.strengthHist.Record(ctx, strength, attrs)
}
