package recommend

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics provides OTEL instruments for the synthesizer
type Metrics struct {
	synthesized    metric.Int64Counter
	skippedSettled metric.Int64Counter
	perAnalysis    metric.Int64Histogram
}

// NewMetrics creates the synthesizer's metric instruments
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("causeway.recommend")

	synthesized, err := meter.Int64Counter(
		"causeway.recommend.synthesized",
		metric.WithDescription("Recommendations synthesized"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	skippedSettled, err := meter.Int64Counter(
		"causeway.recommend.skipped.settled",
		metric.WithDescription("Analyses skipped as resolved with unchanged evidence"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	perAnalysis, err := meter.Int64Histogram(
		"causeway.recommend.per.analysis",
		metric.WithDescription("Recommendations produced per analysis"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		synthesized:    synthesized,
		skippedSettled: skippedSettled,
		perAnalysis:    perAnalysis,
	}, nil
}

func (m *Metrics) recordSynthesized(ctx context.Context, category string, count int) {
	attrs := metric.WithAttributes(attribute.String("category", category))
	m.synthesized.Add(ctx, int64(count), attrs)
	m.perAnalysis.Record(ctx, int64(count), attrs)
}
