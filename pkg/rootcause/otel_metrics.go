package rootcause

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics provides OTEL instruments for the root cause resolver
type Metrics struct {
	analysesTotal    metric.Int64Counter
	inconclusive     metric.Int64Counter
	resolveLatency   metric.Float64Histogram
	primaryScoreHist metric.Float64Histogram
}

// NewMetrics creates the resolver's metric instruments
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("causeway.rootcause")

	analysesTotal, err := meter.Int64Counter(
		"causeway.rootcause.analyses",
		metric.WithDescription("Root cause analyses performed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	inconclusive, err := meter.Int64Counter(
		"causeway.rootcause.inconclusive",
		metric.WithDescription("Analyses where no candidate cleared the score cutoff"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	resolveLatency, err := meter.Float64Histogram(
		"causeway.rootcause.resolve.latency",
		metric.WithDescription("Per-analysis resolution latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	primaryScoreHist, err := meter.Float64Histogram(
		"causeway.rootcause.primary.score",
		metric.WithDescription("Score distribution of primary causes"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		analysesTotal:    analysesTotal,
		inconclusive:     inconclusive,
		resolveLatency:   resolveLatency,
		primaryScoreHist: primaryScoreHist,
	}, nil
}

func (m *Metrics) recordResolved(ctx context.Context, category string, score float64) {
	attrs := metric.WithAttributes(attribute.String("category", category))
	m.analysesTotal.Add(ctx, 1, attrs)
	m.primaryScoreHist.Record(ctx, score, attrs)
}
