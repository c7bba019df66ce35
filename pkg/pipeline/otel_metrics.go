package pipeline

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics provides OTEL instruments for the pipeline
type Metrics struct {
	recordsIn       metric.Int64Counter
	quarantined     metric.Int64Counter
	correlations    metric.Int64Counter
	analyses        metric.Int64Counter
	inconclusive    metric.Int64Counter
	recommendations metric.Int64Counter
	batchSize       metric.Int64Histogram
}

// NewMetrics creates the pipeline's metric instruments
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("causeway.pipeline")

	recordsIn, err := meter.Int64Counter(
		"causeway.pipeline.records.in",
		metric.WithDescription("Raw records entering the pipeline"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	quarantined, err := meter.Int64Counter(
		"causeway.pipeline.records.quarantined",
		metric.WithDescription("Records rejected during normalization"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	correlations, err := meter.Int64Counter(
		"causeway.pipeline.correlations",
		metric.WithDescription("Correlations retained per batch"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	analyses, err := meter.Int64Counter(
		"causeway.pipeline.analyses",
		metric.WithDescription("Failure analyses completed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	inconclusive, err := meter.Int64Counter(
		"causeway.pipeline.analyses.inconclusive",
		metric.WithDescription("Analyses that ended inconclusive"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	recommendations, err := meter.Int64Counter(
		"causeway.pipeline.recommendations",
		metric.WithDescription("Recommendations synthesized"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	batchSize, err := meter.Int64Histogram(
		"causeway.pipeline.batch.size",
		metric.WithDescription("Records per processed batch"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		recordsIn:       recordsIn,
		quarantined:     quarantined,
		correlations:    correlations,
		analyses:        analyses,
		inconclusive:    inconclusive,
		recommendations: recommendations,
		batchSize:       batchSize,
	}, nil
}

func (m *Metrics) recordBatch(ctx context.Context, r BatchResult) {
	m.recordsIn.Add(ctx, int64(r.RecordsIn))
	m.quarantined.Add(ctx, int64(r.Quarantined))
	m.correlations.Add(ctx, int64(r.Correlations))
	m.analyses.Add(ctx, int64(r.Analyses))
	m.inconclusive.Add(ctx, int64(r.Inconclusive))
	m.recommendations.Add(ctx, int64(r.Recommendations))
	m.batchSize.Record(ctx, int64(r.RecordsIn))
}
