package patterns

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/causewaylabs/causeway/pkg/config"
	"github.com/causewaylabs/causeway/pkg/domain"
)

// Detector mines the correlated-event stream for recurring structures,
// per-entity anomalies, and seasonal/trend components. Patterns are
// re-evaluated in place as evidence accumulates: an existing pattern's
// confidence and frequency update under its stable key, never
// duplicate.
type Detector struct {
	logger *zap.Logger
	cfg    config.PatternsConfig

	mu       sync.RWMutex
	patterns map[string]*domain.Pattern

	recurring *recurringTracker
	entities  map[string]*entityHistory
	seasonal  *seasonalTracker
}

// NewDetector creates a pattern detector
func NewDetector(logger *zap.Logger, cfg config.PatternsConfig) *Detector {
	return &Detector{
		logger:    logger,
		cfg:       cfg,
		patterns:  make(map[string]*domain.Pattern),
		recurring: newRecurringTracker(cfg.SlidingWindow),
		entities:  make(map[string]*entityHistory),
		seasonal:  newSeasonalTracker(cfg.SeasonalBin),
	}
}

// ObserveCorrelation feeds a retained correlation into recurring
// pattern detection. The event types of both sides identify the tuple.
func (d *Detector) ObserveCorrelation(c *domain.Correlation, primary, secondary domain.EventType, entities []domain.EntityRef) {
	key := tupleKey(primary, secondary, c.Type)
	freq := d.recurring.observe(key, c.CreatedAt, c.ID)

	if freq < d.cfg.SupportThreshold {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	p, exists := d.patterns[key]
	if !exists {
		p = &domain.Pattern{
			ID:        uuid.NewString(),
			Type:      domain.PatternRecurring,
			Key:       key,
			FirstSeen: c.CreatedAt,
			Metrics:   make(map[string]float64),
		}
		d.patterns[key] = p
		d.logger.Info("Recurring pattern emerged",
			zap.String("key", key),
			zap.Int("frequency", freq))
	}

	p.Frequency = freq
	p.Confidence = recurringConfidence(freq)
	p.Metrics["support"] = float64(freq)
	p.AffectedEntities = mergeEntities(p.AffectedEntities, entities)
	p.SupportingCorrelations = appendBounded(p.SupportingCorrelations, c.ID, 64)
	p.Touch(c.CreatedAt)
}

// ObserveEvent feeds a normalized event into anomaly and seasonal
// tracking. Only failures move the rates.
func (d *Detector) ObserveEvent(evt *domain.Event) {
	failure := evt.IsFailure()

	d.seasonal.observe(evt.Timestamp, failure)

	for _, ref := range evt.Entities {
		h := d.entityHistory(ref)
		z, samples := h.observe(evt.Timestamp, failure, d.cfg.BaselineWindow)
		if !failure {
			continue
		}
		d.evaluateAnomaly(ref, evt, z, samples)
	}
}

// Reevaluate recomputes seasonal and trend patterns from the binned
// failure series and prunes expired recurring support
func (d *Detector) Reevaluate(now time.Time) {
	d.recurring.prune(now)
	d.evaluateSeasonal(now)
}

// Patterns returns patterns whose confidence clears the floor
func (d *Detector) Patterns() []*domain.Pattern {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*domain.Pattern
	for _, p := range d.patterns {
		if p.Confidence >= d.cfg.ConfidenceFloor {
			out = append(out, p)
		}
	}
	return out
}

// PatternsForEntity returns above-floor patterns affecting the entity
func (d *Detector) PatternsForEntity(ref domain.EntityRef) []*domain.Pattern {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*domain.Pattern
	for _, p := range d.patterns {
		if p.Confidence < d.cfg.ConfidenceFloor {
			continue
		}
		for _, er := range p.AffectedEntities {
			if er == ref {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// PatternByKey returns the pattern under the given stable key
// regardless of confidence, for inspection and tests
func (d *Detector) PatternByKey(key string) *domain.Pattern {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.patterns[key]
}

func (d *Detector) entityHistory(ref domain.EntityRef) *entityHistory {
	d.mu.Lock()
	defer d.mu.Unlock()

	h, ok := d.entities[ref.Key()]
	if !ok {
		h = newEntityHistory(d.cfg.SeasonalBin)
		d.entities[ref.Key()] = h
	}
	return h
}

func (d *Detector) evaluateAnomaly(ref domain.EntityRef, evt *domain.Event, z float64, samples int) {
	if z < d.cfg.AnomalySigma {
		return
	}

	key := "anomaly|" + ref.Key()

	d.mu.Lock()
	defer d.mu.Unlock()

	p, exists := d.patterns[key]
	if !exists {
		p = &domain.Pattern{
			ID:               uuid.NewString(),
			Type:             domain.PatternAnomaly,
			Key:              key,
			FirstSeen:        evt.Timestamp,
			AffectedEntities: []domain.EntityRef{ref},
			Metrics:          make(map[string]float64),
		}
		d.patterns[key] = p
		d.logger.Info("Failure-rate anomaly detected",
			zap.String("entity", ref.Key()),
			zap.Float64("z_score", z))
	}

	p.Frequency++
	p.Metrics["z_score"] = z
	p.Metrics["baseline_samples"] = float64(samples)
	p.Confidence = anomalyConfidence(z, d.cfg.AnomalySigma, samples)
	p.Touch(evt.Timestamp)
}

func (d *Detector) evaluateSeasonal(now time.Time) {
	series, start := d.seasonal.series()
	if len(series) < 2*d.cfg.SeasonalPeriod {
		return
	}

	trendSlope, seasonalAmp := decompose(series, d.cfg.SeasonalPeriod)
	periods := len(series) / d.cfg.SeasonalPeriod

	d.mu.Lock()
	defer d.mu.Unlock()

	if seasonalAmp >= d.cfg.SeasonalAmpMin {
		d.upsertDecomposition("seasonal|failures", domain.PatternSeasonal, now, start, map[string]float64{
			"amplitude": seasonalAmp,
			"periods":   float64(periods),
		}, seasonalConfidence(seasonalAmp, d.cfg.SeasonalAmpMin, periods))
	}

	abs := trendSlope
	if abs < 0 {
		abs = -abs
	}
	if abs >= d.cfg.TrendSlopeMin {
		d.upsertDecomposition("trend|failures", domain.PatternTrend, now, start, map[string]float64{
			"slope":   trendSlope,
			"periods": float64(periods),
		}, seasonalConfidence(abs, d.cfg.TrendSlopeMin, periods))
	}
}

func (d *Detector) upsertDecomposition(key string, typ domain.PatternType, now, firstSeen time.Time, metrics map[string]float64, confidence float64) {
	p, exists := d.patterns[key]
	if !exists {
		p = &domain.Pattern{
			ID:        uuid.NewString(),
			Type:      typ,
			Key:       key,
			FirstSeen: firstSeen,
			Metrics:   make(map[string]float64),
		}
		d.patterns[key] = p
		d.logger.Info("Decomposition pattern emerged", zap.String("key", key))
	}
	for k, v := range metrics {
		p.Metrics[k] = v
	}
	p.Frequency++
	p.Confidence = confidence
	p.Touch(now)
}

func tupleKey(a, b domain.EventType, ct domain.CorrelationType) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("recurring|%s:%s|%s", a, b, ct)
}

func mergeEntities(have []domain.EntityRef, add []domain.EntityRef) []domain.EntityRef {
	seen := make(map[domain.EntityRef]bool, len(have))
	for _, r := range have {
		seen[r] = true
	}
	for _, r := range add {
		if !seen[r] {
			have = append(have, r)
			seen[r] = true
		}
	}
	return have
}

func appendBounded(ids []string, id string, limit int) []string {
	ids = append(ids, id)
	if len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}
	return ids
}
