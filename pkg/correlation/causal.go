package correlation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/causewaylabs/causeway/pkg/domain"
)

// CausalRule links two event types directionally: a matching cause
// strictly preceding a matching effect within the temporal window
// yields a directed correlation.
type CausalRule struct {
	Name         string
	CauseType    domain.EventType
	EffectType   domain.EventType
	BaseStrength float64

	// Matches decides whether this specific pair instantiates the rule
	Matches func(cause, effect *domain.Event) bool
}

// DefaultCausalRules returns the delivery-domain rule set
func DefaultCausalRules() []CausalRule {
	return []CausalRule{
		{
			Name:         "heavy_traffic_delays_delivery",
			CauseType:    domain.EventTypeExternal,
			EffectType:   domain.EventTypeOrder,
			BaseStrength: 0.85,
			Matches: func(cause, effect *domain.Event) bool {
				return cause.External != nil && cause.External.TrafficCondition == "Heavy" &&
					effect.IsFailure()
			},
		},
		{
			Name:         "bad_weather_delays_delivery",
			CauseType:    domain.EventTypeExternal,
			EffectType:   domain.EventTypeOrder,
			BaseStrength: 0.85,
			Matches: func(cause, effect *domain.Event) bool {
				if cause.External == nil || !effect.IsFailure() {
					return false
				}
				switch cause.External.WeatherCondition {
				case "Rain", "Storm", "Fog":
					return true
				}
				return false
			},
		},
		{
			Name:         "dispatch_delay_delays_departure",
			CauseType:    domain.EventTypeWarehouse,
			EffectType:   domain.EventTypeFleet,
			BaseStrength: 0.8,
			Matches: func(cause, effect *domain.Event) bool {
				return cause.Warehouse != nil && cause.Warehouse.DelayedMinute > 0 &&
					effect.Fleet != nil && effect.Fleet.DelayedMinutes > 0
			},
		},
		{
			Name:         "stockout_fails_order",
			CauseType:    domain.EventTypeWarehouse,
			EffectType:   domain.EventTypeOrder,
			BaseStrength: 0.9,
			Matches: func(cause, effect *domain.Event) bool {
				return cause.Warehouse != nil && cause.Warehouse.StockoutFlag &&
					effect.IsFailure()
			},
		},
		{
			Name:         "breakdown_fails_order",
			CauseType:    domain.EventTypeFleet,
			EffectType:   domain.EventTypeOrder,
			BaseStrength: 0.9,
			Matches: func(cause, effect *domain.Event) bool {
				return cause.Fleet != nil && cause.Fleet.BreakdownFlag &&
					effect.IsFailure()
			},
		},
		{
			Name:         "fleet_delay_fails_order",
			CauseType:    domain.EventTypeFleet,
			EffectType:   domain.EventTypeOrder,
			BaseStrength: 0.7,
			Matches: func(cause, effect *domain.Event) bool {
				return cause.Fleet != nil && cause.Fleet.DelayedMinutes > 30 &&
					effect.IsFailure()
			},
		},
		{
			Name:         "failed_order_negative_feedback",
			CauseType:    domain.EventTypeOrder,
			EffectType:   domain.EventTypeFeedback,
			BaseStrength: 0.6,
			Matches: func(cause, effect *domain.Event) bool {
				return cause.IsFailure() && effect.Feedback != nil &&
					(effect.Feedback.Sentiment == "Negative" || effect.Feedback.Rating <= 2)
			},
		},
	}
}

// CausalCorrelator infers directed correlations from domain rules over
// ordered event pairs. A rule fires only when the cause strictly
// precedes the effect within the window and the pair shares an entity
// or geographic proximity.
type CausalCorrelator struct {
	logger *zap.Logger
	scorer *ConfidenceScorer
	rules  []CausalRule

	window   time.Duration
	radiusKM float64
}

// NewCausalCorrelator creates a causal correlator with the given rules
func NewCausalCorrelator(logger *zap.Logger, scorer *ConfidenceScorer, rules []CausalRule, window time.Duration, radiusKM float64) *CausalCorrelator {
	return &CausalCorrelator{
		logger:   logger,
		scorer:   scorer,
		rules:    rules,
		window:   window,
		radiusKM: radiusKM,
	}
}

func (c *CausalCorrelator) Name() string { return "causal" }

// Process evaluates the new event as both cause and effect against
// windowed neighbors
func (c *CausalCorrelator) Process(ctx context.Context, event *domain.Event, window *EventWindow) ([]*domain.Correlation, error) {
	var correlations []*domain.Correlation

	// New event as effect: look back for causes
	for _, prior := range window.EventsInRange(event.Timestamp.Add(-c.window), event.Timestamp) {
		if prior.ID == event.ID || !prior.Timestamp.Before(event.Timestamp) {
			continue
		}
		correlations = append(correlations, c.apply(prior, event)...)
	}

	// New event as cause: look forward for effects already seen
	// (late-arriving causes still explain earlier-ingested effects)
	for _, later := range window.EventsInRange(event.Timestamp, event.Timestamp.Add(c.window)) {
		if later.ID == event.ID || !event.Timestamp.Before(later.Timestamp) {
			continue
		}
		correlations = append(correlations, c.apply(event, later)...)
	}

	return correlations, nil
}

func (c *CausalCorrelator) apply(cause, effect *domain.Event) []*domain.Correlation {
	if !c.related(cause, effect) {
		return nil
	}

	var out []*domain.Correlation
	for _, rule := range c.rules {
		if rule.CauseType != cause.Type || rule.EffectType != effect.Type {
			continue
		}
		if !rule.Matches(cause, effect) {
			continue
		}

		delta := effect.Timestamp.Sub(cause.Timestamp)
		strength := rule.BaseStrength * (1 - float64(delta)/float64(c.window)*0.5)

		out = append(out, &domain.Correlation{
			PrimaryEventID:   cause.ID,
			SecondaryEventID: effect.ID,
			Type:             domain.CorrelationCausal,
			Directed:         true,
			Strength:         strength,
			Confidence: c.scorer.Score(Features{
				TimeDelta:      delta,
				Window:         c.window,
				SharedEntities: len(cause.SharedEntities(effect)),
				Proximate:      true,
				RuleMatched:    true,
			}),
			Window:    c.window,
			Evidence:  fmt.Sprintf("rule %s: %s precedes %s by %s", rule.Name, cause.Type, effect.Type, delta.Round(time.Second)),
			CreatedAt: time.Now(),
		})
	}
	return out
}

// related gates rule application on shared entity or proximity so a
// storm in one city does not explain failures in another
func (c *CausalCorrelator) related(a, b *domain.Event) bool {
	if len(a.SharedEntities(b)) > 0 {
		return true
	}
	if d := a.Location.DistanceKM(b.Location); d >= 0 {
		return d <= c.radiusKM
	}
	return a.Location.SameCity(b.Location)
}
