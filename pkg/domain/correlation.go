package domain

import (
	"fmt"
	"time"
)

// CorrelationType classifies how two events relate
type CorrelationType string

const (
	CorrelationTemporal    CorrelationType = "temporal"
	CorrelationSpatial     CorrelationType = "spatial"
	CorrelationCausal      CorrelationType = "causal"
	CorrelationStatistical CorrelationType = "statistical"
)

// Correlation is a scored relationship between two events. Created by
// the correlation engine and read-only afterward.
type Correlation struct {
	ID               string          `json:"id"`
	PrimaryEventID   string          `json:"primary_event_id"`
	SecondaryEventID string          `json:"secondary_event_id"`
	Type             CorrelationType `json:"type"`

	// Strength measures how tightly the events are related, confidence
	// how sure we are the relationship is not noise. Both in [0,1].
	Strength   float64 `json:"strength"`
	Confidence float64 `json:"confidence"`

	Window   time.Duration `json:"window"`
	Evidence string        `json:"evidence"`

	// Directed is set for causal correlations: primary precedes and
	// explains secondary
	Directed bool `json:"directed,omitempty"`

	// Late marks correlations produced from events that arrived beyond
	// the lateness tolerance
	Late bool `json:"late,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Key returns a deterministic identity for deduplication. Undirected
// correlations normalize the event order so (a,b) and (b,a) collide.
func (c *Correlation) Key() string {
	a, b := c.PrimaryEventID, c.SecondaryEventID
	if !c.Directed && b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%s|%s|%s", c.Type, a, b)
}

// Validate checks correlation invariants
func (c *Correlation) Validate() error {
	if c.PrimaryEventID == c.SecondaryEventID {
		return fmt.Errorf("correlation cannot relate an event to itself")
	}
	if c.Strength < 0 || c.Strength > 1 {
		return fmt.Errorf("strength %f out of range [0,1]", c.Strength)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence %f out of range [0,1]", c.Confidence)
	}
	return nil
}
