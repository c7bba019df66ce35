package correlation

import (
	"math"
	"time"
)

// Features are the inputs to confidence calculation for one candidate
// correlation
type Features struct {
	TimeDelta      time.Duration
	Window         time.Duration
	SharedEntities int
	Proximate      bool
	RuleMatched    bool
	Occurrences    int
}

// FeatureWeights defines the relative importance of feature groups
type FeatureWeights struct {
	Temporal    float64
	Structural  float64
	Spatial     float64
	Rule        float64
	Statistical float64
}

// DefaultFeatureWeights returns balanced weights: shared entities are
// the most reliable signal in delivery data
func DefaultFeatureWeights() FeatureWeights {
	return FeatureWeights{
		Temporal:    0.25,
		Structural:  0.35,
		Spatial:     0.15,
		Rule:        0.15,
		Statistical: 0.10,
	}
}

// ConfidenceScorer turns correlation features into a confidence score
// in [0,1]. Stateless and safe for concurrent use.
type ConfidenceScorer struct {
	weights FeatureWeights
}

// NewConfidenceScorer creates a scorer with the given weights
func NewConfidenceScorer(weights FeatureWeights) *ConfidenceScorer {
	return &ConfidenceScorer{weights: weights}
}

// Score computes weighted confidence for the feature set
func (s *ConfidenceScorer) Score(f Features) float64 {
	var temporal float64
	if f.Window > 0 {
		temporal = 1 - float64(f.TimeDelta)/float64(f.Window)
		if temporal < 0 {
			temporal = 0
		}
	}

	// Diminishing returns on additional shared entities
	structural := 1 - math.Pow(0.5, float64(f.SharedEntities))

	var spatial float64
	if f.Proximate {
		spatial = 1
	}

	var rule float64
	if f.RuleMatched {
		rule = 1
	}

	// Occurrences saturate toward 1; confidence never decreases with
	// more supporting observations
	statistical := 1 - math.Pow(0.7, float64(f.Occurrences))

	score := s.weights.Temporal*temporal +
		s.weights.Structural*structural +
		s.weights.Spatial*spatial +
		s.weights.Rule*rule +
		s.weights.Statistical*statistical

	if score > 1 {
		score = 1
	}
	return score
}
