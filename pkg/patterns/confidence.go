package patterns

import "math"

// Confidence derivations. All are monotone in sample size for a fixed
// effect size: more supporting evidence never lowers confidence.

// recurringConfidence saturates toward 1 as in-window support grows
func recurringConfidence(frequency int) float64 {
	return 1 - math.Pow(0.8, float64(frequency))
}

// anomalyConfidence combines the deviation magnitude with how much
// baseline the z-score rests on
func anomalyConfidence(z, sigma float64, baselineSamples int) float64 {
	magnitude := math.Min(1, z/(2*sigma))
	support := 1 - math.Pow(0.75, float64(baselineSamples))
	c := magnitude * support
	if c > 1 {
		return 1
	}
	return c
}

// seasonalConfidence combines the effect size over its threshold with
// the number of observed periods
func seasonalConfidence(effect, threshold float64, periods int) float64 {
	magnitude := math.Min(1, effect/(2*threshold))
	support := 1 - math.Pow(0.6, float64(periods))
	c := magnitude * support
	if c > 1 {
		return 1
	}
	return c
}
