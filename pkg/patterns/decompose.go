package patterns

import "math"

// decompose splits a time-binned series into trend and seasonal
// components and returns the normalized trend slope and the seasonal
// amplitude relative to the series mean.
//
// Trend is a centered moving average over one period; the slope comes
// from a least-squares fit over it, normalized by the series mean so
// thresholds are scale-free. Seasonal is the per-phase mean of the
// detrended series; amplitude is its peak-to-trough range over the
// series mean.
func decompose(series []float64, period int) (trendSlope, seasonalAmplitude float64) {
	n := len(series)
	if n < 2*period || period < 2 {
		return 0, 0
	}

	mean := 0.0
	for _, v := range series {
		mean += v
	}
	mean /= float64(n)
	if mean < 1e-9 {
		return 0, 0
	}

	// Centered moving average of width `period`
	trend := make([]float64, 0, n)
	half := period / 2
	for i := half; i < n-half; i++ {
		sum := 0.0
		for j := i - half; j < i-half+period; j++ {
			sum += series[j]
		}
		trend = append(trend, sum/float64(period))
	}

	// Least-squares slope over the trend, per bin, normalized by mean
	trendSlope = slope(trend) / mean

	// Per-phase means of the detrended series
	phase := make([]float64, period)
	counts := make([]int, period)
	for i := half; i < n-half; i++ {
		detrended := series[i] - trend[i-half]
		phase[i%period] += detrended
		counts[i%period]++
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range phase {
		if counts[i] == 0 {
			continue
		}
		v := phase[i] / float64(counts[i])
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		return trendSlope, 0
	}

	seasonalAmplitude = (hi - lo) / mean
	return trendSlope, seasonalAmplitude
}

// slope returns the least-squares slope of y over x = 0..n-1
func slope(y []float64) float64 {
	n := float64(len(y))
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, v := range y {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
