package patterns

import (
	"math"
	"sync"
	"time"
)

// recurringTracker counts correlation tuple occurrences over a sliding
// window
type recurringTracker struct {
	window time.Duration

	mu      sync.Mutex
	samples map[string][]tupleSample
}

type tupleSample struct {
	at time.Time
	id string
}

func newRecurringTracker(window time.Duration) *recurringTracker {
	return &recurringTracker{
		window:  window,
		samples: make(map[string][]tupleSample),
	}
}

// observe records an occurrence and returns the in-window frequency
func (t *recurringTracker) observe(key string, at time.Time, id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples[key] = append(t.samples[key], tupleSample{at: at, id: id})
	t.dropExpired(key, at)
	return len(t.samples[key])
}

func (t *recurringTracker) prune(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.samples {
		t.dropExpired(key, now)
		if len(t.samples[key]) == 0 {
			delete(t.samples, key)
		}
	}
}

func (t *recurringTracker) dropExpired(key string, ref time.Time) {
	cutoff := ref.Add(-t.window)
	kept := t.samples[key][:0]
	for _, s := range t.samples[key] {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	t.samples[key] = kept
}

// entityHistory tracks an entity's failure rate in time bins and
// scores the current bin against its rolling baseline
type entityHistory struct {
	binSize time.Duration

	mu       sync.Mutex
	failures map[int64]float64
	totals   map[int64]float64
}

func newEntityHistory(binSize time.Duration) *entityHistory {
	return &entityHistory{
		binSize:  binSize,
		failures: make(map[int64]float64),
		totals:   make(map[int64]float64),
	}
}

// observe records an event and returns the z-score of the current
// bin's failure rate against the baseline bins, plus the baseline
// sample count. A z of 0 is returned while the baseline is too thin
// (fewer than 3 prior bins).
func (h *entityHistory) observe(at time.Time, failure bool, baseline time.Duration) (float64, int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	bin := at.UnixNano() / int64(h.binSize)
	h.totals[bin]++
	if failure {
		h.failures[bin]++
	}

	// Baseline: all complete bins before the current one, within the
	// baseline window
	minBin := bin - int64(baseline/h.binSize)
	var rates []float64
	for b, total := range h.totals {
		if b >= bin || b < minBin || total == 0 {
			continue
		}
		rates = append(rates, h.failures[b]/total)
	}
	if len(rates) < 3 {
		return 0, len(rates)
	}

	mean := 0.0
	for _, r := range rates {
		mean += r
	}
	mean /= float64(len(rates))

	variance := 0.0
	for _, r := range rates {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(rates))

	current := h.failures[bin] / h.totals[bin]
	std := math.Sqrt(variance)
	if std < 1e-9 {
		// Flat baseline: any elevated rate is infinitely surprising,
		// cap it instead
		if current > mean {
			return 10, len(rates)
		}
		return 0, len(rates)
	}
	return (current - mean) / std, len(rates)
}

// seasonalTracker accumulates the global time-binned failure series
type seasonalTracker struct {
	binSize time.Duration

	mu       sync.Mutex
	failures map[int64]float64
	minBin   int64
	maxBin   int64
	seeded   bool
}

func newSeasonalTracker(binSize time.Duration) *seasonalTracker {
	return &seasonalTracker{
		binSize:  binSize,
		failures: make(map[int64]float64),
	}
}

func (s *seasonalTracker) observe(at time.Time, failure bool) {
	if !failure {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bin := at.UnixNano() / int64(s.binSize)
	s.failures[bin]++
	if !s.seeded || bin < s.minBin {
		s.minBin = bin
	}
	if !s.seeded || bin > s.maxBin {
		s.maxBin = bin
	}
	s.seeded = true
}

// series returns the contiguous binned failure counts and the start
// time of the first bin
func (s *seasonalTracker) series() ([]float64, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.seeded {
		return nil, time.Time{}
	}

	out := make([]float64, s.maxBin-s.minBin+1)
	for b, count := range s.failures {
		out[b-s.minBin] = count
	}
	return out, time.Unix(0, s.minBin*int64(s.binSize))
}
