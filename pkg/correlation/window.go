package correlation

import (
	"sync"
	"time"

	"github.com/causewaylabs/causeway/pkg/domain"
)

// EventWindow maintains a sliding window of recent events shared by
// all correlators. Incremental evaluation depends on it: a new event
// only consults neighbors inside the configured window, never the
// full history.
type EventWindow struct {
	events    []windowEvent
	maxAge    time.Duration
	maxEvents int
	mu        sync.RWMutex

	// Indexes for fast lookup
	byType   map[domain.EventType][]int
	byEntity map[string][]int
	byID     map[string]bool
	byTime   *timeIndex
}

type windowEvent struct {
	event *domain.Event
	index int
}

// timeIndex buckets event indexes for efficient range queries
type timeIndex struct {
	buckets    map[int64][]int
	bucketSize time.Duration
}

// NewEventWindow creates a window bounded by age and capacity
func NewEventWindow(maxAge time.Duration, maxEvents int) *EventWindow {
	return &EventWindow{
		events:    make([]windowEvent, 0, maxEvents),
		maxAge:    maxAge,
		maxEvents: maxEvents,
		byType:    make(map[domain.EventType][]int),
		byEntity:  make(map[string][]int),
		byID:      make(map[string]bool),
		byTime: &timeIndex{
			buckets:    make(map[int64][]int),
			bucketSize: 1 * time.Minute,
		},
	}
}

// Add inserts an event and maintains the size bound
func (w *EventWindow) Add(event *domain.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	we := windowEvent{event: event, index: len(w.events)}
	w.events = append(w.events, we)
	w.indexOne(we)

	if len(w.events) > w.maxEvents {
		w.removeOldest(len(w.events) - w.maxEvents)
	}
}

// Contains reports whether an event with the given ID is in the window
func (w *EventWindow) Contains(eventID string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.byID[eventID]
}

// EventsInRange returns events with timestamps inside (start, end)
func (w *EventWindow) EventsInRange(start, end time.Time) []*domain.Event {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var result []*domain.Event
	bucketSecs := int64(w.byTime.bucketSize.Seconds())
	startBucket := start.Unix() / bucketSecs
	endBucket := end.Unix() / bucketSecs

	for bucket := startBucket; bucket <= endBucket; bucket++ {
		for _, idx := range w.byTime.buckets[bucket] {
			if idx >= len(w.events) {
				continue
			}
			evt := w.events[idx].event
			if evt.Timestamp.After(start) && evt.Timestamp.Before(end) {
				result = append(result, evt)
			}
		}
	}
	return result
}

// EventsByEntity returns events referencing the given entity
func (w *EventWindow) EventsByEntity(ref domain.EntityRef) []*domain.Event {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var result []*domain.Event
	for _, idx := range w.byEntity[ref.Key()] {
		if idx < len(w.events) {
			result = append(result, w.events[idx].event)
		}
	}
	return result
}

// CountByType returns the number of windowed events per type, used by
// the statistical correlator for marginal frequencies
func (w *EventWindow) CountByType() map[domain.EventType]int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	counts := make(map[domain.EventType]int, len(w.byType))
	for t, idxs := range w.byType {
		counts[t] = len(idxs)
	}
	return counts
}

// Size returns the number of events currently held
func (w *EventWindow) Size() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.events)
}

// Clean drops events older than maxAge relative to the newest event,
// not the wall clock, so replays of historical batches behave the
// same as live streams
func (w *EventWindow) Clean() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.events) == 0 {
		return
	}

	newest := w.events[len(w.events)-1].event.Timestamp
	cutoff := newest.Add(-w.maxAge)

	firstValid := len(w.events)
	for i, we := range w.events {
		if we.event.Timestamp.After(cutoff) {
			firstValid = i
			break
		}
	}
	if firstValid > 0 {
		w.removeOldest(firstValid)
	}
}

func (w *EventWindow) indexOne(we windowEvent) {
	evt := we.event
	w.byID[evt.ID] = true
	w.byType[evt.Type] = append(w.byType[evt.Type], we.index)
	for _, ref := range evt.Entities {
		w.byEntity[ref.Key()] = append(w.byEntity[ref.Key()], we.index)
	}
	bucket := evt.Timestamp.Unix() / int64(w.byTime.bucketSize.Seconds())
	w.byTime.buckets[bucket] = append(w.byTime.buckets[bucket], we.index)
}

func (w *EventWindow) removeOldest(count int) {
	w.events = w.events[count:]
	w.rebuildIndexes()
}

func (w *EventWindow) rebuildIndexes() {
	w.byType = make(map[domain.EventType][]int)
	w.byEntity = make(map[string][]int)
	w.byID = make(map[string]bool)
	w.byTime.buckets = make(map[int64][]int)

	for i := range w.events {
		w.events[i].index = i
		w.indexOne(w.events[i])
	}
}
