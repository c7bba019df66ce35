package correlation

import (
	"sort"
	"sync"
	"time"

	"github.com/causewaylabs/causeway/pkg/domain"
)

// LatenessBuffer reorders a mildly unordered stream. Events within
// the lateness tolerance are buffered and released in timestamp order
// once the watermark passes them; events beyond the tolerance are
// released immediately, flagged late.
type LatenessBuffer struct {
	maxLateness time.Duration

	mu        sync.Mutex
	watermark time.Time
	pending   []*domain.Event
}

// BufferedEvent is an event released by the buffer together with its
// lateness classification
type BufferedEvent struct {
	Event *domain.Event
	Late  bool
}

// NewLatenessBuffer creates a buffer with the given tolerance. A zero
// tolerance disables buffering: every event passes straight through.
func NewLatenessBuffer(maxLateness time.Duration) *LatenessBuffer {
	return &LatenessBuffer{maxLateness: maxLateness}
}

// Offer submits an event. It returns the events ready for processing,
// in timestamp order, and a non-nil *OutOfOrderEventError when the
// offered event arrived beyond the tolerance (warning-grade: the
// event is still included, flagged late).
func (b *LatenessBuffer) Offer(event *domain.Event) ([]BufferedEvent, *OutOfOrderEventError) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxLateness == 0 {
		if event.Timestamp.After(b.watermark) {
			b.watermark = event.Timestamp
		}
		return []BufferedEvent{{Event: event}}, nil
	}

	var warn *OutOfOrderEventError
	if event.Timestamp.After(b.watermark) {
		b.watermark = event.Timestamp
	} else if lateness := b.watermark.Sub(event.Timestamp); lateness > b.maxLateness {
		warn = &OutOfOrderEventError{
			EventID:   event.ID,
			Timestamp: event.Timestamp,
			Watermark: b.watermark,
			Lateness:  lateness,
		}
		return []BufferedEvent{{Event: event, Late: true}}, warn
	}

	b.pending = append(b.pending, event)
	return b.release(), nil
}

// Flush releases all pending events in timestamp order, used at
// shutdown or batch end
func (b *LatenessBuffer) Flush() []BufferedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	sort.Slice(b.pending, func(i, j int) bool {
		return b.pending[i].Timestamp.Before(b.pending[j].Timestamp)
	})
	out := make([]BufferedEvent, len(b.pending))
	for i, evt := range b.pending {
		out[i] = BufferedEvent{Event: evt}
	}
	b.pending = nil
	return out
}

// release emits pending events whose timestamps the watermark has
// passed by at least the tolerance
func (b *LatenessBuffer) release() []BufferedEvent {
	cutoff := b.watermark.Add(-b.maxLateness)

	sort.Slice(b.pending, func(i, j int) bool {
		return b.pending[i].Timestamp.Before(b.pending[j].Timestamp)
	})

	var out []BufferedEvent
	var keep []*domain.Event
	for _, evt := range b.pending {
		if evt.Timestamp.Before(cutoff) || evt.Timestamp.Equal(cutoff) {
			out = append(out, BufferedEvent{Event: evt})
		} else {
			keep = append(keep, evt)
		}
	}
	b.pending = keep
	return out
}

// Pending returns the number of buffered events
func (b *LatenessBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
