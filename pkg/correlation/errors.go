package correlation

import (
	"fmt"
	"time"
)

// OutOfOrderEventError reports an event that arrived beyond the
// lateness tolerance. It is warning-grade: the event is still
// processed, with resulting correlations flagged late.
type OutOfOrderEventError struct {
	EventID   string
	Timestamp time.Time
	Watermark time.Time
	Lateness  time.Duration
}

func (e *OutOfOrderEventError) Error() string {
	return fmt.Sprintf("event %s is %s late (timestamp %s, watermark %s)",
		e.EventID, e.Lateness, e.Timestamp.Format(time.RFC3339), e.Watermark.Format(time.RFC3339))
}
