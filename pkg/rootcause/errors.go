package rootcause

import "fmt"

// NotFailureError reports an analysis request for an event that does
// not represent a delivery failure
type NotFailureError struct {
	EventID string
	Type    string
}

func (e *NotFailureError) Error() string {
	return fmt.Sprintf("event %s (%s) is not a failure, nothing to analyze", e.EventID, e.Type)
}

// EvidenceFetchError wraps a storage failure while gathering evidence
// for an analysis
type EvidenceFetchError struct {
	SubjectEventID string
	Stage          string
	Err            error
}

func (e *EvidenceFetchError) Error() string {
	return fmt.Sprintf("gathering %s evidence for %s: %v", e.Stage, e.SubjectEventID, e.Err)
}

func (e *EvidenceFetchError) Unwrap() error {
	return e.Err
}
