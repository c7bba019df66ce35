package domain

import "github.com/google/uuid"

// idSpace namespaces the deterministic IDs derived below. Deriving
// IDs from content keys means replaying the same input produces the
// same rows, and append-only storage treats the replay as a no-op
// even across process restarts.
var idSpace = uuid.MustParse("b1f6c0d2-8a3e-4f71-9d25-4c09e7a8f316")

// NewCorrelationID derives a correlation's ID from its dedup key
func NewCorrelationID(key string) string {
	return uuid.NewSHA1(idSpace, []byte("correlation:"+key)).String()
}

// NewAnalysisID derives an analysis ID from its subject failure event
func NewAnalysisID(subjectEventID string) string {
	return uuid.NewSHA1(idSpace, []byte("analysis:"+subjectEventID)).String()
}

// NewRecommendationID derives a recommendation ID from its analysis
// and action title
func NewRecommendationID(analysisID, title string) string {
	return uuid.NewSHA1(idSpace, []byte("recommendation:"+analysisID+":"+title)).String()
}
