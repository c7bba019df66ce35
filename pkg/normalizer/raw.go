package normalizer

import (
	"encoding/json"
	"fmt"
	"time"
)

// RawRecord is a domain record as delivered by ingestion: a schema
// identifier, an ingestion timestamp, and untyped fields. The
// normalizer is the only component that looks inside Fields.
type RawRecord struct {
	SchemaID   string                 `json:"schema_id"`
	IngestedAt time.Time              `json:"ingested_at"`
	EventID    string                 `json:"event_id,omitempty"`
	Fields     map[string]interface{} `json:"fields"`
}

// ParseRawRecord decodes a JSON-encoded raw record
func ParseRawRecord(data []byte) (*RawRecord, error) {
	var rec RawRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode raw record: %w", err)
	}
	if rec.SchemaID == "" {
		return nil, fmt.Errorf("raw record missing schema_id")
	}
	return &rec, nil
}

// Field accessors. All return the zero value with ok=false when the
// field is absent or has the wrong shape; required-ness is the
// schema's decision, not theirs.

func (r *RawRecord) stringField(name string) (string, bool) {
	v, exists := r.Fields[name]
	if !exists || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func (r *RawRecord) floatField(name string) (float64, bool) {
	v, exists := r.Fields[name]
	if !exists || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func (r *RawRecord) intField(name string) (int, bool) {
	f, ok := r.floatField(name)
	return int(f), ok
}

func (r *RawRecord) boolField(name string) (bool, bool) {
	v, exists := r.Fields[name]
	if !exists || v == nil {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// timeField accepts RFC3339 and the common date-time layouts found in
// the source feeds
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func (r *RawRecord) timeField(name string) (time.Time, bool) {
	s, ok := r.stringField(name)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
