package normalizer

import "fmt"

// SchemaMismatchError reports a raw record that cannot be normalized:
// unknown schema or missing required fields. Per-record errors are
// isolated; one malformed record never aborts a batch.
type SchemaMismatchError struct {
	SchemaID string
	Field    string
	Message  string
}

func (e *SchemaMismatchError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("schema mismatch for %q: field %q %s", e.SchemaID, e.Field, e.Message)
	}
	return fmt.Sprintf("schema mismatch for %q: %s", e.SchemaID, e.Message)
}

// ErrMissingField creates a schema mismatch for a required field
func ErrMissingField(schemaID, field string) error {
	return &SchemaMismatchError{SchemaID: schemaID, Field: field, Message: "is required"}
}

// ErrUnknownSchema creates a schema mismatch for an unregistered schema
func ErrUnknownSchema(schemaID string) error {
	return &SchemaMismatchError{SchemaID: schemaID, Message: "no normalizer registered"}
}
