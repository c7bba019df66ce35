package config

import "fmt"

// ConfigError is a fatal configuration problem. The pipeline refuses
// to start while one exists.
type ConfigError struct {
	Field      string `json:"field"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (e *ConfigError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("config error in '%s': %s (%s)", e.Field, e.Message, e.Suggestion)
	}
	return fmt.Sprintf("config error in '%s': %s", e.Field, e.Message)
}

// NewConfigError creates a fatal configuration error
func NewConfigError(field, message, suggestion string) *ConfigError {
	return &ConfigError{Field: field, Message: message, Suggestion: suggestion}
}
