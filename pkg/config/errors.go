package config

import (
	"errors"
	"strings"
)

// ErrTypeRequired is returned by Builder.Build when no type was set.
var ErrTypeRequired = errors.New("database type is required")

// ConfigurationError reports an unusable configuration. Reasons holds the
// messages produced by Validate.
type ConfigurationError struct {
	Reasons []string
}

func (e *ConfigurationError) Error() string {
	return "invalid database configuration: " + strings.Join(e.Reasons, "; ")
}
