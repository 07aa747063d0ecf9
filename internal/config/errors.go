package config

import (
	"errors"
	"strings"
)

// ConfigError reports missing or invalid required runtime options. It is
// fatal at startup: the gateway must not proceed to Starting.
type ConfigError struct {
	Missing []string
	Reason  string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("config error")
	if len(e.Missing) > 0 {
		b.WriteString(": missing runtime options: ")
		b.WriteString(strings.Join(e.Missing, ", "))
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

// IsConfigError reports whether err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
