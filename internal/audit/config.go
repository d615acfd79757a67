package audit

import "time"

// Config holds the audit module's configuration.
type Config struct {
	// WriteTimeout bounds each fire-and-forget event insert.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DefaultConfig returns the default audit configuration.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 5 * time.Second,
	}
}
