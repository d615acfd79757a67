package notify

import "time"

// Config holds the notify module's configuration.
type Config struct {
	// Timeout bounds each webhook delivery attempt.
	Timeout time.Duration `mapstructure:"timeout"`

	// NotifyUpdates also dispatches when an existing pending alert is
	// refreshed by re-evaluation, in addition to newly created alerts.
	NotifyUpdates bool `mapstructure:"notify_updates"`
}

// DefaultConfig returns the default notify configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:       10 * time.Second,
		NotifyUpdates: false,
	}
}
