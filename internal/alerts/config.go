package alerts

import "time"

// Config holds the alerts module's configuration.
type Config struct {
	// DecisionWindow bounds how far back the committee dashboard looks
	// for recent decisions.
	DecisionWindow time.Duration `mapstructure:"decision_window"`

	// DecisionLimit caps the number of recent decisions on the dashboard.
	DecisionLimit int `mapstructure:"decision_limit"`
}

// DefaultConfig returns the default alerts configuration.
func DefaultConfig() Config {
	return Config{
		DecisionWindow: defaultDecisionWindow,
		DecisionLimit:  defaultDecisionLimit,
	}
}
