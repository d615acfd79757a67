package portfolio

import "time"

// Config holds the portfolio module's configuration.
type Config struct {
	// SampleRetention is how long metric samples are kept before the
	// maintenance loop prunes them. Zero disables pruning.
	SampleRetention time.Duration `mapstructure:"sample_retention"`

	// PruneInterval is how often the maintenance loop runs.
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

// DefaultConfig returns the default portfolio configuration.
func DefaultConfig() Config {
	return Config{
		SampleRetention: 24 * 30 * 24 * time.Hour, // ~24 months
		PruneInterval:   12 * time.Hour,
	}
}
