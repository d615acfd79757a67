package anomaly

// Config holds the anomaly module's configuration.
type Config struct {
	// LookbackMonths is the default analysis window when a caller does
	// not specify one.
	LookbackMonths int `mapstructure:"lookback_months"`
}

// DefaultConfig returns the default anomaly configuration.
func DefaultConfig() Config {
	return Config{
		LookbackMonths: DefaultLookbackMonths,
	}
}
