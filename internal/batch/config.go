package batch

import "time"

// Config holds scheduler and job settings.
type Config struct {
	ScanAt          string        `mapstructure:"scan_at"`
	Tick            time.Duration `mapstructure:"tick"`
	ScanGrace       time.Duration `mapstructure:"scan_grace"`
	RetentionDays   int           `mapstructure:"retention_days"`
	ReportEvery     time.Duration `mapstructure:"report_every"`
	HealthEvery     time.Duration `mapstructure:"health_every"`
	FlagConfidence  float64       `mapstructure:"flag_confidence"`
	LookbackMonths  int           `mapstructure:"lookback_months"`
	AutostartPaused bool          `mapstructure:"autostart_paused"`
}

// DefaultConfig returns the defaults applied when settings are absent.
func DefaultConfig() Config {
	return Config{
		ScanAt:         "02:00",
		Tick:           30 * time.Second,
		ScanGrace:      time.Hour,
		RetentionDays:  90,
		ReportEvery:    168 * time.Hour,
		HealthEvery:    5 * time.Minute,
		FlagConfidence: 0.8,
		LookbackMonths: 12,
	}
}
