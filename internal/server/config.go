package server

import (
	"fmt"

	"github.com/spf13/viper"
)

// LoadConfig builds the Viper configuration with defaults, optional config
// file, and environment variable overrides.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "./data/riskwatch.db")

	// Module defaults
	v.SetDefault("plugins.portfolio.sample_retention", "17520h")
	v.SetDefault("plugins.portfolio.prune_interval", "12h")
	v.SetDefault("plugins.alerts.decision_window", "720h")
	v.SetDefault("plugins.alerts.decision_limit", 10)
	v.SetDefault("plugins.anomaly.lookback_months", 12)
	v.SetDefault("plugins.audit.write_timeout", "5s")
	v.SetDefault("plugins.notify.timeout", "10s")
	v.SetDefault("plugins.notify.notify_updates", false)
	v.SetDefault("plugins.batch.scan_at", "02:00")
	v.SetDefault("plugins.batch.tick", "30s")
	v.SetDefault("plugins.batch.scan_grace", "1h")
	v.SetDefault("plugins.batch.retention_days", 90)
	v.SetDefault("plugins.batch.report_every", "168h")
	v.SetDefault("plugins.batch.health_every", "5m")
	v.SetDefault("plugins.batch.flag_confidence", 0.8)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("riskwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/riskwatch")
	}

	// Environment variable support: RW_SERVER_PORT=9090
	v.SetEnvPrefix("RW")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}
