package portfolio

import (
	"database/sql"

	"github.com/quarrylane/riskwatch/pkg/plugin"
)

// migrations returns the portfolio module's database migrations.
func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create portfolio tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS portfolio_properties (
						id             TEXT PRIMARY KEY,
						name           TEXT NOT NULL DEFAULT '',
						total_units    INTEGER NOT NULL DEFAULT 0,
						occupied_units INTEGER NOT NULL DEFAULT 0,
						created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,

					`CREATE TABLE IF NOT EXISTS portfolio_metric_samples (
						id          INTEGER PRIMARY KEY AUTOINCREMENT,
						property_id TEXT NOT NULL,
						metric_name TEXT NOT NULL,
						value       REAL NOT NULL,
						confidence  REAL NOT NULL DEFAULT 1.0,
						recorded_at DATETIME NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_portfolio_samples_series
						ON portfolio_metric_samples(property_id, metric_name, recorded_at)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
