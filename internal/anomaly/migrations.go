package anomaly

import (
	"database/sql"

	"github.com/quarrylane/riskwatch/pkg/plugin"
)

// migrations returns the anomaly module's database migrations.
func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create anomaly record table",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS risk_anomalies (
						id               TEXT PRIMARY KEY,
						property_id      TEXT NOT NULL,
						metric_name      TEXT NOT NULL,
						observed_at      DATETIME NOT NULL,
						value            REAL NOT NULL,
						z_score          REAL,
						cusum_value      REAL,
						detection_method TEXT NOT NULL,
						confidence       REAL NOT NULL DEFAULT 0,
						trend_direction  TEXT,
						created_at       DATETIME NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_risk_anomalies_property
						ON risk_anomalies(property_id, created_at)`,
					`CREATE INDEX IF NOT EXISTS idx_risk_anomalies_created
						ON risk_anomalies(created_at)`,
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
