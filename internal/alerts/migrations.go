package alerts

import (
	"database/sql"

	"github.com/quarrylane/riskwatch/pkg/plugin"
)

// migrations returns the alerts module's database migrations. The partial
// unique indexes enforce the at-most-one-PENDING-alert-per-(property, metric)
// and at-most-one-LOCKED-lock-per-property invariants at the schema level.
func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create alert and workflow lock tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS risk_alerts (
						id          TEXT PRIMARY KEY,
						property_id TEXT NOT NULL,
						metric      TEXT NOT NULL,
						value       REAL NOT NULL,
						threshold   REAL NOT NULL,
						level       TEXT NOT NULL,
						committee   TEXT NOT NULL,
						status      TEXT NOT NULL DEFAULT 'PENDING',
						approved_by TEXT,
						approved_at DATETIME,
						notes       TEXT,
						created_at  DATETIME NOT NULL,
						updated_at  DATETIME NOT NULL
					)`,
					`CREATE UNIQUE INDEX IF NOT EXISTS idx_risk_alerts_one_pending
						ON risk_alerts(property_id, metric) WHERE status = 'PENDING'`,
					`CREATE INDEX IF NOT EXISTS idx_risk_alerts_committee
						ON risk_alerts(committee, status)`,
					`CREATE INDEX IF NOT EXISTS idx_risk_alerts_property
						ON risk_alerts(property_id, status)`,

					`CREATE TABLE IF NOT EXISTS risk_workflow_locks (
						id          TEXT PRIMARY KEY,
						property_id TEXT NOT NULL,
						alert_id    TEXT NOT NULL,
						status      TEXT NOT NULL DEFAULT 'LOCKED',
						locked_at   DATETIME NOT NULL,
						unlocked_at DATETIME,
						unlocked_by TEXT
					)`,
					`CREATE UNIQUE INDEX IF NOT EXISTS idx_risk_locks_one_locked
						ON risk_workflow_locks(property_id) WHERE status = 'LOCKED'`,
					`CREATE INDEX IF NOT EXISTS idx_risk_locks_alert
						ON risk_workflow_locks(alert_id)`,
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
