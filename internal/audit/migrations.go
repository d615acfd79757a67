package audit

import (
	"database/sql"

	"github.com/quarrylane/riskwatch/pkg/plugin"
)

// migrations returns the audit module's database migrations.
func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create audit event and report tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS audit_events (
						id          INTEGER PRIMARY KEY AUTOINCREMENT,
						action      TEXT NOT NULL,
						actor_id    TEXT,
						property_id TEXT,
						details     TEXT NOT NULL DEFAULT '{}',
						created_at  DATETIME NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_audit_events_created
						ON audit_events(created_at)`,
					`CREATE INDEX IF NOT EXISTS idx_audit_events_action
						ON audit_events(action, created_at)`,

					`CREATE TABLE IF NOT EXISTS audit_reports (
						id              INTEGER PRIMARY KEY AUTOINCREMENT,
						properties      INTEGER NOT NULL DEFAULT 0,
						pending_alerts  INTEGER NOT NULL DEFAULT 0,
						critical_alerts INTEGER NOT NULL DEFAULT 0,
						active_locks    INTEGER NOT NULL DEFAULT 0,
						anomalies_week  INTEGER NOT NULL DEFAULT 0,
						generated_at    DATETIME NOT NULL
					)`,
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
