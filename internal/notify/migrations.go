package notify

import (
	"database/sql"

	"github.com/quarrylane/riskwatch/pkg/plugin"
)

// migrations returns the notify module's database migrations.
func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create notification channel table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS notify_channels (
						id         TEXT PRIMARY KEY,
						name       TEXT NOT NULL,
						url        TEXT NOT NULL,
						secret     TEXT NOT NULL DEFAULT '',
						enabled    INTEGER NOT NULL DEFAULT 1,
						created_at DATETIME NOT NULL
					)`)
				return err
			},
		},
	}
}
