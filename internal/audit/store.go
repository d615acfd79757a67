package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quarrylane/riskwatch/pkg/risk"
)

// AuditStore persists the audit trail and weekly portfolio reports.
// Details maps are stored as JSON text.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore creates a store backed by the shared database.
func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

// InsertEvent appends one audit event and returns its ID.
func (s *AuditStore) InsertEvent(ctx context.Context, event *risk.AuditEvent) (int64, error) {
	details := "{}"
	if len(event.Details) > 0 {
		b, err := json.Marshal(event.Details)
		if err != nil {
			return 0, fmt.Errorf("marshal audit details: %w", err)
		}
		details = string(b)
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var actor, property any
	if event.ActorID != "" {
		actor = event.ActorID
	}
	if event.PropertyID != "" {
		property = event.PropertyID
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (action, actor_id, property_id, details, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		event.Action, actor, property, details, createdAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert audit event %s: %w", event.Action, err)
	}
	return res.LastInsertId()
}

// Recent returns the newest audit events, optionally filtered by action.
func (s *AuditStore) Recent(ctx context.Context, action string, limit int) ([]risk.AuditEvent, error) {
	query := `
		SELECT id, action, actor_id, property_id, details, created_at
		FROM audit_events`
	var args []any
	if action != "" {
		query += " WHERE action = ?"
		args = append(args, action)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []risk.AuditEvent
	for rows.Next() {
		var ev risk.AuditEvent
		var actor, property sql.NullString
		var details string
		if err := rows.Scan(&ev.ID, &ev.Action, &actor, &property, &details, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.ActorID = actor.String
		ev.PropertyID = property.String
		if details != "" && details != "{}" {
			if err := json.Unmarshal([]byte(details), &ev.Details); err != nil {
				return nil, fmt.Errorf("unmarshal audit details: %w", err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DeleteBefore removes audit events older than the cutoff and returns the
// number deleted.
func (s *AuditStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_events WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete audit events: %w", err)
	}
	return res.RowsAffected()
}

// InsertReport persists a weekly portfolio report and sets its ID.
func (s *AuditStore) InsertReport(ctx context.Context, report *risk.PortfolioReport) error {
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_reports
			(properties, pending_alerts, critical_alerts, active_locks, anomalies_week, generated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		report.Properties, report.PendingAlerts, report.CriticalAlerts,
		report.ActiveLocks, report.AnomaliesWeek, report.GeneratedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert portfolio report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	report.ID = id
	return nil
}

// Reports returns the newest portfolio reports.
func (s *AuditStore) Reports(ctx context.Context, limit int) ([]risk.PortfolioReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, properties, pending_alerts, critical_alerts, active_locks, anomalies_week, generated_at
		FROM audit_reports ORDER BY generated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []risk.PortfolioReport
	for rows.Next() {
		var rep risk.PortfolioReport
		if err := rows.Scan(&rep.ID, &rep.Properties, &rep.PendingAlerts, &rep.CriticalAlerts,
			&rep.ActiveLocks, &rep.AnomaliesWeek, &rep.GeneratedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

// CountEvents returns the total number of audit events.
func (s *AuditStore) CountEvents(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return n, nil
}
