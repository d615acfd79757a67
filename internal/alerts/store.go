package alerts

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quarrylane/riskwatch/pkg/plugin"
	"github.com/quarrylane/riskwatch/pkg/risk"
)

// AlertStore persists alerts and workflow locks. Multi-statement writes
// run through the shared store's transaction helper so the read-then-write
// upsert is serialized on SQLite's single write connection.
type AlertStore struct {
	store plugin.Store
}

// NewAlertStore creates a store backed by the shared database.
func NewAlertStore(store plugin.Store) *AlertStore {
	return &AlertStore{store: store}
}

func (s *AlertStore) db() *sql.DB {
	return s.store.DB()
}

// UpsertPending creates a PENDING alert for (property, metric), or updates
// the existing pending one in place. Returns the resulting alert and
// whether it was newly created. A unique-constraint violation (two
// concurrent evaluations racing on the insert) triggers one retry, which
// then takes the update path.
func (s *AlertStore) UpsertPending(ctx context.Context, candidate *risk.Alert) (*risk.Alert, bool, error) {
	alert, created, err := s.upsertPendingOnce(ctx, candidate)
	if err != nil && isUniqueViolation(err) {
		alert, created, err = s.upsertPendingOnce(ctx, candidate)
	}
	if err != nil {
		return nil, false, fmt.Errorf("upsert pending alert %s/%s: %w", candidate.PropertyID, candidate.Metric, err)
	}
	return alert, created, nil
}

func (s *AlertStore) upsertPendingOnce(ctx context.Context, candidate *risk.Alert) (*risk.Alert, bool, error) {
	var result *risk.Alert
	var created bool

	err := s.store.Tx(ctx, func(tx *sql.Tx) error {
		existing, err := s.findPendingTx(ctx, tx, candidate.PropertyID, candidate.Metric)
		if err != nil {
			return err
		}

		now := time.Now().UTC()

		if existing != nil {
			_, err := tx.ExecContext(ctx, `
				UPDATE risk_alerts
				SET value = ?, threshold = ?, level = ?, committee = ?, updated_at = ?
				WHERE id = ?`,
				candidate.Value, candidate.Threshold, candidate.Level, candidate.Committee, now, existing.ID,
			)
			if err != nil {
				return err
			}
			existing.Value = candidate.Value
			existing.Threshold = candidate.Threshold
			existing.Level = candidate.Level
			existing.Committee = candidate.Committee
			existing.UpdatedAt = now
			result = existing
			created = false
			return nil
		}

		a := *candidate
		a.ID = uuid.NewString()
		a.Status = risk.StatusPending
		a.CreatedAt = now
		a.UpdatedAt = now

		_, err = tx.ExecContext(ctx, `
			INSERT INTO risk_alerts
				(id, property_id, metric, value, threshold, level, committee, status, notes, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.PropertyID, a.Metric, a.Value, a.Threshold, a.Level, a.Committee, a.Status, a.Notes, a.CreatedAt, a.UpdatedAt,
		)
		if err != nil {
			return err
		}
		result = &a
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

func (s *AlertStore) findPendingTx(ctx context.Context, tx *sql.Tx, propertyID, metric string) (*risk.Alert, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, property_id, metric, value, threshold, level, committee, status,
		       approved_by, approved_at, notes, created_at, updated_at
		FROM risk_alerts
		WHERE property_id = ? AND metric = ? AND status = ?`,
		propertyID, metric, risk.StatusPending,
	)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// GetAlert returns an alert by ID, or nil when unknown.
func (s *AlertStore) GetAlert(ctx context.Context, id string) (*risk.Alert, error) {
	row := s.db().QueryRowContext(ctx, `
		SELECT id, property_id, metric, value, threshold, level, committee, status,
		       approved_by, approved_at, notes, created_at, updated_at
		FROM risk_alerts WHERE id = ?`, id,
	)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alert %s: %w", id, err)
	}
	return a, nil
}

// Decide transitions a PENDING alert to a terminal status, and unlocks the
// property's workflow lock when the decision is approval. Returns the
// updated alert and whether a lock was released.
// Fails with risk.ErrNotFound for unknown alerts and risk.ErrInvalidState
// for alerts already decided.
func (s *AlertStore) Decide(ctx context.Context, alertID, actorID, status, notes string, decidedAt time.Time) (*risk.Alert, bool, error) {
	var result *risk.Alert
	var unlocked bool

	err := s.store.Tx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT id, property_id, metric, value, threshold, level, committee, status,
			       approved_by, approved_at, notes, created_at, updated_at
			FROM risk_alerts WHERE id = ?`, alertID,
		)
		a, err := scanAlert(row)
		if err == sql.ErrNoRows {
			return fmt.Errorf("alert %s: %w", alertID, risk.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if a.Status != risk.StatusPending {
			return fmt.Errorf("alert %s is %s: %w", alertID, a.Status, risk.ErrInvalidState)
		}

		at := decidedAt.UTC()
		_, err = tx.ExecContext(ctx, `
			UPDATE risk_alerts
			SET status = ?, approved_by = ?, approved_at = ?, notes = ?, updated_at = ?
			WHERE id = ?`,
			status, actorID, at, notes, at, alertID,
		)
		if err != nil {
			return err
		}

		a.Status = status
		a.ApprovedBy = actorID
		a.ApprovedAt = &at
		a.Notes = notes
		a.UpdatedAt = at
		result = a

		// Approval releases the lock raised by this alert. Rejection
		// leaves the gate engaged.
		if status == risk.StatusApproved {
			res, err := tx.ExecContext(ctx, `
				UPDATE risk_workflow_locks
				SET status = ?, unlocked_at = ?, unlocked_by = ?
				WHERE alert_id = ? AND status = ?`,
				risk.LockStatusUnlocked, at, actorID, alertID, risk.LockStatusLocked,
			)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			unlocked = n > 0
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, unlocked, nil
}

// PendingAlerts returns pending alerts filtered by committee and/or
// property. Empty filters match everything. Newest first.
func (s *AlertStore) PendingAlerts(ctx context.Context, committee, propertyID string) ([]risk.Alert, error) {
	query := `
		SELECT id, property_id, metric, value, threshold, level, committee, status,
		       approved_by, approved_at, notes, created_at, updated_at
		FROM risk_alerts WHERE status = ?`
	args := []any{risk.StatusPending}
	if committee != "" {
		query += " AND committee = ?"
		args = append(args, committee)
	}
	if propertyID != "" {
		query += " AND property_id = ?"
		args = append(args, propertyID)
	}
	query += " ORDER BY created_at DESC"

	return s.queryAlerts(ctx, query, args...)
}

// RecentDecisions returns decided alerts for a committee since the given
// time, newest first, capped at limit.
func (s *AlertStore) RecentDecisions(ctx context.Context, committee string, since time.Time, limit int) ([]risk.Alert, error) {
	return s.queryAlerts(ctx, `
		SELECT id, property_id, metric, value, threshold, level, committee, status,
		       approved_by, approved_at, notes, created_at, updated_at
		FROM risk_alerts
		WHERE committee = ? AND status != ? AND approved_at >= ?
		ORDER BY approved_at DESC LIMIT ?`,
		committee, risk.StatusPending, since.UTC(), limit,
	)
}

// CountPending counts pending alerts, optionally scoped to a committee.
func (s *AlertStore) CountPending(ctx context.Context, committee string) (int, error) {
	query := `SELECT COUNT(*) FROM risk_alerts WHERE status = ?`
	args := []any{risk.StatusPending}
	if committee != "" {
		query += " AND committee = ?"
		args = append(args, committee)
	}
	var n int
	if err := s.db().QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending alerts: %w", err)
	}
	return n, nil
}

// LockWorkflow raises a LOCKED lock for the property unless one is already
// engaged. Returns the lock and true when a new lock was created. A
// unique-constraint violation means a concurrent evaluation won the race;
// that is treated as "already locked".
func (s *AlertStore) LockWorkflow(ctx context.Context, propertyID, alertID string) (*risk.WorkflowLock, bool, error) {
	var result *risk.WorkflowLock
	var created bool

	err := s.store.Tx(ctx, func(tx *sql.Tx) error {
		var existing int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM risk_workflow_locks
			WHERE property_id = ? AND status = ?`,
			propertyID, risk.LockStatusLocked,
		).Scan(&existing)
		if err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		lock := &risk.WorkflowLock{
			ID:         uuid.NewString(),
			PropertyID: propertyID,
			AlertID:    alertID,
			Status:     risk.LockStatusLocked,
			LockedAt:   time.Now().UTC(),
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO risk_workflow_locks (id, property_id, alert_id, status, locked_at)
			VALUES (?, ?, ?, ?, ?)`,
			lock.ID, lock.PropertyID, lock.AlertID, lock.Status, lock.LockedAt,
		)
		if err != nil {
			return err
		}
		result = lock
		created = true
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("lock workflow %s: %w", propertyID, err)
	}
	return result, created, nil
}

// ActiveLockCount returns the number of LOCKED workflow locks.
func (s *AlertStore) ActiveLockCount(ctx context.Context) (int, error) {
	var n int
	err := s.db().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM risk_workflow_locks WHERE status = ?`,
		risk.LockStatusLocked,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active locks: %w", err)
	}
	return n, nil
}

// ActiveLockCountForCommittee returns the number of LOCKED workflow locks
// on properties that carry a pending alert owned by the given committee.
func (s *AlertStore) ActiveLockCountForCommittee(ctx context.Context, committee string) (int, error) {
	var n int
	err := s.db().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM risk_workflow_locks
		 WHERE status = ?
		   AND property_id IN (
			SELECT property_id FROM risk_alerts WHERE status = ? AND committee = ?
		   )`,
		risk.LockStatusLocked, risk.StatusPending, committee,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active locks for %s: %w", committee, err)
	}
	return n, nil
}

// ListLocks returns workflow locks, optionally filtered by property,
// newest first.
func (s *AlertStore) ListLocks(ctx context.Context, propertyID string) ([]risk.WorkflowLock, error) {
	query := `
		SELECT id, property_id, alert_id, status, locked_at, unlocked_at, unlocked_by
		FROM risk_workflow_locks`
	var args []any
	if propertyID != "" {
		query += " WHERE property_id = ?"
		args = append(args, propertyID)
	}
	query += " ORDER BY locked_at DESC"

	rows, err := s.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list locks: %w", err)
	}
	defer rows.Close()

	var locks []risk.WorkflowLock
	for rows.Next() {
		var l risk.WorkflowLock
		var unlockedAt sql.NullTime
		var unlockedBy sql.NullString
		if err := rows.Scan(&l.ID, &l.PropertyID, &l.AlertID, &l.Status, &l.LockedAt, &unlockedAt, &unlockedBy); err != nil {
			return nil, fmt.Errorf("scan lock: %w", err)
		}
		if unlockedAt.Valid {
			t := unlockedAt.Time
			l.UnlockedAt = &t
		}
		l.UnlockedBy = unlockedBy.String
		locks = append(locks, l)
	}
	return locks, rows.Err()
}

func (s *AlertStore) queryAlerts(ctx context.Context, query string, args ...any) ([]risk.Alert, error) {
	rows, err := s.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []risk.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*risk.Alert, error) {
	var a risk.Alert
	var approvedBy, notes sql.NullString
	var approvedAt sql.NullTime

	err := row.Scan(
		&a.ID, &a.PropertyID, &a.Metric, &a.Value, &a.Threshold, &a.Level,
		&a.Committee, &a.Status, &approvedBy, &approvedAt, &notes,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.ApprovedBy = approvedBy.String
	a.Notes = notes.String
	if approvedAt.Valid {
		t := approvedAt.Time
		a.ApprovedAt = &t
	}
	return &a, nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint
// failure (modernc.org/sqlite surfaces these as string-typed errors).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
