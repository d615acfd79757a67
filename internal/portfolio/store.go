package portfolio

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/quarrylane/riskwatch/pkg/risk"
)

// PropertyStore persists properties and their metric samples.
type PropertyStore struct {
	db *sql.DB
}

// NewPropertyStore creates a store backed by the shared database.
func NewPropertyStore(db *sql.DB) *PropertyStore {
	return &PropertyStore{db: db}
}

// UpsertProperty inserts a property or updates its name and unit counts.
func (s *PropertyStore) UpsertProperty(ctx context.Context, p *risk.Property) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO portfolio_properties (id, name, total_units, occupied_units, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			total_units = excluded.total_units,
			occupied_units = excluded.occupied_units,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, p.TotalUnits, p.OccupiedUnits, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert property %s: %w", p.ID, err)
	}
	return nil
}

// GetProperty returns a property by ID, or nil when unknown.
func (s *PropertyStore) GetProperty(ctx context.Context, id string) (*risk.Property, error) {
	var p risk.Property
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, total_units, occupied_units, created_at, updated_at
		FROM portfolio_properties WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.TotalUnits, &p.OccupiedUnits, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get property %s: %w", id, err)
	}
	return &p, nil
}

// ListProperties returns all properties ordered by name.
func (s *PropertyStore) ListProperties(ctx context.Context) ([]risk.Property, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, total_units, occupied_units, created_at, updated_at
		FROM portfolio_properties ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	defer rows.Close()

	var props []risk.Property
	for rows.Next() {
		var p risk.Property
		if err := rows.Scan(&p.ID, &p.Name, &p.TotalUnits, &p.OccupiedUnits, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		props = append(props, p)
	}
	return props, rows.Err()
}

// PropertyIDs returns all registered property identifiers.
func (s *PropertyStore) PropertyIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM portfolio_properties ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list property ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan property id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertSample records one metric sample.
func (s *PropertyStore) InsertSample(ctx context.Context, sample *risk.MetricSample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO portfolio_metric_samples (property_id, metric_name, value, confidence, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		sample.PropertyID, sample.MetricName, sample.Value, sample.Confidence, sample.RecordedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert sample %s/%s: %w", sample.PropertyID, sample.MetricName, err)
	}
	return nil
}

// History returns samples for a property metric since the given time,
// ascending by timestamp.
func (s *PropertyStore) History(ctx context.Context, propertyID, metricName string, since time.Time) ([]risk.MetricSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT property_id, metric_name, value, confidence, recorded_at
		FROM portfolio_metric_samples
		WHERE property_id = ? AND metric_name = ? AND recorded_at >= ?
		ORDER BY recorded_at ASC`,
		propertyID, metricName, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query history %s/%s: %w", propertyID, metricName, err)
	}
	defer rows.Close()

	var samples []risk.MetricSample
	for rows.Next() {
		var ms risk.MetricSample
		if err := rows.Scan(&ms.PropertyID, &ms.MetricName, &ms.Value, &ms.Confidence, &ms.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		samples = append(samples, ms)
	}
	return samples, rows.Err()
}

// Latest returns the most recent sample for a property metric, or nil
// when none has been recorded.
func (s *PropertyStore) Latest(ctx context.Context, propertyID, metricName string) (*risk.MetricSample, error) {
	var ms risk.MetricSample
	err := s.db.QueryRowContext(ctx, `
		SELECT property_id, metric_name, value, confidence, recorded_at
		FROM portfolio_metric_samples
		WHERE property_id = ? AND metric_name = ?
		ORDER BY recorded_at DESC LIMIT 1`,
		propertyID, metricName,
	).Scan(&ms.PropertyID, &ms.MetricName, &ms.Value, &ms.Confidence, &ms.RecordedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest %s/%s: %w", propertyID, metricName, err)
	}
	return &ms, nil
}

// MetricNames returns the distinct metric names recorded for a property.
func (s *PropertyStore) MetricNames(ctx context.Context, propertyID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT metric_name FROM portfolio_metric_samples
		WHERE property_id = ? ORDER BY metric_name`,
		propertyID,
	)
	if err != nil {
		return nil, fmt.Errorf("query metric names %s: %w", propertyID, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan metric name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteSamplesBefore prunes samples recorded before the cutoff.
func (s *PropertyStore) DeleteSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM portfolio_metric_samples WHERE recorded_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune samples: %w", err)
	}
	return res.RowsAffected()
}
