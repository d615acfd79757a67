package anomaly

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/quarrylane/riskwatch/pkg/risk"
)

// AnomalyStore persists detected anomaly records. Records are write-only:
// they are never updated or merged after insertion.
type AnomalyStore struct {
	db *sql.DB
}

// NewAnomalyStore creates a store backed by the shared database.
func NewAnomalyStore(db *sql.DB) *AnomalyStore {
	return &AnomalyStore{db: db}
}

// InsertRecord persists one anomaly record.
func (s *AnomalyStore) InsertRecord(ctx context.Context, rec *risk.AnomalyRecord) error {
	var trend any
	if rec.TrendDirection != "" {
		trend = rec.TrendDirection
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_anomalies
			(id, property_id, metric_name, observed_at, value, z_score, cusum_value,
			 detection_method, confidence, trend_direction, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PropertyID, rec.MetricName, rec.ObservedAt.UTC(), rec.Value,
		rec.ZScore, rec.CUSUMValue, rec.DetectionMethod, rec.Confidence, trend,
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert anomaly %s/%s: %w", rec.PropertyID, rec.MetricName, err)
	}
	return nil
}

// ListByProperty returns a property's anomaly records, newest first.
func (s *AnomalyStore) ListByProperty(ctx context.Context, propertyID string, limit int) ([]risk.AnomalyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, property_id, metric_name, observed_at, value, z_score, cusum_value,
		       detection_method, confidence, trend_direction, created_at
		FROM risk_anomalies
		WHERE property_id = ?
		ORDER BY created_at DESC LIMIT ?`,
		propertyID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list anomalies %s: %w", propertyID, err)
	}
	defer rows.Close()

	var records []risk.AnomalyRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// CountSince counts anomaly records created after the given time.
func (s *AnomalyStore) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM risk_anomalies WHERE created_at >= ?`, since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count anomalies: %w", err)
	}
	return n, nil
}

// Statistics summarizes anomaly records, optionally scoped to one property.
func (s *AnomalyStore) Statistics(ctx context.Context, propertyID string) (*risk.AnomalyStatistics, error) {
	where := ""
	var args []any
	if propertyID != "" {
		where = " WHERE property_id = ?"
		args = append(args, propertyID)
	}

	stats := &risk.AnomalyStatistics{
		PropertyID:  propertyID,
		ByMethod:    make(map[string]int),
		ByDirection: make(map[string]int),
	}

	var first, last sql.NullTime
	var maxConf, avgConf sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MAX(confidence), AVG(confidence), MIN(created_at), MAX(created_at)
		FROM risk_anomalies`+where, args...,
	).Scan(&stats.Total, &maxConf, &avgConf, &first, &last)
	if err != nil {
		return nil, fmt.Errorf("anomaly statistics: %w", err)
	}
	stats.MaxConfidence = maxConf.Float64
	stats.AvgConfidence = avgConf.Float64
	if first.Valid {
		t := first.Time
		stats.FirstDetected = &t
	}
	if last.Valid {
		t := last.Time
		stats.LastDetected = &t
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT detection_method, COUNT(*) FROM risk_anomalies`+where+`
		GROUP BY detection_method`, args...)
	if err != nil {
		return nil, fmt.Errorf("anomaly method counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var method string
		var count int
		if err := rows.Scan(&method, &count); err != nil {
			return nil, fmt.Errorf("scan method count: %w", err)
		}
		stats.ByMethod[method] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	dirRows, err := s.db.QueryContext(ctx, `
		SELECT trend_direction, COUNT(*) FROM risk_anomalies`+where+`
		GROUP BY trend_direction`, args...)
	if err != nil {
		return nil, fmt.Errorf("anomaly direction counts: %w", err)
	}
	defer dirRows.Close()
	for dirRows.Next() {
		var dir sql.NullString
		var count int
		if err := dirRows.Scan(&dir, &count); err != nil {
			return nil, fmt.Errorf("scan direction count: %w", err)
		}
		if dir.Valid && dir.String != "" {
			stats.ByDirection[dir.String] = count
		}
	}
	return stats, dirRows.Err()
}

func scanRecord(rows *sql.Rows) (*risk.AnomalyRecord, error) {
	var rec risk.AnomalyRecord
	var zScore, cusumValue sql.NullFloat64
	var trend sql.NullString

	err := rows.Scan(
		&rec.ID, &rec.PropertyID, &rec.MetricName, &rec.ObservedAt, &rec.Value,
		&zScore, &cusumValue, &rec.DetectionMethod, &rec.Confidence, &trend,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if zScore.Valid {
		v := zScore.Float64
		rec.ZScore = &v
	}
	if cusumValue.Valid {
		v := cusumValue.Float64
		rec.CUSUMValue = &v
	}
	rec.TrendDirection = trend.String
	return &rec, nil
}
