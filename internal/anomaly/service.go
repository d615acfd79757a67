package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quarrylane/riskwatch/internal/anomaly/stat"
	"github.com/quarrylane/riskwatch/pkg/risk"
	"github.com/quarrylane/riskwatch/pkg/roles"
	"go.uber.org/zap"
)

// DefaultLookbackMonths bounds the analysis window when the caller does
// not override it.
const DefaultLookbackMonths = 12

// ActionAnomalyScan is the audit action emitted per property analysis.
const ActionAnomalyScan = "ANOMALY_SCAN"

// Service orchestrates the statistical detectors across all metrics of a
// property and persists the resulting records.
type Service struct {
	store   *AnomalyStore
	metrics roles.MetricHistory
	audit   roles.AuditRecorder // may be nil
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates an anomaly service over the given store and history
// provider.
func NewService(store *AnomalyStore, metrics roles.MetricHistory, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// AnalyzeProperty runs Z-score and CUSUM detection over every metric the
// property has recorded within the lookback window, persists each detected
// record, and returns the full unfiltered list. Missing data is a warning,
// not an error; a fetch failure on one metric does not abort the others.
func (s *Service) AnalyzeProperty(ctx context.Context, propertyID string, lookbackMonths int) ([]risk.AnomalyRecord, error) {
	if lookbackMonths <= 0 {
		lookbackMonths = DefaultLookbackMonths
	}
	since := s.now().AddDate(0, -lookbackMonths, 0)

	names, err := s.metrics.MetricNames(ctx, propertyID)
	if err != nil {
		return nil, fmt.Errorf("metric names for %s: %w", propertyID, err)
	}
	if len(names) == 0 {
		s.logger.Warn("anomaly analysis skipped: no metric data",
			zap.String("property_id", propertyID))
		return nil, nil
	}

	var records []risk.AnomalyRecord
	metricsAnalyzed := 0

	for _, name := range names {
		samples, err := s.metrics.History(ctx, propertyID, name, since)
		if err != nil {
			s.logger.Warn("metric history fetch failed",
				zap.String("property_id", propertyID),
				zap.String("metric", name),
				zap.Error(err))
			continue
		}
		if len(samples) < stat.MinZScoreSamples {
			continue
		}
		metricsAnalyzed++

		points := make([]stat.Point, len(samples))
		for i, sm := range samples {
			points[i] = stat.Point{Timestamp: sm.RecordedAt, Value: sm.Value}
		}

		detected := s.detect(propertyID, name, points)
		for i := range detected {
			if err := s.store.InsertRecord(ctx, &detected[i]); err != nil {
				s.logger.Warn("failed to persist anomaly", zap.Error(err))
				continue
			}
			anomaliesDetectedTotal.WithLabelValues(detected[i].DetectionMethod).Inc()
			records = append(records, detected[i])
		}
	}

	if s.audit != nil {
		s.audit.Record(ctx, risk.AuditEvent{
			Action:     ActionAnomalyScan,
			PropertyID: propertyID,
			Details: map[string]any{
				"anomalies_found":  len(records),
				"metrics_analyzed": metricsAnalyzed,
				"property_id":      propertyID,
			},
		})
	}

	s.logger.Info("property analyzed",
		zap.String("property_id", propertyID),
		zap.Int("metrics_analyzed", metricsAnalyzed),
		zap.Int("anomalies_found", len(records)),
	)
	return records, nil
}

// detect runs both detectors over one metric series. The detectors are
// independent; a timestamp flagged by both yields two records.
func (s *Service) detect(propertyID, metricName string, points []stat.Point) []risk.AnomalyRecord {
	now := s.now().UTC()
	var records []risk.AnomalyRecord

	for _, hit := range stat.ZScores(points) {
		z := hit.ZScore
		records = append(records, risk.AnomalyRecord{
			ID:              uuid.NewString(),
			PropertyID:      propertyID,
			MetricName:      metricName,
			ObservedAt:      hit.Timestamp,
			Value:           hit.Value,
			ZScore:          &z,
			DetectionMethod: risk.MethodZScore,
			Confidence:      hit.Confidence,
			CreatedAt:       now,
		})
	}

	for _, hit := range stat.CUSUM(points) {
		cv := hit.CUSUMValue
		records = append(records, risk.AnomalyRecord{
			ID:              uuid.NewString(),
			PropertyID:      propertyID,
			MetricName:      metricName,
			ObservedAt:      hit.Timestamp,
			Value:           hit.Value,
			CUSUMValue:      &cv,
			DetectionMethod: risk.MethodCUSUM,
			Confidence:      hit.Confidence,
			TrendDirection:  hit.Trend,
			CreatedAt:       now,
		})
	}
	return records
}

// PropertyAnomalies returns a property's persisted records, newest first.
func (s *Service) PropertyAnomalies(ctx context.Context, propertyID string, limit int) ([]risk.AnomalyRecord, error) {
	return s.store.ListByProperty(ctx, propertyID, limit)
}

// Statistics summarizes persisted records, optionally per property.
func (s *Service) Statistics(ctx context.Context, propertyID string) (*risk.AnomalyStatistics, error) {
	return s.store.Statistics(ctx, propertyID)
}
