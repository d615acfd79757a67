// Package risk provides public SDK types for the RiskWatch monitoring system.
// These are the entities shared between modules and exposed over the API.
package risk

import "time"

// Alert severity levels.
const (
	LevelWarning  = "WARNING"
	LevelCritical = "CRITICAL"
)

// Alert lifecycle statuses. PENDING is the only non-terminal status.
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

// Committee decision values accepted by the approval endpoint.
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// Workflow lock statuses.
const (
	LockStatusLocked   = "LOCKED"
	LockStatusUnlocked = "UNLOCKED"
)

// Anomaly detection methods.
const (
	MethodZScore = "zscore"
	MethodCUSUM  = "cusum"
)

// Anomaly trend directions (CUSUM only).
const (
	TrendUpward   = "upward"
	TrendDownward = "downward"
)

// Property is a monitored portfolio property.
type Property struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	TotalUnits    int       `json:"total_units"`
	OccupiedUnits int       `json:"occupied_units"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// UnitCounts is the occupancy snapshot for a property.
type UnitCounts struct {
	Total    int `json:"total"`
	Occupied int `json:"occupied"`
}

// MetricSample is a single extracted metric observation for a property.
// Samples are immutable once recorded and ordered by RecordedAt per
// (property, metric) pair.
type MetricSample struct {
	PropertyID string    `json:"property_id"`
	MetricName string    `json:"metric_name"`
	Value      float64   `json:"value"`
	Confidence float64   `json:"confidence"` // 0.0-1.0, from the extraction pipeline
	RecordedAt time.Time `json:"recorded_at"`
}

// Alert is a threshold breach awaiting (or past) committee review.
// At most one PENDING alert exists per (property, metric) pair.
type Alert struct {
	ID         string     `json:"id"`
	PropertyID string     `json:"property_id"`
	Metric     string     `json:"metric"`
	Value      float64    `json:"value"`
	Threshold  float64    `json:"threshold"`
	Level      string     `json:"level"`  // WARNING, CRITICAL
	Committee  string     `json:"committee"`
	Status     string     `json:"status"` // PENDING, APPROVED, REJECTED
	ApprovedBy string     `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Pending reports whether the alert is still awaiting a committee decision.
func (a *Alert) Pending() bool {
	return a.Status == StatusPending
}

// WorkflowLock gates downstream workflow on a property until the critical
// alert that raised it is approved. At most one LOCKED lock per property.
type WorkflowLock struct {
	ID         string     `json:"id"`
	PropertyID string     `json:"property_id"`
	AlertID    string     `json:"alert_id"`
	Status     string     `json:"status"` // LOCKED, UNLOCKED
	LockedAt   time.Time  `json:"locked_at"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
	UnlockedBy string     `json:"unlocked_by,omitempty"`
}

// AnomalyRecord is a statistical outlier detected on a property metric.
// Records are immutable; the z-score and CUSUM detectors emit independent
// records for the same observation.
type AnomalyRecord struct {
	ID              string    `json:"id"`
	PropertyID      string    `json:"property_id"`
	MetricName      string    `json:"metric_name"`
	ObservedAt      time.Time `json:"observed_at"`
	Value           float64   `json:"value"`
	ZScore          *float64  `json:"z_score,omitempty"`
	CUSUMValue      *float64  `json:"cusum_value,omitempty"`
	DetectionMethod string    `json:"detection_method"` // zscore, cusum
	Confidence      float64   `json:"confidence"`       // 0.0-0.99
	TrendDirection  string    `json:"trend_direction,omitempty"` // upward, downward
	CreatedAt       time.Time `json:"created_at"`
}

// AnomalyStatistics summarizes detected anomalies, optionally per property.
type AnomalyStatistics struct {
	PropertyID    string         `json:"property_id,omitempty"`
	Total         int            `json:"total"`
	ByMethod      map[string]int `json:"by_method"`
	ByDirection   map[string]int `json:"by_direction"`
	MaxConfidence float64        `json:"max_confidence"`
	AvgConfidence float64        `json:"avg_confidence"`
	FirstDetected *time.Time     `json:"first_detected,omitempty"`
	LastDetected  *time.Time     `json:"last_detected,omitempty"`
}

// DecisionResult is returned by the alert approval entry point.
type DecisionResult struct {
	Alert    *Alert `json:"alert"`
	Unlocked bool   `json:"unlocked"` // true if a workflow lock was released
}

// CommitteeDashboard aggregates a committee's review workload.
type CommitteeDashboard struct {
	Committee       string  `json:"committee"`
	PendingAlerts   []Alert `json:"pending_alerts"`
	RecentDecisions []Alert `json:"recent_decisions"` // last 30 days, at most 10
	ActiveLocks     int     `json:"active_locks"`
	TotalPending    int     `json:"total_pending"`
}

// AuditEvent is a structured entry in the audit trail. Recording an event
// never fails the caller's primary operation.
type AuditEvent struct {
	ID         int64          `json:"id"`
	Action     string         `json:"action"`
	ActorID    string         `json:"actor_id,omitempty"`
	PropertyID string         `json:"property_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// PortfolioReport is the weekly aggregate emitted by the batch scheduler.
type PortfolioReport struct {
	ID             int64     `json:"id"`
	Properties     int       `json:"properties"`
	PendingAlerts  int       `json:"pending_alerts"`
	CriticalAlerts int       `json:"critical_alerts"`
	ActiveLocks    int       `json:"active_locks"`
	AnomaliesWeek  int       `json:"anomalies_week"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// PortfolioFlag is the bus payload published when a property's scan finds
// high-confidence anomalies.
type PortfolioFlag struct {
	PropertyID string          `json:"property_id"`
	Anomalies  []AnomalyRecord `json:"anomalies"`
	FlaggedAt  time.Time       `json:"flagged_at"`
}

// HealthFinding is the bus payload published by the health probe when a
// check crosses a critical threshold.
type HealthFinding struct {
	Check      string    `json:"check"`
	Severity   string    `json:"severity"` // WARNING, CRITICAL
	Detail     string    `json:"detail"`
	ObservedAt time.Time `json:"observed_at"`
}

// Notification is the payload handed to notification channels.
type Notification struct {
	Kind       string    `json:"kind"` // "alert", "anomaly", "health"
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	PropertyID string    `json:"property_id,omitempty"`
	Severity   string    `json:"severity,omitempty"`
	Payload    any       `json:"payload,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
