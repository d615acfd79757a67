package alerts

import "time"

// Metric names evaluated by the engine.
const (
	MetricDSCR           = "dscr"
	MetricOccupancyRate  = "occupancy_rate"
	MetricRevenueDecline = "revenue_decline"
)

// Revenue metric names accepted from the extraction pipeline, in
// preference order.
var revenueMetricNames = []string{"gross_revenue", "total_revenue"}

// Fixed business thresholds. DSCR and occupancy use strict less-than;
// revenue decline uses greater-or-equal. The asymmetry is intentional.
const (
	DSCRWarningThreshold  = 1.30
	DSCRCriticalThreshold = 1.25

	OccupancyWarningThreshold  = 0.85
	OccupancyCriticalThreshold = 0.80

	RevenueDeclineWarningThreshold  = 0.10
	RevenueDeclineCriticalThreshold = 0.15
)

// revenueWindow bounds the revenue-decline lookback.
const revenueWindow = 90 * 24 * time.Hour

// Committees responsible for reviewing each check's alerts.
const (
	CommitteeFinance   = "Finance Sub-Committee"
	CommitteeOccupancy = "Occupancy Sub-Committee"
)

// Audit trail action names emitted by the engine.
const (
	ActionAlertCreated   = "ALERT_CREATED"
	ActionAlertDecision  = "ALERT_DECISION"
	ActionWorkflowLock   = "WORKFLOW_LOCK"
	ActionWorkflowUnlock = "WORKFLOW_UNLOCK"
)
