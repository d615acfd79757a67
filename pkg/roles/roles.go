// Package roles defines typed contracts for module roles.
// Modules that fill a role (declared via PluginInfo.Roles) should implement
// the corresponding interface so callers can use type-safe access via
// PluginResolver.ResolveByRole followed by a type assertion.
package roles

import (
	"context"
	"time"

	"github.com/quarrylane/riskwatch/pkg/risk"
)

// Role name constants match the strings used in PluginInfo.Roles.
const (
	RoleMetricHistory     = "metric_history"
	RolePropertyDirectory = "property_directory"
	RoleAlerting          = "alerting"
	RoleAnalytics         = "analytics"
	RoleAudit             = "audit"
	RoleNotification      = "notification"
)

// MetricHistory is implemented by modules that serve per-property metric
// time series. Missing data is reported as empty results, never as an error.
type MetricHistory interface {
	// History returns samples for a property metric since the given time,
	// ascending by timestamp.
	History(ctx context.Context, propertyID, metricName string, since time.Time) ([]risk.MetricSample, error)

	// Latest returns the most recent sample for a property metric,
	// or nil when none has been recorded.
	Latest(ctx context.Context, propertyID, metricName string) (*risk.MetricSample, error)

	// MetricNames returns the distinct metric names recorded for a property.
	MetricNames(ctx context.Context, propertyID string) ([]string, error)
}

// PropertyDirectory is implemented by modules that hold the property roster.
type PropertyDirectory interface {
	// PropertyIDs returns all registered property identifiers.
	PropertyIDs(ctx context.Context) ([]string, error)

	// Property returns a single property, or nil when unknown.
	Property(ctx context.Context, id string) (*risk.Property, error)

	// Units returns occupancy counts for a property, or nil when unknown.
	Units(ctx context.Context, id string) (*risk.UnitCounts, error)
}

// AlertProvider is implemented by the alerting module.
type AlertProvider interface {
	// PendingAlerts returns pending alerts, optionally filtered by
	// committee and/or property. Empty filters match everything.
	PendingAlerts(ctx context.Context, committee, propertyID string) ([]risk.Alert, error)

	// ActiveLockCount returns the number of LOCKED workflow locks.
	ActiveLockCount(ctx context.Context) (int, error)
}

// AnalyticsProvider is implemented by the anomaly analysis module.
type AnalyticsProvider interface {
	// AnalyzeProperty runs statistical detection over a property's metric
	// history and returns all persisted anomaly records.
	AnalyzeProperty(ctx context.Context, propertyID string, lookbackMonths int) ([]risk.AnomalyRecord, error)

	// AnomaliesSince counts anomaly records created after the given time.
	AnomaliesSince(ctx context.Context, since time.Time) (int, error)
}

// AuditRecorder is implemented by the audit module. Record is
// fire-and-forget: it must never fail or block the caller's primary work.
type AuditRecorder interface {
	Record(ctx context.Context, event risk.AuditEvent)

	// DeleteBefore removes audit events older than the cutoff and returns
	// the number deleted.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// SaveReport persists a weekly portfolio report.
	SaveReport(ctx context.Context, report *risk.PortfolioReport) error
}

// Notifier is implemented by modules that deliver notifications.
// Delivery is best-effort: failures are logged by the implementation and
// never propagated to the caller.
type Notifier interface {
	Notify(ctx context.Context, notification risk.Notification)
}
