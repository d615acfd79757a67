package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/quarrylane/riskwatch/pkg/plugin"
	"github.com/quarrylane/riskwatch/pkg/risk"
	"github.com/quarrylane/riskwatch/pkg/roles"
	"go.uber.org/zap"
)

// Engine evaluates fixed business thresholds per property, maintains the
// alert lifecycle, and manages workflow locks on critical alerts.
// Notification delivery happens over the bus: the engine publishes alert
// lifecycle events and the notify module subscribes.
type Engine struct {
	store   *AlertStore
	metrics roles.MetricHistory
	props   roles.PropertyDirectory

	// Optional collaborators; nil means the concern is skipped.
	audit roles.AuditRecorder
	bus   plugin.EventBus

	logger *zap.Logger
	now    func() time.Time

	// Dashboard decision-history bounds.
	decisionWindow time.Duration
	decisionLimit  int
}

// NewEngine creates an alert engine over the given store and providers.
func NewEngine(store *AlertStore, metrics roles.MetricHistory, props roles.PropertyDirectory, logger *zap.Logger) *Engine {
	return &Engine{
		store:          store,
		metrics:        metrics,
		props:          props,
		logger:         logger,
		now:            time.Now,
		decisionWindow: defaultDecisionWindow,
		decisionLimit:  defaultDecisionLimit,
	}
}

// breach is one threshold violation found during evaluation.
type breach struct {
	metric    string
	value     float64
	threshold float64
	level     string
	committee string
}

// CheckPropertyMetrics runs the DSCR, occupancy, and revenue-decline checks
// for one property. Each breach upserts a PENDING alert; critical breaches
// additionally raise a workflow lock. Returns every alert touched by this
// evaluation. An unknown property logs a warning and returns empty.
func (e *Engine) CheckPropertyMetrics(ctx context.Context, propertyID string) ([]risk.Alert, error) {
	prop, err := e.props.Property(ctx, propertyID)
	if err != nil {
		return nil, fmt.Errorf("fetch property %s: %w", propertyID, err)
	}
	if prop == nil {
		e.logger.Warn("check skipped: unknown property", zap.String("property_id", propertyID))
		return nil, nil
	}

	var breaches []breach
	for _, check := range []func(context.Context, *risk.Property) (*breach, error){
		e.checkDSCR,
		e.checkOccupancy,
		e.checkRevenueDecline,
	} {
		b, err := check(ctx, prop)
		if err != nil {
			return nil, err
		}
		if b != nil {
			breaches = append(breaches, *b)
		}
	}

	var alerts []risk.Alert
	for _, b := range breaches {
		alert, _, err := e.createOrUpdateAlert(ctx, propertyID, b)
		if err != nil {
			return alerts, err
		}
		alerts = append(alerts, *alert)

		if b.level == risk.LevelCritical {
			if err := e.lockWorkflow(ctx, propertyID, alert.ID); err != nil {
				return alerts, err
			}
		}
	}
	return alerts, nil
}

// checkDSCR compares the latest DSCR sample against the fixed thresholds.
// Missing data skips the check; a provider failure aborts the evaluation.
func (e *Engine) checkDSCR(ctx context.Context, prop *risk.Property) (*breach, error) {
	sample, err := e.metrics.Latest(ctx, prop.ID, MetricDSCR)
	if err != nil {
		return nil, fmt.Errorf("dscr check %s: %w", prop.ID, err)
	}
	if sample == nil {
		e.logger.Warn("dscr check skipped: no data", zap.String("property_id", prop.ID))
		return nil, nil
	}

	switch {
	case sample.Value < DSCRCriticalThreshold:
		return &breach{MetricDSCR, sample.Value, DSCRCriticalThreshold, risk.LevelCritical, CommitteeFinance}, nil
	case sample.Value < DSCRWarningThreshold:
		return &breach{MetricDSCR, sample.Value, DSCRWarningThreshold, risk.LevelWarning, CommitteeFinance}, nil
	}
	return nil, nil
}

// checkOccupancy evaluates occupied/total units. Properties with zero
// units are skipped; a directory failure aborts the evaluation.
func (e *Engine) checkOccupancy(ctx context.Context, prop *risk.Property) (*breach, error) {
	units, err := e.props.Units(ctx, prop.ID)
	if err != nil {
		return nil, fmt.Errorf("occupancy check %s: %w", prop.ID, err)
	}
	if units == nil || units.Total == 0 {
		e.logger.Warn("occupancy check skipped: no units", zap.String("property_id", prop.ID))
		return nil, nil
	}

	rate := float64(units.Occupied) / float64(units.Total)
	switch {
	case rate < OccupancyCriticalThreshold:
		return &breach{MetricOccupancyRate, rate, OccupancyCriticalThreshold, risk.LevelCritical, CommitteeOccupancy}, nil
	case rate < OccupancyWarningThreshold:
		return &breach{MetricOccupancyRate, rate, OccupancyWarningThreshold, risk.LevelWarning, CommitteeOccupancy}, nil
	}
	return nil, nil
}

// checkRevenueDecline computes (earliest - latest) / earliest over the last
// 90 days of revenue samples. Requires at least two samples and a positive
// earliest value. Decline uses >= on the thresholds, unlike the strict <
// used by the other checks. A provider failure aborts the evaluation.
func (e *Engine) checkRevenueDecline(ctx context.Context, prop *risk.Property) (*breach, error) {
	since := e.now().Add(-revenueWindow)

	var samples []risk.MetricSample
	for _, name := range revenueMetricNames {
		history, err := e.metrics.History(ctx, prop.ID, name, since)
		if err != nil {
			return nil, fmt.Errorf("revenue check %s (%s): %w", prop.ID, name, err)
		}
		if len(history) >= 2 {
			samples = history
			break
		}
	}
	if len(samples) < 2 {
		e.logger.Warn("revenue check skipped: insufficient samples", zap.String("property_id", prop.ID))
		return nil, nil
	}

	earliest := samples[0].Value
	latest := samples[len(samples)-1].Value
	if earliest <= 0 {
		e.logger.Warn("revenue check skipped: non-positive baseline", zap.String("property_id", prop.ID))
		return nil, nil
	}

	decline := (earliest - latest) / earliest
	switch {
	case decline >= RevenueDeclineCriticalThreshold:
		return &breach{MetricRevenueDecline, decline, RevenueDeclineCriticalThreshold, risk.LevelCritical, CommitteeFinance}, nil
	case decline >= RevenueDeclineWarningThreshold:
		return &breach{MetricRevenueDecline, decline, RevenueDeclineWarningThreshold, risk.LevelWarning, CommitteeFinance}, nil
	}
	return nil, nil
}

// createOrUpdateAlert applies the idempotent pending upsert and emits the
// audit/bus side effects.
func (e *Engine) createOrUpdateAlert(ctx context.Context, propertyID string, b breach) (*risk.Alert, bool, error) {
	candidate := &risk.Alert{
		PropertyID: propertyID,
		Metric:     b.metric,
		Value:      b.value,
		Threshold:  b.threshold,
		Level:      b.level,
		Committee:  b.committee,
	}
	alert, created, err := e.store.UpsertPending(ctx, candidate)
	if err != nil {
		return nil, false, err
	}

	if created {
		alertsCreatedTotal.WithLabelValues(alert.Level).Inc()
		e.recordAudit(ctx, risk.AuditEvent{
			Action:     ActionAlertCreated,
			PropertyID: propertyID,
			Details: map[string]any{
				"alert_id":  alert.ID,
				"metric":    alert.Metric,
				"value":     alert.Value,
				"threshold": alert.Threshold,
				"level":     alert.Level,
				"committee": alert.Committee,
			},
		})
		e.publish(ctx, TopicAlertCreated, alert)
		e.logger.Info("alert created",
			zap.String("alert_id", alert.ID),
			zap.String("property_id", propertyID),
			zap.String("metric", alert.Metric),
			zap.String("level", alert.Level),
			zap.Float64("value", alert.Value),
		)
	} else {
		e.publish(ctx, TopicAlertUpdated, alert)
		e.logger.Info("pending alert refreshed",
			zap.String("alert_id", alert.ID),
			zap.String("property_id", propertyID),
			zap.String("metric", alert.Metric),
			zap.String("level", alert.Level),
		)
	}
	return alert, created, nil
}

// lockWorkflow raises the property's workflow lock. Already-locked
// properties are a no-op.
func (e *Engine) lockWorkflow(ctx context.Context, propertyID, alertID string) error {
	lock, created, err := e.store.LockWorkflow(ctx, propertyID, alertID)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	workflowLocksTotal.Inc()
	e.recordAudit(ctx, risk.AuditEvent{
		Action:     ActionWorkflowLock,
		PropertyID: propertyID,
		Details: map[string]any{
			"lock_id":  lock.ID,
			"alert_id": alertID,
		},
	})
	e.publish(ctx, TopicWorkflowLocked, lock)
	e.logger.Info("workflow locked",
		zap.String("property_id", propertyID),
		zap.String("alert_id", alertID),
	)
	return nil
}

// ApproveAlert applies a committee decision to a pending alert. Approval
// releases the workflow lock raised by the alert; rejection leaves it
// engaged. Decisions are terminal.
func (e *Engine) ApproveAlert(ctx context.Context, alertID, actorID, decision, notes string) (*risk.DecisionResult, error) {
	var status string
	switch decision {
	case risk.DecisionApproved:
		status = risk.StatusApproved
	case risk.DecisionRejected:
		status = risk.StatusRejected
	default:
		return nil, fmt.Errorf("decision must be %q or %q", risk.DecisionApproved, risk.DecisionRejected)
	}

	alert, unlocked, err := e.store.Decide(ctx, alertID, actorID, status, notes, e.now())
	if err != nil {
		return nil, err
	}

	alertDecisionsTotal.WithLabelValues(decision).Inc()
	e.recordAudit(ctx, risk.AuditEvent{
		Action:     ActionAlertDecision,
		ActorID:    actorID,
		PropertyID: alert.PropertyID,
		Details: map[string]any{
			"alert_id": alertID,
			"decision": decision,
			"notes":    notes,
		},
	})
	e.publish(ctx, TopicAlertDecided, alert)

	if unlocked {
		e.recordAudit(ctx, risk.AuditEvent{
			Action:     ActionWorkflowUnlock,
			ActorID:    actorID,
			PropertyID: alert.PropertyID,
			Details:    map[string]any{"alert_id": alertID},
		})
		e.publish(ctx, TopicWorkflowUnlocked, alert)
	}

	e.logger.Info("alert decided",
		zap.String("alert_id", alertID),
		zap.String("decision", decision),
		zap.String("actor_id", actorID),
		zap.Bool("unlocked", unlocked),
	)
	return &risk.DecisionResult{Alert: alert, Unlocked: unlocked}, nil
}

// GetPendingAlerts is a filtered read with no side effects.
func (e *Engine) GetPendingAlerts(ctx context.Context, committee, propertyID string) ([]risk.Alert, error) {
	return e.store.PendingAlerts(ctx, committee, propertyID)
}

func (e *Engine) recordAudit(ctx context.Context, event risk.AuditEvent) {
	if e.audit != nil {
		e.audit.Record(ctx, event)
	}
}

func (e *Engine) publish(ctx context.Context, topic string, payload any) {
	if e.bus != nil {
		e.bus.PublishAsync(ctx, plugin.Event{
			Topic:     topic,
			Source:    "alerts",
			Timestamp: e.now(),
			Payload:   payload,
		})
	}
}
