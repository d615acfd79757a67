// Package notify delivers best-effort notifications to configured webhook
// channels. Delivery failures are logged and never propagated.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/quarrylane/riskwatch/pkg/plugin"
	"github.com/quarrylane/riskwatch/pkg/risk"
	"github.com/quarrylane/riskwatch/pkg/roles"
	"go.uber.org/zap"
)

// Bus topics the dispatcher listens on. Alert updates are opt-in via
// the notify_updates config knob.
const (
	topicAlertCreated     = "alerts.alert.created"
	topicAlertUpdated     = "alerts.alert.updated"
	topicPortfolioFlagged = "anomaly.portfolio.flagged"
	topicHealthCritical   = "batch.health.critical"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.HTTPProvider    = (*Module)(nil)
	_ plugin.HealthChecker   = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
	_ roles.Notifier         = (*Module)(nil)
)

// Module implements the notify plugin.
type Module struct {
	logger *zap.Logger
	cfg    Config
	store  *ChannelStore
	sender *WebhookSender
}

// New creates a new notify plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "notify",
		Version:     "0.1.0",
		Description: "Webhook notification channels and bus-driven dispatch",
		Roles:       []string{roles.RoleNotification},
		Required:    false,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal notify config: %w", err)
		}
	}
	if m.cfg.Timeout <= 0 {
		m.cfg.Timeout = 10 * time.Second
	}

	if deps.Store == nil {
		return fmt.Errorf("notify requires a store")
	}
	if err := deps.Store.Migrate(context.Background(), "notify", migrations()); err != nil {
		return fmt.Errorf("notify migrations: %w", err)
	}
	m.store = NewChannelStore(deps.Store.DB())
	m.sender = NewWebhookSender(m.cfg.Timeout)

	m.logger.Info("notify module initialized", zap.Duration("timeout", m.cfg.Timeout))
	return nil
}

func (m *Module) Start(_ context.Context) error {
	m.logger.Info("notify module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("notify module stopped")
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	channels, err := m.store.ListChannels(ctx, true)
	if err != nil {
		return plugin.HealthStatus{Status: "unhealthy", Message: "channel store unreachable"}
	}
	status := "healthy"
	if len(channels) == 0 {
		status = "degraded"
	}
	return plugin.HealthStatus{
		Status: status,
		Details: map[string]string{
			"enabled_channels": strconv.Itoa(len(channels)),
		},
	}
}

// Subscriptions implements plugin.EventSubscriber.
func (m *Module) Subscriptions() []plugin.Subscription {
	subs := []plugin.Subscription{
		{Topic: topicAlertCreated, Handler: m.handleAlertEvent},
		{Topic: topicPortfolioFlagged, Handler: m.handlePortfolioFlagged},
		{Topic: topicHealthCritical, Handler: m.handleHealthCritical},
	}
	if m.cfg.NotifyUpdates {
		subs = append(subs, plugin.Subscription{Topic: topicAlertUpdated, Handler: m.handleAlertEvent})
	}
	return subs
}

func (m *Module) handleAlertEvent(ctx context.Context, event plugin.Event) {
	alert, ok := event.Payload.(*risk.Alert)
	if !ok {
		m.logger.Debug("ignored alert event: unexpected payload type",
			zap.String("source", event.Source))
		return
	}
	m.Notify(ctx, risk.Notification{
		Kind:       "alert",
		Title:      fmt.Sprintf("%s alert: %s", alert.Level, alert.Metric),
		Message:    fmt.Sprintf("property %s breached %s (value %.4f, threshold %.4f)", alert.PropertyID, alert.Metric, alert.Value, alert.Threshold),
		PropertyID: alert.PropertyID,
		Severity:   alert.Level,
		Payload:    alert,
		CreatedAt:  time.Now(),
	})
}

func (m *Module) handlePortfolioFlagged(ctx context.Context, event plugin.Event) {
	flag, ok := event.Payload.(*risk.PortfolioFlag)
	if !ok {
		m.logger.Debug("ignored anomaly event: unexpected payload type",
			zap.String("source", event.Source))
		return
	}
	m.Notify(ctx, risk.Notification{
		Kind:       "anomaly",
		Title:      "High-confidence anomalies detected",
		Message:    fmt.Sprintf("property %s: %d high-confidence anomalies", flag.PropertyID, len(flag.Anomalies)),
		PropertyID: flag.PropertyID,
		Severity:   risk.LevelCritical,
		Payload:    flag,
		CreatedAt:  time.Now(),
	})
}

func (m *Module) handleHealthCritical(ctx context.Context, event plugin.Event) {
	finding, ok := event.Payload.(*risk.HealthFinding)
	if !ok {
		m.logger.Debug("ignored health event: unexpected payload type",
			zap.String("source", event.Source))
		return
	}
	m.Notify(ctx, risk.Notification{
		Kind:      "health",
		Title:     fmt.Sprintf("Health check critical: %s", finding.Check),
		Message:   finding.Detail,
		Severity:  finding.Severity,
		Payload:   finding,
		CreatedAt: time.Now(),
	})
}

// -- roles.Notifier --

// Notify implements roles.Notifier. Every enabled channel gets the
// notification; failures are logged per channel and swallowed.
func (m *Module) Notify(ctx context.Context, n risk.Notification) {
	channels, err := m.store.ListChannels(ctx, true)
	if err != nil {
		m.logger.Warn("notification dropped: channel list failed", zap.Error(err))
		return
	}
	if len(channels) == 0 {
		m.logger.Debug("notification skipped: no enabled channels",
			zap.String("kind", n.Kind))
		return
	}

	for _, ch := range channels {
		if err := m.sender.Send(ctx, ch, n); err != nil {
			notificationFailuresTotal.Inc()
			m.logger.Warn("notification delivery failed",
				zap.String("channel", ch.Name),
				zap.String("kind", n.Kind),
				zap.Error(err))
			continue
		}
		notificationsSentTotal.Inc()
	}
}
