// Package anomaly runs statistical outlier detection over property metric
// history and serves the resulting records.
package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/quarrylane/riskwatch/pkg/plugin"
	"github.com/quarrylane/riskwatch/pkg/risk"
	"github.com/quarrylane/riskwatch/pkg/roles"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin           = (*Module)(nil)
	_ plugin.HTTPProvider     = (*Module)(nil)
	_ plugin.HealthChecker    = (*Module)(nil)
	_ roles.AnalyticsProvider = (*Module)(nil)
)

// Module implements the anomaly plugin.
type Module struct {
	logger  *zap.Logger
	cfg     Config
	store   *AnomalyStore
	service *Service
}

// New creates a new anomaly plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "anomaly",
		Version:      "0.1.0",
		Description:  "Z-score and CUSUM anomaly detection over metric history",
		Dependencies: []string{"portfolio"},
		Roles:        []string{roles.RoleAnalytics},
		Required:     true,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal anomaly config: %w", err)
		}
	}
	if m.cfg.LookbackMonths <= 0 {
		m.cfg.LookbackMonths = DefaultLookbackMonths
	}

	if deps.Store == nil {
		return fmt.Errorf("anomaly requires a store")
	}
	if err := deps.Store.Migrate(context.Background(), "anomaly", migrations()); err != nil {
		return fmt.Errorf("anomaly migrations: %w", err)
	}
	m.store = NewAnomalyStore(deps.Store.DB())

	var metrics roles.MetricHistory
	if deps.Plugins != nil {
		for _, p := range deps.Plugins.ResolveByRole(roles.RoleMetricHistory) {
			if mh, ok := p.(roles.MetricHistory); ok {
				metrics = mh
				break
			}
		}
	}
	if metrics == nil {
		return fmt.Errorf("no metric history provider available")
	}

	m.service = NewService(m.store, metrics, m.logger)
	if deps.Plugins != nil {
		for _, p := range deps.Plugins.ResolveByRole(roles.RoleAudit) {
			if a, ok := p.(roles.AuditRecorder); ok {
				m.service.audit = a
				break
			}
		}
	}

	m.logger.Info("anomaly module initialized",
		zap.Int("lookback_months", m.cfg.LookbackMonths),
	)
	return nil
}

func (m *Module) Start(_ context.Context) error {
	m.logger.Info("anomaly module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("anomaly module stopped")
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	stats, err := m.store.Statistics(ctx, "")
	if err != nil {
		return plugin.HealthStatus{Status: "unhealthy", Message: "anomaly store unreachable"}
	}
	return plugin.HealthStatus{
		Status: "healthy",
		Details: map[string]string{
			"records": fmt.Sprintf("%d", stats.Total),
		},
	}
}

// -- roles.AnalyticsProvider --

// AnalyzeProperty implements roles.AnalyticsProvider.
func (m *Module) AnalyzeProperty(ctx context.Context, propertyID string, lookbackMonths int) ([]risk.AnomalyRecord, error) {
	if lookbackMonths <= 0 {
		lookbackMonths = m.cfg.LookbackMonths
	}
	return m.service.AnalyzeProperty(ctx, propertyID, lookbackMonths)
}

// AnomaliesSince implements roles.AnalyticsProvider.
func (m *Module) AnomaliesSince(ctx context.Context, since time.Time) (int, error) {
	return m.store.CountSince(ctx, since)
}
