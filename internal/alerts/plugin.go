// Package alerts implements threshold alerting, committee approval, and
// workflow locking for portfolio properties.
package alerts

import (
	"context"
	"fmt"
	"strconv"

	"github.com/quarrylane/riskwatch/pkg/plugin"
	"github.com/quarrylane/riskwatch/pkg/risk"
	"github.com/quarrylane/riskwatch/pkg/roles"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
	_ roles.AlertProvider  = (*Module)(nil)
)

// Module implements the alerts plugin.
type Module struct {
	logger *zap.Logger
	cfg    Config
	store  *AlertStore
	engine *Engine
}

// New creates a new alerts plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "alerts",
		Version:      "0.1.0",
		Description:  "Threshold alerting, committee approval, and workflow locks",
		Dependencies: []string{"portfolio"},
		Roles:        []string{roles.RoleAlerting},
		Required:     true,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal alerts config: %w", err)
		}
	}

	if deps.Store == nil {
		return fmt.Errorf("alerts requires a store")
	}
	if err := deps.Store.Migrate(context.Background(), "alerts", migrations()); err != nil {
		return fmt.Errorf("alerts migrations: %w", err)
	}
	m.store = NewAlertStore(deps.Store)

	metrics, props, err := resolveProviders(deps.Plugins)
	if err != nil {
		return err
	}

	m.engine = NewEngine(m.store, metrics, props, m.logger)
	m.engine.bus = deps.Bus
	if m.cfg.DecisionWindow > 0 {
		m.engine.decisionWindow = m.cfg.DecisionWindow
	}
	if m.cfg.DecisionLimit > 0 {
		m.engine.decisionLimit = m.cfg.DecisionLimit
	}

	// Audit is a best-effort collaborator; the engine runs without it.
	if deps.Plugins != nil {
		for _, p := range deps.Plugins.ResolveByRole(roles.RoleAudit) {
			if a, ok := p.(roles.AuditRecorder); ok {
				m.engine.audit = a
				break
			}
		}
	}

	m.logger.Info("alerts module initialized",
		zap.Bool("audit", m.engine.audit != nil),
	)
	return nil
}

// resolveProviders locates the metric history and property directory roles.
func resolveProviders(resolver plugin.PluginResolver) (roles.MetricHistory, roles.PropertyDirectory, error) {
	if resolver == nil {
		return nil, nil, fmt.Errorf("alerts requires a plugin resolver")
	}

	var metrics roles.MetricHistory
	for _, p := range resolver.ResolveByRole(roles.RoleMetricHistory) {
		if mh, ok := p.(roles.MetricHistory); ok {
			metrics = mh
			break
		}
	}
	if metrics == nil {
		return nil, nil, fmt.Errorf("no metric history provider available")
	}

	var props roles.PropertyDirectory
	for _, p := range resolver.ResolveByRole(roles.RolePropertyDirectory) {
		if pd, ok := p.(roles.PropertyDirectory); ok {
			props = pd
			break
		}
	}
	if props == nil {
		return nil, nil, fmt.Errorf("no property directory available")
	}
	return metrics, props, nil
}

func (m *Module) Start(_ context.Context) error {
	m.logger.Info("alerts module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("alerts module stopped")
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	pending, err := m.store.CountPending(ctx, "")
	if err != nil {
		return plugin.HealthStatus{Status: "unhealthy", Message: "alert store unreachable"}
	}
	locks, err := m.store.ActiveLockCount(ctx)
	if err != nil {
		return plugin.HealthStatus{Status: "unhealthy", Message: "lock store unreachable"}
	}
	return plugin.HealthStatus{
		Status: "healthy",
		Details: map[string]string{
			"pending_alerts": strconv.Itoa(pending),
			"active_locks":   strconv.Itoa(locks),
		},
	}
}

// -- roles.AlertProvider --

// PendingAlerts implements roles.AlertProvider.
func (m *Module) PendingAlerts(ctx context.Context, committee, propertyID string) ([]risk.Alert, error) {
	return m.store.PendingAlerts(ctx, committee, propertyID)
}

// ActiveLockCount implements roles.AlertProvider.
func (m *Module) ActiveLockCount(ctx context.Context) (int, error) {
	return m.store.ActiveLockCount(ctx)
}
