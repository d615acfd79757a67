// Package audit maintains the append-only audit trail and the weekly
// portfolio reports. Recording an event is fire-and-forget: failures are
// logged and never surfaced to the caller.
package audit

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

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
	_ roles.AuditRecorder  = (*Module)(nil)
)

// Module implements the audit plugin.
type Module struct {
	logger *zap.Logger
	cfg    Config
	store  *AuditStore
}

// New creates a new audit plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "audit",
		Version:     "0.1.0",
		Description: "Append-only audit trail and portfolio reports",
		Roles:       []string{roles.RoleAudit},
		Required:    false,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal audit config: %w", err)
		}
	}
	if m.cfg.WriteTimeout <= 0 {
		m.cfg.WriteTimeout = 5 * time.Second
	}

	if deps.Store == nil {
		return fmt.Errorf("audit requires a store")
	}
	if err := deps.Store.Migrate(context.Background(), "audit", migrations()); err != nil {
		return fmt.Errorf("audit migrations: %w", err)
	}
	m.store = NewAuditStore(deps.Store.DB())

	m.logger.Info("audit module initialized")
	return nil
}

func (m *Module) Start(_ context.Context) error {
	m.logger.Info("audit module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("audit module stopped")
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	n, err := m.store.CountEvents(ctx)
	if err != nil {
		return plugin.HealthStatus{Status: "unhealthy", Message: "audit store unreachable"}
	}
	return plugin.HealthStatus{
		Status: "healthy",
		Details: map[string]string{
			"events": strconv.Itoa(n),
		},
	}
}

// -- roles.AuditRecorder --

// Record implements roles.AuditRecorder. The insert runs with its own
// timeout so it cannot block the caller's primary operation; errors are
// logged and dropped.
func (m *Module) Record(ctx context.Context, event risk.AuditEvent) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.WriteTimeout)
	defer cancel()

	if _, err := m.store.InsertEvent(writeCtx, &event); err != nil {
		m.logger.Warn("audit event dropped",
			zap.String("action", event.Action),
			zap.Error(err))
	}
}

// DeleteBefore implements roles.AuditRecorder.
func (m *Module) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return m.store.DeleteBefore(ctx, cutoff)
}

// SaveReport implements roles.AuditRecorder.
func (m *Module) SaveReport(ctx context.Context, report *risk.PortfolioReport) error {
	return m.store.InsertReport(ctx, report)
}
