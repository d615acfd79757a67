// Package portfolio holds the property roster and per-property metric
// samples. It fills the metric_history and property_directory roles used
// by the alerting and anomaly modules.
package portfolio

import (
	"context"
	"fmt"
	"strconv"
	"sync"
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
	_ roles.MetricHistory     = (*Module)(nil)
	_ roles.PropertyDirectory = (*Module)(nil)
)

// Module implements the portfolio plugin.
type Module struct {
	logger *zap.Logger
	cfg    Config
	store  *PropertyStore
	bus    plugin.EventBus

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new portfolio plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "portfolio",
		Version:     "0.1.0",
		Description: "Property roster and metric sample history",
		Roles:       []string{roles.RoleMetricHistory, roles.RolePropertyDirectory},
		Required:    true,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal portfolio config: %w", err)
		}
	}

	if deps.Store == nil {
		return fmt.Errorf("portfolio requires a store")
	}
	if err := deps.Store.Migrate(context.Background(), "portfolio", migrations()); err != nil {
		return fmt.Errorf("portfolio migrations: %w", err)
	}
	m.store = NewPropertyStore(deps.Store.DB())
	m.bus = deps.Bus

	m.logger.Info("portfolio module initialized",
		zap.Duration("sample_retention", m.cfg.SampleRetention),
	)
	return nil
}

func (m *Module) Start(_ context.Context) error {
	m.ctx, m.cancel = context.WithCancel(context.Background())
	if m.cfg.SampleRetention > 0 {
		m.startMaintenance()
	}
	m.logger.Info("portfolio module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.logger.Info("portfolio module stopped")
	return nil
}

// startMaintenance prunes old metric samples on a fixed interval.
func (m *Module) startMaintenance() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.PruneInterval)
		defer ticker.Stop()

		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-m.cfg.SampleRetention)
				ctx, cancel := context.WithTimeout(m.ctx, 30*time.Second)
				n, err := m.store.DeleteSamplesBefore(ctx, cutoff)
				cancel()
				if err != nil {
					m.logger.Warn("sample prune failed", zap.Error(err))
					continue
				}
				if n > 0 {
					m.logger.Info("pruned old metric samples", zap.Int64("deleted", n))
				}
			}
		}
	}()
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	ids, err := m.store.PropertyIDs(ctx)
	if err != nil {
		return plugin.HealthStatus{
			Status:  "unhealthy",
			Message: "property store unreachable",
		}
	}
	return plugin.HealthStatus{
		Status: "healthy",
		Details: map[string]string{
			"properties": strconv.Itoa(len(ids)),
		},
	}
}

// -- roles.MetricHistory --

// History implements roles.MetricHistory.
func (m *Module) History(ctx context.Context, propertyID, metricName string, since time.Time) ([]risk.MetricSample, error) {
	return m.store.History(ctx, propertyID, metricName, since)
}

// Latest implements roles.MetricHistory.
func (m *Module) Latest(ctx context.Context, propertyID, metricName string) (*risk.MetricSample, error) {
	return m.store.Latest(ctx, propertyID, metricName)
}

// MetricNames implements roles.MetricHistory.
func (m *Module) MetricNames(ctx context.Context, propertyID string) ([]string, error) {
	return m.store.MetricNames(ctx, propertyID)
}

// -- roles.PropertyDirectory --

// PropertyIDs implements roles.PropertyDirectory.
func (m *Module) PropertyIDs(ctx context.Context) ([]string, error) {
	return m.store.PropertyIDs(ctx)
}

// Property implements roles.PropertyDirectory.
func (m *Module) Property(ctx context.Context, id string) (*risk.Property, error) {
	return m.store.GetProperty(ctx, id)
}

// Units implements roles.PropertyDirectory.
func (m *Module) Units(ctx context.Context, id string) (*risk.UnitCounts, error) {
	p, err := m.store.GetProperty(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	return &risk.UnitCounts{Total: p.TotalUnits, Occupied: p.OccupiedUnits}, nil
}
