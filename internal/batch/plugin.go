// Package batch runs scheduled background work: nightly anomaly scans,
// audit retention, weekly portfolio reports, and a periodic health probe.
package batch

import (
	"context"
	"fmt"
	"runtime"
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
)

// Audit actions recorded by batch jobs.
const (
	ActionRetentionSweep  = "RETENTION_SWEEP"
	ActionPortfolioReport = "PORTFOLIO_REPORT"
)

// Health probe thresholds.
const (
	goroutineCritical = 10000
	heapCriticalBytes = 1 << 30 // 1 GiB
)

// Module implements the batch plugin.
type Module struct {
	logger  *zap.Logger
	cfg     Config
	sched   *Scheduler
	store   plugin.Store
	bus     plugin.EventBus
	plugins plugin.PluginResolver

	directory roles.PropertyDirectory
	analytics roles.AnalyticsProvider
	alerts    roles.AlertProvider
	audit     roles.AuditRecorder
}

// New creates a new batch plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "batch",
		Version:      "0.1.0",
		Description:  "Scheduled anomaly scans, retention, reports, and health probes",
		Dependencies: []string{"portfolio", "alerts", "anomaly"},
		Required:     false,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal batch config: %w", err)
		}
	}

	if deps.Store == nil {
		return fmt.Errorf("batch requires a store")
	}
	m.store = deps.Store
	m.bus = deps.Bus

	if deps.Plugins == nil {
		return fmt.Errorf("batch requires plugin resolution")
	}
	m.plugins = deps.Plugins
	for _, p := range deps.Plugins.ResolveByRole(roles.RolePropertyDirectory) {
		if d, ok := p.(roles.PropertyDirectory); ok {
			m.directory = d
			break
		}
	}
	for _, p := range deps.Plugins.ResolveByRole(roles.RoleAnalytics) {
		if a, ok := p.(roles.AnalyticsProvider); ok {
			m.analytics = a
			break
		}
	}
	for _, p := range deps.Plugins.ResolveByRole(roles.RoleAlerting) {
		if a, ok := p.(roles.AlertProvider); ok {
			m.alerts = a
			break
		}
	}
	if m.directory == nil || m.analytics == nil || m.alerts == nil {
		return fmt.Errorf("batch requires property directory, analytics, and alerting providers")
	}
	for _, p := range deps.Plugins.ResolveByRole(roles.RoleAudit) {
		if a, ok := p.(roles.AuditRecorder); ok {
			m.audit = a
			break
		}
	}

	m.sched = NewScheduler(m.cfg.Tick, m.logger)
	if err := m.registerJobs(); err != nil {
		return fmt.Errorf("register batch jobs: %w", err)
	}

	m.logger.Info("batch module initialized",
		zap.String("scan_at", m.cfg.ScanAt),
		zap.Int("retention_days", m.cfg.RetentionDays),
	)
	return nil
}

func (m *Module) registerJobs() error {
	jobs := []Job{
		{
			Name:  "nightly-anomaly-scan",
			At:    m.cfg.ScanAt,
			Grace: m.cfg.ScanGrace,
			Run:   m.runAnomalyScan,
		},
		{
			Name:  "health-probe",
			Every: m.cfg.HealthEvery,
			Run:   m.runHealthProbe,
		},
	}
	if m.audit != nil {
		jobs = append(jobs,
			Job{
				Name:  "audit-retention",
				Every: 24 * time.Hour,
				Grace: time.Hour,
				Run:   m.runRetentionSweep,
			},
			Job{
				Name:  "weekly-portfolio-report",
				Every: m.cfg.ReportEvery,
				Grace: 6 * time.Hour,
				Run:   m.runPortfolioReport,
			},
		)
	} else {
		m.logger.Info("audit module unavailable, retention and report jobs disabled")
	}

	for _, j := range jobs {
		if err := m.sched.Register(j); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) Start(_ context.Context) error {
	if m.cfg.AutostartPaused {
		m.logger.Info("batch module started with scheduler paused")
		return nil
	}
	m.sched.Start()
	m.logger.Info("batch module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.sched.State() == StateRunning {
		m.sched.Stop()
	}
	m.logger.Info("batch module stopped")
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	status := "healthy"
	if m.sched.State() != StateRunning {
		status = "degraded"
	}
	details := map[string]string{"scheduler": m.sched.State()}
	for _, js := range m.sched.Status() {
		if js.LastError != "" {
			details[js.Name] = js.LastError
		}
	}
	return plugin.HealthStatus{Status: status, Details: details}
}

// runAnomalyScan analyzes every property in turn. A failure on one property
// never stops the scan; each property is checked for context cancellation
// before its analysis starts.
func (m *Module) runAnomalyScan(ctx context.Context) error {
	ids, err := m.directory.PropertyIDs(ctx)
	if err != nil {
		return fmt.Errorf("list properties: %w", err)
	}

	var scanned, failed, flagged int
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("scan interrupted after %d properties: %w", scanned, err)
		}

		records, err := m.analytics.AnalyzeProperty(ctx, id, m.cfg.LookbackMonths)
		if err != nil {
			failed++
			m.logger.Warn("property analysis failed",
				zap.String("property_id", id),
				zap.Error(err),
			)
			continue
		}
		scanned++

		var high []risk.AnomalyRecord
		for _, r := range records {
			if r.Confidence >= m.cfg.FlagConfidence {
				high = append(high, r)
			}
		}
		if len(high) == 0 {
			continue
		}
		flagged++
		m.flagProperty(ctx, id, high)
	}

	m.logger.Info("nightly anomaly scan complete",
		zap.Int("scanned", scanned),
		zap.Int("failed", failed),
		zap.Int("flagged", flagged),
	)
	return nil
}

func (m *Module) flagProperty(ctx context.Context, propertyID string, records []risk.AnomalyRecord) {
	flag := &risk.PortfolioFlag{
		PropertyID: propertyID,
		Anomalies:  records,
		FlaggedAt:  time.Now().UTC(),
	}
	if m.bus != nil {
		m.bus.PublishAsync(ctx, plugin.Event{
			Topic:     TopicPortfolioFlagged,
			Source:    "batch",
			Timestamp: time.Now().UTC(),
			Payload:   flag,
		})
	}
}

func (m *Module) runRetentionSweep(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -m.cfg.RetentionDays)
	deleted, err := m.audit.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("retention sweep: %w", err)
	}
	m.audit.Record(ctx, risk.AuditEvent{
		Action: ActionRetentionSweep,
		Details: map[string]any{
			"deleted": deleted,
			"cutoff":  cutoff.Format(time.RFC3339),
		},
	})
	m.logger.Info("audit retention sweep complete",
		zap.Int64("deleted", deleted),
		zap.Time("cutoff", cutoff),
	)
	return nil
}

func (m *Module) runPortfolioReport(ctx context.Context) error {
	now := time.Now().UTC()

	ids, err := m.directory.PropertyIDs(ctx)
	if err != nil {
		return fmt.Errorf("list properties: %w", err)
	}
	pending, err := m.alerts.PendingAlerts(ctx, "", "")
	if err != nil {
		return fmt.Errorf("list pending alerts: %w", err)
	}
	var critical int
	for _, a := range pending {
		if a.Level == risk.LevelCritical {
			critical++
		}
	}
	locks, err := m.alerts.ActiveLockCount(ctx)
	if err != nil {
		return fmt.Errorf("count locks: %w", err)
	}
	anomalies, err := m.analytics.AnomaliesSince(ctx, now.AddDate(0, 0, -7))
	if err != nil {
		return fmt.Errorf("count anomalies: %w", err)
	}

	report := &risk.PortfolioReport{
		Properties:     len(ids),
		PendingAlerts:  len(pending),
		CriticalAlerts: critical,
		ActiveLocks:    locks,
		AnomaliesWeek:  anomalies,
		GeneratedAt:    now,
	}
	if err := m.audit.SaveReport(ctx, report); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	m.audit.Record(ctx, risk.AuditEvent{
		Action: ActionPortfolioReport,
		Details: map[string]any{
			"report_id":      report.ID,
			"properties":     report.Properties,
			"pending_alerts": report.PendingAlerts,
		},
	})
	m.logger.Info("portfolio report generated",
		zap.Int64("report_id", report.ID),
		zap.Int("properties", report.Properties),
		zap.Int("pending_alerts", report.PendingAlerts),
	)
	return nil
}

// runHealthProbe checks database reachability, the health of every other
// module, and process resource usage, publishing a finding when a check
// crosses its critical threshold.
func (m *Module) runHealthProbe(ctx context.Context) error {
	if err := m.store.DB().PingContext(ctx); err != nil {
		m.publishFinding(ctx, risk.HealthFinding{
			Check:      "database",
			Severity:   risk.LevelCritical,
			Detail:     fmt.Sprintf("database ping failed: %v", err),
			ObservedAt: time.Now().UTC(),
		})
		return fmt.Errorf("database ping: %w", err)
	}

	for _, p := range m.plugins.All() {
		name := p.Info().Name
		if name == "batch" {
			continue
		}
		hc, ok := p.(plugin.HealthChecker)
		if !ok {
			continue
		}
		if status := hc.Health(ctx); status.Status == "unhealthy" {
			m.publishFinding(ctx, risk.HealthFinding{
				Check:      "module:" + name,
				Severity:   risk.LevelCritical,
				Detail:     status.Message,
				ObservedAt: time.Now().UTC(),
			})
		}
	}

	if n := runtime.NumGoroutine(); n > goroutineCritical {
		m.publishFinding(ctx, risk.HealthFinding{
			Check:      "goroutines",
			Severity:   risk.LevelCritical,
			Detail:     fmt.Sprintf("%d goroutines running", n),
			ObservedAt: time.Now().UTC(),
		})
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	if mem.HeapAlloc > heapCriticalBytes {
		m.publishFinding(ctx, risk.HealthFinding{
			Check:      "heap",
			Severity:   risk.LevelCritical,
			Detail:     fmt.Sprintf("%d bytes of heap in use", mem.HeapAlloc),
			ObservedAt: time.Now().UTC(),
		})
	}
	return nil
}

func (m *Module) publishFinding(ctx context.Context, finding risk.HealthFinding) {
	m.logger.Warn("health probe finding",
		zap.String("check", finding.Check),
		zap.String("detail", finding.Detail),
	)
	if m.bus != nil {
		m.bus.PublishAsync(ctx, plugin.Event{
			Topic:     TopicHealthCritical,
			Source:    "batch",
			Timestamp: time.Now().UTC(),
			Payload:   &finding,
		})
	}
}
