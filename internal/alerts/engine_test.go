package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quarrylane/riskwatch/internal/store"
	"github.com/quarrylane/riskwatch/pkg/plugin"
	"github.com/quarrylane/riskwatch/pkg/risk"
	"go.uber.org/zap"
)

// fakeMetrics serves canned samples keyed by property/metric.
type fakeMetrics struct {
	latest    map[string]*risk.MetricSample
	history   map[string][]risk.MetricSample
	latestErr error
	histErr   error
}

func key(propertyID, metric string) string { return propertyID + "/" + metric }

func (f *fakeMetrics) Latest(_ context.Context, propertyID, metricName string) (*risk.MetricSample, error) {
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	return f.latest[key(propertyID, metricName)], nil
}

func (f *fakeMetrics) History(_ context.Context, propertyID, metricName string, _ time.Time) ([]risk.MetricSample, error) {
	if f.histErr != nil {
		return nil, f.histErr
	}
	return f.history[key(propertyID, metricName)], nil
}

func (f *fakeMetrics) MetricNames(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

// fakeDirectory serves a fixed property roster.
type fakeDirectory struct {
	props    map[string]*risk.Property
	unitsErr error
}

func (f *fakeDirectory) PropertyIDs(_ context.Context) ([]string, error) {
	ids := make([]string, 0, len(f.props))
	for id := range f.props {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeDirectory) Property(_ context.Context, id string) (*risk.Property, error) {
	return f.props[id], nil
}

func (f *fakeDirectory) Units(_ context.Context, id string) (*risk.UnitCounts, error) {
	if f.unitsErr != nil {
		return nil, f.unitsErr
	}
	p := f.props[id]
	if p == nil {
		return nil, nil
	}
	return &risk.UnitCounts{Total: p.TotalUnits, Occupied: p.OccupiedUnits}, nil
}

// fakeBus records published events synchronously.
type fakeBus struct {
	mu     sync.Mutex
	events []plugin.Event
}

func (f *fakeBus) Publish(_ context.Context, event plugin.Event) error {
	f.record(event)
	return nil
}

func (f *fakeBus) PublishAsync(_ context.Context, event plugin.Event) { f.record(event) }

func (f *fakeBus) Subscribe(string, plugin.EventHandler) func() { return func() {} }
func (f *fakeBus) SubscribeAll(plugin.EventHandler) func()      { return func() {} }

func (f *fakeBus) record(event plugin.Event) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
}

func (f *fakeBus) byTopic(topic string) []plugin.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []plugin.Event
	for _, e := range f.events {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *fakeMetrics, *fakeDirectory) {
	t.Helper()

	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(context.Background(), "alerts", migrations()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	metrics := &fakeMetrics{
		latest:  make(map[string]*risk.MetricSample),
		history: make(map[string][]risk.MetricSample),
	}
	dir := &fakeDirectory{props: map[string]*risk.Property{
		"prop-1": {ID: "prop-1", Name: "Maple Court", TotalUnits: 100, OccupiedUnits: 95},
	}}
	return NewEngine(NewAlertStore(db), metrics, dir, zap.NewNop()), metrics, dir
}

func setDSCR(m *fakeMetrics, propertyID string, value float64) {
	m.latest[key(propertyID, MetricDSCR)] = &risk.MetricSample{
		PropertyID: propertyID,
		MetricName: MetricDSCR,
		Value:      value,
		RecordedAt: time.Now().UTC(),
	}
}

func TestCheckPropertyMetrics_UnknownProperty(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	alerts, err := engine.CheckPropertyMetrics(context.Background(), "no-such-property")
	if err != nil {
		t.Fatalf("CheckPropertyMetrics() error = %v, want nil", err)
	}
	if len(alerts) != 0 {
		t.Errorf("CheckPropertyMetrics() returned %d alerts, want 0", len(alerts))
	}
}

func TestCheckPropertyMetrics_NoData(t *testing.T) {
	// No samples at all: every check skips, no alerts, no error.
	engine, _, _ := newTestEngine(t)

	alerts, err := engine.CheckPropertyMetrics(context.Background(), "prop-1")
	if err != nil {
		t.Fatalf("CheckPropertyMetrics() error = %v, want nil", err)
	}
	if len(alerts) != 0 {
		t.Errorf("CheckPropertyMetrics() returned %d alerts, want 0", len(alerts))
	}
}

func TestCheckDSCR_Boundaries(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		wantLevel string // "" means no alert
	}{
		{"healthy", 1.50, ""},
		{"exactly at warning threshold", 1.30, ""},
		{"just below warning", 1.299, risk.LevelWarning},
		{"exactly at critical threshold", 1.25, risk.LevelWarning},
		{"just below critical", 1.249, risk.LevelCritical},
		{"deep breach", 1.10, risk.LevelCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, metrics, _ := newTestEngine(t)
			setDSCR(metrics, "prop-1", tt.value)

			alerts, err := engine.CheckPropertyMetrics(context.Background(), "prop-1")
			if err != nil {
				t.Fatalf("CheckPropertyMetrics() error = %v", err)
			}
			if tt.wantLevel == "" {
				if len(alerts) != 0 {
					t.Fatalf("got %d alerts, want 0", len(alerts))
				}
				return
			}
			if len(alerts) != 1 {
				t.Fatalf("got %d alerts, want 1", len(alerts))
			}
			a := alerts[0]
			if a.Level != tt.wantLevel {
				t.Errorf("alert level = %q, want %q", a.Level, tt.wantLevel)
			}
			if a.Metric != MetricDSCR {
				t.Errorf("alert metric = %q, want %q", a.Metric, MetricDSCR)
			}
			if a.Committee != CommitteeFinance {
				t.Errorf("alert committee = %q, want %q", a.Committee, CommitteeFinance)
			}
			if a.Status != risk.StatusPending {
				t.Errorf("alert status = %q, want %q", a.Status, risk.StatusPending)
			}
		})
	}
}

func TestCheckOccupancy_Boundaries(t *testing.T) {
	tests := []struct {
		name      string
		occupied  int
		total     int
		wantLevel string
	}{
		{"full", 100, 100, ""},
		{"exactly at warning threshold", 85, 100, ""},
		{"just below warning", 849, 1000, risk.LevelWarning},
		{"exactly at critical threshold", 80, 100, risk.LevelWarning},
		{"below critical", 79, 100, risk.LevelCritical},
		{"no units", 0, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, metrics, dir := newTestEngine(t)
			setDSCR(metrics, "prop-1", 2.0) // keep DSCR quiet
			dir.props["prop-1"].TotalUnits = tt.total
			dir.props["prop-1"].OccupiedUnits = tt.occupied

			alerts, err := engine.CheckPropertyMetrics(context.Background(), "prop-1")
			if err != nil {
				t.Fatalf("CheckPropertyMetrics() error = %v", err)
			}
			if tt.wantLevel == "" {
				if len(alerts) != 0 {
					t.Fatalf("got %d alerts, want 0", len(alerts))
				}
				return
			}
			if len(alerts) != 1 {
				t.Fatalf("got %d alerts, want 1", len(alerts))
			}
			if alerts[0].Level != tt.wantLevel {
				t.Errorf("alert level = %q, want %q", alerts[0].Level, tt.wantLevel)
			}
			if alerts[0].Committee != CommitteeOccupancy {
				t.Errorf("alert committee = %q, want %q", alerts[0].Committee, CommitteeOccupancy)
			}
		})
	}
}

func revenueSeries(propertyID string, earliest, latest float64) []risk.MetricSample {
	now := time.Now().UTC()
	return []risk.MetricSample{
		{PropertyID: propertyID, MetricName: "gross_revenue", Value: earliest, RecordedAt: now.AddDate(0, 0, -60)},
		{PropertyID: propertyID, MetricName: "gross_revenue", Value: latest, RecordedAt: now.AddDate(0, 0, -1)},
	}
}

func TestCheckRevenueDecline_Boundaries(t *testing.T) {
	tests := []struct {
		name      string
		earliest  float64
		latest    float64
		wantLevel string
	}{
		{"flat revenue", 1000, 1000, ""},
		{"small dip", 1000, 950, ""},
		{"exactly 10 percent", 1000, 900, risk.LevelWarning},
		{"between thresholds", 1000, 880, risk.LevelWarning},
		{"exactly 15 percent", 1000, 850, risk.LevelCritical},
		{"steep decline", 1000, 700, risk.LevelCritical},
		{"revenue growth", 1000, 1200, ""},
		{"zero baseline skipped", 0, 500, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, metrics, _ := newTestEngine(t)
			setDSCR(metrics, "prop-1", 2.0)
			metrics.history[key("prop-1", "gross_revenue")] = revenueSeries("prop-1", tt.earliest, tt.latest)

			alerts, err := engine.CheckPropertyMetrics(context.Background(), "prop-1")
			if err != nil {
				t.Fatalf("CheckPropertyMetrics() error = %v", err)
			}
			if tt.wantLevel == "" {
				if len(alerts) != 0 {
					t.Fatalf("got %d alerts, want 0", len(alerts))
				}
				return
			}
			if len(alerts) != 1 {
				t.Fatalf("got %d alerts, want 1", len(alerts))
			}
			if alerts[0].Level != tt.wantLevel {
				t.Errorf("alert level = %q, want %q", alerts[0].Level, tt.wantLevel)
			}
			if alerts[0].Metric != MetricRevenueDecline {
				t.Errorf("alert metric = %q, want %q", alerts[0].Metric, MetricRevenueDecline)
			}
		})
	}
}

func TestCheckRevenueDecline_FallbackMetricName(t *testing.T) {
	// gross_revenue has too few samples; total_revenue carries the series.
	engine, metrics, _ := newTestEngine(t)
	setDSCR(metrics, "prop-1", 2.0)
	now := time.Now().UTC()
	metrics.history[key("prop-1", "gross_revenue")] = []risk.MetricSample{
		{PropertyID: "prop-1", MetricName: "gross_revenue", Value: 1000, RecordedAt: now.AddDate(0, 0, -10)},
	}
	metrics.history[key("prop-1", "total_revenue")] = []risk.MetricSample{
		{PropertyID: "prop-1", MetricName: "total_revenue", Value: 1000, RecordedAt: now.AddDate(0, 0, -60)},
		{PropertyID: "prop-1", MetricName: "total_revenue", Value: 800, RecordedAt: now.AddDate(0, 0, -1)},
	}

	alerts, err := engine.CheckPropertyMetrics(context.Background(), "prop-1")
	if err != nil {
		t.Fatalf("CheckPropertyMetrics() error = %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	if alerts[0].Level != risk.LevelCritical {
		t.Errorf("alert level = %q, want %q", alerts[0].Level, risk.LevelCritical)
	}
}

func TestRepeatedEvaluations_SinglePendingAlert(t *testing.T) {
	engine, metrics, _ := newTestEngine(t)
	setDSCR(metrics, "prop-1", 1.28)

	var lastID string
	for i := 0; i < 5; i++ {
		alerts, err := engine.CheckPropertyMetrics(context.Background(), "prop-1")
		if err != nil {
			t.Fatalf("evaluation %d: %v", i, err)
		}
		if len(alerts) != 1 {
			t.Fatalf("evaluation %d: got %d alerts, want 1", i, len(alerts))
		}
		if lastID != "" && alerts[0].ID != lastID {
			t.Fatalf("evaluation %d: alert ID changed from %s to %s", i, lastID, alerts[0].ID)
		}
		lastID = alerts[0].ID
	}

	pending, err := engine.GetPendingAlerts(context.Background(), "", "prop-1")
	if err != nil {
		t.Fatalf("GetPendingAlerts() error = %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("got %d pending alerts after repeated evaluations, want 1", len(pending))
	}
}

func TestRepeatedEvaluations_RefreshUpdatesFields(t *testing.T) {
	// A pending alert picks up the latest value and can escalate in place.
	engine, metrics, _ := newTestEngine(t)
	setDSCR(metrics, "prop-1", 1.28)

	first, err := engine.CheckPropertyMetrics(context.Background(), "prop-1")
	if err != nil {
		t.Fatalf("first evaluation: %v", err)
	}
	if first[0].Level != risk.LevelWarning {
		t.Fatalf("first level = %q, want %q", first[0].Level, risk.LevelWarning)
	}

	setDSCR(metrics, "prop-1", 1.10)
	second, err := engine.CheckPropertyMetrics(context.Background(), "prop-1")
	if err != nil {
		t.Fatalf("second evaluation: %v", err)
	}
	if second[0].ID != first[0].ID {
		t.Errorf("alert ID changed on refresh: %s vs %s", second[0].ID, first[0].ID)
	}
	if second[0].Level != risk.LevelCritical {
		t.Errorf("refreshed level = %q, want %q", second[0].Level, risk.LevelCritical)
	}
	if second[0].Value != 1.10 {
		t.Errorf("refreshed value = %v, want 1.10", second[0].Value)
	}
}

func TestCriticalAlert_LocksWorkflowOnce(t *testing.T) {
	engine, metrics, _ := newTestEngine(t)
	setDSCR(metrics, "prop-1", 1.10)

	for i := 0; i < 3; i++ {
		if _, err := engine.CheckPropertyMetrics(context.Background(), "prop-1"); err != nil {
			t.Fatalf("evaluation %d: %v", i, err)
		}
	}

	n, err := engine.store.ActiveLockCount(context.Background())
	if err != nil {
		t.Fatalf("ActiveLockCount() error = %v", err)
	}
	if n != 1 {
		t.Errorf("active locks = %d, want 1", n)
	}
}

func TestApproveAlert_ReleasesLock(t *testing.T) {
	engine, metrics, _ := newTestEngine(t)
	setDSCR(metrics, "prop-1", 1.10)

	alerts, err := engine.CheckPropertyMetrics(context.Background(), "prop-1")
	if err != nil {
		t.Fatalf("CheckPropertyMetrics() error = %v", err)
	}
	alertID := alerts[0].ID

	result, err := engine.ApproveAlert(context.Background(), alertID, "director-7", risk.DecisionApproved, "reviewed at committee")
	if err != nil {
		t.Fatalf("ApproveAlert() error = %v", err)
	}
	if result.Alert.Status != risk.StatusApproved {
		t.Errorf("alert status = %q, want %q", result.Alert.Status, risk.StatusApproved)
	}
	if result.Alert.ApprovedBy != "director-7" {
		t.Errorf("approved by = %q, want director-7", result.Alert.ApprovedBy)
	}
	if !result.Unlocked {
		t.Error("result.Unlocked = false, want true")
	}

	n, err := engine.store.ActiveLockCount(context.Background())
	if err != nil {
		t.Fatalf("ActiveLockCount() error = %v", err)
	}
	if n != 0 {
		t.Errorf("active locks after approval = %d, want 0", n)
	}
}

func TestRejectAlert_KeepsLock(t *testing.T) {
	engine, metrics, _ := newTestEngine(t)
	setDSCR(metrics, "prop-1", 1.10)

	alerts, err := engine.CheckPropertyMetrics(context.Background(), "prop-1")
	if err != nil {
		t.Fatalf("CheckPropertyMetrics() error = %v", err)
	}

	result, err := engine.ApproveAlert(context.Background(), alerts[0].ID, "director-7", risk.DecisionRejected, "needs more data")
	if err != nil {
		t.Fatalf("ApproveAlert() error = %v", err)
	}
	if result.Alert.Status != risk.StatusRejected {
		t.Errorf("alert status = %q, want %q", result.Alert.Status, risk.StatusRejected)
	}
	if result.Unlocked {
		t.Error("result.Unlocked = true, want false")
	}

	n, err := engine.store.ActiveLockCount(context.Background())
	if err != nil {
		t.Fatalf("ActiveLockCount() error = %v", err)
	}
	if n != 1 {
		t.Errorf("active locks after rejection = %d, want 1", n)
	}
}

func TestApproveAlert_DecisionsAreTerminal(t *testing.T) {
	engine, metrics, _ := newTestEngine(t)
	setDSCR(metrics, "prop-1", 1.10)

	alerts, err := engine.CheckPropertyMetrics(context.Background(), "prop-1")
	if err != nil {
		t.Fatalf("CheckPropertyMetrics() error = %v", err)
	}
	alertID := alerts[0].ID

	if _, err := engine.ApproveAlert(context.Background(), alertID, "director-7", risk.DecisionApproved, ""); err != nil {
		t.Fatalf("first decision: %v", err)
	}

	_, err = engine.ApproveAlert(context.Background(), alertID, "director-8", risk.DecisionRejected, "")
	if !errors.Is(err, risk.ErrInvalidState) {
		t.Errorf("second decision error = %v, want ErrInvalidState", err)
	}
}

func TestApproveAlert_UnknownAlert(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.ApproveAlert(context.Background(), "no-such-alert", "director-7", risk.DecisionApproved, "")
	if !errors.Is(err, risk.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestApproveAlert_InvalidDecision(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	if _, err := engine.ApproveAlert(context.Background(), "any", "director-7", "maybe", ""); err == nil {
		t.Error("ApproveAlert() accepted invalid decision value")
	}
}

func TestCheckPropertyMetrics_EndToEnd(t *testing.T) {
	// Full lifecycle: critical breach -> pending alert + lock -> approval
	// -> terminal alert, lock released.
	engine, metrics, _ := newTestEngine(t)
	setDSCR(metrics, "prop-1", 1.10)

	alerts, err := engine.CheckPropertyMetrics(context.Background(), "prop-1")
	if err != nil {
		t.Fatalf("CheckPropertyMetrics() error = %v", err)
	}
	if len(alerts) != 1 || alerts[0].Level != risk.LevelCritical {
		t.Fatalf("expected one critical alert, got %+v", alerts)
	}

	locks, err := engine.store.ListLocks(context.Background(), "prop-1")
	if err != nil {
		t.Fatalf("ListLocks() error = %v", err)
	}
	if len(locks) != 1 || locks[0].Status != risk.LockStatusLocked {
		t.Fatalf("expected one LOCKED lock, got %+v", locks)
	}

	result, err := engine.ApproveAlert(context.Background(), alerts[0].ID, "director-7", risk.DecisionApproved, "")
	if err != nil {
		t.Fatalf("ApproveAlert() error = %v", err)
	}
	if !result.Unlocked {
		t.Error("approval did not release the lock")
	}

	locks, err = engine.store.ListLocks(context.Background(), "prop-1")
	if err != nil {
		t.Fatalf("ListLocks() error = %v", err)
	}
	if len(locks) != 1 || locks[0].Status != risk.LockStatusUnlocked {
		t.Fatalf("expected one UNLOCKED lock, got %+v", locks)
	}
	if locks[0].UnlockedBy != "director-7" {
		t.Errorf("lock unlocked_by = %q, want director-7", locks[0].UnlockedBy)
	}
	if locks[0].UnlockedAt == nil {
		t.Error("lock unlocked_at is nil")
	}
}

func TestCheckPropertyMetrics_ProviderFailureSurfaces(t *testing.T) {
	// Missing data skips a check, but a failing provider must abort the
	// evaluation with an error instead of silently reporting no breaches.
	tests := []struct {
		name string
		fail func(m *fakeMetrics, d *fakeDirectory)
	}{
		{"latest sample fetch fails", func(m *fakeMetrics, _ *fakeDirectory) {
			m.latestErr = errors.New("store: disk I/O error")
		}},
		{"unit counts fetch fails", func(_ *fakeMetrics, d *fakeDirectory) {
			d.unitsErr = errors.New("store: disk I/O error")
		}},
		{"history fetch fails", func(m *fakeMetrics, _ *fakeDirectory) {
			m.histErr = errors.New("store: disk I/O error")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, metrics, dir := newTestEngine(t)
			setDSCR(metrics, "prop-1", 2.0)
			tt.fail(metrics, dir)

			if _, err := engine.CheckPropertyMetrics(context.Background(), "prop-1"); err == nil {
				t.Fatal("CheckPropertyMetrics() error = nil, want provider failure")
			}

			pending, err := engine.GetPendingAlerts(context.Background(), "", "prop-1")
			if err != nil {
				t.Fatalf("GetPendingAlerts() error = %v", err)
			}
			if len(pending) != 0 {
				t.Errorf("got %d pending alerts after failed evaluation, want 0", len(pending))
			}
		})
	}
}

func TestAlertLifecycle_BusEvents(t *testing.T) {
	// Critical breach -> created + locked; refresh -> updated; approval ->
	// decided + unlocked. Exactly one delivery per transition, and each
	// topic carries its documented payload type.
	engine, metrics, _ := newTestEngine(t)
	bus := &fakeBus{}
	engine.bus = bus
	setDSCR(metrics, "prop-1", 1.10)

	alerts, err := engine.CheckPropertyMetrics(context.Background(), "prop-1")
	if err != nil {
		t.Fatalf("CheckPropertyMetrics() error = %v", err)
	}

	created := bus.byTopic(TopicAlertCreated)
	if len(created) != 1 {
		t.Fatalf("got %d %s events, want 1", len(created), TopicAlertCreated)
	}
	if _, ok := created[0].Payload.(*risk.Alert); !ok {
		t.Errorf("%s payload = %T, want *risk.Alert", TopicAlertCreated, created[0].Payload)
	}

	locked := bus.byTopic(TopicWorkflowLocked)
	if len(locked) != 1 {
		t.Fatalf("got %d %s events, want 1", len(locked), TopicWorkflowLocked)
	}
	if _, ok := locked[0].Payload.(*risk.WorkflowLock); !ok {
		t.Errorf("%s payload = %T, want *risk.WorkflowLock", TopicWorkflowLocked, locked[0].Payload)
	}

	if _, err := engine.CheckPropertyMetrics(context.Background(), "prop-1"); err != nil {
		t.Fatalf("second evaluation: %v", err)
	}
	if n := len(bus.byTopic(TopicAlertCreated)); n != 1 {
		t.Errorf("got %d created events after refresh, want 1", n)
	}
	if n := len(bus.byTopic(TopicAlertUpdated)); n != 1 {
		t.Errorf("got %d updated events after refresh, want 1", n)
	}

	if _, err := engine.ApproveAlert(context.Background(), alerts[0].ID, "director-7", risk.DecisionApproved, ""); err != nil {
		t.Fatalf("ApproveAlert() error = %v", err)
	}

	decided := bus.byTopic(TopicAlertDecided)
	if len(decided) != 1 {
		t.Fatalf("got %d %s events, want 1", len(decided), TopicAlertDecided)
	}
	unlocked := bus.byTopic(TopicWorkflowUnlocked)
	if len(unlocked) != 1 {
		t.Fatalf("got %d %s events, want 1", len(unlocked), TopicWorkflowUnlocked)
	}
	a, ok := unlocked[0].Payload.(*risk.Alert)
	if !ok {
		t.Fatalf("%s payload = %T, want *risk.Alert", TopicWorkflowUnlocked, unlocked[0].Payload)
	}
	if a.Status != risk.StatusApproved {
		t.Errorf("unlocked payload status = %q, want %q", a.Status, risk.StatusApproved)
	}
}
