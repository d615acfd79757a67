package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/quarrylane/riskwatch/internal/event"
	"github.com/quarrylane/riskwatch/pkg/plugin"
	"go.uber.org/zap"
)

// stubModule is a configurable plugin for lifecycle tests.
type stubModule struct {
	info    plugin.PluginInfo
	initErr error
	inits   *[]string
	starts  *[]string
	stops   *[]string
	subs    []plugin.Subscription
}

func (s *stubModule) Info() plugin.PluginInfo { return s.info }

func (s *stubModule) Init(_ context.Context, _ plugin.Dependencies) error {
	if s.inits != nil {
		*s.inits = append(*s.inits, s.info.Name)
	}
	return s.initErr
}

func (s *stubModule) Start(_ context.Context) error {
	if s.starts != nil {
		*s.starts = append(*s.starts, s.info.Name)
	}
	return nil
}

func (s *stubModule) Stop(_ context.Context) error {
	if s.stops != nil {
		*s.stops = append(*s.stops, s.info.Name)
	}
	return nil
}

func (s *stubModule) Subscriptions() []plugin.Subscription { return s.subs }

func noDeps(string) plugin.Dependencies { return plugin.Dependencies{} }

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func TestValidate_DependencyOrder(t *testing.T) {
	reg := New(zap.NewNop())
	var inits []string

	mods := []*stubModule{
		{info: plugin.PluginInfo{Name: "c", Dependencies: []string{"b"}}, inits: &inits},
		{info: plugin.PluginInfo{Name: "a"}, inits: &inits},
		{info: plugin.PluginInfo{Name: "b", Dependencies: []string{"a"}}, inits: &inits},
	}
	for _, m := range mods {
		if err := reg.Register(m); err != nil {
			t.Fatalf("Register(%s) error = %v", m.info.Name, err)
		}
	}
	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if err := reg.InitAll(context.Background(), event.NewBus(zap.NewNop()), noDeps); err != nil {
		t.Fatalf("InitAll() error = %v", err)
	}

	if !(indexOf(inits, "a") < indexOf(inits, "b") && indexOf(inits, "b") < indexOf(inits, "c")) {
		t.Errorf("init order = %v, want a before b before c", inits)
	}
}

func TestValidate_CycleDetected(t *testing.T) {
	reg := New(zap.NewNop())
	_ = reg.Register(&stubModule{info: plugin.PluginInfo{Name: "x", Dependencies: []string{"y"}}})
	_ = reg.Register(&stubModule{info: plugin.PluginInfo{Name: "y", Dependencies: []string{"x"}}})

	if err := reg.Validate(); err == nil {
		t.Error("Validate() = nil error for dependency cycle")
	}
}

func TestValidate_MissingDependency(t *testing.T) {
	t.Run("required module fails startup", func(t *testing.T) {
		reg := New(zap.NewNop())
		_ = reg.Register(&stubModule{info: plugin.PluginInfo{
			Name: "core", Dependencies: []string{"ghost"}, Required: true,
		}})
		if err := reg.Validate(); err == nil {
			t.Error("Validate() = nil error for required module with missing dependency")
		}
	})

	t.Run("optional module disabled", func(t *testing.T) {
		reg := New(zap.NewNop())
		_ = reg.Register(&stubModule{info: plugin.PluginInfo{
			Name: "extra", Dependencies: []string{"ghost"},
		}})
		if err := reg.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if !reg.IsDisabled("extra") {
			t.Error("optional module with missing dependency not disabled")
		}
	})
}

func TestValidate_CascadeDisable(t *testing.T) {
	reg := New(zap.NewNop())
	_ = reg.Register(&stubModule{info: plugin.PluginInfo{Name: "broken", Dependencies: []string{"ghost"}}})
	_ = reg.Register(&stubModule{info: plugin.PluginInfo{Name: "dependent", Dependencies: []string{"broken"}}})

	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !reg.IsDisabled("dependent") {
		t.Error("dependent of disabled module not cascade-disabled")
	}
	if _, ok := reg.Get("dependent"); ok {
		t.Error("Get() returned a disabled module")
	}
}

func TestInitAll_OptionalFailureDisables(t *testing.T) {
	reg := New(zap.NewNop())
	var starts []string
	_ = reg.Register(&stubModule{
		info:    plugin.PluginInfo{Name: "flaky"},
		initErr: errors.New("init failed"),
	})
	_ = reg.Register(&stubModule{info: plugin.PluginInfo{Name: "solid"}, starts: &starts})

	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if err := reg.InitAll(context.Background(), event.NewBus(zap.NewNop()), noDeps); err != nil {
		t.Fatalf("InitAll() error = %v for optional failure", err)
	}
	if !reg.IsDisabled("flaky") {
		t.Error("failed optional module not disabled")
	}

	if err := reg.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll() error = %v", err)
	}
	if indexOf(starts, "solid") == -1 {
		t.Error("healthy module not started after sibling init failure")
	}
}

func TestInitAll_RequiredFailureAborts(t *testing.T) {
	reg := New(zap.NewNop())
	_ = reg.Register(&stubModule{
		info:    plugin.PluginInfo{Name: "core", Required: true},
		initErr: errors.New("init failed"),
	})

	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if err := reg.InitAll(context.Background(), event.NewBus(zap.NewNop()), noDeps); err == nil {
		t.Error("InitAll() = nil error for failed required module")
	}
}

func TestInitAll_WiresSubscriptions(t *testing.T) {
	reg := New(zap.NewNop())
	bus := event.NewBus(zap.NewNop())

	var received []string
	_ = reg.Register(&stubModule{
		info: plugin.PluginInfo{Name: "listener"},
		subs: []plugin.Subscription{{
			Topic: "alerts.alert.created",
			Handler: func(_ context.Context, e plugin.Event) {
				received = append(received, e.Topic)
			},
		}},
	})

	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if err := reg.InitAll(context.Background(), bus, noDeps); err != nil {
		t.Fatalf("InitAll() error = %v", err)
	}

	_ = bus.Publish(context.Background(), plugin.Event{Topic: "alerts.alert.created"})
	if len(received) != 1 {
		t.Fatalf("subscription received %d events, want 1", len(received))
	}

	// StopAll releases subscriptions.
	reg.StopAll(context.Background())
	_ = bus.Publish(context.Background(), plugin.Event{Topic: "alerts.alert.created"})
	if len(received) != 1 {
		t.Errorf("subscription still live after StopAll: %d events", len(received))
	}
}

func TestStopAll_ReverseOrder(t *testing.T) {
	reg := New(zap.NewNop())
	var stops []string
	_ = reg.Register(&stubModule{info: plugin.PluginInfo{Name: "a"}, stops: &stops})
	_ = reg.Register(&stubModule{info: plugin.PluginInfo{Name: "b", Dependencies: []string{"a"}}, stops: &stops})

	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if err := reg.InitAll(context.Background(), event.NewBus(zap.NewNop()), noDeps); err != nil {
		t.Fatalf("InitAll() error = %v", err)
	}
	reg.StopAll(context.Background())

	if !(indexOf(stops, "b") < indexOf(stops, "a")) {
		t.Errorf("stop order = %v, want b before a", stops)
	}
}

func TestResolveByRole(t *testing.T) {
	reg := New(zap.NewNop())
	_ = reg.Register(&stubModule{info: plugin.PluginInfo{Name: "m1", Roles: []string{"alerting"}}})
	_ = reg.Register(&stubModule{info: plugin.PluginInfo{Name: "m2", Roles: []string{"audit"}}})

	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	alerting := reg.ResolveByRole("alerting")
	if len(alerting) != 1 || alerting[0].Info().Name != "m1" {
		t.Errorf("ResolveByRole(alerting) = %v, want [m1]", alerting)
	}
	if got := reg.ResolveByRole("nonexistent"); len(got) != 0 {
		t.Errorf("ResolveByRole(nonexistent) = %v, want empty", got)
	}
}
