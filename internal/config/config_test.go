package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestViperConfig_Accessors(t *testing.T) {
	v := viper.New()
	v.Set("name", "riskwatch")
	v.Set("count", 42)
	v.Set("enabled", true)
	v.Set("timeout", "30s")

	cfg := New(v)

	if got := cfg.GetString("name"); got != "riskwatch" {
		t.Errorf("GetString = %q, want riskwatch", got)
	}
	if got := cfg.GetInt("count"); got != 42 {
		t.Errorf("GetInt = %d, want 42", got)
	}
	if !cfg.GetBool("enabled") {
		t.Error("GetBool = false, want true")
	}
	if got := cfg.GetDuration("timeout"); got != 30*time.Second {
		t.Errorf("GetDuration = %v, want 30s", got)
	}
	if !cfg.IsSet("name") {
		t.Error("IsSet(name) = false, want true")
	}
	if cfg.IsSet("missing") {
		t.Error("IsSet(missing) = true, want false")
	}
}

func TestViperConfig_Sub(t *testing.T) {
	v := viper.New()
	v.Set("plugins.notify.notify_updates", true)

	cfg := New(v)

	sub := cfg.Sub("plugins.notify")
	if !sub.GetBool("notify_updates") {
		t.Error("sub key not visible through Sub")
	}

	// Missing subtree yields an empty, usable config rather than nil.
	empty := cfg.Sub("plugins.nonexistent")
	if empty == nil {
		t.Fatal("Sub returned nil for missing key")
	}
	if empty.IsSet("anything") {
		t.Error("empty sub config reports keys as set")
	}
}

func TestViperConfig_NilViper(t *testing.T) {
	cfg := New(nil)
	if cfg.GetString("anything") != "" {
		t.Error("nil-backed config returned non-empty string")
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{"defaults", "", "", false},
		{"debug console", "debug", "console", false},
		{"warn json", "warn", "json", false},
		{"invalid level", "verbose", "json", true},
		{"invalid format", "info", "xml", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			if tt.level != "" {
				v.Set("logging.level", tt.level)
			}
			if tt.format != "" {
				v.Set("logging.format", tt.format)
			}

			logger, err := NewLogger(v)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewLogger: %v", err)
			}
			if logger == nil {
				t.Fatal("logger is nil")
			}
			_ = logger.Sync()
		})
	}
}
