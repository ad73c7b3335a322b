package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobledger.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadLayers(t *testing.T) {
	path := writeFile(t, `
listen_addr: ":9000"
store:
  driver: sqlite
  url: /var/lib/jobledger.db
billing:
  net_terms_days: 15
  lead_fee_percentage: "0.07"
  entity_names:
    kd: KD Leads LLC
reconcile:
  interval: 5m
`)
	t.Setenv("JOBLEDGER_NET_TERMS_DAYS", "45")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":9000" || cfg.Store.Driver != DriverSQLite {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Billing.NetTermsDays != 45 {
		t.Fatalf("env override not applied: net terms = %d", cfg.Billing.NetTermsDays)
	}
	if cfg.Reconcile.Interval != 5*time.Minute || cfg.Reconcile.Workers != 4 {
		t.Fatalf("reconcile = %+v", cfg.Reconcile)
	}
	if cfg.Log.Level != "debug" || cfg.BasePath != "/api" {
		t.Fatalf("defaults or env lost: %+v", cfg)
	}
	if got := len(cfg.EngineOptions()); got != 4 {
		t.Fatalf("engine options = %d, want 4", got)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Driver != DriverMemory || cfg.Billing.LeadFeePercentage != "0.05" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Store.Driver = "redis" }, "unknown store driver"},
		{"missing url", func(c *Config) { c.Store.Driver = DriverPostgres }, "store url is required"},
		{"fee above one", func(c *Config) { c.Billing.LeadFeePercentage = "1.5" }, "outside [0, 1]"},
		{"fee not a number", func(c *Config) { c.Billing.LeadFeePercentage = "five" }, "lead_fee_percentage"},
		{"unknown entity", func(c *Config) { c.Billing.EntityNames = map[string]string{"xx": "X"} }, "unknown entity"},
		{"sheet without credentials", func(c *Config) { c.Reports.SheetURL = "https://docs.google.com/spreadsheets/d/abc" }, "credentials_file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	cfg := DefaultConfig()
	env := map[string]string{
		"JOBLEDGER_RECONCILE_WORKERS":  "many",
		"JOBLEDGER_RECONCILE_INTERVAL": "soon",
	}
	err := cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "JOBLEDGER_RECONCILE_WORKERS") || !strings.Contains(err.Error(), "JOBLEDGER_RECONCILE_INTERVAL") {
		t.Fatalf("error = %v", err)
	}
}
