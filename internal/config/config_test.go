package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("JP_TEST_HOST", "db.internal")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"braced", "postgres://${JP_TEST_HOST}/app", "postgres://db.internal/app"},
		{"bare", "host: $JP_TEST_HOST", "host: db.internal"},
		{"unset is kept", "x: ${JP_TEST_MISSING}", "x: ${JP_TEST_MISSING}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expandEnvVars(tt.in); got != tt.want {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Scheduler.DrainBatch != 50 {
		t.Errorf("DrainBatch = %d, want 50", cfg.Scheduler.DrainBatch)
	}
	if cfg.Automation.HardTimeout != 30*time.Minute || cfg.Automation.SoftTimeout != 25*time.Minute {
		t.Errorf("timeouts = %v/%v", cfg.Automation.SoftTimeout, cfg.Automation.HardTimeout)
	}
	if got := cfg.RateLimits["indeed"]; got.PerHour != 10 || got.PerDay != 40 || got.MinDelay != 120*time.Second {
		t.Errorf("indeed limits = %+v", got)
	}
}

func TestLoadConfigYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
server:
  port: 9090
rate_limits:
  Indeed:
    per_hour: 3
    per_day: 9
    min_delay: 30s
database:
  url: ${JP_TEST_DB}
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("JP_TEST_DB", "postgres://localhost/jobs")
	t.Setenv("MAX_APPLICATIONS_PER_HOUR", "7")
	t.Setenv("APPLICATION_DELAY_SECONDS", "60")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://localhost/jobs" {
		t.Errorf("database url = %q", cfg.Database.URL)
	}
	if got := cfg.RateLimits["indeed"]; got.PerHour != 3 || got.MinDelay != 30*time.Second {
		t.Errorf("indeed override = %+v", got)
	}
	if got := cfg.RateLimits["linkedin"]; got.PerHour != 7 || got.PerDay != 20 || got.MinDelay != time.Minute {
		t.Errorf("linkedin env override = %+v", got)
	}
	if _, ok := cfg.RateLimits["default"]; !ok {
		t.Error("default row missing after merge")
	}
}
