package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/kimhsiao/resellerdesk/backend/internal/errors"
	"github.com/kimhsiao/resellerdesk/backend/internal/remote"
	"github.com/kimhsiao/resellerdesk/backend/internal/sync/queue"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resellerdesk.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
data_dir: /var/lib/resellerdesk
log_level: debug
server:
  addr: 0.0.0.0:9000
remote:
  kind: postgrest
  url: https://abc.supabase.co
  api_key: anon
  timeout: 10s
queue:
  policy: append
  max_size: 50
scheduler:
  slots: ["09:30", "18:00"]
  timezone: America/Sao_Paulo
  poll_interval: 15m
connectivity:
  probe_url: https://abc.supabase.co/rest/v1/
crypto:
  sealed_fields: [password, api_token]
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.DataDir != "/var/lib/resellerdesk" || cfg.Server.Addr != "0.0.0.0:9000" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Remote.Timeout != 10*time.Second {
		t.Errorf("Remote.Timeout = %v, want 10s", cfg.Remote.Timeout)
	}
	if q := cfg.QueueConfig(); q.Policy != queue.PolicyAppend || q.MaxSize != 50 {
		t.Errorf("QueueConfig() = %+v", q)
	}
	if cfg.Scheduler.PollInterval != 15*time.Minute {
		t.Errorf("PollInterval = %v, want 15m", cfg.Scheduler.PollInterval)
	}
	if cfg.Connectivity.ProbeInterval != 30*time.Second {
		t.Errorf("ProbeInterval = %v, want default 30s", cfg.Connectivity.ProbeInterval)
	}
	if len(cfg.Crypto.SealedFields) != 2 {
		t.Errorf("SealedFields = %v", cfg.Crypto.SealedFields)
	}

	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location failed: %v", err)
	}
	if loc.String() != "America/Sao_Paulo" {
		t.Errorf("Location() = %v", loc)
	}
	if _, err := cfg.Cadence(); err != nil {
		t.Errorf("Cadence() error = %v", err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Remote.Kind != string(remote.KindPostgREST) {
		t.Errorf("Remote.Kind = %q, want postgrest", cfg.Remote.Kind)
	}
	if cfg.Remote.Timeout != 30*time.Second {
		t.Errorf("Remote.Timeout = %v, want 30s", cfg.Remote.Timeout)
	}
	if cfg.Queue.Policy != "coalesce" || cfg.Queue.MaxSize != 1000 {
		t.Errorf("Queue = %+v", cfg.Queue)
	}
	want := []string{"08:00", "14:00", "20:00"}
	if len(cfg.Scheduler.Slots) != 3 || cfg.Scheduler.Slots[0] != want[0] || cfg.Scheduler.Slots[2] != want[2] {
		t.Errorf("Slots = %v, want %v", cfg.Scheduler.Slots, want)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		EnvDataDir:   "/tmp/rd",
		EnvRemoteURL: "https://x.supabase.co",
		EnvRemoteKey: "secret",
		EnvDSN:       "postgres://localhost/rd",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.DataDir != "/tmp/rd" || cfg.Remote.URL != "https://x.supabase.co" ||
		cfg.Remote.APIKey != "secret" || cfg.Remote.DSN != "postgres://localhost/rd" {
		t.Errorf("cfg after ApplyEnv = %+v", cfg)
	}
}

func TestLoadConfig_envOverride(t *testing.T) {
	t.Setenv(EnvRemoteURL, "https://env.supabase.co")
	path := writeConfig(t, "remote:\n  url: https://file.supabase.co\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Remote.URL != "https://env.supabase.co" {
		t.Errorf("Remote.URL = %q, want env value", cfg.Remote.URL)
	}
}

func TestLoadConfig_overrides(t *testing.T) {
	cfg, err := LoadConfig("", func(c *Config) {
		c.Remote.Kind = string(remote.KindMemory)
		c.DataDir = "/tmp/override"
	})
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Remote.Kind != "memory" || cfg.DataDir != "/tmp/override" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing url", func(c *Config) {}},
		{"missing dsn", func(c *Config) { c.Remote.Kind = "postgres" }},
		{"unknown kind", func(c *Config) { c.Remote.Kind = "mysql" }},
		{"bad policy", func(c *Config) { c.Remote.Kind = "memory"; c.Queue.Policy = "dedupe" }},
		{"bad slot", func(c *Config) { c.Remote.Kind = "memory"; c.Scheduler.Slots = []string{"25:00"} }},
		{"bad cron", func(c *Config) { c.Remote.Kind = "memory"; c.Scheduler.Cron = "every day" }},
		{"bad timezone", func(c *Config) { c.Remote.Kind = "memory"; c.Scheduler.Timezone = "Mars/Olympus" }},
		{"bad level", func(c *Config) { c.Remote.Kind = "memory"; c.LogLevel = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !apperrors.Is(err, apperrors.ErrConfigInvalid) {
				t.Errorf("Validate() = %v, want CONFIG_INVALID", err)
			}
		})
	}

	cfg := Default()
	cfg.Remote.Kind = "memory"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() memory = %v, want nil", err)
	}
}

func TestLoadConfig_errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); !apperrors.Is(err, apperrors.ErrConfigInvalid) {
		t.Errorf("missing file err = %v, want CONFIG_INVALID", err)
	}
	path := writeConfig(t, "remote: [not, a, map]\n")
	if _, err := LoadConfig(path); !apperrors.Is(err, apperrors.ErrConfigInvalid) {
		t.Errorf("bad yaml err = %v, want CONFIG_INVALID", err)
	}
}
