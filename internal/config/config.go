// Package config loads the ResellerDesk daemon configuration.
package config

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata" // scheduler time zones on hosts without zoneinfo

	"gopkg.in/yaml.v3"

	apperrors "github.com/kimhsiao/resellerdesk/backend/internal/errors"
	"github.com/kimhsiao/resellerdesk/backend/internal/logging"
	"github.com/kimhsiao/resellerdesk/backend/internal/remote"
	"github.com/kimhsiao/resellerdesk/backend/internal/sync/cadence"
	"github.com/kimhsiao/resellerdesk/backend/internal/sync/queue"
)

// Environment overrides.
const (
	EnvDataDir   = "RESELLERDESK_DATA_DIR"
	EnvRemoteURL = "RESELLERDESK_REMOTE_URL"
	EnvRemoteKey = "RESELLERDESK_REMOTE_KEY"
	EnvDSN       = "RESELLERDESK_DSN"
)

// Config represents the ResellerDesk configuration.
type Config struct {
	DataDir      string             `yaml:"data_dir"`
	LogLevel     string             `yaml:"log_level"`
	Server       ServerConfig       `yaml:"server"`
	Remote       RemoteConfig       `yaml:"remote"`
	Queue        QueueConfig        `yaml:"queue"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Crypto       CryptoConfig       `yaml:"crypto"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type RemoteConfig struct {
	Kind    string        `yaml:"kind"` // "postgrest", "postgres" or "memory"
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"`
}

type QueueConfig struct {
	Policy  string `yaml:"policy"` // "coalesce" or "append"
	MaxSize int    `yaml:"max_size"`
}

type SchedulerConfig struct {
	Slots        []string      `yaml:"slots"`
	Cron         string        `yaml:"cron"`
	Timezone     string        `yaml:"timezone"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type ConnectivityConfig struct {
	ProbeURL      string        `yaml:"probe_url"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
	AssumeOnline  bool          `yaml:"assume_online"`
}

type CryptoConfig struct {
	SealedFields []string `yaml:"sealed_fields"`
	MachineID    string   `yaml:"machine_id"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads configuration from a YAML file. An empty path yields the
// defaults. Environment overrides are applied in both cases, followed by
// overrides (command-line flags) before validation.
func LoadConfig(path string, overrides ...func(*Config)) (*Config, error) {
	var config Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, "failed to read config file", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, "failed to parse config file", err)
		}
	}

	config.applyDefaults()
	config.ApplyEnv(os.Getenv)
	for _, override := range overrides {
		override(&config)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8090"
	}
	if c.Remote.Kind == "" {
		c.Remote.Kind = string(remote.KindPostgREST)
	}
	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = 30 * time.Second
	}
	if c.Queue.Policy == "" {
		c.Queue.Policy = string(queue.PolicyCoalesce)
	}
	if c.Queue.MaxSize == 0 {
		c.Queue.MaxSize = queue.DefaultConfig().MaxSize
	}
	if len(c.Scheduler.Slots) == 0 && c.Scheduler.Cron == "" {
		c.Scheduler.Slots = append([]string(nil), cadence.DefaultSlots...)
	}
	if c.Connectivity.ProbeURL != "" && c.Connectivity.ProbeInterval == 0 {
		c.Connectivity.ProbeInterval = 30 * time.Second
	}
}

// ApplyEnv overrides fields from environment variables looked up by getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := getenv(EnvRemoteURL); v != "" {
		c.Remote.URL = v
	}
	if v := getenv(EnvRemoteKey); v != "" {
		c.Remote.APIKey = v
	}
	if v := getenv(EnvDSN); v != "" {
		c.Remote.DSN = v
	}
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "invalid log_level", err)
	}

	switch remote.Kind(c.Remote.Kind) {
	case remote.KindPostgREST:
		if c.Remote.URL == "" {
			return apperrors.Newf(apperrors.ErrConfigInvalid, "remote.url is required (or set %s)", EnvRemoteURL)
		}
	case remote.KindPostgres:
		if c.Remote.DSN == "" {
			return apperrors.Newf(apperrors.ErrConfigInvalid, "remote.dsn is required (or set %s)", EnvDSN)
		}
	case remote.KindMemory:
	default:
		return apperrors.Newf(apperrors.ErrConfigInvalid, "unknown remote.kind %q", c.Remote.Kind)
	}
	if c.Remote.Timeout < 0 {
		return apperrors.New(apperrors.ErrConfigInvalid, "remote.timeout must not be negative")
	}

	if _, err := queue.ParsePolicy(c.Queue.Policy); err != nil {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "invalid queue.policy", err)
	}
	if c.Queue.MaxSize < 0 {
		return apperrors.New(apperrors.ErrConfigInvalid, "queue.max_size must not be negative")
	}

	if _, err := c.Cadence(); err != nil {
		return err
	}
	if c.Scheduler.PollInterval < 0 {
		return apperrors.New(apperrors.ErrConfigInvalid, "scheduler.poll_interval must not be negative")
	}
	return nil
}

// Location returns the scheduler time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Scheduler.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, fmt.Sprintf("unknown timezone %q", c.Scheduler.Timezone), err)
	}
	return loc, nil
}

// Cadence compiles the scheduler section.
func (c *Config) Cadence() (*cadence.Cadence, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	return cadence.New(cadence.Config{
		Slots:        c.Scheduler.Slots,
		Cron:         c.Scheduler.Cron,
		Location:     loc,
		PollInterval: c.Scheduler.PollInterval,
	})
}

// QueueConfig returns the queue store settings.
func (c *Config) QueueConfig() *queue.Config {
	policy, err := queue.ParsePolicy(c.Queue.Policy)
	if err != nil {
		policy = queue.PolicyCoalesce
	}
	return &queue.Config{Policy: policy, MaxSize: c.Queue.MaxSize}
}

// RemoteOptions returns the remote store settings.
func (c *Config) RemoteOptions() remote.Options {
	return remote.Options{
		Kind:    remote.Kind(c.Remote.Kind),
		URL:     c.Remote.URL,
		APIKey:  c.Remote.APIKey,
		DSN:     c.Remote.DSN,
		Timeout: c.Remote.Timeout,
	}
}
