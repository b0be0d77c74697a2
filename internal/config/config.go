// Package config provides application configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "SENTRY_"

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Database  DatabaseConfig  `koanf:"database"`
	Monitor   MonitorConfig   `koanf:"monitor"`
	Slack     SlackConfig     `koanf:"slack"`
	Heartbeat HeartbeatConfig `koanf:"heartbeat"`
	Failover  FailoverConfig  `koanf:"failover"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port" validate:"required"`
	MetricsPort       string        `koanf:"metrics_port" validate:"required,nefield=Port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts" validate:"min=1"`
}

// MonitorConfig controls status polling and escalation.
type MonitorConfig struct {
	// Services lists the feed component names to monitor. Names must
	// match the feed exactly; components not listed are ignored.
	Services []string `koanf:"services" validate:"required,min=1,dive,required"`

	StatusURL         string        `koanf:"status_url" validate:"required,url"`
	PollInterval      time.Duration `koanf:"poll_interval" validate:"min=10s"`
	SweepInterval     time.Duration `koanf:"sweep_interval" validate:"min=10s"`
	EscalationTimeout time.Duration `koanf:"escalation_timeout" validate:"min=1m"`
	EscalationContact string        `koanf:"escalation_contact" validate:"required"`
	RequestTimeout    time.Duration `koanf:"request_timeout" validate:"min=1s,max=30s"`
}

// SlackConfig contains outbound webhook and inbound callback settings.
type SlackConfig struct {
	WebhookURL string `koanf:"webhook_url" validate:"required,url"`
	// SigningSecret enables verification of inbound interactive
	// callbacks. Empty disables verification.
	SigningSecret string        `koanf:"signing_secret"`
	Username      string        `koanf:"username"`
	Timeout       time.Duration `koanf:"timeout" validate:"min=1s,max=30s"`
}

// HeartbeatConfig locates the liveness gate file.
type HeartbeatConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// FailoverConfig controls the region health prober. The prober only
// observes and notifies; it applies no corrective action.
type FailoverConfig struct {
	Enabled       bool          `koanf:"enabled"`
	HealthURL     string        `koanf:"health_url" validate:"required_if=Enabled true,omitempty,url"`
	Threshold     int           `koanf:"threshold" validate:"min=1"`
	CheckInterval time.Duration `koanf:"check_interval" validate:"min=1s"`
	ProbeTimeout  time.Duration `koanf:"probe_timeout" validate:"min=1s"`
}

// Defaults returns the configuration defaults applied before file and
// environment overrides.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Monitor: MonitorConfig{
			StatusURL:         "https://www.githubstatus.com/api/v2/summary.json",
			PollInterval:      time.Minute,
			SweepInterval:     5 * time.Minute,
			EscalationTimeout: 15 * time.Minute,
			RequestTimeout:    10 * time.Second,
		},
		Slack: SlackConfig{
			Username: "StatusSentry",
			Timeout:  10 * time.Second,
		},
		Heartbeat: HeartbeatConfig{
			Path: "/var/lib/status-sentry/heartbeat.html",
		},
		Failover: FailoverConfig{
			Threshold:     3,
			CheckInterval: time.Minute,
			ProbeTimeout:  5 * time.Second,
		},
	}
}

// Load reads configuration from an optional YAML file and SENTRY_*
// environment variables, layered over defaults. Environment keys use
// underscores for nesting: SENTRY_SLACK__WEBHOOK_URL -> slack.webhook_url.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}
