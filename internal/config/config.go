package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BittieTasks/trust/internal/approval"
	"github.com/BittieTasks/trust/internal/fraud"
	"github.com/BittieTasks/trust/internal/verification"
	"github.com/BittieTasks/trust/internal/workerclass"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Events     EventsConfig     `yaml:"events"`
	Redis      RedisConfig      `yaml:"redis"`
	Documents  DocumentsConfig  `yaml:"documents"`
	FraudGuard FraudGuardConfig `yaml:"fraud_guard"`
	Logging    LoggingConfig    `yaml:"logging"`

	TaskApproval         approval.Config     `yaml:"task_approval"`
	FraudCheck           fraud.Config        `yaml:"fraud_check"`
	HumanVerification    verification.Config `yaml:"human_verification"`
	WorkerClassification workerclass.Config  `yaml:"worker_classification"`
}

type ServerConfig struct {
	Port            int     `yaml:"port"`
	MetricsPort     int     `yaml:"metrics_port"`
	AdminToken      string  `yaml:"admin_token"`
	RateLimitRPS    float64 `yaml:"rate_limit_rps"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	ShutdownTimeout int     `yaml:"shutdown_timeout_ms"`
}

// DatabaseConfig selects the audit store. URL wins over SQLitePath; with
// neither set decisions are kept in memory.
type DatabaseConfig struct {
	URL        string `yaml:"url"`
	SQLitePath string `yaml:"sqlite_path"`
}

type EventsConfig struct {
	NATSURL string `yaml:"nats_url"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type DocumentsConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

type FraudGuardConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeout) * time.Millisecond
}

// LogLevel parses Logging.Level, falling back to info.
func (c *Config) LogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// LogHandler builds the handler named by logging.format: "text" for
// key=value lines, anything else for JSON.
func (c *Config) LogHandler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.LogLevel()}
	if strings.EqualFold(c.Logging.Format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8700,
			MetricsPort:     8701,
			RateLimitRPS:    20,
			RateLimitBurst:  40,
			ShutdownTimeout: 10000,
		},
		FraudGuard: FraudGuardConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		TaskApproval:         approval.DefaultConfig(),
		FraudCheck:           fraud.DefaultConfig(),
		HumanVerification:    verification.DefaultConfig(),
		WorkerClassification: workerclass.DefaultConfig(),
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TRUST_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("TRUST_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = n
		}
	}
	if v := os.Getenv("TRUST_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("TRUST_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("TRUST_SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("TRUST_NATS_URL"); v != "" {
		cfg.Events.NATSURL = v
	}
	if v := os.Getenv("TRUST_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TRUST_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TRUST_DOCUMENT_URL"); v != "" {
		cfg.Documents.URL = v
	}
	if v := os.Getenv("TRUST_DOCUMENT_TOKEN"); v != "" {
		cfg.Documents.Token = v
	}
	if v := os.Getenv("TRUST_FRAUD_GUARD_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.FraudGuard.Enabled = b
		}
	}
	if v := os.Getenv("TRUST_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TRUST_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
