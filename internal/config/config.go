// Package config loads process settings for cmd/authd from an optional YAML
// file and AUTH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	authsystem "github.com/neecatt/UserAuthSystem"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable holding the YAML config path.
const FileEnv = "AUTH_CONFIG_FILE"

// Config holds all process configuration.
type Config struct {
	Server  ServerConfig      `yaml:"server"`
	Storage StorageConfig     `yaml:"storage"`
	Log     LogConfig         `yaml:"log"`
	Auth    authsystem.Config `yaml:"auth"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MetricsEnabled  bool          `yaml:"metrics_enabled"`
}

// StorageConfig selects the credential store and the Redis instance.
// An empty PostgresURL selects the in-memory store; an empty RedisAddr
// starts an embedded Redis for development.
type StorageConfig struct {
	PostgresURL   string `yaml:"postgres_url"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"-"`
	RedisDB       int    `yaml:"redis_db"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// Default returns the configuration used before the file and environment
// are applied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MetricsEnabled:  true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Auth: authsystem.DefaultConfig(),
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// AUTH_CONFIG_FILE if set, then environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(FileEnv); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	s := &cfg.Server
	s.Addr = getEnv("AUTH_HTTP_ADDR", s.Addr)
	s.ReadTimeout = getEnvDuration("AUTH_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("AUTH_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("AUTH_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("AUTH_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.MetricsEnabled = getEnvBool("AUTH_METRICS_ENABLED", s.MetricsEnabled)

	st := &cfg.Storage
	st.PostgresURL = getEnv("AUTH_POSTGRES_URL", st.PostgresURL)
	st.RedisAddr = getEnv("AUTH_REDIS_ADDR", st.RedisAddr)
	st.RedisPassword = getEnv("AUTH_REDIS_PASSWORD", st.RedisPassword)
	st.RedisDB = getEnvInt("AUTH_REDIS_DB", st.RedisDB)

	cfg.Log.Level = getEnv("AUTH_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("AUTH_LOG_FORMAT", cfg.Log.Format)

	a := &cfg.Auth
	if secret := os.Getenv("AUTH_JWT_SECRET"); secret != "" {
		a.JWT.Secret = []byte(secret)
	}
	a.JWT.Issuer = getEnv("AUTH_JWT_ISSUER", a.JWT.Issuer)
	a.JWT.Audience = getEnv("AUTH_JWT_AUDIENCE", a.JWT.Audience)
	a.JWT.AccessTTL = getEnvDuration("AUTH_ACCESS_TTL", a.JWT.AccessTTL)
	a.Password.Scheme = getEnv("AUTH_PASSWORD_SCHEME", a.Password.Scheme)
	a.Password.BcryptCost = getEnvInt("AUTH_BCRYPT_COST", a.Password.BcryptCost)
	a.TOTP.Issuer = getEnv("AUTH_TOTP_ISSUER", a.TOTP.Issuer)
	a.TOTP.EnforceReplayProtection = getEnvBool("AUTH_TOTP_REPLAY_PROTECTION", a.TOTP.EnforceReplayProtection)
	a.Challenge.RedisPrefix = getEnv("AUTH_REDIS_PREFIX", a.Challenge.RedisPrefix)
	a.Audit.Enabled = getEnvBool("AUTH_AUDIT_ENABLED", a.Audit.Enabled)
}

// Validate checks the process settings and the engine configuration.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server address is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be > 0")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Log.Format)
	}
	return c.Auth.Validate()
}

// NewLogger returns a logrus logger configured from c.
func (c LogConfig) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetLevel(level)
	if c.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger, nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
