package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"prostor/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Booking    BookingConfig    `yaml:"booking"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Exports    ExportConfig     `yaml:"exports"`
	Catalog    CatalogConfig    `yaml:"catalog"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// BookingConfig carries the admission rules.
type BookingConfig struct {
	MaxPerWeek           int `yaml:"max_per_week"`
	GuardTimeoutMs       int `yaml:"guard_timeout_ms"`
	GuardTTLSeconds      int `yaml:"guard_ttl_seconds"`
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes"`
}

func (c BookingConfig) GuardTimeout() time.Duration {
	return time.Duration(c.GuardTimeoutMs) * time.Millisecond
}

func (c BookingConfig) GuardTTL() time.Duration {
	return time.Duration(c.GuardTTLSeconds) * time.Second
}

func (c BookingConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type CatalogConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; config values may reference its variables.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Booking.MaxPerWeek < 0 {
		return errors.New("booking.max_per_week must not be negative")
	}
	if c.API.Enabled && c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api.auth.api_keys is required when auth is enabled")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "prostor"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = models.DefaultRateLimitRPS
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = models.DefaultRateLimitBurst
	}

	if c.Booking.MaxPerWeek == 0 {
		c.Booking.MaxPerWeek = models.DefaultMaxPerWeek
	}
	if c.Booking.GuardTimeoutMs == 0 {
		c.Booking.GuardTimeoutMs = models.DefaultGuardTimeoutMs
	}
	if c.Booking.GuardTTLSeconds == 0 {
		c.Booking.GuardTTLSeconds = models.DefaultGuardTTLSeconds
	}
	if c.Booking.SweepIntervalMinutes == 0 {
		c.Booking.SweepIntervalMinutes = models.DefaultSweepIntervalMinutes
	}

	if c.Catalog.Path == "" {
		c.Catalog.Path = "configs/spaces.yaml"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
