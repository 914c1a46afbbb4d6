//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package config handles configuration management for pgedge-salesdw.
// Configuration is loaded from a config file, a .env file and the
// DATABASE_URL environment variable. CLI flags take precedence over both.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported warehouse drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all configuration for pgedge-salesdw.
type Config struct {
	// Connection is the warehouse connection string (or SQLite path).
	Connection string `mapstructure:"connection"`

	// Driver selects the warehouse engine: postgres or sqlite.
	Driver string `mapstructure:"driver"`

	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// LogPretty selects human-readable console output instead of JSON.
	LogPretty bool `mapstructure:"log_pretty"`

	// Sources holds the locations of the two extracts.
	Sources SourcesConfig `mapstructure:"sources"`

	// S3 configures access to s3:// source locations.
	S3 S3Config `mapstructure:"s3"`

	// Screens holds the data-quality screen thresholds.
	Screens ScreensConfig `mapstructure:"screens"`

	// Load tunes the staging pagination and dimension cache.
	Load LoadConfig `mapstructure:"load"`

	// Metrics configures the optional Pushgateway export.
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// SourcesConfig holds the extract locations. Each value is a local path
// or an s3://bucket/key URI.
type SourcesConfig struct {
	Store string `mapstructure:"store"`
	Sales string `mapstructure:"sales"`
}

// S3Config holds S3 client settings.
type S3Config struct {
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
}

// ScreensConfig holds the sales thresholds used by the data-quality screens.
type ScreensConfig struct {
	// LowSales flags sales strictly between zero and this value.
	LowSales int `mapstructure:"low_sales"`

	// HighSales flags sales strictly above this value.
	HighSales int `mapstructure:"high_sales"`
}

// LoadConfig holds load stage tuning.
type LoadConfig struct {
	// BatchSize is the number of staging rows read per page.
	BatchSize int `mapstructure:"batch_size"`

	// CacheSize is the number of resolved dimension keys kept per run.
	CacheSize int `mapstructure:"cache_size"`
}

// MetricsConfig holds Pushgateway settings. Metrics are not pushed when
// PushgatewayURL is empty.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Driver:    DriverPostgres,
		LogLevel:  "info",
		LogPretty: true,
		Sources: SourcesConfig{
			Store: "store.csv",
			Sales: "train.csv",
		},
		S3: S3Config{
			Region: "us-east-1",
		},
		Screens: ScreensConfig{
			LowSales:  50,
			HighSales: 40000,
		},
		Load: LoadConfig{
			BatchSize: 1000,
			CacheSize: 4096,
		},
		Metrics: MetricsConfig{
			Job: "pgedge-salesdw",
		},
	}
}

// Load reads configuration from config files and the environment.
// Config file locations (in order of precedence):
// 1. Path specified by configFile parameter
// 2. ./pgedge-salesdw.yaml
// 3. ~/.config/pgedge-salesdw/config.yaml
//
// A .env file in the working directory is loaded first so that
// DATABASE_URL can be provided there.
func Load(configFile string) (*Config, error) {
	// Missing .env is the normal case
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("pgedge-salesdw")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "pgedge-salesdw"))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	if err := v.BindEnv("connection", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("error binding DATABASE_URL: %w", err)
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Connection == "" {
		return fmt.Errorf("connection string is required (set DATABASE_URL or --connection)")
	}
	if c.Driver != DriverPostgres && c.Driver != DriverSQLite {
		return fmt.Errorf("driver must be '%s' or '%s'", DriverPostgres, DriverSQLite)
	}
	return nil
}

// ValidateRun checks configuration required for an ETL run.
func (c *Config) ValidateRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Sources.Store == "" {
		return fmt.Errorf("store source is required")
	}
	if c.Sources.Sales == "" {
		return fmt.Errorf("sales source is required")
	}
	if c.Load.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1")
	}
	if c.Load.CacheSize < 1 {
		return fmt.Errorf("cache_size must be at least 1")
	}
	if c.Screens.LowSales < 0 {
		return fmt.Errorf("low_sales must be non-negative")
	}
	if c.Screens.HighSales <= c.Screens.LowSales {
		return fmt.Errorf("high_sales must be > low_sales")
	}
	return nil
}
