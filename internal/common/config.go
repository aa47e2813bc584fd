// Package common provides shared utilities for the CRAB evaluation server
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the CRAB server
type Config struct {
	Environment string           `toml:"environment"`
	Server      ServerConfig     `toml:"server"`
	Workers     WorkersConfig    `toml:"workers"`
	Storage     StorageConfig    `toml:"storage"`
	Evaluation  EvaluationConfig `toml:"evaluation"`
	Logging     LoggingConfig    `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	PublicDir string `toml:"public_dir"` // Directory served at / (index.html etc.)
}

// WorkersConfig holds evaluation worker pool configuration
type WorkersConfig struct {
	MaxWorkers int `toml:"max_workers"`
}

// StorageConfig holds on-disk layout configuration.
// DatasetPath and ArchivesRoot derive from DataPath when left empty.
type StorageConfig struct {
	ResultsDir   string `toml:"results_dir"`
	DataPath     string `toml:"data_path"`
	DatasetPath  string `toml:"dataset_path"`
	ArchivesRoot string `toml:"archives_root"`
}

// EvaluationConfig holds evaluation pipeline configuration
type EvaluationConfig struct {
	MockBuildHandler bool   `toml:"mock_build_handler"` // Replace container builds with timed stubs
	BuildTimeout     string `toml:"build_timeout"`      // duration string, default "1h"
}

// GetBuildTimeout parses and returns the per-command build timeout
func (c *EvaluationConfig) GetBuildTimeout() time.Duration {
	d, err := time.ParseDuration(c.BuildTimeout)
	if err != nil {
		return time.Hour
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      45003,
			PublicDir: "public",
		},
		Workers: WorkersConfig{
			MaxWorkers: 5,
		},
		Storage: StorageConfig{
			ResultsDir: "submission_results",
			DataPath:   "data",
		},
		Evaluation: EvaluationConfig{
			MockBuildHandler: false,
			BuildTimeout:     "1h",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// Apply environment overrides
	applyEnvOverrides(config)

	// Fill paths that derive from data_path
	resolveDerivedPaths(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// The deployment names (PORT, MAX_WORKERS, RESULTS_DIR, MOCK_BUILD_HANDLER,
// DATA_PATH, DATASET_PATH, ARCHIVES_ROOT) take precedence over config files.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CRAB_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("CRAB_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("CRAB_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if dir := os.Getenv("CRAB_PUBLIC_DIR"); dir != "" {
		config.Server.PublicDir = dir
	}

	if workers := os.Getenv("MAX_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil && n > 0 {
			config.Workers.MaxWorkers = n
		}
	}

	if dir := os.Getenv("RESULTS_DIR"); dir != "" {
		config.Storage.ResultsDir = dir
	}

	if path := os.Getenv("DATA_PATH"); path != "" {
		config.Storage.DataPath = path
	}

	if path := os.Getenv("DATASET_PATH"); path != "" {
		config.Storage.DatasetPath = path
	}

	if path := os.Getenv("ARCHIVES_ROOT"); path != "" {
		config.Storage.ArchivesRoot = path
	}

	if v := os.Getenv("MOCK_BUILD_HANDLER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Evaluation.MockBuildHandler = b
		}
	}

	if v := os.Getenv("CRAB_BUILD_TIMEOUT"); v != "" {
		config.Evaluation.BuildTimeout = v
	}
}

// resolveDerivedPaths fills dataset_path and archives_root from data_path
// when they were not set explicitly.
func resolveDerivedPaths(config *Config) {
	if config.Storage.DatasetPath == "" {
		config.Storage.DatasetPath = filepath.Join(config.Storage.DataPath, "dataset.json")
	}
	if config.Storage.ArchivesRoot == "" {
		config.Storage.ArchivesRoot = filepath.Join(config.Storage.DataPath, "archives")
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
