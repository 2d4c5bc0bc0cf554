// Package config loads the settings for the serve command. Values come
// from defaults, then an optional YAML file, then the environment, with
// later sources overriding earlier ones. A .env file is honored when
// present but never overrides variables already set.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Addr is the host:port the HTTP server binds.
	Addr string `yaml:"addr" validate:"required,hostname_port"`
	// DataRoot is the directory whose subdirectories are the GTFS datasets
	// offered as providers.
	DataRoot string `yaml:"data_root" validate:"required"`
	// CacheDir relocates the cache artifacts of every provider. Empty
	// keeps each provider's artifacts inside its own dataset directory.
	CacheDir string `yaml:"cache_dir"`
	// DefaultProvider is activated at startup when set.
	DefaultProvider string `yaml:"default_provider"`
	// DefaultLanguage translates stop names for requests that carry no
	// language of their own.
	DefaultLanguage string `yaml:"default_language"`
	// Workers caps loader concurrency. Zero means one worker per CPU.
	Workers     int      `yaml:"workers" validate:"min=0"`
	LogLevel    string   `yaml:"log_level" validate:"oneof=debug info warn error"`
	CORSOrigins []string `yaml:"cors_origins"`
	// ShutdownTimeout is how many seconds a draining server waits for
	// in-flight requests.
	ShutdownTimeout int `yaml:"shutdown_timeout" validate:"min=1"`
}

// Default returns the configuration used when no file and no environment
// variables are present. DataRoot stays empty and must be supplied.
func Default() Config {
	return Config{
		Addr:            ":8080",
		DefaultLanguage: "default",
		LogLevel:        "info",
		CORSOrigins:     []string{"*"},
		ShutdownTimeout: 10,
	}
}

// Load builds the configuration from path, which may be empty to skip the
// file. envFiles are handed to godotenv; when none are given the usual
// .env is tried.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	_ = godotenv.Load(envFiles...)
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("GTFS_ADDR"); ok {
		cfg.Addr = v
	}
	if v, ok := os.LookupEnv("GTFS_DATA_ROOT"); ok {
		cfg.DataRoot = v
	}
	if v, ok := os.LookupEnv("GTFS_CACHE_DIR"); ok {
		cfg.CacheDir = v
	}
	if v, ok := os.LookupEnv("GTFS_DEFAULT_PROVIDER"); ok {
		cfg.DefaultProvider = v
	}
	if v, ok := os.LookupEnv("GTFS_DEFAULT_LANGUAGE"); ok {
		cfg.DefaultLanguage = v
	}
	if v, ok := os.LookupEnv("GTFS_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid GTFS_WORKERS value %q: %w", v, err)
		}
		cfg.Workers = n
	}
	if v, ok := os.LookupEnv("GTFS_LOG_LEVEL"); ok {
		cfg.LogLevel = strings.ToLower(v)
	}
	return nil
}

func validate(cfg Config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Errorf("invalid config: field %s fails %q", verrs[0].Field(), verrs[0].Tag())
	}
	return fmt.Errorf("invalid config: %w", err)
}

// SlogLevel maps the configured log level onto slog's levels.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ShutdownGrace is ShutdownTimeout as a duration.
func (c Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownTimeout) * time.Second
}
