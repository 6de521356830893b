// Package config loads daemon settings from the environment, optionally
// overlaid by a YAML file named in REDACT_CONFIG.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/celerix-dev/celerix-redact/pkg/sdk"
)

// Config holds every daemon setting.
type Config struct {
	DataDir    string `yaml:"data_dir" validate:"required"`
	Port       string `yaml:"port" validate:"required,numeric"`
	HTTPPort   string `yaml:"http_port" validate:"required,numeric"`
	DisableTLS bool   `yaml:"disable_tls"`
	Site       string `yaml:"site" validate:"required,excludesall=/"`
	// StoreAddr points at a remote option store; empty means embedded.
	StoreAddr string `yaml:"store_addr" validate:"omitempty,hostname_port"`

	DatabaseURL string `yaml:"database_url"`
	TablePrefix string `yaml:"table_prefix"`

	EraserURL     string        `yaml:"eraser_url" validate:"omitempty,url"`
	EraserToken   string        `yaml:"eraser_token"`
	EraserTimeout time.Duration `yaml:"eraser_timeout"`

	SweepInterval time.Duration `yaml:"sweep_interval" validate:"gte=0"`
	SweepLease    time.Duration `yaml:"sweep_lease" validate:"gt=0"`
	SweepRate     float64       `yaml:"sweep_rate" validate:"gte=0"`

	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		DataDir:       "./data",
		Port:          "7001",
		HTTPPort:      "7002",
		Site:          sdk.DefaultSite,
		TablePrefix:   "wp_",
		EraserTimeout: 30 * time.Second,
		SweepInterval: 24 * time.Hour,
		SweepLease:    time.Hour,
		LogLevel:      "info",
	}
}

// Load builds the configuration: defaults, then the YAML file, then environment variables.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Default()

	if path := getenv("REDACT_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if !sdk.ValidSite(cfg.Site) {
		return cfg, fmt.Errorf("config: %w: site %q", sdk.ErrInvalidName, cfg.Site)
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("REDACT_DATA_DIR", &cfg.DataDir)
	str("REDACT_PORT", &cfg.Port)
	str("REDACT_HTTP_PORT", &cfg.HTTPPort)
	str("REDACT_SITE", &cfg.Site)
	str("REDACT_STORE_ADDR", &cfg.StoreAddr)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("REDACT_TABLE_PREFIX", &cfg.TablePrefix)
	str("REDACT_ERASER_URL", &cfg.EraserURL)
	str("REDACT_ERASER_TOKEN", &cfg.EraserToken)
	str("REDACT_LOG_LEVEL", &cfg.LogLevel)

	if v := getenv("REDACT_DISABLE_TLS"); v != "" {
		cfg.DisableTLS = v == "true"
	}

	durations := map[string]*time.Duration{
		"REDACT_ERASER_TIMEOUT": &cfg.EraserTimeout,
		"REDACT_SWEEP_INTERVAL": &cfg.SweepInterval,
		"REDACT_SWEEP_LEASE":    &cfg.SweepLease,
	}
	for key, dst := range durations {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = d
	}

	if v := strings.TrimSpace(getenv("REDACT_SWEEP_RATE")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: REDACT_SWEEP_RATE: %w", err)
		}
		cfg.SweepRate = f
	}
	return nil
}
