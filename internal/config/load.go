package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	derrors "git.home.luguber.info/inful/dropsync/internal/foundation/errors"
)

// Load reads, expands, normalizes, defaults and validates a configuration file.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NotFoundError(configPath)
		}
		return nil, derrors.WrapError(err, derrors.CategoryConfig, "failed to read config file").
			Fatal().
			WithContext("path", configPath).
			Build()
	}
	return Parse(data)
}

// NotFoundError reports a missing configuration file.
func NotFoundError(configPath string) error {
	return derrors.ConfigError("configuration file not found").
		WithContext("path", configPath).
		Build()
}

// Parse builds a validated configuration from YAML bytes. ${VAR} references are expanded first.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryConfig, "failed to unmarshal config").Fatal().Build()
	}
	if err := Finalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Finalize runs normalization, defaults and validation on cfg in place.
// It is used after CLI overrides have been applied to a loaded or default config.
func Finalize(cfg *Config) error {
	if cfg.Version != "" && cfg.Version != CurrentVersion {
		return derrors.ConfigError(fmt.Sprintf("unsupported configuration version: %s (expected %s)", cfg.Version, CurrentVersion)).Build()
	}
	nres, err := NormalizeConfig(cfg)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryConfig, "normalize").Fatal().Build()
	}
	for _, w := range nres.Warnings {
		slog.Warn("config normalization", "detail", w)
	}
	applyDefaults(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return derrors.WrapError(err, derrors.CategoryValidation, "configuration validation failed").Fatal().Build()
	}
	return nil
}

// Overrides are values supplied on the command line. Zero values leave the config untouched.
type Overrides struct {
	Sources      []string
	Destinations []string
	Interval     string
	Checks       int
	Retries      int
}

// Apply copies the non-zero overrides onto cfg. Call Finalize afterwards.
func (o Overrides) Apply(cfg *Config) {
	if len(o.Sources) > 0 {
		cfg.Sources = append([]string(nil), o.Sources...)
	}
	if len(o.Destinations) > 0 {
		cfg.Destinations.Bases = append([]string(nil), o.Destinations...)
	}
	if o.Interval != "" {
		cfg.Polling.Interval = o.Interval
	}
	if o.Checks > 0 {
		cfg.Polling.NumberOfChecks = o.Checks
	}
	if o.Retries > 0 {
		cfg.Sync.MaxCopyRetries = o.Retries
	}
}
