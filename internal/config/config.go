// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package config loads the vuln-fusion configuration file with viper.
// Values resolve in the order flag > VULN_FUSION_* environment > file >
// default; flags are applied by the cmd package.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bonial-oss/vuln-fusion/internal/cache"
	"github.com/bonial-oss/vuln-fusion/internal/datasource/epss"
	"github.com/bonial-oss/vuln-fusion/internal/datasource/kev"
	"github.com/bonial-oss/vuln-fusion/internal/scoring"
	"github.com/bonial-oss/vuln-fusion/internal/weights"
)

const (
	DefaultConfigDir  = ".vuln-fusion"
	DefaultConfigFile = "config.yaml"
	DefaultDBFile     = "vuln-fusion.db"
	EnvPrefix         = "VULN_FUSION"
)

// Config is the resolved configuration.
type Config struct {
	OrganizationID   string                `mapstructure:"organization_id"`
	LogLevel         string                `mapstructure:"log_level"`
	CacheDir         string                `mapstructure:"cache_dir"`
	Workers          int                   `mapstructure:"workers"`
	FrameworkCeiling float64               `mapstructure:"framework_ceiling"`
	Weights          weights.Configuration `mapstructure:"weights"`
	SSVC             SSVCConfig            `mapstructure:"ssvc"`
	Database         DatabaseConfig        `mapstructure:"database"`
	ResultCache      ResultCacheConfig     `mapstructure:"result_cache"`
	Feeds            FeedsConfig           `mapstructure:"feeds"`
}

// FeedsConfig locates the EPSS and KEV feeds and sets how long a
// downloaded snapshot is reused before it is fetched again.
type FeedsConfig struct {
	TTL            time.Duration `mapstructure:"ttl"`
	EPSSURL        string        `mapstructure:"epss_url"`
	KEVURL         string        `mapstructure:"kev_url"`
	KEVFallbackURL string        `mapstructure:"kev_fallback_url"`
}

// SSVCConfig holds the organization-wide SSVC decision-point answers.
// Leaving every field empty disables SSVC for scanned findings.
type SSVCConfig struct {
	Exploitation    string `mapstructure:"exploitation"`
	TechnicalImpact string `mapstructure:"technical_impact"`
	Automatable     string `mapstructure:"automatable"`
	MissionImpact   string `mapstructure:"mission_impact"`
}

// DatabaseConfig selects the persistence backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// ResultCacheConfig sizes the in-process score cache.
type ResultCacheConfig struct {
	Size int           `mapstructure:"size"`
	TTL  time.Duration `mapstructure:"ttl"`
}

// Inputs returns the SSVC answers, or nil when none are configured.
func (s SSVCConfig) Inputs() *scoring.SSVCInputs {
	if s == (SSVCConfig{}) {
		return nil
	}
	return &scoring.SSVCInputs{
		Exploitation:    s.Exploitation,
		TechnicalImpact: s.TechnicalImpact,
		Automatable:     s.Automatable,
		MissionImpact:   s.MissionImpact,
	}
}

// Load reads the config file and environment. A missing file is not an
// error; a malformed one is. configPath overrides the default location.
func Load(configPath string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(expandHome(configPath, home))
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(home, DefaultConfigDir))
	}

	setDefaults(v, home)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if len(cfg.Weights) == 0 {
		cfg.Weights = weights.Default()
	}
	cfg.CacheDir = expandHome(cfg.CacheDir, home)
	cfg.Database.Path = expandHome(cfg.Database.Path, home)
	return &cfg, nil
}

// Path returns the effective config file path.
func Path(override string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	if override != "" {
		return expandHome(override, home), nil
	}
	return filepath.Join(home, DefaultConfigDir, DefaultConfigFile), nil
}

// SaveWeights validates w and writes it into the config file at path,
// keeping every other key. Invalid weights are never written.
func SaveWeights(path string, w weights.Configuration) error {
	if err := w.Validate(); err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}
	v.Set("weights", map[string]float64(w))

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// setDefaults populates viper with out-of-the-box values. Weights have no
// viper default so a partial file map is not merged with the defaults.
func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("organization_id", "default")
	v.SetDefault("log_level", "info")
	v.SetDefault("cache_dir", defaultCacheDir(home))
	v.SetDefault("workers", 4)
	v.SetDefault("framework_ceiling", scoring.DefaultFrameworkCeiling)

	v.SetDefault("ssvc.exploitation", "")
	v.SetDefault("ssvc.technical_impact", "")
	v.SetDefault("ssvc.automatable", "")
	v.SetDefault("ssvc.mission_impact", "")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", filepath.Join(home, DefaultConfigDir, DefaultDBFile))
	v.SetDefault("database.dsn", "")

	v.SetDefault("result_cache.size", 4096)
	v.SetDefault("result_cache.ttl", time.Hour)

	v.SetDefault("feeds.ttl", cache.DefaultTTL)
	v.SetDefault("feeds.epss_url", epss.DefaultBaseURL)
	v.SetDefault("feeds.kev_url", kev.DefaultPrimaryURL)
	v.SetDefault("feeds.kev_fallback_url", kev.DefaultFallbackURL)
}

// defaultCacheDir keeps feed downloads under XDG_DATA_HOME when set.
func defaultCacheDir(home string) string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "vuln-fusion")
	}
	return filepath.Join(home, DefaultConfigDir, "cache")
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
