// Package config loads service configuration from defaults, an optional
// YAML file and the environment, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
}

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Recommend RecommendConfig `koanf:"recommend"`
	Auth      AuthConfig      `koanf:"auth"`
	Logging   LoggingConfig   `koanf:"logging"`
	Lock      LockConfig      `koanf:"lock"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins     []string      `koanf:"cors_origins" validate:"min=1"`
}

type DatabaseConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// CatalogConfig points at an OMDb-compatible API.
type CatalogConfig struct {
	APIKey         string        `koanf:"api_key" validate:"required"`
	BaseURL        string        `koanf:"base_url" validate:"required,url"`
	Timeout        time.Duration `koanf:"timeout" validate:"gt=0"`
	BreakerEnabled bool          `koanf:"breaker_enabled"`
}

type RecommendConfig struct {
	// SignalTimeout bounds each signal query. Zero disables the bound.
	SignalTimeout time.Duration `koanf:"signal_timeout" validate:"gte=0"`
	// Seed fixes the random term selection. Zero seeds from the clock.
	Seed           int64    `koanf:"seed"`
	FallbackTitles []string `koanf:"fallback_titles" validate:"min=1,dive,required"`
}

type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret" validate:"required,min=16"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

type LockConfig struct {
	Dir string `koanf:"dir" validate:"required"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{
			Path: "recommender.db",
		},
		Catalog: CatalogConfig{
			BaseURL:        "https://www.omdbapi.com/",
			Timeout:        10 * time.Second,
			BreakerEnabled: true,
		},
		Recommend: RecommendConfig{
			SignalTimeout: 5 * time.Second,
			FallbackTitles: []string{
				"Inception",
				"The Dark Knight",
				"Pulp Fiction",
				"The Godfather",
				"Forrest Gump",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Lock: LockConfig{
			Dir: filepath.Join(os.TempDir(), "cinerec-locks"),
		},
	}
}

// Load reads .env (if present), then layers defaults, the config file and
// environment variables, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field against its validate tag.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: failed on %s", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths arrive from the environment as comma-separated strings.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"recommend.fallback_titles",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to config paths.
// Anything not listed is ignored.
var envMappings = map[string]string{
	"port":             "server.port",
	"shutdown_timeout": "server.shutdown_timeout",
	"cors_origins":     "server.cors_origins",

	"db_path": "database.path",

	"omdb_api_key":         "catalog.api_key",
	"omdb_base_url":        "catalog.base_url",
	"omdb_timeout":         "catalog.timeout",
	"omdb_breaker_enabled": "catalog.breaker_enabled",

	"recommend_signal_timeout":  "recommend.signal_timeout",
	"recommend_seed":            "recommend.seed",
	"recommend_fallback_titles": "recommend.fallback_titles",

	"jwt_secret": "auth.jwt_secret",

	"log_level":  "logging.level",
	"log_format": "logging.format",

	"lock_dir": "lock.dir",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
