package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "configs/config.json"
	DefaultSecretKey  = "geopolis-secret-key-change-me"
)

type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	Plugins  PluginsConfig  `json:"plugins" yaml:"plugins"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Settings SettingsConfig `json:"settings" yaml:"settings"`
	Analysis AnalysisConfig `json:"analysis" yaml:"analysis"`
}

type ServerConfig struct {
	Host            string   `json:"host" yaml:"host" validate:"required"`
	Port            int      `json:"port" yaml:"port" validate:"min=1,max=65535"`
	Debug           bool     `json:"debug" yaml:"debug"`
	SecretKey       string   `json:"secret_key" yaml:"secret_key" validate:"required"`
	ShutdownTimeout string   `json:"shutdown_timeout" yaml:"shutdown_timeout" validate:"omitempty,duration"`
	CORSOrigins     []string `json:"cors_origins" yaml:"cors_origins" validate:"dive,required"`
	MaxBodyBytes    int64    `json:"max_body_bytes" yaml:"max_body_bytes" validate:"min=1"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" validate:"oneof=json text"`
	File   string `json:"file" yaml:"file"`
}

type PluginsConfig struct {
	Dir             string `json:"dir" yaml:"dir" validate:"required"`
	RefreshSchedule string `json:"refresh_schedule" yaml:"refresh_schedule" validate:"omitempty,schedule"`
	BuiltinFallback bool   `json:"builtin_fallback" yaml:"builtin_fallback"`
}

type StorageConfig struct {
	DBPath              string `json:"db_path" yaml:"db_path"`
	RetentionDays       int    `json:"retention_days" yaml:"retention_days" validate:"min=0"`
	PruneSchedule       string `json:"prune_schedule" yaml:"prune_schedule" validate:"omitempty,schedule"`
	EncryptionKeyBase64 string `json:"encryption_key_base64" yaml:"encryption_key_base64" validate:"omitempty,base64"`
}

// SettingsConfig is handed to every plugin factory.
type SettingsConfig struct {
	APIKeys    map[string]string  `json:"api_keys" yaml:"api_keys"`
	Thresholds map[string]float64 `json:"thresholds" yaml:"thresholds"`
	Endpoints  map[string]string  `json:"endpoints" yaml:"endpoints" validate:"dive,url"`
}

type AnalysisConfig struct {
	RSSTimeout  string `json:"rss_timeout" yaml:"rss_timeout" validate:"duration"`
	RSSMaxItems int    `json:"rss_max_items" yaml:"rss_max_items" validate:"min=1,max=100"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            5000,
			Debug:           false,
			SecretKey:       DefaultSecretKey,
			ShutdownTimeout: "10s",
			CORSOrigins:     []string{"*"},
			MaxBodyBytes:    16 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File:   "",
		},
		Plugins: PluginsConfig{
			Dir:             "plugins",
			RefreshSchedule: "",
			BuiltinFallback: true,
		},
		Storage: StorageConfig{
			DBPath:        "",
			RetentionDays: 7,
			PruneSchedule: "@hourly",
		},
		Settings: SettingsConfig{
			APIKeys:    map[string]string{},
			Thresholds: map[string]float64{},
			Endpoints:  map[string]string{},
		},
		Analysis: AnalysisConfig{
			RSSTimeout:  "10s",
			RSSMaxItems: 20,
		},
	}
}

// Load decodes path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(path, raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func decode(path string, raw []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(raw, cfg)
	default:
		return json.Unmarshal(raw, cfg)
	}
}

func (c Config) Validate() error {
	var errs []string

	errs = append(errs, structErrors(c)...)

	if c.Storage.EncryptionKeyBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(c.Storage.EncryptionKeyBase64)
		if err == nil && len(decoded) != 32 {
			errs = append(errs, "storage.encryption_key_base64 must decode to 32 bytes")
		}
	}
	if c.Storage.DBPath != "" && !filepath.IsAbs(c.Storage.DBPath) {
		errs = append(errs, "storage.db_path must be an absolute path if set")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// Warnings reports settings that are valid but unsafe.
func (c Config) Warnings() []string {
	var out []string
	if c.Server.SecretKey == DefaultSecretKey {
		out = append(out, "server.secret_key is the default value; set SECRET_KEY in production")
	}
	if c.Server.Debug {
		out = append(out, "server.debug is enabled; error details are returned to clients")
	}
	return out
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (s ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return parseDuration(s.ShutdownTimeout, 10*time.Second)
}

func (a AnalysisConfig) RSSTimeoutDuration() time.Duration {
	return parseDuration(a.RSSTimeout, 10*time.Second)
}

func (s StorageConfig) Retention() time.Duration {
	return time.Duration(s.RetentionDays) * 24 * time.Hour
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (c Config) Redacted() Config {
	clone := c
	if clone.Server.SecretKey != "" {
		clone.Server.SecretKey = "REDACTED"
	}
	if clone.Storage.EncryptionKeyBase64 != "" {
		clone.Storage.EncryptionKeyBase64 = "REDACTED"
	}
	if clone.Settings.APIKeys != nil {
		redacted := map[string]string{}
		for key := range clone.Settings.APIKeys {
			redacted[key] = "REDACTED"
		}
		clone.Settings.APIKeys = redacted
	}
	return clone
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("HOST"); ok && v != "" {
		cfg.Server.Host = v
	}
	if v, ok := os.LookupEnv("PORT"); ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = parsed
		}
	}
	if v, ok := os.LookupEnv("DEBUG"); ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.Server.Debug = parsed
		}
	}
	if v, ok := os.LookupEnv("SECRET_KEY"); ok && v != "" {
		cfg.Server.SecretKey = v
	}
	if v, ok := os.LookupEnv("GEOPOLIS_PLUGINS_DIR"); ok && v != "" {
		cfg.Plugins.Dir = v
	}
	if v, ok := os.LookupEnv("GEOPOLIS_LOG_LEVEL"); ok && v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v, ok := os.LookupEnv("GEOPOLIS_LOG_FILE"); ok {
		cfg.Logging.File = v
	}
	if v, ok := os.LookupEnv("GEOPOLIS_DB_PATH"); ok {
		cfg.Storage.DBPath = v
	}
	if v, ok := os.LookupEnv("GEOPOLIS_NASA_API_KEY"); ok && v != "" {
		if cfg.Settings.APIKeys == nil {
			cfg.Settings.APIKeys = map[string]string{}
		}
		cfg.Settings.APIKeys["nasa"] = v
	}
	if cfg.Server.Debug {
		cfg.Logging.Level = "debug"
	}
}
