package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestValidateDefaults(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got: %v", err)
	}
}

func TestLoadWithoutPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:5000" {
		t.Fatalf("unexpected addr %s", cfg.Addr())
	}
	if cfg.Server.MaxBodyBytes != 16<<20 {
		t.Fatalf("unexpected body limit %d", cfg.Server.MaxBodyBytes)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"server": {"port": 8080},
		"plugins": {"dir": "/srv/plugins", "refresh_schedule": "*/5 * * * *"},
		"settings": {"api_keys": {"nasa": "abc"}, "endpoints": {"celestrak": "http://127.0.0.1:9000"}}
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Server.Host != "127.0.0.1" {
		t.Fatalf("expected port override over default host, got %+v", cfg.Server)
	}
	if cfg.Plugins.Dir != "/srv/plugins" || cfg.Settings.APIKeys["nasa"] != "abc" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Analysis.RSSMaxItems != 20 {
		t.Fatalf("expected default rss_max_items to survive, got %d", cfg.Analysis.RSSMaxItems)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
logging:
  level: debug
  format: text
storage:
  retention_days: 3
  prune_schedule: "@daily"
settings:
  thresholds:
    cvss_critical: 9.5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.Format != "text" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging %+v", cfg.Logging)
	}
	if cfg.Storage.Retention().Hours() != 72 {
		t.Fatalf("unexpected retention %s", cfg.Storage.Retention())
	}
	if cfg.Settings.Thresholds["cvss_critical"] != 9.5 {
		t.Fatalf("unexpected thresholds %+v", cfg.Settings.Thresholds)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := writeFile(t, "config.json", `{"server": `)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("PORT", "9090")
	t.Setenv("DEBUG", "true")
	t.Setenv("SECRET_KEY", "s3cret")
	t.Setenv("GEOPOLIS_PLUGINS_DIR", "/opt/plugins")
	t.Setenv("GEOPOLIS_DB_PATH", "/var/lib/geopolis")
	t.Setenv("GEOPOLIS_NASA_API_KEY", "nasa-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr() != "0.0.0.0:9090" {
		t.Fatalf("unexpected addr %s", cfg.Addr())
	}
	if !cfg.Server.Debug || cfg.Logging.Level != "debug" {
		t.Fatalf("expected debug to force debug logging, got %+v", cfg.Logging)
	}
	if cfg.Server.SecretKey != "s3cret" || cfg.Plugins.Dir != "/opt/plugins" || cfg.Storage.DBPath != "/var/lib/geopolis" {
		t.Fatalf("unexpected overrides %+v", cfg)
	}
	if cfg.Settings.APIKeys["nasa"] != "nasa-key" {
		t.Fatalf("expected nasa key from env")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0
	cfg.Logging.Level = "loud"
	cfg.Plugins.RefreshSchedule = "every now and then"
	cfg.Analysis.RSSTimeout = "soon"
	cfg.Settings.Endpoints = map[string]string{"nasa_api": "not a url"}
	cfg.Storage.DBPath = "relative/path"

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, want := range []string{
		"server.port must be >= 1",
		"logging.level must be one of: debug, info, warn, error",
		"plugins.refresh_schedule must be a valid cron schedule",
		"analysis.rss_timeout must be a valid duration",
		"must be a valid URL",
		"storage.db_path must be an absolute path",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestValidateEncryptionKey(t *testing.T) {
	cfg := Default()
	cfg.Storage.EncryptionKeyBase64 = base64.StdEncoding.EncodeToString([]byte("short"))
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "32 bytes") {
		t.Fatalf("expected key length error, got %v", err)
	}
	cfg.Storage.EncryptionKeyBase64 = "%%%"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "valid base64") {
		t.Fatalf("expected base64 error, got %v", err)
	}
	cfg.Storage.EncryptionKeyBase64 = base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid key, got %v", err)
	}
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Settings.APIKeys = map[string]string{"nasa": "secret"}
	redacted := cfg.Redacted()
	if redacted.Server.SecretKey != "REDACTED" || redacted.Settings.APIKeys["nasa"] != "REDACTED" {
		t.Fatalf("expected secrets to be redacted, got %+v", redacted)
	}
	if cfg.Settings.APIKeys["nasa"] != "secret" {
		t.Fatalf("redaction must not mutate the original")
	}
}

func TestWarnings(t *testing.T) {
	cfg := Default()
	if len(cfg.Warnings()) != 1 {
		t.Fatalf("expected default secret warning, got %v", cfg.Warnings())
	}
	cfg.Server.SecretKey = "changed"
	cfg.Server.Debug = true
	warnings := cfg.Warnings()
	if len(warnings) != 1 || !strings.Contains(warnings[0], "debug") {
		t.Fatalf("unexpected warnings %v", warnings)
	}
}

func TestShutdownTimeoutDuration(t *testing.T) {
	cfg := Default()
	cfg.Server.ShutdownTimeout = "2s"
	if got := cfg.Server.ShutdownTimeoutDuration(); got.String() != "2s" {
		t.Fatalf("expected 2s, got %s", got)
	}
	cfg.Server.ShutdownTimeout = "invalid"
	if got := cfg.Server.ShutdownTimeoutDuration(); got <= 0 {
		t.Fatalf("expected fallback duration, got %s", got)
	}
}

func TestParseSchedule(t *testing.T) {
	if _, err := ParseSchedule("@every 1m"); err != nil {
		t.Fatalf("expected @every to parse: %v", err)
	}
	if _, err := ParseSchedule("61 * * * *"); err == nil {
		t.Fatalf("expected invalid minute to fail")
	}
}
