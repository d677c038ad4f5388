package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func loadFromPath(t *testing.T, path string) (Config, error) {
	t.Helper()
	b, err := openYAMLBackend(path)
	if err != nil {
		return Config{}, err
	}
	return loadWith(b)
}

// TestDefaults verifies all default values are applied when the file is missing.
func TestDefaults(t *testing.T) {
	cfg, err := loadFromPath(t, filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != "127.0.0.1:4100" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Email.RequestsLimit != 30 || cfg.DM.RequestsLimit != 30 {
		t.Errorf("limits = %d, %d; want 30, 30", cfg.Email.RequestsLimit, cfg.DM.RequestsLimit)
	}
	if cfg.Email.Interval != 10*time.Second {
		t.Errorf("Email.Interval = %v", cfg.Email.Interval)
	}
	if cfg.Email.SMTPHost != "localhost" || cfg.Email.SMTPPort != 587 {
		t.Errorf("SMTP = %s:%d", cfg.Email.SMTPHost, cfg.Email.SMTPPort)
	}
	if strings.Join(cfg.Platforms, ",") != "linux,osx,windows" {
		t.Errorf("Platforms = %v", cfg.Platforms)
	}
	if cfg.Locale.Default != "en-US" {
		t.Errorf("Locale.Default = %q", cfg.Locale.Default)
	}
	if cfg.Fulfill.MaxAttempts != 10 {
		t.Errorf("Fulfill.MaxAttempts = %d", cfg.Fulfill.MaxAttempts)
	}
	if !strings.HasSuffix(cfg.Storage.DataDir, AppName) {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
}

// TestYAMLParsing verifies that fields are read from nested YAML.
func TestYAMLParsing(t *testing.T) {
	path := writeTempConfig(t, `
server:
  addr: 0.0.0.0:9000
storage:
  data_dir: /tmp/gettor-test
platforms: [linux, windows]
locale:
  default: es-ES
email:
  address: gettor@example.org
  requests_limit: 5
  interval: 30s
  smtp_port: 25
  dkim_required: true
  auth_serv_id: mx.example.org
dm:
  interval: 120
  socks_proxy: 127.0.0.1:9050
fulfill:
  max_attempts: 0
`)

	cfg, err := loadFromPath(t, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Storage.DataDir != "/tmp/gettor-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if strings.Join(cfg.Platforms, ",") != "linux,windows" {
		t.Errorf("Platforms = %v", cfg.Platforms)
	}
	if cfg.Locale.Default != "es-ES" {
		t.Errorf("Locale.Default = %q", cfg.Locale.Default)
	}
	if cfg.Email.Address != "gettor@example.org" || cfg.Email.RequestsLimit != 5 || cfg.Email.SMTPPort != 25 {
		t.Errorf("Email = %+v", cfg.Email)
	}
	if cfg.Email.Interval != 30*time.Second {
		t.Errorf("Email.Interval = %v", cfg.Email.Interval)
	}
	if !cfg.Email.DKIMRequired {
		t.Error("Email.DKIMRequired = false")
	}
	if cfg.DM.Interval != 2*time.Minute {
		t.Errorf("DM.Interval = %v, want bare seconds to parse", cfg.DM.Interval)
	}
	if cfg.DM.SOCKSProxy != "127.0.0.1:9050" {
		t.Errorf("DM.SOCKSProxy = %q", cfg.DM.SOCKSProxy)
	}
	if cfg.Fulfill.MaxAttempts != 0 {
		t.Errorf("Fulfill.MaxAttempts = %d", cfg.Fulfill.MaxAttempts)
	}
}

// TestSecretsIgnoredInFile verifies secrets only come from the environment.
func TestSecretsIgnoredInFile(t *testing.T) {
	path := writeTempConfig(t, `
server:
  token: from-file
`)
	t.Setenv("GETTOR_SERVER_TOKEN", "")

	cfg, err := loadFromPath(t, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Token != "" {
		t.Errorf("Server.Token = %q, want empty", cfg.Server.Token)
	}
}

// TestEnvOverride verifies that environment variables override file values.
func TestEnvOverride(t *testing.T) {
	path := writeTempConfig(t, `
email:
  requests_limit: 5
`)
	t.Setenv("GETTOR_EMAIL_REQUESTS_LIMIT", "7")
	t.Setenv("GETTOR_SERVER_TOKEN", "env-token")
	t.Setenv("GETTOR_PLATFORMS", "osx, linux")
	t.Setenv("GETTOR_DM_INTERVAL", "5m")

	cfg, err := loadFromPath(t, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Email.RequestsLimit != 7 {
		t.Errorf("Email.RequestsLimit = %d, want 7", cfg.Email.RequestsLimit)
	}
	if cfg.Server.Token != "env-token" {
		t.Errorf("Server.Token = %q", cfg.Server.Token)
	}
	if strings.Join(cfg.Platforms, ",") != "osx,linux" {
		t.Errorf("Platforms = %v", cfg.Platforms)
	}
	if cfg.DM.Interval != 5*time.Minute {
		t.Errorf("DM.Interval = %v", cfg.DM.Interval)
	}
}

// TestBadEnvValueKeepsPrevious verifies unparsable env values are ignored.
func TestBadEnvValueKeepsPrevious(t *testing.T) {
	t.Setenv("GETTOR_EMAIL_SMTP_PORT", "not-a-port")

	cfg, err := loadFromPath(t, filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Email.SMTPPort != 587 {
		t.Errorf("Email.SMTPPort = %d, want default 587", cfg.Email.SMTPPort)
	}
}

func TestInvalidFileValue(t *testing.T) {
	path := writeTempConfig(t, `
email:
  interval: soon
`)
	if _, err := loadFromPath(t, path); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"defaults", func(*Config) {}, nil},
		{"zero interval", func(c *Config) { c.Email.Interval = 0 }, ErrInvalidInterval},
		{"negative dm interval", func(c *Config) { c.DM.Interval = -time.Second }, ErrInvalidInterval},
		{"zero limit disables guard", func(c *Config) { c.Email.RequestsLimit = 0 }, nil},
		{"negative limit", func(c *Config) { c.DM.RequestsLimit = -1 }, ErrInvalidLimit},
		{"negative max attempts", func(c *Config) { c.Fulfill.MaxAttempts = -1 }, ErrInvalidMaxAttempts},
		{"no platforms", func(c *Config) { c.Platforms = nil }, ErrNoPlatforms},
		{"no default locale", func(c *Config) { c.Locale.Default = "" }, ErrNoDefaultLocale},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, ErrInvalidLogFormat},
		{"dkim without server id", func(c *Config) { c.Email.DKIMRequired = true }, ErrNoAuthServID},
		{"dkim with server id", func(c *Config) {
			c.Email.DKIMRequired = true
			c.Email.AuthServID = "mx.example.org"
		}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("GETTOR_DM_API_TOKEN=dotenv-token\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Setenv("GETTOR_DM_API_TOKEN", "")
	os.Unsetenv("GETTOR_DM_API_TOKEN")

	cfg, err := Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DM.APIToken != "dotenv-token" {
		t.Errorf("DM.APIToken = %q, want value from .env", cfg.DM.APIToken)
	}
}

func TestSetKeyRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gettor", "config.yaml")

	if err := SetKey(path, "email.smtp_host", "mail.example.org"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	if err := SetKey(path, "email.interval", "45s"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	if err := SetKey(path, "platforms", "linux,osx"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	if err := SetKey(path, "email.smtp_port", "2525"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}

	cfg, err := loadFromPath(t, path)
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if cfg.Email.SMTPHost != "mail.example.org" || cfg.Email.SMTPPort != 2525 {
		t.Errorf("SMTP = %s:%d", cfg.Email.SMTPHost, cfg.Email.SMTPPort)
	}
	if cfg.Email.Interval != 45*time.Second {
		t.Errorf("Email.Interval = %v", cfg.Email.Interval)
	}
	if strings.Join(cfg.Platforms, ",") != "linux,osx" {
		t.Errorf("Platforms = %v", cfg.Platforms)
	}
}

func TestSetKeyRejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := SetKey(path, "server.token", "x"); err == nil {
		t.Error("expected error setting a secret")
	}
	if err := SetKey(path, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := SetKey(path, "email.smtp_port", "abc"); err == nil {
		t.Error("expected error for invalid integer")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("rejected writes must not create the file")
	}
}

func TestShowAllMasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Server.Token = "super-secret"

	var sawToken bool
	for _, k := range ShowAll(cfg) {
		if strings.Contains(k.Value, "super-secret") {
			t.Errorf("%s leaks the secret", k.Key)
		}
		if k.Key == "server.token" {
			sawToken = true
			if k.Value != "(set)" {
				t.Errorf("server.token = %q, want (set)", k.Value)
			}
		}
		if k.Key == "platforms" && k.Value != "linux,osx,windows" {
			t.Errorf("platforms = %q", k.Value)
		}
	}
	if !sawToken {
		t.Error("server.token missing from ShowAll")
	}
}

func TestValidKeysExcludesSecrets(t *testing.T) {
	for _, k := range ValidKeys() {
		if k == "server.token" || k == "email.smtp_password" || k == "dm.api_token" {
			t.Errorf("ValidKeys includes secret %q", k)
		}
	}
}
