package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

// AppName names the XDG config and data directories.
const AppName = "gettor"

// Config is the resolved service configuration. See Load for precedence.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Log       LogConfig
	Platforms []string
	Locale    LocaleConfig
	Email     EmailConfig
	DM        DMConfig
	Flood     FloodConfig
	Fulfill   FulfillConfig
}

type ServerConfig struct {
	Addr  string
	Token string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level  string
	Format string
}

type LocaleConfig struct {
	Default string
	Dir     string // optional override of the embedded locale data
}

type EmailConfig struct {
	Address       string
	RequestsLimit int
	Interval      time.Duration
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	DKIMRequired  bool
	AuthServID    string // trusted Authentication-Results server id
}

type DMConfig struct {
	RequestsLimit int
	Interval      time.Duration
	APIURL        string
	APIToken      string
	SOCKSProxy    string
}

type FloodConfig struct {
	TestHID string
}

type FulfillConfig struct {
	MaxAttempts int
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr: "127.0.0.1:4100",
		},
		Storage: StorageConfig{
			DataDir: DefaultDataDir(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Platforms: []string{"linux", "osx", "windows"},
		Locale: LocaleConfig{
			Default: "en-US",
		},
		Email: EmailConfig{
			Address:       "gettor@torproject.org",
			RequestsLimit: 30,
			Interval:      10 * time.Second,
			SMTPHost:      "localhost",
			SMTPPort:      587,
		},
		DM: DMConfig{
			RequestsLimit: 30,
			Interval:      time.Minute,
		},
		Fulfill: FulfillConfig{
			MaxAttempts: 10,
		},
	}
}

// DefaultDataDir is where the request database lives unless configured.
func DefaultDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// DefaultConfigPath is $XDG_CONFIG_HOME/gettor/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// Load builds the configuration from defaults, the YAML file at path
// (DefaultConfigPath when empty), an optional .env file in the working
// directory, and GETTOR_* environment variables, in that order.
// Secrets are only read from the environment.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	b, err := openYAMLBackend(path)
	if err != nil {
		return Config{}, err
	}
	return loadWith(b)
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values the services cannot run without.
func (c Config) Validate() error {
	if c.Email.Interval <= 0 || c.DM.Interval <= 0 {
		return ErrInvalidInterval
	}
	if c.Email.RequestsLimit < 0 || c.DM.RequestsLimit < 0 {
		return ErrInvalidLimit
	}
	if c.Fulfill.MaxAttempts < 0 {
		return ErrInvalidMaxAttempts
	}
	if len(c.Platforms) == 0 {
		return ErrNoPlatforms
	}
	if c.Locale.Default == "" {
		return ErrNoDefaultLocale
	}
	if !slices.Contains([]string{"text", "json"}, c.Log.Format) {
		return ErrInvalidLogFormat
	}
	if c.Email.DKIMRequired && c.Email.AuthServID == "" {
		return ErrNoAuthServID
	}
	return nil
}
