package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
	kList
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.addr", typ: kString, env: "GETTOR_SERVER_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Server.Addr = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Addr },
	},
	{
		key: "server.token", typ: kString, env: "GETTOR_SERVER_TOKEN",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "storage.data_dir", typ: kString, env: "GETTOR_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "GETTOR_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "GETTOR_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
	{
		key: "platforms", typ: kList, env: "GETTOR_PLATFORMS",
		apply:   func(cfg *Config, v any) { cfg.Platforms = v.([]string) },
		extract: func(cfg Config) any { return cfg.Platforms },
	},
	{
		key: "locale.default", typ: kString, env: "GETTOR_LOCALE_DEFAULT",
		apply:   func(cfg *Config, v any) { cfg.Locale.Default = v.(string) },
		extract: func(cfg Config) any { return cfg.Locale.Default },
	},
	{
		key: "locale.dir", typ: kString, env: "GETTOR_LOCALE_DIR",
		apply:   func(cfg *Config, v any) { cfg.Locale.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Locale.Dir },
	},
	{
		key: "email.address", typ: kString, env: "GETTOR_EMAIL_ADDRESS",
		apply:   func(cfg *Config, v any) { cfg.Email.Address = v.(string) },
		extract: func(cfg Config) any { return cfg.Email.Address },
	},
	{
		key: "email.requests_limit", typ: kInt, env: "GETTOR_EMAIL_REQUESTS_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Email.RequestsLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Email.RequestsLimit },
	},
	{
		key: "email.interval", typ: kDuration, env: "GETTOR_EMAIL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Email.Interval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Email.Interval },
	},
	{
		key: "email.smtp_host", typ: kString, env: "GETTOR_EMAIL_SMTP_HOST",
		apply:   func(cfg *Config, v any) { cfg.Email.SMTPHost = v.(string) },
		extract: func(cfg Config) any { return cfg.Email.SMTPHost },
	},
	{
		key: "email.smtp_port", typ: kInt, env: "GETTOR_EMAIL_SMTP_PORT",
		apply:   func(cfg *Config, v any) { cfg.Email.SMTPPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Email.SMTPPort },
	},
	{
		key: "email.smtp_username", typ: kString, env: "GETTOR_EMAIL_SMTP_USERNAME",
		apply:   func(cfg *Config, v any) { cfg.Email.SMTPUsername = v.(string) },
		extract: func(cfg Config) any { return cfg.Email.SMTPUsername },
	},
	{
		key: "email.smtp_password", typ: kString, env: "GETTOR_EMAIL_SMTP_PASSWORD",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Email.SMTPPassword = v.(string) },
		extract: func(cfg Config) any { return cfg.Email.SMTPPassword },
	},
	{
		key: "email.dkim_required", typ: kBool, env: "GETTOR_EMAIL_DKIM_REQUIRED",
		apply:   func(cfg *Config, v any) { cfg.Email.DKIMRequired = v.(bool) },
		extract: func(cfg Config) any { return cfg.Email.DKIMRequired },
	},
	{
		key: "email.auth_serv_id", typ: kString, env: "GETTOR_EMAIL_AUTH_SERV_ID",
		apply:   func(cfg *Config, v any) { cfg.Email.AuthServID = v.(string) },
		extract: func(cfg Config) any { return cfg.Email.AuthServID },
	},
	{
		key: "dm.requests_limit", typ: kInt, env: "GETTOR_DM_REQUESTS_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.DM.RequestsLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.DM.RequestsLimit },
	},
	{
		key: "dm.interval", typ: kDuration, env: "GETTOR_DM_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.DM.Interval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.DM.Interval },
	},
	{
		key: "dm.api_url", typ: kString, env: "GETTOR_DM_API_URL",
		apply:   func(cfg *Config, v any) { cfg.DM.APIURL = v.(string) },
		extract: func(cfg Config) any { return cfg.DM.APIURL },
	},
	{
		key: "dm.api_token", typ: kString, env: "GETTOR_DM_API_TOKEN",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.DM.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.DM.APIToken },
	},
	{
		key: "dm.socks_proxy", typ: kString, env: "GETTOR_DM_SOCKS_PROXY",
		apply:   func(cfg *Config, v any) { cfg.DM.SOCKSProxy = v.(string) },
		extract: func(cfg Config) any { return cfg.DM.SOCKSProxy },
	},
	{
		key: "flood.test_hid", typ: kString, env: "GETTOR_FLOOD_TEST_HID",
		apply:   func(cfg *Config, v any) { cfg.Flood.TestHID = v.(string) },
		extract: func(cfg Config) any { return cfg.Flood.TestHID },
	},
	{
		key: "fulfill.max_attempts", typ: kInt, env: "GETTOR_FULFILL_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Fulfill.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Fulfill.MaxAttempts },
	},
}

// parseValue converts a raw string to the Go type of a key.
func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kDuration:
		return parseDuration(raw)
	case kList:
		return splitList(raw), nil
	default:
		return raw, nil
	}
}

// parseDuration accepts Go duration syntax or a bare number of seconds.
func parseDuration(raw string) (time.Duration, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kList:
			v, ok, err := b.GetStrings(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		default:
			raw, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if !ok {
				continue
			}
			v, err := parseValue(s.typ, raw)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", s.key, err)
			}
			s.apply(cfg, v)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := strings.TrimSpace(os.Getenv(s.env))
		if raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s: %v. Using previous value.\n", s.env, err)
			continue
		}
		s.apply(cfg, v)
	}
}
