package config

import "errors"

// Validation errors returned by Config.Validate. Callers can match them
// with errors.Is.
var (
	// ErrInvalidInterval is returned when a channel polling interval is not
	// positive.
	ErrInvalidInterval = errors.New("invalid interval: must be positive")

	// ErrInvalidLimit is returned for a negative per-channel request limit.
	// Zero disables the flood guard for that channel.
	ErrInvalidLimit = errors.New("invalid requests limit: must be non-negative")

	// ErrInvalidMaxAttempts is returned for a negative retry bound.
	ErrInvalidMaxAttempts = errors.New("invalid max attempts: must be non-negative")

	// ErrNoPlatforms is returned when the platform list is empty.
	ErrNoPlatforms = errors.New("no platforms configured")

	// ErrNoDefaultLocale is returned when the default locale is empty.
	ErrNoDefaultLocale = errors.New("default locale is empty")

	// ErrInvalidLogFormat is returned for a log format other than text or json.
	ErrInvalidLogFormat = errors.New("invalid log format: want text or json")

	// ErrNoAuthServID is returned when DKIM is required but no trusted
	// Authentication-Results server id is set.
	ErrNoAuthServID = errors.New("email.dkim_required needs email.auth_serv_id")
)
