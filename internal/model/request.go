package model

import (
	"strings"
	"time"
)

// Command is the action a requester asked for. The zero value is
// CommandUnknown, which is never persisted by the intake path.
type Command int

const (
	// CommandUnknown marks a malformed stored command. The worker discards
	// such requests without replying.
	CommandUnknown Command = iota
	// CommandHelp asks for the help reply listing platforms and locales.
	CommandHelp
	// CommandLinks asks for the download links of one platform.
	CommandLinks
)

// String returns the persisted form of the command.
func (c Command) String() string {
	switch c {
	case CommandHelp:
		return "help"
	case CommandLinks:
		return "links"
	default:
		return "unknown"
	}
}

// ParseCommand maps a stored command name back to its variant. Anything it
// does not recognize becomes CommandUnknown.
func ParseCommand(s string) Command {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "help":
		return CommandHelp
	case "links":
		return CommandLinks
	default:
		return CommandUnknown
	}
}

// Channel is the medium a request arrived on and is answered through.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelDM    Channel = "dm"
)

// Channels lists every channel the service knows about.
var Channels = []Channel{ChannelEmail, ChannelDM}

// IsValid reports whether c is one of the known channels.
func (c Channel) IsValid() bool {
	return c == ChannelEmail || c == ChannelDM
}

// Platform is an operating system a Tor Browser build exists for.
type Platform string

const (
	PlatformWindows Platform = "windows"
	PlatformLinux   Platform = "linux"
	PlatformOSX     Platform = "osx"
)

// DefaultPlatforms is the platform set used when configuration does not
// override it.
var DefaultPlatforms = []Platform{PlatformWindows, PlatformLinux, PlatformOSX}

// Status is the queue state of a Request.
type Status string

const (
	StatusOnHold Status = "ONHOLD"
	StatusSent   Status = "SENT"
)

// SubmittedLayout is the storage layout of Request.SubmittedAt (UTC).
const SubmittedLayout = "20060102150405"

// DateLayout is the storage layout of the day bucket used by stats.
const DateLayout = "20060102"

// Request is one accepted inbound message waiting for (or having received)
// a reply.
type Request struct {
	ID          string
	Identity    string // raw address or serialized DM identity; never logged
	HID         string // hashed identity
	Command     Command
	Platform    Platform
	Locale      string
	Channel     Channel
	SubmittedAt time.Time
	Status      Status
	Attempts    int
	LastError   string
}

// Key is the natural key of a Request row.
type Key struct {
	Identity    string
	Channel     Channel
	SubmittedAt time.Time
}

// Key returns the natural key of r.
func (r Request) Key() Key {
	return Key{Identity: r.Identity, Channel: r.Channel, SubmittedAt: r.SubmittedAt}
}

// Submitted formats the submission time the way it is stored.
func (k Key) Submitted() string {
	return k.SubmittedAt.UTC().Format(SubmittedLayout)
}

// DateBucket returns the stats day bucket for t.
func DateBucket(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
