// Package composer renders reply messages for queued requests.
package composer

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kalambet/gettor/internal/locale"
	"github.com/kalambet/gettor/internal/model"
)

var (
	// ErrUnknownCommand is returned for commands that have no reply.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrNoPlatform is returned for a links request without a platform.
	ErrNoPlatform = errors.New("links request has no platform")
)

// Reply is a composed message ready for delivery.
type Reply struct {
	Subject string
	Body    string
}

// Input carries the catalog data a reply is built from.
type Input struct {
	Platform model.Platform
	Links    []model.LinkEntry // ACTIVE entries for (platform, locale)
	Locales  []string          // locales offered in the help reply
}

// Composer builds help and links replies. It holds no per-request state;
// the strings for the reply locale are passed into every call.
type Composer struct {
	platforms []model.Platform
	names     *locale.Table
}

// New creates a Composer. names resolves locale codes to display names in
// the help example and may be nil.
func New(platforms []model.Platform, names *locale.Table) *Composer {
	return &Composer{
		platforms: append([]model.Platform(nil), platforms...),
		names:     names,
	}
}

// Compose renders the reply for cmd.
func (c *Composer) Compose(cmd model.Command, in Input, s locale.Strings) (Reply, error) {
	switch cmd {
	case model.CommandHelp:
		return c.Help(in.Locales, s), nil
	case model.CommandLinks:
		return c.Links(in.Platform, in.Links, s)
	case model.CommandUnknown:
		return Reply{}, ErrUnknownCommand
	}
	return Reply{}, fmt.Errorf("%w: %d", ErrUnknownCommand, int(cmd))
}

// Help renders the help reply listing platforms and locales.
func (c *Composer) Help(locales []string, s locale.Strings) Reply {
	var b strings.Builder
	b.WriteString(s.Get("body_intro"))
	b.WriteString(s.Get("help_body_intro"))
	b.WriteString(s.Get("help_body_support"))
	for _, p := range c.platforms {
		b.WriteString("\t" + string(p) + "\n")
	}
	b.WriteString("\n")
	b.WriteString(s.Get("help_body_respond"))
	b.WriteString(s.Get("help_body_locale"))
	for _, l := range locales {
		b.WriteString("\t" + l + "\n")
	}
	b.WriteString("\n")

	if len(c.platforms) > 0 {
		platform := string(c.platforms[0])
		code := exampleLocale(locales, s.Locale())
		// A Caser is stateful, so each call gets its own.
		b.WriteString(s.Format("help_body_example",
			cases.Title(language.English).String(platform), c.localeName(code), platform+" "+code))
	}

	return Reply{Subject: s.Get("help_subject"), Body: b.String()}
}

// Links renders the links reply for platform. With no links the reply is
// still produced; the link section is empty and the file-specific lines are
// left out.
func (c *Composer) Links(platform model.Platform, links []model.LinkEntry, s locale.Strings) (Reply, error) {
	if platform == "" {
		return Reply{}, ErrNoPlatform
	}

	label := s.Get("signature_label")
	var linkMsg strings.Builder
	var file string
	for _, l := range links {
		fmt.Fprintf(&linkMsg, "\n\t%s: %s\n\t%s: %s\n", l.Provider, l.URL, label, l.SignatureURL())
		if file == "" {
			file = l.FileName
		}
	}

	var b strings.Builder
	b.WriteString(s.Get("body_intro"))
	b.WriteString(s.Format("links_body_platform", string(platform)))
	b.WriteString(s.Format("links_body_step1", linkMsg.String()))
	if file != "" {
		b.WriteString(s.Format("links_body_archive", file))
	}
	b.WriteString(s.Get("links_body_step2"))
	if how, ok := s.Lookup("links_body_" + string(platform)); ok {
		b.WriteString(how)
	}
	if file != "" {
		b.WriteString(s.Format("links_body_all", VerifyCommand(platform, file)))
	}
	b.WriteString(s.Get("links_body_step3"))

	return Reply{Subject: s.Get("links_subject"), Body: b.String()}, nil
}

// VerifyCommand returns the gpgv invocation that checks file against its
// detached signature on platform.
func VerifyCommand(platform model.Platform, file string) string {
	if platform == model.PlatformWindows {
		return fmt.Sprintf(`gpgv --keyring .\tor.keyring Downloads\%[1]s.asc Downloads\%[1]s`, file)
	}
	return fmt.Sprintf("gpgv --keyring ./tor.keyring ~/Downloads/%s{.asc,}", file)
}

func (c *Composer) localeName(code string) string {
	if c.names == nil {
		return code
	}
	return c.names.Name(code)
}

// exampleLocale picks a locale other than the reply's own, so the example
// shows how to ask for a different language.
func exampleLocale(locales []string, current string) string {
	for _, l := range locales {
		if !strings.EqualFold(l, current) {
			return l
		}
	}
	return current
}
