package classify

import (
	"strings"

	"github.com/kalambet/gettor/internal/model"
)

// Result is the structured form of an inbound request.
type Result struct {
	Command  model.Command
	Platform model.Platform
	Locale   string
}

// Classifier scans free text for platform, locale and help keywords.
// It holds only read-only configuration and is safe for concurrent use.
type Classifier struct {
	locales       []string
	platforms     []model.Platform
	defaultLocale string
}

// New creates a Classifier. locales is the recognized locale set in table
// order; that order decides which locale wins a two-letter prefix match.
func New(locales []string, platforms []model.Platform, defaultLocale string) *Classifier {
	return &Classifier{
		locales:       append([]string(nil), locales...),
		platforms:     append([]model.Platform(nil), platforms...),
		defaultLocale: defaultLocale,
	}
}

// Classify runs the subject pass, then the body pass, then applies
// defaults. The returned command is never CommandUnknown.
func (c *Classifier) Classify(subject, body string) Result {
	var s scan
	c.scan(&s, subject)
	c.scan(&s, body)

	res := Result{Command: s.command, Platform: s.platform}
	switch {
	case s.exact != "":
		res.Locale = s.exact
	case s.prefix != "":
		res.Locale = s.prefix
	default:
		res.Locale = c.defaultLocale
	}
	if res.Command == model.CommandUnknown {
		res.Command = model.CommandHelp
	}
	return res
}

// scan accumulates findings across passes. Exact and prefix locale matches
// are tracked separately so an exact match found anywhere wins.
type scan struct {
	command  model.Command
	platform model.Platform
	exact    string
	prefix   string
}

func (c *Classifier) scan(s *scan, text string) {
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimLeft(line, " \t"), ">") {
			continue
		}
		for _, tok := range strings.Fields(line) {
			c.token(s, strings.ToLower(tok))
		}
	}
}

func (c *Classifier) token(s *scan, tok string) {
	if p, ok := c.platform(tok); ok {
		s.command = model.CommandLinks
		if s.platform == "" {
			s.platform = p
		}
		return
	}
	if tok == "help" {
		if s.command == model.CommandUnknown {
			s.command = model.CommandHelp
		}
		return
	}

	if s.exact == "" {
		if l, ok := c.exactLocale(tok); ok {
			s.exact = l
			return
		}
	}
	if s.prefix == "" {
		if l, ok := c.prefixLocale(tok); ok {
			s.prefix = l
		}
	}
}

func (c *Classifier) platform(tok string) (model.Platform, bool) {
	for _, p := range c.platforms {
		if tok == string(p) {
			return p, true
		}
	}
	return "", false
}

func (c *Classifier) exactLocale(tok string) (string, bool) {
	for _, l := range c.locales {
		if strings.EqualFold(tok, l) {
			return l, true
		}
	}
	return "", false
}

func (c *Classifier) prefixLocale(tok string) (string, bool) {
	if len(tok) < 2 {
		return "", false
	}
	for _, l := range c.locales {
		if len(l) >= 2 && strings.EqualFold(tok[:2], l[:2]) {
			return l, true
		}
	}
	return "", false
}
