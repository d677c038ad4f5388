// Package log provides the service logger. Every record passes through a
// handler that keeps requester addresses and credentials out of the output.
package log

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// MaskValue replaces values of sensitive attributes.
const MaskValue = "***REDACTED***"

// EmailMask replaces email addresses found inside free text.
const EmailMask = "[REDACTED_EMAIL]"

// sensitiveKeys name attributes that carry raw identities or credentials.
var sensitiveKeys = map[string]bool{
	"identity":      true,
	"address":       true,
	"email":         true,
	"from":          true,
	"to":            true,
	"recipient":     true,
	"sender":        true,
	"sender_id":     true,
	"authorization": true,
	"password":      true,
	"secret":        true,
	"token":         true,
	"auth":          true,
}

var sensitiveKeywords = []string{"password", "secret", "token", "auth", "identity"}

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// RedactEmails replaces every email address in s.
func RedactEmails(s string) string {
	return emailPattern.ReplaceAllString(s, EmailMask)
}

// RedactHandler wraps an slog.Handler and scrubs each attribute before it
// reaches the wrapped handler. The hashed identity (key "hid") passes
// through untouched.
type RedactHandler struct {
	handler slog.Handler
}

// NewRedactHandler wraps h. A nil h uses the default logger's handler.
func NewRedactHandler(h slog.Handler) *RedactHandler {
	if h == nil {
		h = slog.Default().Handler()
	}
	return &RedactHandler{handler: h}
}

func (h *RedactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *RedactHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, RedactEmails(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redactAttr(a))
		return true
	})
	return h.handler.Handle(ctx, out)
}

func (h *RedactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = redactAttr(a)
	}
	return &RedactHandler{handler: h.handler.WithAttrs(clean)}
}

func (h *RedactHandler) WithGroup(name string) slog.Handler {
	return &RedactHandler{handler: h.handler.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		clean := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			clean[i] = redactAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
	}

	key := strings.ToLower(a.Key)
	if key == "hid" {
		return a
	}
	if sensitiveKeys[key] || containsKeyword(key) {
		return slog.String(a.Key, MaskValue)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, RedactEmails(a.Value.String()))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, RedactEmails(err.Error()))
		}
	}
	return a
}

func containsKeyword(key string) bool {
	for _, kw := range sensitiveKeywords {
		if strings.Contains(key, kw) {
			return true
		}
	}
	return false
}

// Format selects the output encoding of NewLogger.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseLevel maps a config value to a level; unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a redacting logger writing to w.
func NewLogger(w io.Writer, level slog.Level, format Format) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if format == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(NewRedactHandler(h))
}
