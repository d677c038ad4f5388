// Package flood limits how many requests a single requester may have
// queued per channel.
package flood

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kalambet/gettor/internal/model"
)

// Admit reports whether a requester with prior queued requests on a channel
// may submit another one. A limit <= 0 disables the guard. bypass, when
// non-empty, is a hashed identity that is always admitted (used for tests
// against a live deployment).
func Admit(hid string, prior, limit int, bypass string) bool {
	if bypass != "" && hid == bypass {
		return true
	}
	if limit <= 0 {
		return true
	}
	return prior < limit
}

// Counter counts the requests currently stored for a hashed identity.
type Counter interface {
	CountRequests(ctx context.Context, hid string, ch model.Channel) (int, error)
}

// Limits is the per-channel request limit.
type Limits map[model.Channel]int

// Guard applies Admit using counts from storage.
type Guard struct {
	counter Counter
	limits  Limits
	bypass  string
	logger  *slog.Logger
}

// NewGuard creates a Guard. bypass may be empty.
func NewGuard(counter Counter, limits Limits, bypass string) *Guard {
	return &Guard{
		counter: counter,
		limits:  limits,
		bypass:  bypass,
		logger:  slog.Default(),
	}
}

// SetLogger replaces the default logger.
func (g *Guard) SetLogger(l *slog.Logger) {
	g.logger = l
}

// Allow reports whether hid may enqueue another request on ch. Storage
// errors are returned; callers must not enqueue in that case.
func (g *Guard) Allow(ctx context.Context, hid string, ch model.Channel) (bool, error) {
	prior, err := g.counter.CountRequests(ctx, hid, ch)
	if err != nil {
		return false, fmt.Errorf("counting requests: %w", err)
	}
	ok := Admit(hid, prior, g.limits[ch], g.bypass)
	if !ok {
		g.logger.Info("request over limit", "hid", hid, "channel", ch, "queued", prior, "limit", g.limits[ch])
	}
	return ok, nil
}
