// Package fulfill drains queued requests, composes replies and hands them to
// a delivery channel.
package fulfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kalambet/gettor/internal/composer"
	"github.com/kalambet/gettor/internal/deliver"
	"github.com/kalambet/gettor/internal/locale"
	"github.com/kalambet/gettor/internal/model"
)

// ErrBusy is returned by Tick when a previous tick for the same worker is
// still running.
var ErrBusy = errors.New("tick already in progress")

// Queue is the request queue as seen by the worker.
type Queue interface {
	Drain(ctx context.Context, ch model.Channel) ([]model.Request, error)
	// RemoveID and RecordFailure address a single row. Several rows can
	// share a natural key when one sender submits twice in a second.
	RemoveID(ctx context.Context, id string) error
	RecordFailure(ctx context.Context, id, errMsg string) (int, error)
	BumpStats(ctx context.Context, platform model.Platform, locale string, cmd model.Command, ch model.Channel) error
}

// Catalog supplies the links sent in a reply.
type Catalog interface {
	ActiveLinks(ctx context.Context, platform model.Platform, locale string) ([]model.LinkEntry, error)
}

// StringSource resolves the reply strings for a locale.
type StringSource interface {
	For(locale string) locale.Strings
}

// Config holds the per-channel worker settings.
type Config struct {
	Channel       model.Channel
	Interval      time.Duration
	DefaultLocale string
	Locales       []string // recognized locales, listed in help replies
	// MaxAttempts removes a request after that many transient failures.
	// Zero retries forever.
	MaxAttempts int
}

// Summary reports what one tick did.
type Summary struct {
	Drained      int
	Sent         int
	Discarded    int // permanent failures and malformed requests
	Retried      int
	DeadLettered int
	Errors       int // storage failures; the request stays queued
}

// Worker runs fulfillment ticks for one channel.
type Worker struct {
	cfg      Config
	queue    Queue
	catalog  Catalog
	composer *composer.Composer
	strs     StringSource
	sender   deliver.Sender
	busy     atomic.Bool
	logger   *slog.Logger
}

// NewWorker creates a Worker. If cfg.Interval is <= 0 it defaults to one
// minute.
func NewWorker(cfg Config, queue Queue, catalog Catalog, comp *composer.Composer, strs StringSource, sender deliver.Sender) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Worker{
		cfg:      cfg,
		queue:    queue,
		catalog:  catalog,
		composer: comp,
		strs:     strs,
		sender:   sender,
		logger:   slog.Default().With("channel", string(cfg.Channel)),
	}
}

// SetLogger replaces the default logger.
func (w *Worker) SetLogger(l *slog.Logger) {
	w.logger = l.With("channel", string(w.cfg.Channel))
}

// Run ticks immediately and then every interval until ctx is cancelled.
// A tick in progress when ctx is cancelled finishes its current request.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := w.Tick(ctx); err != nil && !errors.Is(err, ErrBusy) {
			w.logger.Error("tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick drains the channel's ONHOLD requests and processes them in order.
// It returns ErrBusy without doing anything if another tick is running.
func (w *Worker) Tick(ctx context.Context) (Summary, error) {
	if !w.busy.CompareAndSwap(false, true) {
		w.logger.Debug("previous tick still running, skipping")
		return Summary{}, ErrBusy
	}
	defer w.busy.Store(false)

	var sum Summary
	if ctx.Err() != nil {
		return sum, nil
	}

	reqs, err := w.queue.Drain(ctx, w.cfg.Channel)
	if err != nil {
		return sum, fmt.Errorf("draining queue: %w", err)
	}
	sum.Drained = len(reqs)

	for _, r := range reqs {
		if ctx.Err() != nil {
			w.logger.Info("shutdown requested, leaving remaining requests queued")
			break
		}
		// The current request always completes, even on shutdown.
		w.process(context.WithoutCancel(ctx), r, &sum)
	}

	if sum.Drained > 0 {
		w.logger.Info("tick complete",
			"drained", sum.Drained, "sent", sum.Sent, "discarded", sum.Discarded,
			"retried", sum.Retried, "dead_lettered", sum.DeadLettered, "errors", sum.Errors)
	}
	return sum, nil
}

func (w *Worker) process(ctx context.Context, r model.Request, sum *Summary) {
	log := w.logger.With("request_id", r.ID, "hid", r.HID, "command", r.Command.String())

	loc := r.Locale
	if loc == "" {
		loc = w.cfg.DefaultLocale
	}

	reply, err := w.compose(ctx, r, loc)
	switch {
	case errors.Is(err, composer.ErrUnknownCommand), errors.Is(err, composer.ErrNoPlatform):
		log.Warn("discarding malformed request", "error", err)
		w.remove(ctx, r, log)
		sum.Discarded++
		return
	case err != nil:
		log.Error("composing reply", "error", err)
		sum.Errors++
		return
	}

	err = w.sender.Send(ctx, r.Identity, reply.Subject, reply.Body)
	switch {
	case err == nil:
		if err := w.queue.BumpStats(ctx, r.Platform, loc, r.Command, r.Channel); err != nil {
			log.Error("bumping stats", "error", err)
		}
		w.remove(ctx, r, log)
		sum.Sent++
		log.Info("reply sent")

	case deliver.IsPermanent(err):
		log.Warn("permanent delivery failure, discarding request", "error", err)
		w.remove(ctx, r, log)
		sum.Discarded++

	default:
		w.retryLater(ctx, r, err, log, sum)
	}
}

func (w *Worker) compose(ctx context.Context, r model.Request, loc string) (composer.Reply, error) {
	in := composer.Input{Platform: r.Platform, Locales: w.cfg.Locales}
	if r.Command == model.CommandLinks && r.Platform != "" {
		links, err := w.catalog.ActiveLinks(ctx, r.Platform, loc)
		if err != nil {
			return composer.Reply{}, fmt.Errorf("loading links: %w", err)
		}
		in.Links = links
	}
	return w.composer.Compose(r.Command, in, w.strs.For(loc))
}

func (w *Worker) retryLater(ctx context.Context, r model.Request, sendErr error, log *slog.Logger, sum *Summary) {
	attempts, err := w.queue.RecordFailure(ctx, r.ID, sendErr.Error())
	if err != nil {
		log.Error("recording delivery failure", "error", err, "send_error", sendErr)
		sum.Errors++
		return
	}
	if w.cfg.MaxAttempts > 0 && attempts >= w.cfg.MaxAttempts {
		log.Warn("giving up on request", "attempts", attempts, "error", sendErr)
		w.remove(ctx, r, log)
		sum.DeadLettered++
		return
	}
	log.Info("transient delivery failure, will retry", "attempts", attempts, "error", sendErr)
	sum.Retried++
}

func (w *Worker) remove(ctx context.Context, r model.Request, log *slog.Logger) {
	if err := w.queue.RemoveID(ctx, r.ID); err != nil {
		log.Error("removing request", "error", err)
	}
}
