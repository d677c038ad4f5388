// Package intake turns inbound messages into queued requests: classify,
// apply the flood guard, enqueue.
package intake

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/gettor/internal/classify"
	"github.com/kalambet/gettor/internal/identity"
	"github.com/kalambet/gettor/internal/model"
)

// Outcome is what happened to an inbound message.
type Outcome int

const (
	// Queued means a request was stored.
	Queued Outcome = iota
	// Dropped means the message was ignored on purpose (mail loop guard,
	// message for another instance).
	Dropped
	// Rejected means the message could not be used (bad sender, failed
	// verification, malformed).
	Rejected
	// Limited means the flood guard refused the request.
	Limited
)

func (o Outcome) String() string {
	switch o {
	case Queued:
		return "queued"
	case Dropped:
		return "dropped"
	case Rejected:
		return "rejected"
	case Limited:
		return "limited"
	default:
		return "unknown"
	}
}

// Result describes one submission. The requester never sees it; it is for
// logs, operators and tests.
type Result struct {
	Outcome   Outcome       `json:"-"`
	Status    string        `json:"status"`
	RequestID string        `json:"request_id,omitempty"`
	HID       string        `json:"hid,omitempty"`
	Command   string        `json:"command,omitempty"`
	Platform  string        `json:"platform,omitempty"`
	Locale    string        `json:"locale,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Channel   model.Channel `json:"channel"`
}

// Enqueuer stores accepted requests.
type Enqueuer interface {
	Enqueue(ctx context.Context, r model.Request) (string, error)
}

// Admitter decides whether a requester may queue another request.
type Admitter interface {
	Allow(ctx context.Context, hid string, ch model.Channel) (bool, error)
}

// Intake accepts messages from every channel.
type Intake struct {
	classifier *classify.Classifier
	email      *classify.EmailParser
	guard      Admitter
	store      Enqueuer
	now        func() time.Time
	logger     *slog.Logger
}

// New creates an Intake.
func New(classifier *classify.Classifier, email *classify.EmailParser, guard Admitter, store Enqueuer) *Intake {
	return &Intake{
		classifier: classifier,
		email:      email,
		guard:      guard,
		store:      store,
		now:        time.Now,
		logger:     slog.Default(),
	}
}

// SetLogger replaces the default logger.
func (in *Intake) SetLogger(l *slog.Logger) {
	in.logger = l
}

// SubmitEmail processes one raw RFC 5322 message. The returned error is
// non-nil only for storage failures; unusable input is reported through
// the Result.
func (in *Intake) SubmitEmail(ctx context.Context, raw []byte) (Result, error) {
	msg, ok, err := in.email.Parse(raw)
	if err != nil {
		in.logger.Info("email rejected", "reason", err)
		return in.finish(Result{Outcome: Rejected, Reason: err.Error(), Channel: model.ChannelEmail}), nil
	}
	if !ok {
		in.logger.Debug("email dropped")
		return in.finish(Result{Outcome: Dropped, Channel: model.ChannelEmail}), nil
	}
	return in.submit(ctx, msg)
}

// SubmitDM processes one direct message.
func (in *Intake) SubmitDM(ctx context.Context, m classify.DirectMessage) (Result, error) {
	msg, err := in.classifier.ParseDM(m)
	if err != nil {
		in.logger.Info("dm rejected", "reason", err)
		return in.finish(Result{Outcome: Rejected, Reason: err.Error(), Channel: model.ChannelDM}), nil
	}
	return in.submit(ctx, msg)
}

func (in *Intake) submit(ctx context.Context, msg classify.Inbound) (Result, error) {
	hid := identity.Hash(msg.Requester)
	res := Result{
		HID:      hid,
		Channel:  msg.Channel,
		Command:  msg.Command.String(),
		Platform: string(msg.Platform),
		Locale:   msg.Locale,
	}

	ok, err := in.guard.Allow(ctx, hid, msg.Channel)
	if err != nil {
		return res, fmt.Errorf("checking flood guard: %w", err)
	}
	if !ok {
		res.Outcome = Limited
		return in.finish(res), nil
	}

	id, err := in.store.Enqueue(ctx, model.Request{
		Identity:    msg.Identity,
		HID:         hid,
		Command:     msg.Command,
		Platform:    msg.Platform,
		Locale:      msg.Locale,
		Channel:     msg.Channel,
		SubmittedAt: in.now().UTC(),
	})
	if err != nil {
		return res, fmt.Errorf("enqueueing request: %w", err)
	}
	res.Outcome = Queued
	res.RequestID = id
	in.logger.Info("request queued", "request_id", id, "hid", hid, "channel", string(msg.Channel),
		"command", res.Command, "platform", res.Platform, "locale", res.Locale)
	return in.finish(res), nil
}

func (in *Intake) finish(r Result) Result {
	r.Status = r.Outcome.String()
	return r
}
