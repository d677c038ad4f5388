package intake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/gettor/internal/classify"
	"github.com/kalambet/gettor/internal/flood"
	"github.com/kalambet/gettor/internal/identity"
	"github.com/kalambet/gettor/internal/model"
	"github.com/kalambet/gettor/internal/storage"
)

const service = "gettor@torproject.org"

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestIntake(t *testing.T, store *storage.Store, limit int, bypass string) *Intake {
	t.Helper()
	c := classify.New([]string{"en-US", "es-ES", "es-AR", "pt-BR", "fa"}, model.DefaultPlatforms, "en-US")
	parser := classify.NewEmailParser(c, classify.WithServiceAddress(service))
	guard := flood.NewGuard(store, flood.Limits{model.ChannelEmail: limit, model.ChannelDM: limit}, bypass)
	in := New(c, parser, guard, store)
	in.now = func() time.Time { return time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC) }
	return in
}

func email(from, body string) []byte {
	return []byte("From: " + from + "\r\nTo: " + service + "\r\nSubject: \r\n\r\n" + body)
}

func TestSubmitEmailQueues(t *testing.T) {
	store := openTestStore(t)
	in := newTestIntake(t, store, 3, "")

	res, err := in.SubmitEmail(context.Background(), email("Alice <alice@Example.NET>", "linux es"))
	if err != nil {
		t.Fatalf("SubmitEmail: %v", err)
	}
	if res.Outcome != Queued || res.Status != "queued" || res.RequestID == "" {
		t.Fatalf("result = %+v", res)
	}
	if res.HID != identity.Hash("alice@example.net") {
		t.Errorf("HID = %q", res.HID)
	}

	stored, err := store.Request(context.Background(), res.RequestID)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if stored.Identity != "alice@example.net" || stored.Command != model.CommandLinks ||
		stored.Platform != model.PlatformLinux || stored.Locale != "es-ES" ||
		stored.Status != model.StatusOnHold || stored.Channel != model.ChannelEmail {
		t.Errorf("stored = %+v", stored)
	}
	if got := stored.Key().Submitted(); got != "20260504120000" {
		t.Errorf("submitted_at = %q", got)
	}
}

func TestSubmitEmailDropsAndRejects(t *testing.T) {
	store := openTestStore(t)
	in := newTestIntake(t, store, 3, "")
	ctx := context.Background()

	res, err := in.SubmitEmail(ctx, email("MAILER-DAEMON@torproject.org", "windows"))
	if err != nil || res.Outcome != Dropped {
		t.Errorf("mailer-daemon: %+v, %v", res, err)
	}
	res, err = in.SubmitEmail(ctx, email("not an address", "windows"))
	if err != nil || res.Outcome != Rejected || res.Reason == "" {
		t.Errorf("bad sender: %+v, %v", res, err)
	}

	depth, _ := store.QueueDepth(ctx)
	if depth[model.ChannelEmail] != 0 {
		t.Errorf("queued %d requests, want 0", depth[model.ChannelEmail])
	}
}

func TestSubmitFloodLimit(t *testing.T) {
	store := openTestStore(t)
	in := newTestIntake(t, store, 1, "")
	ctx := context.Background()

	first, _ := in.SubmitEmail(ctx, email("alice@example.net", "help"))
	second, err := in.SubmitEmail(ctx, email("alice@example.net", "windows"))
	if err != nil {
		t.Fatalf("SubmitEmail: %v", err)
	}
	if first.Outcome != Queued || second.Outcome != Limited {
		t.Errorf("outcomes = %v, %v; want queued, limited", first.Outcome, second.Outcome)
	}

	// Other requesters are unaffected.
	other, _ := in.SubmitEmail(ctx, email("bob@example.net", "help"))
	if other.Outcome != Queued {
		t.Errorf("bob outcome = %v", other.Outcome)
	}
}

func TestSubmitFloodBypass(t *testing.T) {
	store := openTestStore(t)
	bypass := identity.Hash("tester@example.net")
	in := newTestIntake(t, store, 1, bypass)

	for i := 0; i < 3; i++ {
		res, err := in.SubmitEmail(context.Background(), email("tester@example.net", "help"))
		if err != nil || res.Outcome != Queued {
			t.Fatalf("submission %d: %+v, %v", i, res, err)
		}
	}
}

func TestSubmitDM(t *testing.T) {
	store := openTestStore(t)
	in := newTestIntake(t, store, 1, "")
	ctx := context.Background()

	res, err := in.SubmitDM(ctx, classify.DirectMessage{ID: "10", SenderID: "42", Text: "osx fa"})
	if err != nil || res.Outcome != Queued {
		t.Fatalf("SubmitDM: %+v, %v", res, err)
	}
	stored, _ := store.Request(ctx, res.RequestID)
	if stored.Channel != model.ChannelDM || stored.Locale != "fa" || stored.Platform != model.PlatformOSX {
		t.Errorf("stored = %+v", stored)
	}
	d, err := identity.ParseDM(stored.Identity)
	if err != nil || d.SenderID != "42" {
		t.Errorf("stored identity = %q (%v)", stored.Identity, err)
	}

	// The limit is per sender, not per message.
	res, _ = in.SubmitDM(ctx, classify.DirectMessage{ID: "11", SenderID: "42", Text: "help"})
	if res.Outcome != Limited {
		t.Errorf("second dm outcome = %v, want limited", res.Outcome)
	}

	res, _ = in.SubmitDM(ctx, classify.DirectMessage{ID: "12", Text: "help"})
	if res.Outcome != Rejected {
		t.Errorf("dm without sender outcome = %v, want rejected", res.Outcome)
	}
}

type failingStore struct{ err error }

func (f failingStore) Enqueue(context.Context, model.Request) (string, error) { return "", f.err }

type allowAll struct{}

func (allowAll) Allow(context.Context, string, model.Channel) (bool, error) { return true, nil }

func TestSubmitStorageErrorIsReturned(t *testing.T) {
	boom := errors.New("disk full")
	c := classify.New([]string{"en-US"}, model.DefaultPlatforms, "en-US")
	in := New(c, classify.NewEmailParser(c), allowAll{}, failingStore{err: boom})

	_, err := in.SubmitEmail(context.Background(), email("alice@example.net", "help"))
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}
