package flood

import (
	"context"
	"errors"
	"testing"

	"github.com/kalambet/gettor/internal/model"
)

func TestAdmit(t *testing.T) {
	tests := []struct {
		name   string
		hid    string
		prior  int
		limit  int
		bypass string
		want   bool
	}{
		{"first request", "a", 0, 1, "", true},
		{"at limit", "a", 1, 1, "", false},
		{"below limit", "a", 2, 3, "", true},
		{"over limit", "a", 5, 3, "", false},
		{"disabled", "a", 100, 0, "", true},
		{"bypass", "test", 100, 1, "test", true},
		{"bypass other hid", "a", 1, 1, "test", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Admit(tt.hid, tt.prior, tt.limit, tt.bypass); got != tt.want {
				t.Errorf("Admit() = %v, want %v", got, tt.want)
			}
		})
	}
}

type fakeCounter struct {
	counts map[string]int
	err    error
}

func (f *fakeCounter) CountRequests(_ context.Context, hid string, ch model.Channel) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[hid+"/"+string(ch)], nil
}

func TestGuardPerChannelLimits(t *testing.T) {
	c := &fakeCounter{counts: map[string]int{"h/email": 1, "h/dm": 1}}
	g := NewGuard(c, Limits{model.ChannelEmail: 1, model.ChannelDM: 2}, "")

	ok, err := g.Allow(context.Background(), "h", model.ChannelEmail)
	if err != nil || ok {
		t.Errorf("email Allow() = %v, %v; want false", ok, err)
	}
	ok, err = g.Allow(context.Background(), "h", model.ChannelDM)
	if err != nil || !ok {
		t.Errorf("dm Allow() = %v, %v; want true", ok, err)
	}
}

func TestGuardStorageError(t *testing.T) {
	boom := errors.New("boom")
	g := NewGuard(&fakeCounter{err: boom}, Limits{model.ChannelEmail: 1}, "")
	ok, err := g.Allow(context.Background(), "h", model.ChannelEmail)
	if ok || !errors.Is(err, boom) {
		t.Errorf("Allow() = %v, %v; want false, boom", ok, err)
	}
}
