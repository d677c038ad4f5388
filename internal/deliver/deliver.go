// Package deliver sends composed replies over the email and DM channels.
package deliver

import (
	"context"
	"errors"
	"fmt"
)

// Sender delivers one reply to a requester identity.
type Sender interface {
	Send(ctx context.Context, identity, subject, body string) error
}

// Kind classifies a delivery failure.
type Kind int

const (
	// Transient failures are retried on a later tick.
	Transient Kind = iota
	// Permanent failures discard the request.
	Permanent
)

func (k Kind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "transient"
}

// SendError is a classified delivery failure.
type SendError struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s delivery failure: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s delivery failure: %s", e.Kind, e.Detail)
}

func (e *SendError) Unwrap() error { return e.Err }

// PermanentError wraps err as a permanent failure.
func PermanentError(detail string, err error) error {
	return &SendError{Kind: Permanent, Detail: detail, Err: err}
}

// TransientError wraps err as a transient failure.
func TransientError(detail string, err error) error {
	return &SendError{Kind: Transient, Detail: detail, Err: err}
}

// IsPermanent reports whether err is a permanent delivery failure. Errors
// that carry no classification are treated as transient.
func IsPermanent(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.Kind == Permanent
}
