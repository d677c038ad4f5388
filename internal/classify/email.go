package classify

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"github.com/kalambet/gettor/internal/identity"
	"github.com/kalambet/gettor/internal/model"
)

var (
	// ErrInvalidAddress is returned when the sender address is missing or malformed.
	ErrInvalidAddress = identity.ErrInvalidAddress

	// ErrDKIM is returned when signature verification is required and fails.
	ErrDKIM = errors.New("dkim verification failed")

	// ErrMalformed is returned when the message cannot be parsed at all.
	ErrMalformed = errors.New("malformed message")
)

// automatedLocals are mailbox names used by mail systems for bounces and
// autoresponses. Replying to them risks a mail loop.
var automatedLocals = map[string]bool{
	"postmaster":    true,
	"mailer-daemon": true,
	"mailer_daemon": true,
	"mail-daemon":   true,
	"noreply":       true,
	"no-reply":      true,
}

// Verifier checks the authenticity of a raw message (e.g. DKIM). The
// verification algorithm lives outside this package.
type Verifier interface {
	Verify(raw []byte) error
}

// Envelope is the part of an email message the classifier looks at.
type Envelope struct {
	From    string // normalized sender address
	To      string // normalized recipient address, empty if absent or unparsable
	Subject string
	Body    string
}

// Inbound is a classified message ready for flood control.
type Inbound struct {
	Identity string // reply address, stored with the request
	// Requester names the person behind the message; its hash is the rate
	// limit bucket. For email it equals Identity, for DMs it is the sender id.
	Requester string
	Channel   model.Channel
	Result
}

// EmailParser turns raw RFC 5322 messages into Inbound requests.
type EmailParser struct {
	classifier *Classifier
	service    string // the service's own address; may be empty
	verifier   Verifier
}

// EmailOption configures an EmailParser.
type EmailOption func(*EmailParser)

// WithServiceAddress sets the address the service receives mail on.
// Messages from it (or a subaddress of it) are dropped, and so are messages
// addressed to a different instance.
func WithServiceAddress(addr string) EmailOption {
	return func(p *EmailParser) {
		if n, err := identity.NormalizeAddress(addr); err == nil {
			p.service = strings.ToLower(n)
		}
	}
}

// WithVerifier requires every message to pass v before it is classified.
func WithVerifier(v Verifier) EmailOption {
	return func(p *EmailParser) {
		p.verifier = v
	}
}

// NewEmailParser creates an EmailParser backed by c.
func NewEmailParser(c *Classifier, opts ...EmailOption) *EmailParser {
	p := &EmailParser{classifier: c}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse classifies raw. ok is false when the message must be dropped
// silently (self-originated, autoresponder, or meant for another instance).
// A non-nil error means the input was rejected.
func (p *EmailParser) Parse(raw []byte) (in Inbound, ok bool, err error) {
	env, err := ParseEnvelope(raw)
	if err != nil {
		return Inbound{}, false, err
	}

	if p.isLoop(env.From) {
		return Inbound{}, false, nil
	}
	if p.service != "" && env.To != "" && !strings.EqualFold(env.To, p.service) {
		return Inbound{}, false, nil
	}

	if p.verifier != nil {
		if err := p.verifier.Verify(raw); err != nil {
			return Inbound{}, false, fmt.Errorf("%w: %v", ErrDKIM, err)
		}
	}

	return Inbound{
		Identity:  env.From,
		Requester: env.From,
		Channel:   model.ChannelEmail,
		Result:    p.classifier.Classify(env.Subject, env.Body),
	}, true, nil
}

// isLoop reports whether from is the service itself, a subaddress of it,
// or a mail-system sender.
func (p *EmailParser) isLoop(from string) bool {
	local, domain := identity.SplitAddress(strings.ToLower(from))
	if automatedLocals[local] {
		return true
	}
	if p.service == "" {
		return false
	}
	svcLocal, svcDomain := identity.SplitAddress(p.service)
	return local == svcLocal && domain == svcDomain
}

// ParseEnvelope extracts the normalized sender and recipient, the decoded
// subject, and the first text/plain body of raw.
func ParseEnvelope(raw []byte) (Envelope, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	from, err := identity.NormalizeAddress(msg.Header.Get("From"))
	if err != nil {
		return Envelope{}, err
	}
	env := Envelope{From: from}

	if to, err := identity.NormalizeAddress(firstAddress(msg.Header.Get("To"))); err == nil {
		env.To = strings.ToLower(to)
	}

	dec := new(mime.WordDecoder)
	subject := msg.Header.Get("Subject")
	if decoded, err := dec.DecodeHeader(subject); err == nil {
		subject = decoded
	}
	env.Subject = subject

	body, err := textBody(mail.Header(msg.Header), msg.Body)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: body: %v", ErrMalformed, err)
	}
	env.Body = body
	return env, nil
}

func firstAddress(list string) string {
	addrs, err := mail.ParseAddressList(list)
	if err != nil || len(addrs) == 0 {
		return list
	}
	return addrs[0].String()
}

// textBody returns the decoded text/plain content of a message or part.
// For multipart content the first text/plain part wins.
func textBody(h mail.Header, r io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(r, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return "", nil
			}
			if err != nil {
				return "", err
			}
			body, err := textBody(mail.Header(part.Header), part)
			if err != nil {
				return "", err
			}
			if body != "" {
				return body, nil
			}
		}
	}
	if mediaType != "text/plain" {
		return "", nil
	}

	switch strings.ToLower(h.Get("Content-Transfer-Encoding")) {
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(string(b), "\r\n", "\n"), nil
}
