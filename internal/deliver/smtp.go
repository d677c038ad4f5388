package deliver

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/gettor/internal/identity"
)

const defaultSMTPTimeout = 30 * time.Second

// SMTPConfig configures an SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string // envelope and header sender
	Timeout  time.Duration
}

// SMTPSender delivers replies through an SMTP relay. STARTTLS is used when
// the server offers it.
type SMTPSender struct {
	cfg    SMTPConfig
	domain string
	now    func() time.Time
}

// NewSMTPSender creates an SMTPSender.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	from, err := identity.NormalizeAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("sender address: %w", err)
	}
	cfg.From = from
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	_, domain := identity.SplitAddress(from)
	return &SMTPSender{cfg: cfg, domain: domain, now: time.Now}, nil
}

// Send delivers one message to the address in identity. A malformed
// address or a 5xx reply is permanent; 4xx replies and network errors are
// transient.
func (s *SMTPSender) Send(ctx context.Context, ident, subject, body string) error {
	to, err := identity.NormalizeAddress(ident)
	if err != nil {
		return PermanentError("invalid recipient", err)
	}

	msg, err := s.buildMessage(to, subject, body)
	if err != nil {
		return PermanentError("building message", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return TransientError("connecting to relay", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return relayError("greeting", err)
	}
	defer c.Close()

	return s.transmit(c, to, msg)
}

func (s *SMTPSender) transmit(c *smtp.Client, to string, msg []byte) error {
	if err := c.Hello(s.domain); err != nil {
		return relayError("HELO", err)
	}
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return relayError("STARTTLS", err)
		}
	}
	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return relayError("AUTH", err)
		}
	}
	if err := c.Mail(s.cfg.From); err != nil {
		return relayError("MAIL FROM", err)
	}
	if err := c.Rcpt(to); err != nil {
		return classifySMTP("RCPT TO", err)
	}
	w, err := c.Data()
	if err != nil {
		return classifySMTP("DATA", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return TransientError("writing message", err)
	}
	if err := w.Close(); err != nil {
		return classifySMTP("end of DATA", err)
	}
	// The message is accepted at this point; a failed QUIT does not undo that.
	_ = c.Quit()
	return nil
}

func (s *SMTPSender) buildMessage(to, subject, body string) ([]byte, error) {
	var buf bytes.Buffer
	headers := []struct{ k, v string }{
		{"From", s.cfg.From},
		{"To", to},
		{"Subject", mime.QEncoding.Encode("utf-8", subject)},
		{"Date", s.now().UTC().Format(time.RFC1123Z)},
		{"Message-ID", "<" + uuid.New().String() + "@" + s.domain + ">"},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/plain; charset=utf-8"},
		{"Content-Transfer-Encoding", "quoted-printable"},
		{"Auto-Submitted", "auto-replied"},
	}
	for _, h := range headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", h.k, h.v)
	}
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(body)); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// relayError reports a failure talking to the relay itself. Those depend
// on configuration or relay health, not on the request, so they never
// discard it.
func relayError(stage string, err error) error {
	return TransientError(stage, err)
}

// classifySMTP maps a reply to the recipient or the message: 5xx is
// permanent, anything else transient.
func classifySMTP(stage string, err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		detail := fmt.Sprintf("%s rejected with %d", stage, tpErr.Code)
		if tpErr.Code >= 500 && tpErr.Code < 600 {
			return PermanentError(detail, err)
		}
		return TransientError(detail, err)
	}
	return TransientError(stage, err)
}
