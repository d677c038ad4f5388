package classify

import (
	"errors"
	"strings"
	"testing"

	"github.com/kalambet/gettor/internal/model"
)

const service = "gettor@torproject.org"

func rawEmail(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	if to != "" {
		b.WriteString("To: " + to + "\r\n")
	}
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

type stubVerifier struct{ err error }

func (v stubVerifier) Verify([]byte) error { return v.err }

func TestEmailParserClassifies(t *testing.T) {
	p := NewEmailParser(newTestClassifier(), WithServiceAddress(service))
	in, ok, err := p.Parse(rawEmail(`"silvia [hiro]" <hiro@torproject.org>`, service, "", "osx es"))
	if err != nil || !ok {
		t.Fatalf("Parse() ok=%v err=%v", ok, err)
	}
	if in.Identity != "hiro@torproject.org" {
		t.Errorf("Identity = %q", in.Identity)
	}
	if in.Channel != model.ChannelEmail {
		t.Errorf("Channel = %q", in.Channel)
	}
	if in.Command != model.CommandLinks || in.Platform != model.PlatformOSX || in.Locale != "es-ES" {
		t.Errorf("Result = %+v", in.Result)
	}
}

func TestEmailParserEmptyBodyIsHelp(t *testing.T) {
	p := NewEmailParser(newTestClassifier(), WithServiceAddress(service))
	in, ok, err := p.Parse(rawEmail("hiro@torproject.org", service, "", ""))
	if err != nil || !ok {
		t.Fatalf("Parse() ok=%v err=%v", ok, err)
	}
	if in.Command != model.CommandHelp || in.Locale != "en-US" {
		t.Errorf("Result = %+v", in.Result)
	}
}

func TestEmailParserDropsLoops(t *testing.T) {
	p := NewEmailParser(newTestClassifier(), WithServiceAddress(service))
	senders := []string{
		"MAILER-DAEMON@torproject.org",
		"postmaster@torproject.org",
		"gettor@torproject.org",
		"gettor+en@torproject.org",
	}
	for _, from := range senders {
		_, ok, err := p.Parse(rawEmail(from, service, "", "windows"))
		if err != nil {
			t.Errorf("Parse(from %s) error: %v", from, err)
		}
		if ok {
			t.Errorf("Parse(from %s) ok = true, want dropped", from)
		}
	}
}

func TestEmailParserDropsOtherInstance(t *testing.T) {
	p := NewEmailParser(newTestClassifier(), WithServiceAddress(service))
	_, ok, err := p.Parse(rawEmail("hiro@torproject.org", "gettor@example.org", "", "linux"))
	if err != nil || ok {
		t.Errorf("Parse() ok=%v err=%v, want silently dropped", ok, err)
	}
}

func TestEmailParserRejectsBadSender(t *testing.T) {
	p := NewEmailParser(newTestClassifier())
	for _, from := range []string{"", "not an address", "root@localhost"} {
		_, _, err := p.Parse(rawEmail(from, service, "", "linux"))
		if !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("Parse(from %q) error = %v, want ErrInvalidAddress", from, err)
		}
	}
}

func TestEmailParserVerifier(t *testing.T) {
	raw := rawEmail("hiro@torproject.org", service, "", "linux")

	p := NewEmailParser(newTestClassifier(), WithVerifier(stubVerifier{err: errors.New("no signature")}))
	if _, _, err := p.Parse(raw); !errors.Is(err, ErrDKIM) {
		t.Errorf("error = %v, want ErrDKIM", err)
	}

	p = NewEmailParser(newTestClassifier(), WithVerifier(stubVerifier{}))
	if _, ok, err := p.Parse(raw); err != nil || !ok {
		t.Errorf("Parse() ok=%v err=%v", ok, err)
	}
}

func TestParseEnvelopeMultipart(t *testing.T) {
	raw := "From: Alice <alice@Example.NET>\r\n" +
		"To: gettor@torproject.org\r\n" +
		"Subject: =?utf-8?q?Re=3A_help?=\r\n" +
		"Content-Type: multipart/alternative; boundary=\"b1\"\r\n" +
		"\r\n" +
		"--b1\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>windows</p>\r\n" +
		"--b1\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"\r\n" +
		"linux =\r\nfa\r\n" +
		"--b1--\r\n"

	env, err := ParseEnvelope([]byte(raw))
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if env.From != "alice@example.net" {
		t.Errorf("From = %q", env.From)
	}
	if env.To != "gettor@torproject.org" {
		t.Errorf("To = %q", env.To)
	}
	if env.Subject != "Re: help" {
		t.Errorf("Subject = %q", env.Subject)
	}
	if strings.TrimSpace(env.Body) != "linux fa" {
		t.Errorf("Body = %q", env.Body)
	}
}

func TestParseEnvelopeMalformed(t *testing.T) {
	if _, err := ParseEnvelope([]byte("no headers here")); err == nil {
		t.Error("expected error for message without headers")
	}
}

func TestAuthResultsVerifier(t *testing.T) {
	const mx = "mx.torproject.org"
	withResults := func(h string) []byte {
		return []byte("Authentication-Results: " + h + "\r\n" + string(rawEmail("hiro@torproject.org", service, "", "linux")))
	}

	tests := []struct {
		name   string
		raw    []byte
		servID string
		ok     bool
	}{
		{"pass", withResults("mx.torproject.org; spf=pass smtp.mailfrom=torproject.org; dkim=pass header.d=torproject.org"), mx, true},
		{"fail", withResults("mx.torproject.org; dkim=fail header.d=torproject.org"), mx, false},
		{"none", withResults("mx.torproject.org; none"), mx, false},
		{"missing header", rawEmail("hiro@torproject.org", service, "", "linux"), mx, false},
		{"server id with version", withResults("mx.torproject.org 1; dkim=pass"), mx, true},
		{"untrusted server", withResults("evil.example; dkim=pass"), mx, false},
		{"no trusted server configured", withResults("evil.example; dkim=pass"), "", false},
		{"forged header below the real one", withResults("mx.torproject.org; dkim=fail\r\nAuthentication-Results: mx.torproject.org; dkim=pass"), mx, false},
		{"real header below a forged one from elsewhere", withResults("evil.example; dkim=fail\r\nAuthentication-Results: mx.torproject.org; dkim=pass"), mx, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AuthResultsVerifier{AuthServID: tt.servID}.Verify(tt.raw)
			if (err == nil) != tt.ok {
				t.Errorf("Verify() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}
