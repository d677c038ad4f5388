package deliver

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeRelay is a minimal SMTP server that answers RCPT with rcptReply.
type fakeRelay struct {
	ln        net.Listener
	rcptReply string

	mu   sync.Mutex
	data string
	rcpt string
}

func startRelay(t *testing.T, rcptReply string) *fakeRelay {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	r := &fakeRelay{ln: ln, rcptReply: rcptReply}
	t.Cleanup(func() { ln.Close() })
	go r.serve()
	return r
}

func (r *fakeRelay) serve() {
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			return
		}
		go r.handle(conn)
	}
}

func (r *fakeRelay) handle(conn net.Conn) {
	defer conn.Close()
	rd := bufio.NewReader(conn)
	reply := func(s string) { conn.Write([]byte(s + "\r\n")) }

	reply("220 fake ESMTP")
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250 fake")
		case strings.HasPrefix(cmd, "MAIL FROM"):
			reply("250 ok")
		case strings.HasPrefix(cmd, "RCPT TO"):
			r.mu.Lock()
			r.rcpt = strings.TrimSpace(line)
			r.mu.Unlock()
			reply(r.rcptReply)
		case cmd == "DATA":
			reply("354 go ahead")
			var b strings.Builder
			for {
				l, err := rd.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				b.WriteString(l)
			}
			r.mu.Lock()
			r.data = b.String()
			r.mu.Unlock()
			reply("250 queued")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 not implemented")
		}
	}
}

func (r *fakeRelay) sender(t *testing.T) *SMTPSender {
	t.Helper()
	host, port, _ := net.SplitHostPort(r.ln.Addr().String())
	p, _ := strconv.Atoi(port)
	s, err := NewSMTPSender(SMTPConfig{Host: host, Port: p, From: "gettor@torproject.org", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewSMTPSender: %v", err)
	}
	return s
}

func TestSMTPSendDelivers(t *testing.T) {
	relay := startRelay(t, "250 ok")
	s := relay.sender(t)

	err := s.Send(context.Background(), "alice@example.net", "[GetTor] Help Email", "hello\n\twindows\n")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	relay.mu.Lock()
	defer relay.mu.Unlock()
	if !strings.Contains(relay.rcpt, "<alice@example.net>") {
		t.Errorf("RCPT = %q", relay.rcpt)
	}
	for _, want := range []string{
		"From: gettor@torproject.org\r\n",
		"To: alice@example.net\r\n",
		"Subject: [GetTor] Help Email\r\n",
		"Message-ID: <",
		"@torproject.org>\r\n",
		"hello\r\n",
	} {
		if !strings.Contains(relay.data, want) {
			t.Errorf("message missing %q:\n%s", want, relay.data)
		}
	}
}

func TestSMTPSendClassifiesReplies(t *testing.T) {
	tests := []struct {
		reply     string
		permanent bool
	}{
		{"501 5.1.3 bad recipient address syntax", true},
		{"550 5.1.1 user unknown", true},
		{"421 4.7.0 try again later", false},
		{"450 4.2.1 mailbox busy", false},
	}
	for _, tt := range tests {
		t.Run(tt.reply[:3], func(t *testing.T) {
			relay := startRelay(t, tt.reply)
			err := relay.sender(t).Send(context.Background(), "alice@example.net", "s", "b")
			if err == nil {
				t.Fatal("Send succeeded, want error")
			}
			if got := IsPermanent(err); got != tt.permanent {
				t.Errorf("IsPermanent = %v, want %v (err %v)", got, tt.permanent, err)
			}
		})
	}
}

func TestSMTPSendInvalidRecipient(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: 1, From: "gettor@torproject.org"})
	if err != nil {
		t.Fatalf("NewSMTPSender: %v", err)
	}
	err = s.Send(context.Background(), "not an address", "s", "b")
	if !IsPermanent(err) {
		t.Errorf("error = %v, want permanent", err)
	}
}

func TestSMTPSendUnreachableRelayIsTransient(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	s, err := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: addr.Port, From: "gettor@torproject.org", Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewSMTPSender: %v", err)
	}
	err = s.Send(context.Background(), "alice@example.net", "s", "b")
	if err == nil || IsPermanent(err) {
		t.Errorf("error = %v, want transient", err)
	}
}

func TestNewSMTPSenderRejectsBadFrom(t *testing.T) {
	if _, err := NewSMTPSender(SMTPConfig{From: "nobody"}); err == nil {
		t.Error("expected error for invalid sender address")
	}
}
