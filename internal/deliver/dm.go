package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"github.com/kalambet/gettor/internal/identity"
)

const defaultDMTimeout = 30 * time.Second

// DMConfig configures a DMSender.
type DMConfig struct {
	APIURL     string // base URL of the direct-message API
	Token      string
	SOCKSProxy string // optional host:port of a SOCKS5 proxy (e.g. Tor)
	Timeout    time.Duration
}

// DMSender delivers replies as direct messages over an HTTP API.
type DMSender struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewDMSender creates a DMSender. When cfg.SOCKSProxy is set, every request
// is dialed through it.
func NewDMSender(cfg DMConfig) (*DMSender, error) {
	if cfg.APIURL == "" {
		return nil, errors.New("dm api url is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultDMTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.SOCKSProxy != "" {
		dialer, err := proxy.SOCKS5("tcp", cfg.SOCKSProxy, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("creating SOCKS5 dialer: %w", err)
		}
		transport.Proxy = nil
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	}

	return &DMSender{
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
	}, nil
}

type dmEvent struct {
	Event struct {
		Type          string `json:"type"`
		MessageCreate struct {
			Target struct {
				RecipientID string `json:"recipient_id"`
			} `json:"target"`
			MessageData struct {
				Text string `json:"text"`
			} `json:"message_data"`
		} `json:"message_create"`
	} `json:"event"`
}

// Send posts a direct message to the sender recorded in identity. DMs have
// no subject line, so subject is dropped.
func (d *DMSender) Send(ctx context.Context, ident, _ string, body string) error {
	id, err := identity.ParseDM(ident)
	if err != nil {
		return PermanentError("invalid dm identity", err)
	}

	var ev dmEvent
	ev.Event.Type = "message_create"
	ev.Event.MessageCreate.Target.RecipientID = id.SenderID
	ev.Event.MessageCreate.MessageData.Text = body
	payload, err := json.Marshal(ev)
	if err != nil {
		return PermanentError("encoding message", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/direct_messages/events/new", bytes.NewReader(payload))
	if err != nil {
		return PermanentError("creating request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return TransientError("executing request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	detail := fmt.Sprintf("unexpected status %d", resp.StatusCode)
	statusErr := errors.New(strings.TrimSpace(string(respBody)))
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound:
		// The recipient cannot receive messages from us (blocked us,
		// closed DMs, or no longer exists).
		return PermanentError(detail, statusErr)
	default:
		return TransientError(detail, statusErr)
	}
}
