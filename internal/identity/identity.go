package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/net/idna"
)

// ErrInvalidAddress is returned when an email address cannot be parsed or
// normalized.
var ErrInvalidAddress = errors.New("invalid email address")

// Hash returns the hex SHA-256 digest of id. It is the only form of a
// requester identity that may appear in logs or be used for rate limiting.
func Hash(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

// NormalizeAddress turns a From/To header value such as
// `"Alice" <alice@Example.NET>` into `alice@example.net`. The local part is
// kept as sent; the domain is lowercased and converted to its IDNA ASCII form.
func NormalizeAddress(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidAddress
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	at := strings.LastIndex(addr.Address, "@")
	if at <= 0 || at == len(addr.Address)-1 {
		return "", ErrInvalidAddress
	}
	local, domain := addr.Address[:at], addr.Address[at+1:]

	ascii, err := idna.Lookup.ToASCII(strings.ToLower(domain))
	if err != nil {
		return "", fmt.Errorf("%w: domain: %v", ErrInvalidAddress, err)
	}
	if !strings.Contains(ascii, ".") {
		return "", fmt.Errorf("%w: domain %q has no dot", ErrInvalidAddress, ascii)
	}
	return local + "@" + ascii, nil
}

// SplitAddress returns the local part (without any +subaddress) and domain
// of a normalized address.
func SplitAddress(addr string) (local, domain string) {
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return addr, ""
	}
	local, domain = addr[:at], addr[at+1:]
	if plus := strings.IndexByte(local, '+'); plus >= 0 {
		local = local[:plus]
	}
	return local, domain
}

// DM identifies a direct message and its sender. Its serialized form is
// stored as the request identity and parsed back at delivery time.
type DM struct {
	MessageID string `json:"id"`
	SenderID  string `json:"sender_id"`
}

// String returns the stable serialized form of d.
func (d DM) String() string {
	b, _ := json.Marshal(d)
	return string(b)
}

// ParseDM parses an identity produced by DM.String.
func ParseDM(s string) (DM, error) {
	var d DM
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return DM{}, fmt.Errorf("parsing dm identity: %w", err)
	}
	if d.SenderID == "" {
		return DM{}, errors.New("parsing dm identity: missing sender_id")
	}
	return d, nil
}
