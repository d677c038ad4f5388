package classify

import (
	"bytes"
	"errors"
	"net/mail"
	"strings"
)

// AuthResultsVerifier trusts the DKIM verdict the receiving MTA recorded in
// an Authentication-Results header (RFC 8601) instead of re-verifying the
// signature.
type AuthResultsVerifier struct {
	// AuthServID is the server id the receiving MTA stamps on its header.
	// Only the topmost header carrying it is read; any other header may
	// have been written by the sender.
	AuthServID string
}

// Verify returns nil if the trusted Authentication-Results header reports
// dkim=pass.
func (v AuthResultsVerifier) Verify(raw []byte) error {
	if v.AuthServID == "" {
		return errors.New("no trusted authentication server id")
	}
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	// Headers keep their order in the message; the MTA prepends its own.
	for _, h := range msg.Header["Authentication-Results"] {
		servID, results, _ := strings.Cut(h, ";")
		id := strings.Fields(servID)
		if len(id) == 0 || !strings.EqualFold(id[0], v.AuthServID) {
			continue
		}
		for _, res := range strings.Split(results, ";") {
			method := strings.Fields(strings.TrimSpace(res))
			if len(method) > 0 && strings.EqualFold(method[0], "dkim=pass") {
				return nil
			}
		}
		return errors.New("no passing dkim result")
	}
	return errors.New("no Authentication-Results header from " + v.AuthServID)
}
