package classify

import (
	"errors"
	"strings"

	"github.com/kalambet/gettor/internal/identity"
	"github.com/kalambet/gettor/internal/model"
)

// ErrMissingSender is returned for a direct message without a sender id.
var ErrMissingSender = errors.New("direct message has no sender id")

// DirectMessage is an inbound message from the DM channel.
type DirectMessage struct {
	ID       string `json:"id"`
	SenderID string `json:"sender_id"`
	Text     string `json:"text"`
}

// ParseDM classifies a direct message. DMs have no subject, so only the
// body pass runs. The identity is the serialized (message id, sender id)
// pair so the reply can be addressed later.
func (c *Classifier) ParseDM(m DirectMessage) (Inbound, error) {
	if strings.TrimSpace(m.SenderID) == "" {
		return Inbound{}, ErrMissingSender
	}
	id := identity.DM{MessageID: m.ID, SenderID: m.SenderID}
	return Inbound{
		Identity:  id.String(),
		Requester: m.SenderID,
		Channel:   model.ChannelDM,
		Result:    c.Classify("", m.Text),
	}, nil
}
