package round

import (
	"errors"
	"fmt"

	"github.com/taurusgroup/confidential-identities/internal/hash"
	"github.com/taurusgroup/confidential-identities/pkg/party"
)

// Helper implements Session without Round, and can therefore be embedded in the first round of a protocol
// in order to satisfy the Session interface.
type Helper struct {
	info Info

	// partyIDs is the sorted pair {Self.ID, Peer.ID}.
	partyIDs party.IDSlice

	// ssid the unique identifier for this protocol execution
	ssid []byte
}

// NewSession creates a new *Helper which can be embedded in the first Round,
// so that the full struct implements Session.
// `sessionID` is the identifier of the transport session both parties share.
//
// The SSID binds the session ID, the protocol and both party IDs, but not the owning keys:
// a mismatch between the key a party expects and the one its peer holds is detected
// by the protocol itself.
func NewSession(info Info, sessionID []byte) (*Helper, error) {
	if err := info.Self.Validate(); err != nil {
		return nil, fmt.Errorf("session: self: %w", err)
	}
	if err := info.Peer.Validate(); err != nil {
		return nil, fmt.Errorf("session: peer: %w", err)
	}
	partyIDs := party.NewIDSlice([]party.ID{info.Self.ID, info.Peer.ID})
	if !partyIDs.Valid() {
		return nil, errors.New("session: self and peer have the same ID")
	}
	if info.Self.OwningKey == info.Peer.OwningKey {
		return nil, errors.New("session: self and peer have the same owning key")
	}

	h := hash.New()
	if sessionID != nil {
		if err := h.WriteAny(hash.BytesWithDomain{
			TheDomain: "Session ID",
			Bytes:     sessionID,
		}); err != nil {
			return nil, fmt.Errorf("session: %w", err)
		}
	}
	if err := h.WriteAny(hash.BytesWithDomain{
		TheDomain: "Protocol ID",
		Bytes:     []byte(info.ProtocolID),
	}); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if err := h.WriteAny(partyIDs); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	return &Helper{
		info:     info,
		partyIDs: partyIDs,
		ssid:     h.Sum(),
	}, nil
}

// SendMessage is a convenience method for safely sending content to the peer.
// Returns an error if the message failed to send over out channel.
// `out` is expected to be a buffered channel with enough capacity to store all messages.
func (h *Helper) SendMessage(out chan<- *Message, content Content) error {
	msg := &Message{
		From:    h.info.Self.ID,
		To:      h.info.Peer.ID,
		Content: content,
	}
	select {
	case out <- msg:
		return nil
	default:
		return ErrOutChanFull
	}
}

// ResultRound returns a round that contains only the result of the protocol.
// This indicates to the user that the protocol is finished.
func (h *Helper) ResultRound(result interface{}) Session {
	return &Output{
		Helper: h,
		Result: result,
	}
}

// AbortRound returns a round that contains only the culprits that were able to be identified during
// a faulty execution of the protocol. The error returned by Round.Finalize() in this case should still be nil.
func (h *Helper) AbortRound(err error, culprits ...party.ID) Session {
	return &Abort{
		Helper:   h,
		Culprits: culprits,
		Err:      err,
	}
}

// ProtocolID is an identifier for this protocol.
func (h *Helper) ProtocolID() string { return h.info.ProtocolID }

// FinalRoundNumber is the number of rounds before the output round.
func (h *Helper) FinalRoundNumber() Number { return h.info.FinalRoundNumber }

// SSID the unique identifier for this protocol execution.
func (h *Helper) SSID() []byte { return h.ssid }

// SelfID is this party's ID.
func (h *Helper) SelfID() party.ID { return h.info.Self.ID }

// PeerID is the ID of the counterparty.
func (h *Helper) PeerID() party.ID { return h.info.Peer.ID }

// Self is this party.
func (h *Helper) Self() party.Party { return h.info.Self }

// Peer is the counterparty.
func (h *Helper) Peer() party.Party { return h.info.Peer }

// PartyIDs is a sorted slice of both participants.
func (h *Helper) PartyIDs() party.IDSlice { return h.partyIDs }
