package round

import (
	"github.com/taurusgroup/confidential-identities/pkg/party"
)

// Session represents the current execution of a two-party round-based protocol.
// It embeds the current round, and provides additional information about the execution.
type Session interface {
	// Round is the current round being executed.
	Round
	// ProtocolID is an identifier for this protocol.
	ProtocolID() string
	// FinalRoundNumber is the number of rounds before the output round.
	FinalRoundNumber() Number
	// SSID the unique identifier for this protocol execution.
	SSID() []byte
	// SelfID is this party's ID.
	SelfID() party.ID
	// PeerID is the ID of the counterparty.
	PeerID() party.ID
	// Self is this party.
	Self() party.Party
	// Peer is the counterparty.
	Peer() party.Party
	// PartyIDs is a sorted slice of both participants.
	PartyIDs() party.IDSlice
}
