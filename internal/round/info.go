package round

import "github.com/taurusgroup/confidential-identities/pkg/party"

type Info struct {
	// ProtocolID is an identifier for this protocol
	ProtocolID string
	// FinalRoundNumber is the number of rounds before the output round.
	FinalRoundNumber Number
	// Self is this party.
	Self party.Party
	// Peer is the counterparty of the session, as authenticated by the transport.
	Peer party.Party
}
