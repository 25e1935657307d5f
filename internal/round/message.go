package round

import (
	"github.com/taurusgroup/confidential-identities/pkg/party"
)

// Content represents the message returned by a round during finalization.
type Content interface {
	// RoundNumber is the number of the round that consumes this content.
	RoundNumber() Number
}

type Message struct {
	From, To party.ID
	Content  Content
}
