// Package keyrequest implements the two party protocol in which an initiator asks a responder
// for a confidential key, and binds it to the responder's well-known identity once the
// responder has proven ownership with a signed claim.
//
// The initiator sends the request in round 1, the responder answers with a claim in round 2,
// and the initiator verifies and registers it in round 3. StartVerify runs the same exchange
// for a key the responder is asserted to own, without registering it.
package keyrequest

import (
	"errors"
	"fmt"

	"github.com/taurusgroup/confidential-identities/internal/round"
	"github.com/taurusgroup/confidential-identities/pkg/identity"
	"github.com/taurusgroup/confidential-identities/pkg/keys"
	"github.com/taurusgroup/confidential-identities/pkg/party"
	"github.com/taurusgroup/confidential-identities/pkg/protocol"
)

const (
	// ProtocolID identifies the key request protocol on the wire.
	ProtocolID = "cid/keyrequest"
	// FinalRoundNumber is the last round of the protocol.
	FinalRoundNumber round.Number = 3
)

// StartRequest starts the initiator side.
//
// The result of the protocol is the verified *claim.Signed, whose key is then mapped to peer in reg.
func StartRequest(self, peer party.Party, selector Selector, reg identity.Registry) protocol.StartFunc {
	return func(sessionID []byte) (round.Session, error) {
		if err := validateSelector(selector); err != nil {
			return nil, fmt.Errorf("keyrequest.StartRequest: %w", err)
		}
		if reg == nil {
			return nil, errors.New("keyrequest.StartRequest: no registry")
		}
		helper, err := newSession(self, peer, sessionID)
		if err != nil {
			return nil, fmt.Errorf("keyrequest.StartRequest: %w", err)
		}
		return &round1{Helper: helper, selector: selector, registry: reg, commit: true}, nil
	}
}

// StartVerify starts the initiator side of a request for a key peer is asserted to own.
// It checks the claim like StartRequest, and that peer is the well-known party registered for
// the signer, but registers nothing: the caller decides whether to commit the mapping.
//
// The result of the protocol is the verified *claim.Signed.
func StartVerify(self, peer party.Party, key keys.PublicKey, reg identity.Registry) protocol.StartFunc {
	return func(sessionID []byte) (round.Session, error) {
		selector := ByKnownKey{Key: key}
		if err := validateSelector(selector); err != nil {
			return nil, fmt.Errorf("keyrequest.StartVerify: %w", err)
		}
		if reg == nil {
			return nil, errors.New("keyrequest.StartVerify: no registry")
		}
		helper, err := newSession(self, peer, sessionID)
		if err != nil {
			return nil, fmt.Errorf("keyrequest.StartVerify: %w", err)
		}
		return &round1{Helper: helper, selector: selector, registry: reg}, nil
	}
}

// StartRespond starts the responder side.
// The claim is signed with the identity key of km, which must be the owning key of self.
//
// The result of the protocol is the *claim.Signed that was sent.
func StartRespond(self, peer party.Party, km keys.Manager) protocol.StartFunc {
	return func(sessionID []byte) (round.Session, error) {
		if km == nil {
			return nil, errors.New("keyrequest.StartRespond: no key manager")
		}
		if km.Identity() != self.OwningKey {
			return nil, fmt.Errorf("keyrequest.StartRespond: identity key %s is not the owning key of %s", km.Identity().Short(), self.ID)
		}
		helper, err := newSession(self, peer, sessionID)
		if err != nil {
			return nil, fmt.Errorf("keyrequest.StartRespond: %w", err)
		}
		return &round2{Helper: helper, keys: km}, nil
	}
}

func newSession(self, peer party.Party, sessionID []byte) (*round.Helper, error) {
	info := round.Info{
		ProtocolID:       ProtocolID,
		FinalRoundNumber: FinalRoundNumber,
		Self:             self,
		Peer:             peer,
	}
	return round.NewSession(info, sessionID)
}
