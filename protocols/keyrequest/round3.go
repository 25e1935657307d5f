package keyrequest

import (
	"context"
	"fmt"

	"github.com/taurusgroup/confidential-identities/internal/round"
	"github.com/taurusgroup/confidential-identities/pkg/claim"
	"github.com/taurusgroup/confidential-identities/pkg/identity"
	"github.com/taurusgroup/confidential-identities/pkg/keys"
	"github.com/taurusgroup/confidential-identities/pkg/protocol"
)

// message3 is the responder's answer.
type message3 struct {
	Claim *claim.Signed
}

// RoundNumber implements round.Content.
func (message3) RoundNumber() round.Number { return 3 }

// round3 is the initiator's last round. It verifies the claim and registers the mapping if asked to.
type round3 struct {
	*round1

	signed *claim.Signed
	key    keys.PublicKey
}

// VerifyMessage implements round.Round.
//
// The claim must be signed by the owning key of the peer, and assert the requested key if one was given.
func (r *round3) VerifyMessage(msg round.Message) error {
	body, ok := msg.Content.(*message3)
	if !ok || body == nil {
		return round.ErrInvalidContent
	}
	if body.Claim == nil {
		return fmt.Errorf("%w: missing claim", protocol.ErrProtocolViolation)
	}
	c, err := claim.Verify(body.Claim, r.Peer().OwningKey)
	if err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrAuthentication, err)
	}
	if requested, ok := r.selector.(ByKnownKey); ok && c.Key != requested.Key {
		return fmt.Errorf("%w: claimed %s instead of %s", protocol.ErrProtocolViolation, c.Key.Short(), requested.Key.Short())
	}
	if c.Key.IsZero() {
		return fmt.Errorf("%w: empty key", protocol.ErrProtocolViolation)
	}
	return nil
}

// StoreMessage implements round.Round.
func (r *round3) StoreMessage(msg round.Message) error {
	body := msg.Content.(*message3)
	c, err := claim.Verify(body.Claim, r.Peer().OwningKey)
	if err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrAuthentication, err)
	}
	r.signed = body.Claim
	r.key = c.Key
	return nil
}

// Finalize implements round.Round.
func (r *round3) Finalize(ctx context.Context, _ chan<- *round.Message) (round.Session, error) {
	owner, ok, err := identity.WellKnown(ctx, r.registry, r.signed.Signer)
	if err != nil {
		return r, err
	}
	if !ok {
		return r.AbortRound(fmt.Errorf("%w: signer %s", protocol.ErrResolution, r.signed.Signer.Short()), r.PeerID()), nil
	}
	if !r.commit {
		if owner != r.Peer() {
			return r.AbortRound(fmt.Errorf("%w: signer %s is registered as %s", protocol.ErrAuthentication, r.signed.Signer.Short(), owner.ID), r.PeerID()), nil
		}
		return r.ResultRound(r.signed), nil
	}

	registered, err := r.registry.Register(ctx, r.key, owner)
	if err != nil {
		return r, err
	}
	if !registered {
		return r.AbortRound(fmt.Errorf("%w: %s", protocol.ErrRegistrationConflict, r.key.Short())), nil
	}
	return r.ResultRound(r.signed), nil
}

// MessageContent implements round.Round.
func (round3) MessageContent() round.Content { return &message3{} }

// Number implements round.Round.
func (round3) Number() round.Number { return 3 }
