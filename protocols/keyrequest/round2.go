package keyrequest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/taurusgroup/confidential-identities/internal/round"
	"github.com/taurusgroup/confidential-identities/pkg/claim"
	"github.com/taurusgroup/confidential-identities/pkg/keys"
	"github.com/taurusgroup/confidential-identities/pkg/protocol"
)

// message2 is the request. At most one of Account and Key is set, as given by Kind.
type message2 struct {
	Kind    Kind
	Account *uuid.UUID      `cbor:",omitempty"`
	Key     *keys.PublicKey `cbor:",omitempty"`
}

// RoundNumber implements round.Content.
func (message2) RoundNumber() round.Number { return 2 }

// round2 is the responder's only round. It picks the key and signs a claim for it.
type round2 struct {
	*round.Helper
	keys keys.Manager

	selector Selector
}

// VerifyMessage implements round.Round.
func (r *round2) VerifyMessage(msg round.Message) error {
	body, ok := msg.Content.(*message2)
	if !ok || body == nil {
		return round.ErrInvalidContent
	}
	_, err := body.selector()
	return err
}

// StoreMessage implements round.Round.
func (r *round2) StoreMessage(msg round.Message) error {
	s, err := msg.Content.(*message2).selector()
	if err != nil {
		return err
	}
	r.selector = s
	return nil
}

// Finalize implements round.Round.
//
// No mapping is registered on this side.
func (r *round2) Finalize(ctx context.Context, out chan<- *round.Message) (round.Session, error) {
	key, err := r.selectKey(ctx)
	if err != nil {
		return r, err
	}

	signed, err := claim.Sign(claim.Claim{Key: key}, keys.SignerFor(ctx, r.keys, r.Self().OwningKey))
	if err != nil {
		return r, err
	}

	if err = r.SendMessage(out, &message3{Claim: signed}); err != nil {
		return r, err
	}
	return r.ResultRound(signed), nil
}

func (r *round2) selectKey(ctx context.Context) (keys.PublicKey, error) {
	switch s := r.selector.(type) {
	case ByAccount:
		return r.keys.GenerateKey(ctx, &s.Account)
	case ByKnownKey:
		owned, err := r.keys.OwnsKey(ctx, s.Key)
		if err != nil {
			return keys.PublicKey{}, err
		}
		if !owned {
			return keys.PublicKey{}, fmt.Errorf("%w: %s", protocol.ErrUnknownKey, s.Key.Short())
		}
		return s.Key, nil
	default:
		return r.keys.GenerateKey(ctx, nil)
	}
}

// MessageContent implements round.Round.
func (round2) MessageContent() round.Content { return &message2{} }

// Number implements round.Round.
func (round2) Number() round.Number { return 2 }
