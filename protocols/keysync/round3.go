package keysync

import (
	"context"
	"fmt"

	"github.com/taurusgroup/confidential-identities/internal/round"
	"github.com/taurusgroup/confidential-identities/pkg/identity"
	"github.com/taurusgroup/confidential-identities/pkg/keys"
	"github.com/taurusgroup/confidential-identities/pkg/protocol"
)

// message3 lists the keys the responder could not resolve.
type message3 struct {
	Unknown []keys.PublicKey
}

// RoundNumber implements round.Content.
func (message3) RoundNumber() round.Number { return 3 }

// round3 resolves the keys the responder asked about.
type round3 struct {
	*round1

	sent    map[keys.PublicKey]struct{}
	unknown []keys.PublicKey
}

// VerifyMessage implements round.Round.
//
// The responder may only ask about keys it was sent, each at most once.
func (r *round3) VerifyMessage(msg round.Message) error {
	body, ok := msg.Content.(*message3)
	if !ok || body == nil {
		return round.ErrInvalidContent
	}
	seen := make(map[keys.PublicKey]struct{}, len(body.Unknown))
	for _, k := range body.Unknown {
		if _, ok := r.sent[k]; !ok {
			return fmt.Errorf("%w: %s was not sent", protocol.ErrProtocolViolation, k.Short())
		}
		if _, ok := seen[k]; ok {
			return fmt.Errorf("%w: %s listed twice", protocol.ErrProtocolViolation, k.Short())
		}
		seen[k] = struct{}{}
	}
	return nil
}

// StoreMessage implements round.Round.
func (r *round3) StoreMessage(msg round.Message) error {
	r.unknown = msg.Content.(*message3).Unknown
	return nil
}

// Finalize implements round.Round.
//
// Keys this party cannot resolve either are left out.
func (r *round3) Finalize(ctx context.Context, out chan<- *round.Message) (round.Session, error) {
	resolved := make([]identity.Mapping, 0, len(r.unknown))
	for _, k := range r.unknown {
		owner, ok, err := r.registry.Resolve(ctx, k)
		if err != nil {
			return r, err
		}
		if ok {
			resolved = append(resolved, identity.Mapping{Key: k, Owner: owner})
		}
	}

	if err := r.SendMessage(out, &message4{Mappings: resolved}); err != nil {
		return r, err
	}
	return r.ResultRound(resolved), nil
}

// MessageContent implements round.Round.
func (round3) MessageContent() round.Content { return &message3{} }

// Number implements round.Round.
func (round3) Number() round.Number { return 3 }
