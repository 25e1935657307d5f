package keysync

import (
	"context"
	"fmt"

	"github.com/taurusgroup/confidential-identities/internal/round"
	"github.com/taurusgroup/confidential-identities/pkg/identity"
	"github.com/taurusgroup/confidential-identities/pkg/keys"
	"github.com/taurusgroup/confidential-identities/pkg/protocol"
)

// message2 lists the candidate keys.
type message2 struct {
	Keys []keys.PublicKey
}

// RoundNumber implements round.Content.
func (message2) RoundNumber() round.Number { return 2 }

// round2 filters the candidates down to the keys the responder cannot resolve.
type round2 struct {
	*round.Helper
	registry identity.Registry
	prove    Prover

	candidates []keys.PublicKey
}

// VerifyMessage implements round.Round.
func (r *round2) VerifyMessage(msg round.Message) error {
	body, ok := msg.Content.(*message2)
	if !ok || body == nil {
		return round.ErrInvalidContent
	}
	for _, k := range body.Keys {
		if k.IsZero() {
			return fmt.Errorf("%w: empty key", protocol.ErrInvalidRequest)
		}
	}
	return nil
}

// StoreMessage implements round.Round.
func (r *round2) StoreMessage(msg round.Message) error {
	r.candidates = dedup(msg.Content.(*message2).Keys)
	return nil
}

// Finalize implements round.Round.
func (r *round2) Finalize(ctx context.Context, out chan<- *round.Message) (round.Session, error) {
	unknown := make([]keys.PublicKey, 0)
	for _, k := range r.candidates {
		_, ok, err := r.registry.Resolve(ctx, k)
		if err != nil {
			return r, err
		}
		if !ok {
			unknown = append(unknown, k)
		}
	}

	if err := r.SendMessage(out, &message3{Unknown: unknown}); err != nil {
		return r, err
	}

	pending := make(map[keys.PublicKey]struct{}, len(unknown))
	for _, k := range unknown {
		pending[k] = struct{}{}
	}
	return &round4{round2: r, unknown: pending}, nil
}

// MessageContent implements round.Round.
func (round2) MessageContent() round.Content { return &message2{} }

// Number implements round.Round.
func (round2) Number() round.Number { return 2 }
