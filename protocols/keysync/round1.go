package keysync

import (
	"context"

	"github.com/taurusgroup/confidential-identities/internal/round"
	"github.com/taurusgroup/confidential-identities/pkg/identity"
	"github.com/taurusgroup/confidential-identities/pkg/keys"
)

// round1 sends the candidate keys.
type round1 struct {
	*round.Helper
	candidates []keys.PublicKey
	registry   identity.Registry
}

// VerifyMessage implements round.Round.
func (r *round1) VerifyMessage(round.Message) error { return nil }

// StoreMessage implements round.Round.
func (r *round1) StoreMessage(round.Message) error { return nil }

// Finalize implements round.Round.
func (r *round1) Finalize(_ context.Context, out chan<- *round.Message) (round.Session, error) {
	if err := r.SendMessage(out, &message2{Keys: r.candidates}); err != nil {
		return r, err
	}
	sent := make(map[keys.PublicKey]struct{}, len(r.candidates))
	for _, k := range r.candidates {
		sent[k] = struct{}{}
	}
	return &round3{round1: r, sent: sent}, nil
}

// MessageContent implements round.Round.
func (round1) MessageContent() round.Content { return nil }

// Number implements round.Round.
func (round1) Number() round.Number { return 1 }
