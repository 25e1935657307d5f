package keyrequest

import (
	"context"

	"github.com/taurusgroup/confidential-identities/internal/round"
	"github.com/taurusgroup/confidential-identities/pkg/identity"
)

// round1 is the initiator's first round. It sends the request.
type round1 struct {
	*round.Helper
	selector Selector
	registry identity.Registry
	// commit registers the claimed key once verified.
	commit bool
}

// VerifyMessage implements round.Round.
func (r *round1) VerifyMessage(round.Message) error { return nil }

// StoreMessage implements round.Round.
func (r *round1) StoreMessage(round.Message) error { return nil }

// Finalize implements round.Round.
func (r *round1) Finalize(_ context.Context, out chan<- *round.Message) (round.Session, error) {
	if err := r.SendMessage(out, toWire(r.selector)); err != nil {
		return r, err
	}
	return &round3{round1: r}, nil
}

// MessageContent implements round.Round.
func (round1) MessageContent() round.Content { return nil }

// Number implements round.Round.
func (round1) Number() round.Number { return 1 }
