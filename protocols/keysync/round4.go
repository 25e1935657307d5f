package keysync

import (
	"context"
	"fmt"

	"github.com/taurusgroup/confidential-identities/internal/round"
	"github.com/taurusgroup/confidential-identities/pkg/identity"
	"github.com/taurusgroup/confidential-identities/pkg/keys"
	"github.com/taurusgroup/confidential-identities/pkg/protocol"
)

// message4 carries the owners the initiator asserts, as explicit pairs.
type message4 struct {
	Mappings []identity.Mapping
}

// RoundNumber implements round.Content.
func (message4) RoundNumber() round.Number { return 4 }

// round4 has every asserted mapping proven before any of them is registered.
type round4 struct {
	*round2

	unknown  map[keys.PublicKey]struct{}
	mappings []identity.Mapping
}

// VerifyMessage implements round.Round.
//
// Mappings must be well formed, and concern distinct keys the responder asked about.
func (r *round4) VerifyMessage(msg round.Message) error {
	body, ok := msg.Content.(*message4)
	if !ok || body == nil {
		return round.ErrInvalidContent
	}
	seen := make(map[keys.PublicKey]struct{}, len(body.Mappings))
	for _, m := range body.Mappings {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("%w: %v", protocol.ErrProtocolViolation, err)
		}
		if _, ok := r.unknown[m.Key]; !ok {
			return fmt.Errorf("%w: %s was not asked for", protocol.ErrProtocolViolation, m.Key.Short())
		}
		if _, ok := seen[m.Key]; ok {
			return fmt.Errorf("%w: %s resolved twice", protocol.ErrProtocolViolation, m.Key.Short())
		}
		seen[m.Key] = struct{}{}
	}
	return nil
}

// StoreMessage implements round.Round.
func (r *round4) StoreMessage(msg round.Message) error {
	r.mappings = msg.Content.(*message4).Mappings
	return nil
}

// Finalize implements round.Round.
//
// Proofs run one at a time, and the first failure aborts the protocol.
// Mappings are registered only after every proof succeeded.
func (r *round4) Finalize(ctx context.Context, _ chan<- *round.Message) (round.Session, error) {
	if len(r.mappings) == 0 {
		return r.ResultRound(false), nil
	}
	verified := make([]identity.Mapping, 0, len(r.mappings))
	for _, m := range r.mappings {
		v, err := r.prove(ctx, m)
		if err != nil {
			return r, fmt.Errorf("prove %s owned by %s: %w", m.Key.Short(), m.Owner.ID, err)
		}
		if v.Key != m.Key {
			return r, fmt.Errorf("prove %s: verified %s instead", m.Key.Short(), v.Key.Short())
		}
		verified = append(verified, v)
	}
	if err := r.commit(ctx, verified); err != nil {
		return r, err
	}
	return r.ResultRound(true), nil
}

// commit registers every mapping, after checking none of them conflicts with a binding
// created while the proofs were running.
func (r *round4) commit(ctx context.Context, mappings []identity.Mapping) error {
	for _, m := range mappings {
		owner, ok, err := r.registry.Resolve(ctx, m.Key)
		if err != nil {
			return err
		}
		if ok && owner != m.Owner {
			return fmt.Errorf("%w: %s is bound to %s", protocol.ErrRegistrationConflict, m.Key.Short(), owner.ID)
		}
	}
	for _, m := range mappings {
		registered, err := r.registry.Register(ctx, m.Key, m.Owner)
		if err != nil {
			return err
		}
		if !registered {
			return fmt.Errorf("%w: %s", protocol.ErrRegistrationConflict, m.Key.Short())
		}
	}
	return nil
}

// MessageContent implements round.Round.
func (round4) MessageContent() round.Content { return &message4{} }

// Number implements round.Round.
func (round4) Number() round.Number { return 4 }
