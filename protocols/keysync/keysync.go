// Package keysync implements the two party protocol that brings the responder's registry up to date
// with the keys the initiator is about to share with it, typically the participants of a transaction.
//
// The initiator sends candidate keys (round 1). The responder answers with the ones it cannot
// resolve (round 2). The initiator sends back the owners it knows for them (round 3), and the
// responder only trusts these after each asserted owner has proven ownership through a
// nested key request, and then registers all of them (round 4).
package keysync

import (
	"context"
	"errors"
	"fmt"

	"github.com/taurusgroup/confidential-identities/internal/round"
	"github.com/taurusgroup/confidential-identities/pkg/identity"
	"github.com/taurusgroup/confidential-identities/pkg/keys"
	"github.com/taurusgroup/confidential-identities/pkg/party"
	"github.com/taurusgroup/confidential-identities/pkg/protocol"
)

const (
	// ProtocolID identifies the sync protocol on the wire.
	ProtocolID = "cid/keysync"
	// FinalRoundNumber is the last round of the protocol.
	FinalRoundNumber round.Number = 4
)

// Prover establishes that m.Owner controls m.Key, and returns the verified mapping.
// It must not register anything. The responder calls it once per asserted mapping, sequentially,
// and registers the verified mappings only once all of them were proven.
type Prover func(ctx context.Context, m identity.Mapping) (identity.Mapping, error)

// StartSync starts the initiator side with the keys to synchronize.
//
// The result of the protocol is the []identity.Mapping that was sent to the responder.
func StartSync(self, peer party.Party, candidates []keys.PublicKey, reg identity.Registry) protocol.StartFunc {
	return func(sessionID []byte) (round.Session, error) {
		if reg == nil {
			return nil, errors.New("keysync.StartSync: no registry")
		}
		for _, k := range candidates {
			if k.IsZero() {
				return nil, fmt.Errorf("keysync.StartSync: %w: empty key", protocol.ErrInvalidRequest)
			}
		}
		helper, err := newSession(self, peer, sessionID)
		if err != nil {
			return nil, fmt.Errorf("keysync.StartSync: %w", err)
		}
		return &round1{Helper: helper, candidates: dedup(candidates), registry: reg}, nil
	}
}

// StartRespondSync starts the responder side.
// Mappings asserted by the initiator are passed to prove, and committed to reg together when every proof succeeded.
// If any proof fails, nothing is registered.
//
// The result of the protocol is a bool, true if at least one mapping was proven.
func StartRespondSync(self, peer party.Party, reg identity.Registry, prove Prover) protocol.StartFunc {
	return func(sessionID []byte) (round.Session, error) {
		if reg == nil {
			return nil, errors.New("keysync.StartRespondSync: no registry")
		}
		if prove == nil {
			return nil, errors.New("keysync.StartRespondSync: no prover")
		}
		helper, err := newSession(self, peer, sessionID)
		if err != nil {
			return nil, fmt.Errorf("keysync.StartRespondSync: %w", err)
		}
		return &round2{Helper: helper, registry: reg, prove: prove}, nil
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

// dedup removes repeated keys, keeping the first occurrence.
func dedup(ks []keys.PublicKey) []keys.PublicKey {
	seen := make(map[keys.PublicKey]struct{}, len(ks))
	out := make([]keys.PublicKey, 0, len(ks))
	for _, k := range ks {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
