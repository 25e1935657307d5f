package tx

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/taurusgroup/confidential-identities/pkg/identity"
	"github.com/taurusgroup/confidential-identities/pkg/keys"
)

// ConfidentialIdentities returns the participant keys of t that are not the owning key of a well-known party,
// in the order they first appear, inputs before outputs.
//
// Inputs that cannot be loaded are skipped: the caller need not have seen every prior transaction.
func ConfidentialIdentities(ctx context.Context, t *Transaction, loader Loader, reg identity.Registry) ([]keys.PublicKey, error) {
	log := zerolog.Ctx(ctx)

	states := make([]State, 0, len(t.Inputs)+len(t.Outputs))
	for _, ref := range t.Inputs {
		st, err := loader.LoadPriorOutput(ctx, ref)
		if err != nil {
			log.Debug().Err(err).Stringer("input", ref).Msg("skipping unresolvable input")
			continue
		}
		states = append(states, st)
	}
	states = append(states, t.Outputs...)

	seen := make(map[keys.PublicKey]struct{})
	var confidential []keys.PublicKey
	for _, st := range states {
		for _, k := range st.Participants {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}

			_, wellKnown, err := identity.WellKnown(ctx, reg, k)
			if err != nil {
				return nil, fmt.Errorf("tx: resolve %s: %w", k.Short(), err)
			}
			if !wellKnown {
				confidential = append(confidential, k)
			}
		}
	}
	return confidential, nil
}
