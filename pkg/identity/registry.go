// Package identity maps confidential keys to the well-known parties that own them.
//
// A Registry is the only place where a key mapping is written.
// Every implementation must make Register a single atomic conditional write:
// a key is bound to at most one owner and a binding is never overwritten.
package identity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/taurusgroup/confidential-identities/pkg/keys"
	"github.com/taurusgroup/confidential-identities/pkg/party"
)

var ErrInvalidMapping = errors.New("identity: invalid mapping")

// Mapping binds a key to its owner.
type Mapping struct {
	Key   keys.PublicKey
	Owner party.Party
}

// Validate checks both the key and the owner.
func (m Mapping) Validate() error {
	if m.Key.IsZero() {
		return fmt.Errorf("%w: empty key", ErrInvalidMapping)
	}
	if err := m.Owner.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}
	return nil
}

// Registry stores key mappings.
type Registry interface {
	// Resolve returns the owner of key, if known.
	Resolve(ctx context.Context, key keys.PublicKey) (party.Party, bool, error)
	// Register binds key to owner.
	// It returns true if the binding was created or already existed with the same owner,
	// and false, without modifying anything, if key is bound to a different owner.
	Register(ctx context.Context, key keys.PublicKey, owner party.Party) (bool, error)
	// Mappings lists every stored binding, ordered by key.
	Mappings(ctx context.Context) ([]Mapping, error)
}

// SeedNetworkMap registers the owning key of every party to the party itself.
func SeedNetworkMap(ctx context.Context, reg Registry, parties ...party.Party) error {
	for _, p := range parties {
		if err := p.Validate(); err != nil {
			return err
		}
		ok, err := reg.Register(ctx, p.OwningKey, p)
		if err != nil {
			return fmt.Errorf("identity: seed %s: %w", p.ID, err)
		}
		if !ok {
			return fmt.Errorf("identity: seed %s: owning key already bound to another party", p.ID)
		}
	}
	return nil
}

// WellKnown returns the party whose owning key is key.
// It differs from Resolve in that confidential keys mapped to a party are not returned.
func WellKnown(ctx context.Context, reg Registry, key keys.PublicKey) (party.Party, bool, error) {
	p, ok, err := reg.Resolve(ctx, key)
	if err != nil || !ok {
		return party.Party{}, false, err
	}
	if p.OwningKey != key {
		return party.Party{}, false, nil
	}
	return p, true, nil
}

// SortMappings orders mappings by key.
func SortMappings(mappings []Mapping) {
	sort.Slice(mappings, func(i, j int) bool {
		return bytes.Compare(mappings[i].Key[:], mappings[j].Key[:]) < 0
	})
}
