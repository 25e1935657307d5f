package party

import (
	"errors"
	"fmt"

	"github.com/taurusgroup/confidential-identities/pkg/keys"
)

var ErrInvalidParty = errors.New("party: invalid party")

// Party is a well-known identity: a network-visible name and the key that owns it.
type Party struct {
	ID        ID
	OwningKey keys.PublicKey
}

// New returns a Party, failing on an empty name or zero key.
func New(id ID, owningKey keys.PublicKey) (Party, error) {
	p := Party{ID: id, OwningKey: owningKey}
	if err := p.Validate(); err != nil {
		return Party{}, err
	}
	return p, nil
}

// Validate checks that both fields are set.
func (p Party) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: empty ID", ErrInvalidParty)
	}
	if p.OwningKey.IsZero() {
		return fmt.Errorf("%w: %s has no owning key", ErrInvalidParty, p.ID)
	}
	return nil
}

// IsZero returns true for the zero Party.
func (p Party) IsZero() bool {
	return p == Party{}
}

// String implements fmt.Stringer.
func (p Party) String() string {
	return string(p.ID)
}
