package keyrequest

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/taurusgroup/confidential-identities/pkg/keys"
	"github.com/taurusgroup/confidential-identities/pkg/protocol"
)

// Kind tags the selector carried by a request.
type Kind uint8

const (
	KindFresh Kind = iota
	KindAccount
	KindKnownKey
)

func (k Kind) String() string {
	switch k {
	case KindFresh:
		return "fresh"
	case KindAccount:
		return "account"
	case KindKnownKey:
		return "known-key"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Selector tells the responder which key to claim.
// It is one of ByAccount, ByKnownKey or Fresh.
type Selector interface {
	Kind() Kind
	selector()
}

// ByAccount asks for the key bound to an account. The responder returns the same key for the same account.
type ByAccount struct {
	Account uuid.UUID
}

// ByKnownKey asks the responder to prove ownership of a key it already holds.
type ByKnownKey struct {
	Key keys.PublicKey
}

// Fresh asks for a newly generated key.
type Fresh struct{}

func (ByAccount) Kind() Kind  { return KindAccount }
func (ByKnownKey) Kind() Kind { return KindKnownKey }
func (Fresh) Kind() Kind      { return KindFresh }

func (ByAccount) selector()  {}
func (ByKnownKey) selector() {}
func (Fresh) selector()      {}

func validateSelector(s Selector) error {
	switch s := s.(type) {
	case ByAccount:
		if s.Account == uuid.Nil {
			return fmt.Errorf("%w: nil account", protocol.ErrInvalidRequest)
		}
	case ByKnownKey:
		if s.Key.IsZero() {
			return fmt.Errorf("%w: empty key", protocol.ErrInvalidRequest)
		}
	case Fresh:
	case nil:
		return fmt.Errorf("%w: no selector", protocol.ErrInvalidRequest)
	default:
		return fmt.Errorf("%w: unsupported selector %T", protocol.ErrInvalidRequest, s)
	}
	return nil
}

func toWire(s Selector) *message2 {
	msg := &message2{Kind: s.Kind()}
	switch s := s.(type) {
	case ByAccount:
		account := s.Account
		msg.Account = &account
	case ByKnownKey:
		key := s.Key
		msg.Key = &key
	}
	return msg
}

// selector returns the Selector carried by msg, rejecting contradictory requests.
func (msg *message2) selector() (Selector, error) {
	var s Selector
	switch msg.Kind {
	case KindFresh:
		if msg.Account != nil || msg.Key != nil {
			return nil, fmt.Errorf("%w: fresh request with a payload", protocol.ErrInvalidRequest)
		}
		s = Fresh{}
	case KindAccount:
		if msg.Account == nil || msg.Key != nil {
			return nil, fmt.Errorf("%w: account request must carry only an account", protocol.ErrInvalidRequest)
		}
		s = ByAccount{Account: *msg.Account}
	case KindKnownKey:
		if msg.Key == nil || msg.Account != nil {
			return nil, fmt.Errorf("%w: known-key request must carry only a key", protocol.ErrInvalidRequest)
		}
		s = ByKnownKey{Key: *msg.Key}
	default:
		return nil, fmt.Errorf("%w: unknown kind %s", protocol.ErrInvalidRequest, msg.Kind)
	}
	if err := validateSelector(s); err != nil {
		return nil, err
	}
	return s, nil
}
