package claim

import (
	"errors"
	"fmt"
)

var (
	ErrSignerMismatch   = errors.New("claim: signer mismatch")
	ErrInvalidSignature = errors.New("claim: invalid signature")
)

// Kind classifies a VerificationError.
type Kind uint8

const (
	SignerMismatch Kind = iota + 1
	InvalidSignature
)

func (k Kind) String() string {
	switch k {
	case SignerMismatch:
		return "signer mismatch"
	case InvalidSignature:
		return "invalid signature"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// VerificationError is returned by Verify.
// It unwraps to ErrSignerMismatch or ErrInvalidSignature.
type VerificationError struct {
	Kind   Kind
	Reason string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("claim: %s: %s", e.Kind, e.Reason)
}

func (e *VerificationError) Unwrap() error {
	if e.Kind == SignerMismatch {
		return ErrSignerMismatch
	}
	return ErrInvalidSignature
}
