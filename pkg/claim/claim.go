// Package claim defines the ownership claim exchanged by the key request protocol,
// its signed envelope, and the pure functions that create and verify it.
package claim

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/taurusgroup/confidential-identities/internal/hash"
	"github.com/taurusgroup/confidential-identities/pkg/keys"
)

const domain = "OwnershipClaim"

// Claim asserts that the signer controls Key.
type Claim struct {
	Key keys.PublicKey
}

// Signed is a serialized Claim together with the signature of its author.
type Signed struct {
	// Payload is the cbor encoding of a Claim.
	Payload []byte
	// Signer is the key that produced Signature. It must be the owning key of the sender's identity.
	Signer keys.PublicKey
	// Signature is a DER encoded ECDSA signature over Digest(Payload).
	Signature []byte
}

// Digest returns the message that is signed for a payload.
func Digest(payload []byte) []byte {
	return hash.New(hash.BytesWithDomain{TheDomain: domain, Bytes: payload}).Short()
}

// Sign serializes c and signs it with signer.
func Sign(c Claim, signer keys.Signer) (*Signed, error) {
	if c.Key.IsZero() {
		return nil, errors.New("claim: empty key")
	}
	payload, err := cbor.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("claim: marshal: %w", err)
	}
	sig, err := signer.Sign(Digest(payload))
	if err != nil {
		return nil, fmt.Errorf("claim: sign: %w", err)
	}
	return &Signed{
		Payload:   payload,
		Signer:    signer.PublicKey(),
		Signature: sig,
	}, nil
}

// Verify checks that s was signed by expected and returns the Claim it contains.
// No part of the claim is returned unless every check passes.
func Verify(s *Signed, expected keys.PublicKey) (Claim, error) {
	if s == nil {
		return Claim{}, &VerificationError{Kind: InvalidSignature, Reason: "missing claim"}
	}
	if s.Signer != expected {
		return Claim{}, &VerificationError{
			Kind:   SignerMismatch,
			Reason: fmt.Sprintf("signed by %s, expected %s", s.Signer.Short(), expected.Short()),
		}
	}
	if !s.Signer.Verify(Digest(s.Payload), s.Signature) {
		return Claim{}, &VerificationError{Kind: InvalidSignature, Reason: "signature does not verify"}
	}
	var c Claim
	if err := cbor.Unmarshal(s.Payload, &c); err != nil {
		return Claim{}, &VerificationError{Kind: InvalidSignature, Reason: fmt.Sprintf("payload: %v", err)}
	}
	return c, nil
}

// Key returns the key asserted by s without verifying it.
func (s *Signed) Key() (keys.PublicKey, error) {
	var c Claim
	if err := cbor.Unmarshal(s.Payload, &c); err != nil {
		return keys.PublicKey{}, fmt.Errorf("claim: unmarshal: %w", err)
	}
	return c.Key, nil
}
