package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// PublicKeySize is the length of a compressed secp256k1 point.
const PublicKeySize = secp256k1.PubKeyBytesLenCompressed

var ErrInvalidPublicKey = errors.New("keys: invalid public key")

// PublicKey is the compressed SEC1 encoding of a secp256k1 point.
// It is comparable and can be used as a map key.
// The zero value is not a valid key.
type PublicKey [PublicKeySize]byte

// ParsePublicKey validates b as a compressed or uncompressed point and returns its compressed form.
func ParsePublicKey(b []byte) (PublicKey, error) {
	var k PublicKey
	pk, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return k, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	copy(k[:], pk.SerializeCompressed())
	return k, nil
}

// ParsePublicKeyHex is ParsePublicKey for a hex string.
func ParsePublicKeyHex(s string) (PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return ParsePublicKey(b)
}

// IsZero returns true if k was never set.
func (k PublicKey) IsZero() bool {
	return k == PublicKey{}
}

// Bytes returns a copy of the compressed encoding.
func (k PublicKey) Bytes() []byte {
	out := make([]byte, PublicKeySize)
	copy(out, k[:])
	return out
}

// String returns the hex encoding of the compressed point.
func (k PublicKey) String() string {
	return hex.EncodeToString(k[:])
}

// Short returns the first 8 bytes of the key in hex, for logs.
func (k PublicKey) Short() string {
	return hex.EncodeToString(k[:8])
}

// Verify returns true if sig is a valid DER encoded ECDSA signature of digest under k.
func (k PublicKey) Verify(digest, sig []byte) bool {
	pk, err := secp256k1.ParsePubKey(k[:])
	if err != nil {
		return false
	}
	signature, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	return signature.Verify(digest, pk)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (k PublicKey) MarshalBinary() ([]byte, error) {
	if k.IsZero() {
		return nil, ErrInvalidPublicKey
	}
	return k.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (k *PublicKey) UnmarshalBinary(data []byte) error {
	parsed, err := ParsePublicKey(data)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler, used by the JSON API.
func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKeyHex(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// WriteTo implements io.WriterTo.
func (k PublicKey) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(k[:])
	return int64(n), err
}

// Domain implements hash.WriterToWithDomain.
func (PublicKey) Domain() string {
	return "PublicKey"
}

// PrivateKey is a secp256k1 signing key.
type PrivateKey struct {
	sk *secp256k1.PrivateKey
}

// GeneratePrivateKey samples a new key using crypto/rand.
func GeneratePrivateKey() (*PrivateKey, error) {
	sk, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("keys: generate: %w", err)
	}
	return &PrivateKey{sk: sk}, nil
}

// PublicKey returns the compressed public key.
func (sk *PrivateKey) PublicKey() PublicKey {
	var k PublicKey
	copy(k[:], sk.sk.PubKey().SerializeCompressed())
	return k
}

// Sign returns a DER encoded ECDSA signature of digest.
func (sk *PrivateKey) Sign(digest []byte) ([]byte, error) {
	return ecdsa.Sign(sk.sk, digest).Serialize(), nil
}

// Signer produces signatures for a single public key.
// *PrivateKey implements Signer.
type Signer interface {
	PublicKey() PublicKey
	Sign(digest []byte) ([]byte, error)
}
