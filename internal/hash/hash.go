package hash

import (
	"fmt"
	"io"

	"github.com/zeebo/blake3"
)

const (
	// DigestLengthBytes is the length of Sum.
	DigestLengthBytes = 64
	// ShortLengthBytes is the length of Short, used as the input to signatures.
	ShortLengthBytes = 32
)

// Hash is the hash function used for session identifiers, claim digests and key fingerprints.
//
// Internally, this is a wrapper around blake3.Hasher. Every value written is domain separated.
type Hash struct {
	h *blake3.Hasher
}

// New creates a Hash and writes the given values to it.
// It panics if any of the values has an unsupported type.
func New(initialData ...interface{}) *Hash {
	hash := &Hash{h: blake3.New()}
	if err := hash.WriteAny(initialData...); err != nil {
		panic(err)
	}
	return hash
}

// Digest returns a reader for the current output of the function.
//
// This finalizes the current state of the hash, and returns what's
// essentially a stream of random bytes.
func (hash *Hash) Digest() io.Reader {
	return hash.h.Digest()
}

// Sum returns a slice of length DigestLengthBytes resulting from the current hash state.
func (hash *Hash) Sum() []byte {
	return hash.sum(DigestLengthBytes)
}

// Short returns a slice of length ShortLengthBytes resulting from the current hash state.
func (hash *Hash) Short() []byte {
	return hash.sum(ShortLengthBytes)
}

func (hash *Hash) sum(n int) []byte {
	out := make([]byte, n)
	if _, err := io.ReadFull(hash.Digest(), out); err != nil {
		panic(fmt.Sprintf("hash.Sum: internal hash failure: %v", err))
	}
	return out
}

// WriteAny takes many different data types and writes them to the hash state.
//
// Currently supported types:
//
//   - []byte
//   - string
//   - hash.WriterToWithDomain
//
// This function will apply its own domain separation for the first two types.
// The last type already suggests which domain to use, and this function respects it.
func (hash *Hash) WriteAny(data ...interface{}) error {
	for _, d := range data {
		var err error
		switch t := d.(type) {
		case []byte:
			err = writeWithDomain(hash.h, BytesWithDomain{TheDomain: "[]byte", Bytes: t})
		case string:
			err = writeWithDomain(hash.h, BytesWithDomain{TheDomain: "string", Bytes: []byte(t)})
		case WriterToWithDomain:
			err = writeWithDomain(hash.h, t)
		default:
			return fmt.Errorf("hash.Hash: unsupported type %T", d)
		}
		if err != nil {
			return fmt.Errorf("hash.Hash: write %T: %w", d, err)
		}
	}
	return nil
}

// Clone returns a copy of the Hash in its current state.
func (hash *Hash) Clone() *Hash {
	return &Hash{h: hash.h.Clone()}
}
