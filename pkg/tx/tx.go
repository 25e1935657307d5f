// Package tx models the parts of a transaction that reference participants,
// and extracts the confidential identities a transaction exposes.
package tx

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/taurusgroup/confidential-identities/internal/hash"
	"github.com/taurusgroup/confidential-identities/pkg/keys"
)

var ErrNotFound = errors.New("tx: not found")

// ID identifies a transaction.
type ID [32]byte

// ParseID decodes the hex form returned by ID.String.
func ParseID(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("tx: id: %w", err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("tx: id: expected %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// String implements fmt.Stringer.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// StateRef points at an output of a prior transaction.
type StateRef struct {
	TxID  ID
	Index uint32
}

func (r StateRef) String() string {
	return fmt.Sprintf("%s:%d", r.TxID, r.Index)
}

// State is a transaction output.
type State struct {
	Contract     string
	Participants []keys.PublicKey
	Data         []byte `cbor:",omitempty"`
}

// Transaction consumes prior outputs and produces new ones.
type Transaction struct {
	ID      ID
	Inputs  []StateRef
	Outputs []State
}

type body struct {
	Inputs  []StateRef
	Outputs []State
}

// New returns a transaction whose ID is the hash of its content.
func New(inputs []StateRef, outputs []State) (*Transaction, error) {
	data, err := cbor.Marshal(body{Inputs: inputs, Outputs: outputs})
	if err != nil {
		return nil, fmt.Errorf("tx: marshal: %w", err)
	}
	t := &Transaction{Inputs: inputs, Outputs: outputs}
	copy(t.ID[:], hash.New(hash.BytesWithDomain{TheDomain: "Transaction", Bytes: data}).Short())
	return t, nil
}

// Ref returns a reference to the output at index.
func (t *Transaction) Ref(index uint32) StateRef {
	return StateRef{TxID: t.ID, Index: index}
}

// Loader gives access to the outputs of prior transactions.
type Loader interface {
	// LoadPriorOutput returns the state ref points at, or an error wrapping ErrNotFound.
	LoadPriorOutput(ctx context.Context, ref StateRef) (State, error)
}

// Store records transactions and loads their outputs.
type Store interface {
	Loader
	RecordTransaction(ctx context.Context, t *Transaction) error
}

func output(t *Transaction, ref StateRef) (State, error) {
	if int(ref.Index) >= len(t.Outputs) {
		return State{}, fmt.Errorf("%w: %s has %d outputs", ErrNotFound, ref, len(t.Outputs))
	}
	return t.Outputs[ref.Index], nil
}
