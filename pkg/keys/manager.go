package keys

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/cronokirby/saferith"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// SeedSize is the minimum length of a node seed.
const SeedSize = 32

const derivationSalt = "confidential-identities/keys/v1"

var (
	ErrKeyNotFound = errors.New("keys: key not held by this node")
	ErrShortSeed   = fmt.Errorf("keys: seed must be at least %d bytes", SeedSize)
)

// Manager is the key-management service of a node.
// It holds the node's identity key and every key it generated,
// and never exposes private material.
type Manager interface {
	// Identity is the owning key of this node's well-known identity.
	Identity() PublicKey
	// GenerateKey returns a fresh key when account is nil.
	// Otherwise it returns the key bound to the account, the same one on every call.
	GenerateKey(ctx context.Context, account *uuid.UUID) (PublicKey, error)
	// OwnsKey reports whether the private key for key is held.
	OwnsKey(ctx context.Context, key PublicKey) (bool, error)
	// Sign signs digest with the private key for key.
	Sign(ctx context.Context, key PublicKey, digest []byte) ([]byte, error)
}

// Store is an in-memory Manager whose identity and account keys are derived from a seed.
//
// Only the identity key is available right after NewStore. A key cannot be traced back to the
// account it was derived for, so account keys are held once GenerateKey or Restore was called
// for their account. Fresh keys are random and do not survive the Store.
type Store struct {
	seed     []byte
	identity *PrivateKey
	keys     map[PublicKey]*PrivateKey
	accounts map[uuid.UUID]PublicKey
	mtx      sync.RWMutex
}

var _ Manager = (*Store)(nil)

// GenerateSeed returns SeedSize random bytes from rand.
func GenerateSeed(rand io.Reader) ([]byte, error) {
	seed := make([]byte, SeedSize)
	if _, err := io.ReadFull(rand, seed); err != nil {
		return nil, fmt.Errorf("keys: seed: %w", err)
	}
	return seed, nil
}

// NewStore derives the identity key from seed.
func NewStore(seed []byte) (*Store, error) {
	if len(seed) < SeedSize {
		return nil, ErrShortSeed
	}
	s := &Store{
		seed:     append([]byte(nil), seed...),
		keys:     make(map[PublicKey]*PrivateKey),
		accounts: make(map[uuid.UUID]PublicKey),
	}
	identity, err := derive(s.seed, []byte("identity"))
	if err != nil {
		return nil, err
	}
	s.identity = identity
	s.keys[identity.PublicKey()] = identity
	return s, nil
}

// NewRandomStore is NewStore with a seed read from crypto/rand.
func NewRandomStore() (*Store, error) {
	seed, err := GenerateSeed(rand.Reader)
	if err != nil {
		return nil, err
	}
	return NewStore(seed)
}

// Identity implements Manager.
func (s *Store) Identity() PublicKey {
	return s.identity.PublicKey()
}

// GenerateKey implements Manager.
func (s *Store) GenerateKey(_ context.Context, account *uuid.UUID) (PublicKey, error) {
	if account == nil {
		sk, err := GeneratePrivateKey()
		if err != nil {
			return PublicKey{}, err
		}
		return s.add(sk), nil
	}

	s.mtx.RLock()
	pk, ok := s.accounts[*account]
	s.mtx.RUnlock()
	if ok {
		return pk, nil
	}

	sk, err := derive(s.seed, append([]byte("account:"), (*account)[:]...))
	if err != nil {
		return PublicKey{}, err
	}
	pk = s.add(sk)
	s.mtx.Lock()
	s.accounts[*account] = pk
	s.mtx.Unlock()
	return pk, nil
}

// OwnsKey implements Manager.
func (s *Store) OwnsKey(_ context.Context, key PublicKey) (bool, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	_, ok := s.keys[key]
	return ok, nil
}

// Sign implements Manager.
func (s *Store) Sign(_ context.Context, key PublicKey, digest []byte) ([]byte, error) {
	s.mtx.RLock()
	sk, ok := s.keys[key]
	s.mtx.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key.Short())
	}
	return sk.Sign(digest)
}

// Restore derives the keys of accounts, so that OwnsKey and Sign accept them
// without waiting for GenerateKey to be called again, for instance after a restart.
func (s *Store) Restore(accounts ...uuid.UUID) error {
	for _, account := range accounts {
		if account == uuid.Nil {
			return errors.New("keys: restore: nil account")
		}
		if _, err := s.GenerateKey(context.Background(), &account); err != nil {
			return fmt.Errorf("keys: restore %s: %w", account, err)
		}
	}
	return nil
}

// Account returns the key previously generated for account, if any.
func (s *Store) Account(account uuid.UUID) (PublicKey, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	pk, ok := s.accounts[account]
	return pk, ok
}

func (s *Store) add(sk *PrivateKey) PublicKey {
	pk := sk.PublicKey()
	s.mtx.Lock()
	s.keys[pk] = sk
	s.mtx.Unlock()
	return pk
}

// curveOrder is the order of the secp256k1 group.
var curveOrder = saferith.ModulusFromBytes(secp256k1.S256().N.Bytes())

// derive expands seed into a private key bound to info.
//
// 64 bytes are read from HKDF-SHA256 and reduced modulo the group order,
// so the bias of the reduction is negligible.
func derive(seed, info []byte) (*PrivateKey, error) {
	buf := make([]byte, 64)
	if _, err := io.ReadFull(hkdf.New(sha256.New, seed, []byte(derivationSalt), info), buf); err != nil {
		return nil, fmt.Errorf("keys: derive: %w", err)
	}
	n := new(saferith.Nat).Mod(new(saferith.Nat).SetBytes(buf), curveOrder)
	if n.EqZero() == 1 {
		return nil, errors.New("keys: derive: zero scalar")
	}
	scalar := n.FillBytes(make([]byte, 32))
	return &PrivateKey{sk: secp256k1.PrivKeyFromBytes(scalar)}, nil
}

// SignerFor binds a Manager to one of its keys.
func SignerFor(ctx context.Context, m Manager, key PublicKey) Signer {
	return managedSigner{ctx: ctx, m: m, key: key}
}

type managedSigner struct {
	ctx context.Context
	m   Manager
	key PublicKey
}

func (s managedSigner) PublicKey() PublicKey { return s.key }

func (s managedSigner) Sign(digest []byte) ([]byte, error) {
	return s.m.Sign(s.ctx, s.key, digest)
}
