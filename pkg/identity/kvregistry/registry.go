// Package kvregistry implements identity.Registry on top of LevelDB.
package kvregistry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/taurusgroup/confidential-identities/pkg/identity"
	"github.com/taurusgroup/confidential-identities/pkg/keys"
	"github.com/taurusgroup/confidential-identities/pkg/party"
)

const (
	prefix  = "km/"
	stripes = 64
)

// Registry stores each mapping under prefix || key, with the cbor encoded owner as value.
// Writes are synchronous.
type Registry struct {
	db *leveldb.DB
	// locks serializes Register calls that touch the same key.
	locks [stripes]sync.Mutex
}

var _ identity.Registry = (*Registry)(nil)

// Open opens or creates a database at path.
func Open(path string) (*Registry, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("kvregistry: open %s: %w", path, err)
	}
	return Wrap(db), nil
}

// OpenMemory returns a Registry on a non persistent in-memory storage.
func OpenMemory() (*Registry, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("kvregistry: open memory: %w", err)
	}
	return Wrap(db), nil
}

// Wrap uses an already open database.
func Wrap(db *leveldb.DB) *Registry {
	return &Registry{db: db}
}

// Close closes the underlying database.
func (r *Registry) Close() error {
	return r.db.Close()
}

func dbKey(key keys.PublicKey) []byte {
	return append([]byte(prefix), key[:]...)
}

func (r *Registry) lock(key keys.PublicKey) *sync.Mutex {
	return &r.locks[int(key[keys.PublicKeySize-1])%stripes]
}

func (r *Registry) get(key keys.PublicKey) (party.Party, bool, error) {
	value, err := r.db.Get(dbKey(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return party.Party{}, false, nil
	}
	if err != nil {
		return party.Party{}, false, fmt.Errorf("kvregistry: get: %w", err)
	}
	var p party.Party
	if err = cbor.Unmarshal(value, &p); err != nil {
		return party.Party{}, false, fmt.Errorf("kvregistry: decode owner of %s: %w", key.Short(), err)
	}
	return p, true, nil
}

// Resolve implements identity.Registry.
func (r *Registry) Resolve(_ context.Context, key keys.PublicKey) (party.Party, bool, error) {
	return r.get(key)
}

// Register implements identity.Registry.
func (r *Registry) Register(_ context.Context, key keys.PublicKey, owner party.Party) (bool, error) {
	if err := (identity.Mapping{Key: key, Owner: owner}).Validate(); err != nil {
		return false, err
	}
	value, err := cbor.Marshal(owner)
	if err != nil {
		return false, fmt.Errorf("kvregistry: encode owner: %w", err)
	}

	l := r.lock(key)
	l.Lock()
	defer l.Unlock()

	existing, ok, err := r.get(key)
	if err != nil {
		return false, err
	}
	if ok {
		return existing == owner, nil
	}
	if err = r.db.Put(dbKey(key), value, &opt.WriteOptions{Sync: true}); err != nil {
		return false, fmt.Errorf("kvregistry: put: %w", err)
	}
	return true, nil
}

// Mappings implements identity.Registry.
func (r *Registry) Mappings(context.Context) ([]identity.Mapping, error) {
	it := r.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer it.Release()

	var out []identity.Mapping
	for it.Next() {
		key, err := keys.ParsePublicKey(it.Key()[len(prefix):])
		if err != nil {
			return nil, fmt.Errorf("kvregistry: stored key: %w", err)
		}
		var owner party.Party
		if err = cbor.Unmarshal(it.Value(), &owner); err != nil {
			return nil, fmt.Errorf("kvregistry: decode owner of %s: %w", key.Short(), err)
		}
		out = append(out, identity.Mapping{Key: key, Owner: owner})
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("kvregistry: iterate: %w", err)
	}
	return out, nil
}
