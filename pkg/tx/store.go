package tx

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// MemoryStore keeps recorded transactions in memory.
type MemoryStore struct {
	txs map[ID]*Transaction
	mtx sync.RWMutex
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{txs: make(map[ID]*Transaction)}
}

// RecordTransaction stores t so that its outputs can be loaded.
func (s *MemoryStore) RecordTransaction(_ context.Context, t *Transaction) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.txs[t.ID] = t
	return nil
}

// LoadPriorOutput implements Loader.
func (s *MemoryStore) LoadPriorOutput(_ context.Context, ref StateRef) (State, error) {
	s.mtx.RLock()
	t, ok := s.txs[ref.TxID]
	s.mtx.RUnlock()
	if !ok {
		return State{}, fmt.Errorf("%w: transaction %s", ErrNotFound, ref.TxID)
	}
	return output(t, ref)
}

const txPrefix = "tx/"

// LevelDBStore keeps recorded transactions in LevelDB, cbor encoded under their ID.
type LevelDBStore struct {
	db *leveldb.DB
}

var _ Store = (*LevelDBStore)(nil)

// OpenLevelDBStore opens or creates a database at path.
func OpenLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("tx: open %s: %w", path, err)
	}
	return &LevelDBStore{db: db}, nil
}

// OpenMemoryLevelDBStore returns a LevelDBStore on a non persistent in-memory storage.
func OpenMemoryLevelDBStore() (*LevelDBStore, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("tx: open memory: %w", err)
	}
	return &LevelDBStore{db: db}, nil
}

// Close closes the underlying database.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

func txKey(id ID) []byte {
	return append([]byte(txPrefix), id[:]...)
}

// RecordTransaction stores t so that its outputs can be loaded.
func (s *LevelDBStore) RecordTransaction(_ context.Context, t *Transaction) error {
	data, err := cbor.Marshal(t)
	if err != nil {
		return fmt.Errorf("tx: marshal: %w", err)
	}
	if err = s.db.Put(txKey(t.ID), data, nil); err != nil {
		return fmt.Errorf("tx: put: %w", err)
	}
	return nil
}

// LoadPriorOutput implements Loader.
func (s *LevelDBStore) LoadPriorOutput(_ context.Context, ref StateRef) (State, error) {
	data, err := s.db.Get(txKey(ref.TxID), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return State{}, fmt.Errorf("%w: transaction %s", ErrNotFound, ref.TxID)
	}
	if err != nil {
		return State{}, fmt.Errorf("tx: get: %w", err)
	}
	var t Transaction
	if err = cbor.Unmarshal(data, &t); err != nil {
		return State{}, fmt.Errorf("tx: unmarshal %s: %w", ref.TxID, err)
	}
	return output(&t, ref)
}
