package storage

import (
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
)

// ErrKeyNotFound is returned when a lookup misses.
var ErrKeyNotFound = errors.New("storage: key not found")

// Batch stages writes so Database.Write can apply them in one atomic commit.
type Batch interface {
	Put(key []byte, value []byte)
	Delete(key []byte)
}

// Database is a generic interface for a key-value store, allowing the mint
// service to run against an in-memory backend in tests and LevelDB in
// production.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	NewBatch() Batch
	Write(batch Batch) error
	Close() error
}

// MemDB is an in-memory Database implementation used by tests.
type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemDB returns an empty in-memory database.
func NewMemDB() *MemDB {
	return &MemDB{data: make(map[string][]byte)}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	db.data[string(key)] = stored
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (db *MemDB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.data, string(key))
	return nil
}

type memOp struct {
	key    string
	value  []byte
	remove bool
}

// memBatch buffers writes until MemDB.Write applies them under one lock.
type memBatch struct {
	ops []memOp
}

func (b *memBatch) Put(key []byte, value []byte) {
	stored := make([]byte, len(value))
	copy(stored, value)
	b.ops = append(b.ops, memOp{key: string(key), value: stored})
}

func (b *memBatch) Delete(key []byte) {
	b.ops = append(b.ops, memOp{key: string(key), remove: true})
}

// NewBatch returns an empty write batch.
func (db *MemDB) NewBatch() Batch { return &memBatch{} }

// Write applies all batched operations under a single lock.
func (db *MemDB) Write(batch Batch) error {
	b, ok := batch.(*memBatch)
	if !ok {
		return errors.New("storage: foreign batch")
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, op := range b.ops {
		if op.remove {
			delete(db.data, op.key)
			continue
		}
		db.data[op.key] = op.value
	}
	return nil
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() error { return nil }

// LevelDB is a persistent key-value store backed by LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrKeyNotFound
	}
	return value, err
}

func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

type levelBatch struct {
	batch *leveldb.Batch
}

func (b *levelBatch) Put(key []byte, value []byte) { b.batch.Put(key, value) }

func (b *levelBatch) Delete(key []byte) { b.batch.Delete(key) }

// NewBatch returns an empty write batch.
func (ldb *LevelDB) NewBatch() Batch { return &levelBatch{batch: new(leveldb.Batch)} }

// Write commits all batched operations in a single LevelDB write.
func (ldb *LevelDB) Write(batch Batch) error {
	b, ok := batch.(*levelBatch)
	if !ok {
		return errors.New("storage: foreign batch")
	}
	return ldb.db.Write(b.batch, nil)
}

// Close closes the database connection.
func (ldb *LevelDB) Close() error {
	return ldb.db.Close()
}
