package state

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"postmint/core/types"
	"postmint/native/mintescrow"
	"postmint/native/royalty"
	"postmint/storage"
)

// Key prefixes use raw string keys so the tables stay queryable by external
// indexers: no hashing, stable encoding.
const (
	requestPrefix = "mint/req/"
	tokenPrefix   = "mint/token/"
	royaltyPrefix = "royalty/"
	accountPrefix = "account/"
)

// keyValue is the slice of storage.Database the manager reads and writes
// through, satisfied by both the root database and a staged overlay.
type keyValue interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
}

// Manager implements the narrow state interfaces consumed by the escrow and
// royalty engines on top of a key-value database, persisting JSON values.
type Manager struct {
	kv keyValue
	db storage.Database
}

// NewManager wraps the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{kv: db, db: db}
}

func (m *Manager) getJSON(key string, out any) (bool, error) {
	raw, err := m.kv.Get([]byte(key))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

func (m *Manager) putJSON(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	return m.kv.Put([]byte(key), raw)
}

// MintRequestGet loads the active request for the content id.
func (m *Manager) MintRequestGet(contentID string) (*mintescrow.MintRequest, bool, error) {
	var req mintescrow.MintRequest
	ok, err := m.getJSON(requestPrefix+contentID, &req)
	if err != nil || !ok {
		return nil, false, err
	}
	if !req.Status.Valid() {
		return nil, false, fmt.Errorf("state: corrupt mint request %s: status %d out of range", contentID, req.Status)
	}
	return &req, true, nil
}

// MintRequestPut stores the request under its content id.
func (m *Manager) MintRequestPut(req *mintescrow.MintRequest) error {
	if req == nil {
		return fmt.Errorf("state: nil mint request")
	}
	return m.putJSON(requestPrefix+req.ContentID, req)
}

// MintRequestDelete removes a settled request from active storage.
func (m *Manager) MintRequestDelete(contentID string) error {
	return m.kv.Delete([]byte(requestPrefix + contentID))
}

// MintedTokenGet returns the token id minted for the content id, if any.
func (m *Manager) MintedTokenGet(contentID string) (string, bool, error) {
	var tokenID string
	ok, err := m.getJSON(tokenPrefix+contentID, &tokenID)
	if err != nil || !ok {
		return "", false, err
	}
	return tokenID, true, nil
}

// MintedTokenPut records the minted token id for the content id.
func (m *Manager) MintedTokenPut(contentID, tokenID string) error {
	return m.putJSON(tokenPrefix+contentID, tokenID)
}

// RoyaltyGet loads the accrued balance for the author.
func (m *Manager) RoyaltyGet(author string) (*royalty.Balance, bool, error) {
	var balance royalty.Balance
	ok, err := m.getJSON(royaltyPrefix+author, &balance)
	if err != nil || !ok {
		return nil, false, err
	}
	return &balance, true, nil
}

// RoyaltyPut stores the author's balance under its raw identifier.
func (m *Manager) RoyaltyPut(balance *royalty.Balance) error {
	if balance == nil {
		return fmt.Errorf("state: nil royalty balance")
	}
	return m.putJSON(royaltyPrefix+balance.Author, balance)
}

// GetAccount loads the account for the raw address bytes. Unknown accounts
// return a zeroed value rather than an error.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	var account types.Account
	ok, err := m.getJSON(accountPrefix+hex.EncodeToString(addr), &account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.EnsureAccount(nil), nil
	}
	return types.EnsureAccount(&account), nil
}

// PutAccount stores the account under its hex-encoded address.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	return m.putJSON(accountPrefix+hex.EncodeToString(addr), account)
}

// overlay stages writes on top of a backend until they are committed. Reads
// observe the staged writes first, so an engine operation sees its own
// mutations mid-flight.
type overlay struct {
	base    keyValue
	pending map[string][]byte
	gone    map[string]struct{}
}

func (o *overlay) Get(key []byte) ([]byte, error) {
	k := string(key)
	if value, ok := o.pending[k]; ok {
		out := make([]byte, len(value))
		copy(out, value)
		return out, nil
	}
	if _, ok := o.gone[k]; ok {
		return nil, storage.ErrKeyNotFound
	}
	return o.base.Get(key)
}

func (o *overlay) Put(key []byte, value []byte) error {
	k := string(key)
	stored := make([]byte, len(value))
	copy(stored, value)
	delete(o.gone, k)
	o.pending[k] = stored
	return nil
}

func (o *overlay) Delete(key []byte) error {
	k := string(key)
	delete(o.pending, k)
	o.gone[k] = struct{}{}
	return nil
}

// Tx is a Manager view whose writes stage until Commit lands them on the
// underlying database in a single batch. An abandoned Tx leaves no trace.
type Tx struct {
	Manager
	root   storage.Database
	staged *overlay
}

// Begin opens a staged view of the manager.
func (m *Manager) Begin() *Tx {
	staged := &overlay{base: m.kv, pending: make(map[string][]byte), gone: make(map[string]struct{})}
	return &Tx{Manager: Manager{kv: staged}, root: m.db, staged: staged}
}

// Commit applies the staged writes atomically.
func (tx *Tx) Commit() error {
	if tx.root == nil {
		return errors.New("state: transaction has no backing database")
	}
	batch := tx.root.NewBatch()
	for key, value := range tx.staged.pending {
		batch.Put([]byte(key), value)
	}
	for key := range tx.staged.gone {
		batch.Delete([]byte(key))
	}
	return tx.root.Write(batch)
}

// BeginMintTx implements the escrow engine's transactional state hook.
func (m *Manager) BeginMintTx() mintescrow.TxState { return m.Begin() }

// BeginRoyaltyTx implements the royalty engine's transactional state hook.
func (m *Manager) BeginRoyaltyTx() royalty.TxState { return m.Begin() }
