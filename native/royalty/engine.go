package royalty

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"postmint/core/events"
	"postmint/core/types"
)

var (
	errNilState = errors.New("royalty engine: state not configured")
	// ErrInvalidAmount indicates a non-positive credit or debit amount.
	ErrInvalidAmount = errors.New("royalty engine: amount must be positive")
	// ErrInvalidAuthor indicates an empty author identifier.
	ErrInvalidAuthor = errors.New("royalty engine: author required")
	// ErrInsufficientBalance indicates a debit exceeding the accrued balance.
	ErrInsufficientBalance = errors.New("royalty engine: insufficient balance")
	// ErrInsufficientReserve indicates a withdrawal that would dip into the storage reserve.
	ErrInsufficientReserve = errors.New("royalty engine: insufficient reserve")
	// ErrUnauthorized indicates the caller lacks the manager or owner role.
	ErrUnauthorized = errors.New("royalty engine: unauthorized")
)

// State is the storage surface the engine operates on.
type State interface {
	RoyaltyGet(author string) (*Balance, bool, error)
	RoyaltyPut(balance *Balance) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// TxState is a State whose writes stage until Commit applies them in one
// atomic batch.
type TxState interface {
	State
	Commit() error
}

type txBeginner interface {
	BeginRoyaltyTx() TxState
}

// Engine maintains the per-author royalty ledger and the manager-gated
// withdrawal path out of the payout vault. Mutating operations are serialized
// by an engine mutex and applied atomically when the backend supports
// transactions.
type Engine struct {
	mu             sync.Mutex
	state          State
	emitter        events.Emitter
	nowFn          func() int64
	owner          [20]byte
	manager        [20]byte
	vault          [20]byte
	storageReserve *big.Int
}

// NewEngine constructs a royalty engine with a no-op emitter.
func NewEngine(owner [20]byte) *Engine {
	return &Engine{
		emitter:        events.NoopEmitter{},
		nowFn:          func() int64 { return time.Now().Unix() },
		owner:          owner,
		manager:        owner,
		storageReserve: big.NewInt(0),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state State) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetVault configures the account holding undistributed royalty funds.
func (e *Engine) SetVault(addr [20]byte) { e.vault = addr }

// SetStorageReserve configures the balance floor that withdrawals may never
// breach.
func (e *Engine) SetStorageReserve(reserve *big.Int) {
	if reserve == nil {
		e.storageReserve = big.NewInt(0)
		return
	}
	e.storageReserve = new(big.Int).Set(reserve)
}

// Manager returns the identity currently authorized to withdraw.
func (e *Engine) Manager() [20]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manager
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(wrapEvent(evt))
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// begin opens a staged view when the backend supports transactions. With a
// plain backend writes go straight through and commit is a no-op.
func (e *Engine) begin() (State, func() error) {
	if b, ok := e.state.(txBeginner); ok {
		tx := b.BeginRoyaltyTx()
		return tx, tx.Commit
	}
	return e.state, func() error { return nil }
}

func (e *Engine) load(st State, author string) (*Balance, error) {
	balance, ok, err := st.RoyaltyGet(author)
	if err != nil {
		return nil, err
	}
	if !ok || balance == nil {
		balance = &Balance{Author: author, Amount: big.NewInt(0)}
	}
	if balance.Amount == nil {
		balance.Amount = big.NewInt(0)
	}
	return balance, nil
}

// Credit adds the amount to the author's accrued balance. The first credit
// for an unseen author initializes the ledger entry.
func (e *Engine) Credit(author string, amount *big.Int) (*Balance, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	normalized := NormalizeAuthor(author)
	if normalized == "" {
		return nil, ErrInvalidAuthor
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st, commit := e.begin()
	balance, err := e.load(st, normalized)
	if err != nil {
		return nil, err
	}
	balance.Amount = new(big.Int).Add(balance.Amount, amount)
	balance.Updated = e.now()
	if err := st.RoyaltyPut(balance); err != nil {
		return nil, err
	}
	if err := commit(); err != nil {
		return nil, err
	}
	e.emit(creditedEvent(normalized, amount, balance.Amount))
	return balance.Clone(), nil
}

// Debit subtracts the amount from the author's accrued balance.
func (e *Engine) Debit(author string, amount *big.Int) (*Balance, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	normalized := NormalizeAuthor(author)
	if normalized == "" {
		return nil, ErrInvalidAuthor
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st, commit := e.begin()
	balance, err := e.load(st, normalized)
	if err != nil {
		return nil, err
	}
	if balance.Amount.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: have %s want %s", ErrInsufficientBalance, balance.Amount, amount)
	}
	balance.Amount = new(big.Int).Sub(balance.Amount, amount)
	balance.Updated = e.now()
	if err := st.RoyaltyPut(balance); err != nil {
		return nil, err
	}
	if err := commit(); err != nil {
		return nil, err
	}
	e.emit(debitedEvent(normalized, amount, balance.Amount))
	return balance.Clone(), nil
}

// Zero clears the author's accrued balance. Owner gated.
func (e *Engine) Zero(caller [20]byte, author string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if caller != e.owner {
		return ErrUnauthorized
	}
	normalized := NormalizeAuthor(author)
	if normalized == "" {
		return ErrInvalidAuthor
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st, commit := e.begin()
	balance, err := e.load(st, normalized)
	if err != nil {
		return err
	}
	cleared := new(big.Int).Set(balance.Amount)
	balance.Amount = big.NewInt(0)
	balance.Updated = e.now()
	if err := st.RoyaltyPut(balance); err != nil {
		return err
	}
	if err := commit(); err != nil {
		return err
	}
	e.emit(debitedEvent(normalized, cleared, balance.Amount))
	return nil
}

// Withdraw moves funds from the payout vault to the manager's account. The
// vault balance never drops below the configured storage reserve.
func (e *Engine) Withdraw(caller [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.manager {
		return ErrUnauthorized
	}
	st, commit := e.begin()
	vaultAcc, err := st.GetAccount(e.vault[:])
	if err != nil {
		return err
	}
	vaultAcc = types.EnsureAccount(vaultAcc)
	available := new(big.Int).Sub(vaultAcc.Balance, e.storageReserve)
	if available.Cmp(amount) < 0 {
		return fmt.Errorf("%w: available %s want %s", ErrInsufficientReserve, available, amount)
	}
	managerAcc, err := st.GetAccount(caller[:])
	if err != nil {
		return err
	}
	managerAcc = types.EnsureAccount(managerAcc)
	vaultAcc.Balance = new(big.Int).Sub(vaultAcc.Balance, amount)
	managerAcc.Balance = new(big.Int).Add(managerAcc.Balance, amount)
	if err := st.PutAccount(e.vault[:], vaultAcc); err != nil {
		return err
	}
	if err := st.PutAccount(caller[:], managerAcc); err != nil {
		return err
	}
	if err := commit(); err != nil {
		return err
	}
	e.emit(withdrawnEvent(caller, amount))
	return nil
}

// SetManager hands the withdrawal role to a new identity. Owner gated.
func (e *Engine) SetManager(caller, next [20]byte) error {
	if e == nil {
		return errNilState
	}
	if caller != e.owner {
		return ErrUnauthorized
	}
	e.mu.Lock()
	e.manager = next
	e.mu.Unlock()
	e.emit(managerUpdatedEvent(next))
	return nil
}

// BalanceOf returns the accrued balance for the supplied author without
// mutating state.
func (e *Engine) BalanceOf(author string) (*Balance, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	normalized := NormalizeAuthor(author)
	if normalized == "" {
		return nil, ErrInvalidAuthor
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	balance, err := e.load(e.state, normalized)
	if err != nil {
		return nil, err
	}
	return balance.Clone(), nil
}
