package mintescrow

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"postmint/core/events"
	"postmint/core/pricing"
	"postmint/core/types"
	"postmint/native/royalty"
)

var (
	errNilState   = errors.New("mint escrow: state not configured")
	errNilPricing = errors.New("mint escrow: pricing engine not configured")
	// ErrInsufficientDeposit indicates the attached deposit undercuts the minimum.
	ErrInsufficientDeposit = errors.New("mint escrow: insufficient deposit")
	// ErrInvalidIdentifier indicates the content id is not a positive numeric string.
	ErrInvalidIdentifier = errors.New("mint escrow: invalid content identifier")
	// ErrAlreadyMinted indicates a token already exists for the content id.
	ErrAlreadyMinted = errors.New("mint escrow: token already minted")
	// ErrLocked indicates an active unexpired request already holds the content id.
	ErrLocked = errors.New("mint escrow: content identifier locked")
	// ErrNotFound indicates no request exists for the content id.
	ErrNotFound = errors.New("mint escrow: request not found")
	// ErrTooEarly indicates the lock time has not elapsed yet.
	ErrTooEarly = errors.New("mint escrow: lock time not reached")
	// ErrNotRequester indicates the caller did not create the request.
	ErrNotRequester = errors.New("mint escrow: caller is not the requester")
	// ErrUnderfunded indicates the escrowed amount cannot cover the required cost.
	ErrUnderfunded = errors.New("mint escrow: escrow underfunded")
	// ErrInvalidStatus indicates the request is not in a state accepting the transition.
	ErrInvalidStatus = errors.New("mint escrow: invalid status")
	// ErrInsufficientBalance indicates the requester cannot fund the deposit.
	ErrInsufficientBalance = errors.New("mint escrow: insufficient balance")
)

// Percentage splits reproduce the historic integer truncation exactly: the
// remainder of each division stays with the system.
const (
	cancelRefundNum = 9
	cancelRefundDen = 10
	royaltyShareNum = 8
	royaltyShareDen = 10
)

// State is the storage surface the engine operates on.
type State interface {
	MintRequestGet(contentID string) (*MintRequest, bool, error)
	MintRequestPut(req *MintRequest) error
	MintRequestDelete(contentID string) error
	MintedTokenGet(contentID string) (string, bool, error)
	MintedTokenPut(contentID, tokenID string) error
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
	BeginMintTx() TxState
}

type royaltyLedger interface {
	Credit(author string, amount *big.Int) (*royalty.Balance, error)
}

// Engine owns the per-request escrow funds and status transitions. It
// consumes pricing output and verified metadata and emits mint, cancel and
// royalty side effects. Operations are serialized by an engine mutex, so two
// concurrent requests for one content id resolve to a winner and a Locked
// rejection, and each operation either applies fully or rejects without
// mutating state.
type Engine struct {
	mu             sync.Mutex
	state          State
	pricing        *pricing.Engine
	royalties      royaltyLedger
	emitter        events.Emitter
	nowFn          func() int64
	vault          [20]byte
	treasury       [20]byte
	lockTime       int64
	storageReserve *big.Int
}

// NewEngine creates a mint escrow engine with a no-op emitter.
func NewEngine(pricingEngine *pricing.Engine, lockTime time.Duration) *Engine {
	return &Engine{
		pricing:        pricingEngine,
		emitter:        events.NoopEmitter{},
		nowFn:          func() int64 { return time.Now().Unix() },
		lockTime:       int64(lockTime / time.Second),
		storageReserve: big.NewInt(0),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state State) { e.state = state }

// SetRoyaltyLedger configures the ledger credited on successful mints.
func (e *Engine) SetRoyaltyLedger(ledger royaltyLedger) { e.royalties = ledger }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetVault configures the account holding escrowed deposits.
func (e *Engine) SetVault(addr [20]byte) { e.vault = addr }

// SetTreasury configures the account receiving retained penalties and the
// system share of fulfilled mints.
func (e *Engine) SetTreasury(addr [20]byte) { e.treasury = addr }

// SetStorageReserve configures the minting-cost reserve withheld from every
// fulfilled mint.
func (e *Engine) SetStorageReserve(reserve *big.Int) {
	if reserve == nil {
		e.storageReserve = big.NewInt(0)
		return
	}
	e.storageReserve = new(big.Int).Set(reserve)
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// begin opens a staged view when the backend supports transactions. The
// returned commit lands the staged writes in one batch; with a plain backend
// writes go straight through and commit is a no-op.
func (e *Engine) begin() (State, func() error) {
	if b, ok := e.state.(txBeginner); ok {
		tx := b.BeginMintTx()
		return tx, tx.Commit
	}
	return e.state, func() error { return nil }
}

func (e *Engine) transfer(st State, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("mint escrow: negative transfer amount")
	}
	fromAcc, err := st.GetAccount(from[:])
	if err != nil {
		return err
	}
	fromAcc = types.EnsureAccount(fromAcc)
	if fromAcc.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s want %s", ErrInsufficientBalance, fromAcc.Balance, amount)
	}
	toAcc, err := st.GetAccount(to[:])
	if err != nil {
		return err
	}
	toAcc = types.EnsureAccount(toAcc)
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := st.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return st.PutAccount(to[:], toAcc)
}

func (e *Engine) expired(req *MintRequest, now int64) bool {
	return now-req.CreatedAt >= e.lockTime
}

// Request escrows the deposit and opens a mint request for the content id.
// A predecessor request whose lock time has elapsed is reclaimed (100%
// refund, marked unsuccessful) before the new request proceeds.
func (e *Engine) Request(caller [20]byte, contentID string, deposit *big.Int, recipientHint string) (*MintRequest, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.pricing == nil {
		return nil, errNilPricing
	}
	if !ValidContentID(contentID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, contentID)
	}
	minDeposit := e.pricing.MinDeposit()
	if deposit == nil || deposit.Cmp(minDeposit) < 0 {
		supplied := big.NewInt(0)
		if deposit != nil {
			supplied = deposit
		}
		return nil, fmt.Errorf("%w: supplied %s, minimum %s", ErrInsufficientDeposit, supplied, minDeposit)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st, commit := e.begin()
	if _, minted, err := st.MintedTokenGet(contentID); err != nil {
		return nil, err
	} else if minted {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyMinted, contentID)
	}
	now := e.now()
	existing, ok, err := st.MintRequestGet(contentID)
	if err != nil {
		return nil, err
	}
	if ok && existing != nil {
		if existing.Status != StatusCreated || !e.expired(existing, now) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, contentID)
		}
		if err := e.reclaimExpired(st, existing); err != nil {
			return nil, err
		}
	}
	if err := e.transfer(st, caller, e.vault, deposit); err != nil {
		return nil, err
	}
	req := &MintRequest{
		ContentID:      contentID,
		Requester:      caller,
		RecipientHint:  recipientHint,
		EscrowedAmount: new(big.Int).Set(deposit),
		CreatedAt:      now,
		Status:         StatusCreated,
	}
	if err := st.MintRequestPut(req); err != nil {
		return nil, err
	}
	if err := commit(); err != nil {
		return nil, err
	}
	e.emit(events.MintRequested{ContentID: contentID, Requester: caller, Deposit: req.EscrowedAmount})
	return req.Clone(), nil
}

// reclaimExpired refunds an expired Created request in full to its original
// requester and settles it as unsuccessful, freeing the content id.
func (e *Engine) reclaimExpired(st State, req *MintRequest) error {
	if err := e.transfer(st, e.vault, req.Requester, req.EscrowedAmount); err != nil {
		return err
	}
	req.Status = StatusUnsuccessful
	req.EscrowedAmount = big.NewInt(0)
	return st.MintRequestDelete(req.ContentID)
}

// Cancel lets the requester abandon a pending request once the lock time has
// elapsed. 90% of the escrow is refunded; the retained 10% deters griefing.
func (e *Engine) Cancel(caller [20]byte, contentID string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st, commit := e.begin()
	req, ok, err := st.MintRequestGet(contentID)
	if err != nil {
		return nil, err
	}
	if !ok || req == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, contentID)
	}
	if req.Status != StatusCreated {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, req.Status)
	}
	now := e.now()
	if now-req.CreatedAt < e.lockTime {
		return nil, fmt.Errorf("%w: %ds remaining", ErrTooEarly, req.CreatedAt+e.lockTime-now)
	}
	if caller != req.Requester {
		return nil, ErrNotRequester
	}
	refund, err := e.settleCancellation(st, req)
	if err != nil {
		return nil, err
	}
	if err := commit(); err != nil {
		return nil, err
	}
	e.emit(events.CancelledMint{ContentID: contentID, Requester: caller, Refund: refund})
	return refund, nil
}

// settleCancellation refunds the truncated 90% share to the requester, moves
// the retained share to the treasury and removes the request.
func (e *Engine) settleCancellation(st State, req *MintRequest) (*big.Int, error) {
	escrowed := req.EscrowedAmount
	if escrowed == nil {
		escrowed = big.NewInt(0)
	}
	refund := new(big.Int).Mul(escrowed, big.NewInt(cancelRefundNum))
	refund.Div(refund, big.NewInt(cancelRefundDen))
	retained := new(big.Int).Sub(escrowed, refund)
	if err := e.transfer(st, e.vault, req.Requester, refund); err != nil {
		return nil, err
	}
	if err := e.transfer(st, e.vault, e.treasury, retained); err != nil {
		return nil, err
	}
	req.Status = StatusCancelled
	req.EscrowedAmount = big.NewInt(0)
	if err := st.MintRequestDelete(req.ContentID); err != nil {
		return nil, err
	}
	return refund, nil
}

// BeginFulfillment recomputes the required cost for the verified metrics and
// checks the escrow can cover it. Underfunding is a caller-side failure: the
// request is cancelled with the standard 90% refund and ErrUnderfunded is
// returned. On success the request is left untouched so a failed downstream
// mint keeps funds recoverable.
func (e *Engine) BeginFulfillment(contentID string, metrics pricing.EngagementMetrics) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.pricing == nil {
		return nil, errNilPricing
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st, commit := e.begin()
	req, ok, err := st.MintRequestGet(contentID)
	if err != nil {
		return nil, err
	}
	if !ok || req == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, contentID)
	}
	if req.Status != StatusCreated {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, req.Status)
	}
	required, err := e.pricing.Cost(metrics)
	if err != nil {
		return nil, err
	}
	if req.EscrowedAmount == nil || req.EscrowedAmount.Cmp(required) < 0 {
		escrowed := big.NewInt(0)
		if req.EscrowedAmount != nil {
			escrowed = new(big.Int).Set(req.EscrowedAmount)
		}
		refund, settleErr := e.settleCancellation(st, req)
		if settleErr != nil {
			return nil, settleErr
		}
		if err := commit(); err != nil {
			return nil, err
		}
		e.emit(events.CancelledMint{ContentID: contentID, Requester: req.Requester, Refund: refund})
		return nil, fmt.Errorf("%w: escrowed %s, required %s", ErrUnderfunded, escrowed, required)
	}
	return required, nil
}

// FinalizeMint settles the escrow after the token has been minted: the excess
// over the required cost is refunded, the storage reserve is withheld, 80% of
// the remainder is credited to the author's royalty balance and the rest is
// retained by the system. The request becomes terminally fulfilled.
func (e *Engine) FinalizeMint(contentID string, requiredCost *big.Int, author, recipient, tokenID string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if requiredCost == nil || requiredCost.Sign() <= 0 {
		return nil, fmt.Errorf("mint escrow: required cost must be positive")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st, commit := e.begin()
	req, ok, err := st.MintRequestGet(contentID)
	if err != nil {
		return nil, err
	}
	if !ok || req == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, contentID)
	}
	if req.Status != StatusCreated {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, req.Status)
	}
	escrowed := req.EscrowedAmount
	if escrowed == nil || escrowed.Cmp(requiredCost) < 0 {
		return nil, fmt.Errorf("%w: escrowed %s, required %s", ErrUnderfunded, escrowed, requiredCost)
	}
	excess := new(big.Int).Sub(escrowed, requiredCost)
	if err := e.transfer(st, e.vault, req.Requester, excess); err != nil {
		return nil, err
	}
	remainder := new(big.Int).Sub(requiredCost, e.storageReserve)
	authorCredit := big.NewInt(0)
	if remainder.Sign() > 0 {
		authorCredit = new(big.Int).Mul(remainder, big.NewInt(royaltyShareNum))
		authorCredit.Div(authorCredit, big.NewInt(royaltyShareDen))
		systemShare := new(big.Int).Sub(remainder, authorCredit)
		if author != "" && authorCredit.Sign() > 0 && e.royalties != nil {
			// The ledger commits through its own engine; the escrow
			// writes below land afterwards in one batch.
			if _, err := e.royalties.Credit(author, authorCredit); err != nil {
				return nil, err
			}
		} else {
			// No author to credit: the whole remainder stays with the system.
			systemShare = remainder
			authorCredit = big.NewInt(0)
		}
		if err := e.transfer(st, e.vault, e.treasury, systemShare); err != nil {
			return nil, err
		}
	}
	if err := st.MintedTokenPut(contentID, tokenID); err != nil {
		return nil, err
	}
	req.Status = StatusIsFulfilled
	req.EscrowedAmount = big.NewInt(0)
	if err := st.MintRequestPut(req); err != nil {
		return nil, err
	}
	if err := commit(); err != nil {
		return nil, err
	}
	e.emit(events.MintFulfilled{ContentID: contentID, Recipient: recipient, AuthorCredit: authorCredit})
	return authorCredit, nil
}

// Get returns the stored request for the content id, if any.
func (e *Engine) Get(contentID string) (*MintRequest, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	req, ok, err := e.state.MintRequestGet(contentID)
	if err != nil || !ok {
		return nil, ok, err
	}
	return req.Clone(), true, nil
}
