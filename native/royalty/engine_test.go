package royalty

import (
	"errors"
	"math/big"
	"testing"

	"postmint/core/types"
)

type mockState struct {
	balances map[string]*Balance
	accounts map[string]*types.Account
}

func newMockState() *mockState {
	return &mockState{
		balances: make(map[string]*Balance),
		accounts: make(map[string]*types.Account),
	}
}

func (m *mockState) RoyaltyGet(author string) (*Balance, bool, error) {
	balance, ok := m.balances[author]
	if !ok {
		return nil, false, nil
	}
	return balance.Clone(), true, nil
}

func (m *mockState) RoyaltyPut(balance *Balance) error {
	m.balances[balance.Author] = balance.Clone()
	return nil
}

func (m *mockState) GetAccount(addr []byte) (*types.Account, error) {
	acc, ok := m.accounts[string(addr)]
	if !ok {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	return &types.Account{Nonce: acc.Nonce, Balance: new(big.Int).Set(acc.Balance)}, nil
}

func (m *mockState) PutAccount(addr []byte, account *types.Account) error {
	m.accounts[string(addr)] = &types.Account{Nonce: account.Nonce, Balance: new(big.Int).Set(account.Balance)}
	return nil
}

func (m *mockState) fund(addr [20]byte, amount int64) {
	m.accounts[string(addr[:])] = &types.Account{Balance: big.NewInt(amount)}
}

func (m *mockState) balance(addr [20]byte) *big.Int {
	acc, ok := m.accounts[string(addr[:])]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(acc.Balance)
}

var (
	owner   = [20]byte{0x01}
	manager = [20]byte{0x02}
	vault   = [20]byte{0x0F}
)

func newTestEngine(state *mockState) *Engine {
	engine := NewEngine(owner)
	engine.SetState(state)
	engine.SetVault(vault)
	engine.SetNowFunc(func() int64 { return 1700000000 })
	return engine
}

func TestCreditInitializesAndAccumulates(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)

	balance, err := engine.Credit("author.one", big.NewInt(100))
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if balance.Amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("balance = %s, want 100", balance.Amount)
	}
	balance, err = engine.Credit("author.one", big.NewInt(50))
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if balance.Amount.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("balance = %s, want 150", balance.Amount)
	}
}

func TestCreditRejectsBadInput(t *testing.T) {
	engine := newTestEngine(newMockState())
	if _, err := engine.Credit("  ", big.NewInt(1)); !errors.Is(err, ErrInvalidAuthor) {
		t.Fatalf("expected ErrInvalidAuthor, got %v", err)
	}
	if _, err := engine.Credit("author", big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := engine.Credit("author", nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestDebitInsufficientBalance(t *testing.T) {
	engine := newTestEngine(newMockState())
	if _, err := engine.Credit("author", big.NewInt(40)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := engine.Debit("author", big.NewInt(41)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	balance, err := engine.Debit("author", big.NewInt(40))
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if balance.Amount.Sign() != 0 {
		t.Fatalf("balance = %s, want 0", balance.Amount)
	}
}

func TestWithdrawManagerGatedAndReserveBound(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	engine.SetStorageReserve(big.NewInt(30))
	state.fund(vault, 100)

	if err := engine.Withdraw(manager, big.NewInt(10)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := engine.SetManager(owner, manager); err != nil {
		t.Fatalf("set manager: %v", err)
	}
	if err := engine.Withdraw(manager, big.NewInt(71)); !errors.Is(err, ErrInsufficientReserve) {
		t.Fatalf("expected ErrInsufficientReserve, got %v", err)
	}
	if err := engine.Withdraw(manager, big.NewInt(70)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := state.balance(vault); got.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("vault = %s, want 30 (reserve intact)", got)
	}
	if got := state.balance(manager); got.Cmp(big.NewInt(70)) != 0 {
		t.Fatalf("manager = %s, want 70", got)
	}
}

func TestSetManagerOwnerGated(t *testing.T) {
	engine := newTestEngine(newMockState())
	if err := engine.SetManager(manager, manager); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := engine.SetManager(owner, manager); err != nil {
		t.Fatalf("set manager: %v", err)
	}
	if engine.Manager() != manager {
		t.Fatal("manager not updated")
	}
}

func TestZeroOwnerGated(t *testing.T) {
	engine := newTestEngine(newMockState())
	if _, err := engine.Credit("author", big.NewInt(25)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := engine.Zero(manager, "author"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := engine.Zero(owner, "author"); err != nil {
		t.Fatalf("zero: %v", err)
	}
	balance, err := engine.BalanceOf("author")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Amount.Sign() != 0 {
		t.Fatalf("balance = %s, want 0", balance.Amount)
	}
}
