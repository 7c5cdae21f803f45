package state

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"postmint/core/pricing"
	"postmint/core/types"
	"postmint/native/mintescrow"
	"postmint/native/royalty"
	"postmint/storage"
)

var (
	alice        = [20]byte{0xAA}
	bob          = [20]byte{0xBB}
	escrowVault  = [20]byte{0xF0, 0x01}
	treasuryAddr = [20]byte{0xF0, 0x02}
)

// newEscrowEngine wires a real escrow engine against the manager with a fixed
// clock. Pricing: minimum deposit 1e6, cost = 1e6 + likes.
func newEscrowEngine(t *testing.T, manager *Manager) *mintescrow.Engine {
	t.Helper()
	pricingEngine, err := pricing.NewEngine(
		big.NewInt(1_000_000),
		big.NewInt(1_000_000),
		pricing.Denominator,
		pricing.CostTable{Likes: 1},
	)
	if err != nil {
		t.Fatalf("pricing engine: %v", err)
	}
	engine := mintescrow.NewEngine(pricingEngine, time.Hour)
	engine.SetState(manager)
	engine.SetVault(escrowVault)
	engine.SetTreasury(treasuryAddr)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	return engine
}

func fund(t *testing.T, manager *Manager, addr [20]byte, amount int64) {
	t.Helper()
	if err := manager.PutAccount(addr[:], &types.Account{Balance: big.NewInt(amount)}); err != nil {
		t.Fatalf("fund %x: %v", addr[:2], err)
	}
}

func balanceOf(t *testing.T, manager *Manager, addr [20]byte) *big.Int {
	t.Helper()
	account, err := manager.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("balance %x: %v", addr[:2], err)
	}
	return account.Balance
}

// Two simultaneous requests for one content id must resolve to a single
// winner: one deposit escrowed, the loser rejected with Locked and fully
// funded still.
func TestConcurrentRequestsSingleWinner(t *testing.T) {
	const deposit = 2_000_000
	for i := 0; i < 20; i++ {
		manager := NewManager(storage.NewMemDB())
		engine := newEscrowEngine(t, manager)
		fund(t, manager, alice, deposit)
		fund(t, manager, bob, deposit)

		contentID := fmt.Sprintf("%d", 100+i)
		start := make(chan struct{})
		results := make(chan error, 2)
		var wg sync.WaitGroup
		for _, caller := range [][20]byte{alice, bob} {
			wg.Add(1)
			go func(caller [20]byte) {
				defer wg.Done()
				<-start
				_, err := engine.Request(caller, contentID, big.NewInt(deposit), "")
				results <- err
			}(caller)
		}
		close(start)
		wg.Wait()
		close(results)

		var wins, locked int
		for err := range results {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, mintescrow.ErrLocked):
				locked++
			default:
				t.Fatalf("iteration %d: unexpected error: %v", i, err)
			}
		}
		if wins != 1 || locked != 1 {
			t.Fatalf("iteration %d: wins=%d locked=%d, want exactly one of each", i, wins, locked)
		}
		if got := balanceOf(t, manager, escrowVault); got.Cmp(big.NewInt(deposit)) != 0 {
			t.Fatalf("iteration %d: vault = %s, want %d", i, got, deposit)
		}
		req, ok, err := engine.Get(contentID)
		if err != nil || !ok {
			t.Fatalf("iteration %d: stored request: ok=%v err=%v", i, ok, err)
		}
		loserBalance := balanceOf(t, manager, bob)
		if req.Requester == bob {
			loserBalance = balanceOf(t, manager, alice)
		}
		if loserBalance.Cmp(big.NewInt(deposit)) != 0 {
			t.Fatalf("iteration %d: loser balance = %s, want untouched %d", i, loserBalance, deposit)
		}
	}
}

// failingDB refuses batch commits so tests can observe what a request leaves
// behind when the final write fails.
type failingDB struct {
	*storage.MemDB
	writeErr error
}

func (db *failingDB) Write(batch storage.Batch) error { return db.writeErr }

// A request whose commit fails must leave no trace: the requester keeps the
// deposit, the vault stays empty and no record exists.
func TestRequestCommitFailureLeavesNoPartialState(t *testing.T) {
	const deposit = 2_000_000
	boom := errors.New("disk full")
	db := &failingDB{MemDB: storage.NewMemDB(), writeErr: boom}
	manager := NewManager(db)
	engine := newEscrowEngine(t, manager)
	fund(t, manager, alice, deposit)

	if _, err := engine.Request(alice, "123", big.NewInt(deposit), ""); !errors.Is(err, boom) {
		t.Fatalf("request err = %v, want %v", err, boom)
	}
	if got := balanceOf(t, manager, alice); got.Cmp(big.NewInt(deposit)) != 0 {
		t.Fatalf("requester balance = %s, want untouched %d", got, deposit)
	}
	if got := balanceOf(t, manager, escrowVault); got.Sign() != 0 {
		t.Fatalf("vault balance = %s, want 0", got)
	}
	if _, ok, err := manager.MintRequestGet("123"); err != nil || ok {
		t.Fatalf("request record: ok=%v err=%v, want absent", ok, err)
	}
}

// Full request-fulfill-finalize lifecycle over a real manager and database,
// with the royalty ledger sharing the same backing state.
func TestEscrowLifecycleOverManager(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	engine := newEscrowEngine(t, manager)
	royalties := royalty.NewEngine([20]byte{0x01})
	royalties.SetState(manager)
	engine.SetRoyaltyLedger(royalties)
	fund(t, manager, alice, 3_000_000)

	if _, err := engine.Request(alice, "777", big.NewInt(3_000_000), "collector.near"); err != nil {
		t.Fatalf("request: %v", err)
	}
	required, err := engine.BeginFulfillment("777", pricing.EngagementMetrics{Likes: 500_000})
	if err != nil {
		t.Fatalf("begin fulfillment: %v", err)
	}
	if required.Cmp(big.NewInt(1_500_000)) != 0 {
		t.Fatalf("required = %s, want 1500000", required)
	}
	credit, err := engine.FinalizeMint("777", required, "author.near", "collector.near", "tok-777")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if credit.Cmp(big.NewInt(1_200_000)) != 0 {
		t.Fatalf("author credit = %s, want 1200000", credit)
	}
	// Excess over the required cost comes back to the requester.
	if got := balanceOf(t, manager, alice); got.Cmp(big.NewInt(1_500_000)) != 0 {
		t.Fatalf("requester balance = %s, want 1500000", got)
	}
	if got := balanceOf(t, manager, treasuryAddr); got.Cmp(big.NewInt(300_000)) != 0 {
		t.Fatalf("treasury balance = %s, want 300000", got)
	}
	ledgerBalance, ok, err := manager.RoyaltyGet("author.near")
	if err != nil || !ok {
		t.Fatalf("royalty balance: ok=%v err=%v", ok, err)
	}
	if ledgerBalance.Amount.Cmp(big.NewInt(1_200_000)) != 0 {
		t.Fatalf("ledger balance = %s, want 1200000", ledgerBalance.Amount)
	}
	tokenID, ok, err := manager.MintedTokenGet("777")
	if err != nil || !ok || tokenID != "tok-777" {
		t.Fatalf("minted token = %q/%v/%v, want tok-777", tokenID, ok, err)
	}
	if _, err := engine.Request(alice, "777", big.NewInt(3_000_000), ""); !errors.Is(err, mintescrow.ErrAlreadyMinted) {
		t.Fatalf("re-request err = %v, want already minted", err)
	}
}
