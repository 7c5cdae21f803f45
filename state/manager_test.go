package state

import (
	"math/big"
	"testing"

	"postmint/core/types"
	"postmint/native/mintescrow"
	"postmint/native/royalty"
	"postmint/storage"
)

func TestMintRequestRoundTrip(t *testing.T) {
	manager := NewManager(storage.NewMemDB())

	if _, ok, err := manager.MintRequestGet("123"); err != nil || ok {
		t.Fatalf("empty get: ok=%v err=%v", ok, err)
	}
	req := &mintescrow.MintRequest{
		ContentID:      "123",
		Requester:      [20]byte{0xAA},
		RecipientHint:  "collector.near",
		EscrowedAmount: big.NewInt(5_000_000),
		CreatedAt:      1_700_000_000,
		Status:         mintescrow.StatusCreated,
	}
	if err := manager.MintRequestPut(req); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, ok, err := manager.MintRequestGet("123")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if loaded.Requester != req.Requester || loaded.RecipientHint != req.RecipientHint {
		t.Fatal("request fields lost in round trip")
	}
	if loaded.EscrowedAmount.Cmp(req.EscrowedAmount) != 0 {
		t.Fatalf("escrow = %s, want %s", loaded.EscrowedAmount, req.EscrowedAmount)
	}
	if loaded.Status != mintescrow.StatusCreated || loaded.CreatedAt != req.CreatedAt {
		t.Fatal("status or timestamp lost in round trip")
	}
	if err := manager.MintRequestDelete("123"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := manager.MintRequestGet("123"); ok {
		t.Fatal("request survived delete")
	}
}

// A stored status outside the known range means the table was corrupted or
// written by a newer version; loading it must fail rather than let the engine
// act on garbage.
func TestMintRequestGetRejectsCorruptStatus(t *testing.T) {
	db := storage.NewMemDB()
	manager := NewManager(db)

	raw := []byte(`{"contentId":"123","escrowedAmount":1,"status":9}`)
	if err := db.Put([]byte("mint/req/123"), raw); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, _, err := manager.MintRequestGet("123"); err == nil {
		t.Fatal("corrupt status accepted")
	}
}

func TestMintedTokenRoundTrip(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	if _, ok, err := manager.MintedTokenGet("123"); err != nil || ok {
		t.Fatalf("empty get: ok=%v err=%v", ok, err)
	}
	if err := manager.MintedTokenPut("123", "tok-1"); err != nil {
		t.Fatalf("put: %v", err)
	}
	tokenID, ok, err := manager.MintedTokenGet("123")
	if err != nil || !ok || tokenID != "tok-1" {
		t.Fatalf("get = %q/%v/%v, want tok-1", tokenID, ok, err)
	}
}

func TestRoyaltyRoundTrip(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	balance := &royalty.Balance{Author: "author.near", Amount: big.NewInt(1_600_000), Updated: 1_700_000_000}
	if err := manager.RoyaltyPut(balance); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, ok, err := manager.RoyaltyGet("author.near")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if loaded.Amount.Cmp(balance.Amount) != 0 || loaded.Updated != balance.Updated {
		t.Fatal("balance lost in round trip")
	}
}

func TestGetAccountDefaultsToZero(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	addr := []byte{0xF0, 0x01}

	account, err := manager.GetAccount(addr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if account.Balance.Sign() != 0 || account.Nonce != 0 {
		t.Fatal("unknown account not zeroed")
	}
	account.Balance = big.NewInt(42)
	account.Nonce = 7
	if err := manager.PutAccount(addr, account); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, err := manager.GetAccount(addr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Balance.Cmp(big.NewInt(42)) != 0 || loaded.Nonce != 7 {
		t.Fatal("account lost in round trip")
	}
}

// Staged writes read back inside the transaction but stay invisible to the
// base manager until Commit; an abandoned transaction leaves no trace.
func TestTxStagesUntilCommit(t *testing.T) {
	manager := NewManager(storage.NewMemDB())

	tx := manager.Begin()
	if err := tx.MintedTokenPut("123", "tok-1"); err != nil {
		t.Fatalf("staged put: %v", err)
	}
	if tokenID, ok, _ := tx.MintedTokenGet("123"); !ok || tokenID != "tok-1" {
		t.Fatalf("staged read = %q/%v, want own write", tokenID, ok)
	}
	if _, ok, _ := manager.MintedTokenGet("123"); ok {
		t.Fatal("staged write visible before commit")
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if tokenID, ok, _ := manager.MintedTokenGet("123"); !ok || tokenID != "tok-1" {
		t.Fatalf("committed read = %q/%v, want tok-1", tokenID, ok)
	}

	abandoned := manager.Begin()
	if err := abandoned.MintedTokenPut("456", "tok-2"); err != nil {
		t.Fatalf("staged put: %v", err)
	}
	if _, ok, _ := manager.MintedTokenGet("456"); ok {
		t.Fatal("abandoned transaction leaked")
	}
}

// A staged delete hides the key inside the transaction and removes it on
// commit.
func TestTxStagedDelete(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	req := &mintescrow.MintRequest{ContentID: "123", EscrowedAmount: big.NewInt(1)}
	if err := manager.MintRequestPut(req); err != nil {
		t.Fatalf("put: %v", err)
	}

	tx := manager.Begin()
	if err := tx.MintRequestDelete("123"); err != nil {
		t.Fatalf("staged delete: %v", err)
	}
	if _, ok, _ := tx.MintRequestGet("123"); ok {
		t.Fatal("deleted key still readable inside transaction")
	}
	if _, ok, _ := manager.MintRequestGet("123"); !ok {
		t.Fatal("staged delete visible before commit")
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, ok, _ := manager.MintRequestGet("123"); ok {
		t.Fatal("request survived committed delete")
	}
}

// The raw key layout is part of the external contract: indexers read the
// tables directly, so the prefixes must stay stable and unhashed.
func TestRawKeyLayout(t *testing.T) {
	db := storage.NewMemDB()
	manager := NewManager(db)

	if err := manager.MintedTokenPut("123", "tok-1"); err != nil {
		t.Fatalf("put token: %v", err)
	}
	if err := manager.RoyaltyPut(&royalty.Balance{Author: "author.near", Amount: big.NewInt(1)}); err != nil {
		t.Fatalf("put royalty: %v", err)
	}
	if err := manager.PutAccount([]byte{0xF0, 0x01}, &types.Account{Balance: big.NewInt(1)}); err != nil {
		t.Fatalf("put account: %v", err)
	}
	if err := manager.MintRequestPut(&mintescrow.MintRequest{ContentID: "123", EscrowedAmount: big.NewInt(1)}); err != nil {
		t.Fatalf("put request: %v", err)
	}
	for _, key := range []string{
		"mint/req/123",
		"mint/token/123",
		"royalty/author.near",
		"account/f001",
	} {
		if _, err := db.Get([]byte(key)); err != nil {
			t.Fatalf("key %q not stored: %v", key, err)
		}
	}
}
