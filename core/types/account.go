package types

import "math/big"

// Account holds the spendable balance tracked for a participant. Escrowed
// deposits live in the module vault account until a request settles.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}

// EnsureAccount returns a usable account value, allocating zeroed balances for
// nil inputs so callers never touch a nil big.Int.
func EnsureAccount(acc *Account) *Account {
	if acc == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}
