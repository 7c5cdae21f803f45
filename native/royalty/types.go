package royalty

import (
	"math/big"
	"strings"
)

// Balance tracks the funds accrued by a single author from fulfilled mints.
type Balance struct {
	Author  string   `json:"author"`
	Amount  *big.Int `json:"amount"`
	Updated int64    `json:"updated"`
}

// Clone returns a deep copy so callers can mutate the result safely.
func (b *Balance) Clone() *Balance {
	if b == nil {
		return nil
	}
	clone := *b
	if b.Amount != nil {
		clone.Amount = new(big.Int).Set(b.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// NormalizeAuthor trims the author identifier used as the ledger key.
func NormalizeAuthor(author string) string {
	return strings.TrimSpace(author)
}
