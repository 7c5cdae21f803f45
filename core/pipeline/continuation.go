package pipeline

import (
	"math/big"

	"postmint/core/types"
)

// Continuation carries the cross-hop state of a mint run. Hops execute in
// isolated contexts with no shared call stack, so everything a later hop
// needs travels here as explicit arguments rather than being closed over.
type Continuation struct {
	RunID        string
	ContentID    string
	Caller       string
	Metadata     types.TokenMetadata
	Recipient    string
	Author       string
	RequiredCost *big.Int
	TokenID      string
}
