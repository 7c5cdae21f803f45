package mintescrow

import (
	"math/big"
	"strings"
)

// Status enumerates the lifecycle states of a mint request. Created is the
// only live state; the remaining states are absorbing.
type Status uint8

const (
	StatusCreated Status = iota
	StatusIsFulfilled
	StatusUnsuccessful
	StatusCancelled
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusIsFulfilled, StatusUnsuccessful, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusIsFulfilled:
		return "fulfilled"
	case StatusUnsuccessful:
		return "unsuccessful"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MintRequest captures the escrowed deposit and runtime status of a single
// proof-gated mint, keyed by the external content identifier.
type MintRequest struct {
	ContentID      string   `json:"contentId"`
	Requester      [20]byte `json:"requester"`
	RecipientHint  string   `json:"recipientHint,omitempty"`
	EscrowedAmount *big.Int `json:"escrowedAmount"`
	CreatedAt      int64    `json:"createdAt"`
	Status         Status   `json:"status"`
}

// Clone returns a deep copy of the request so callers can safely mutate the
// copy without affecting the stored instance.
func (r *MintRequest) Clone() *MintRequest {
	if r == nil {
		return nil
	}
	clone := *r
	if r.EscrowedAmount != nil {
		clone.EscrowedAmount = new(big.Int).Set(r.EscrowedAmount)
	} else {
		clone.EscrowedAmount = big.NewInt(0)
	}
	return &clone
}

// ValidContentID reports whether the identifier is a well-formed positive
// numeric string: decimal digits only, at least one of them non-zero.
func ValidContentID(id string) bool {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" || trimmed != id {
		return false
	}
	positive := false
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
		if r != '0' {
			positive = true
		}
	}
	return positive
}
