package events

import (
	"encoding/hex"
	"math/big"

	"postmint/core/types"
)

const (
	// TypeMintRequested is emitted when a funded mint request is accepted.
	TypeMintRequested = "mint.requested"
	// TypeCancelledMint is emitted when a requester cancels a pending request.
	TypeCancelledMint = "mint.cancelled"
	// TypeMintFulfilled is emitted once a proof-gated mint settles.
	TypeMintFulfilled = "mint.fulfilled"
)

// MintRequested records a newly escrowed mint request.
type MintRequested struct {
	ContentID string
	Requester [20]byte
	Deposit   *big.Int
}

func (MintRequested) EventType() string { return TypeMintRequested }

func (e MintRequested) Event() *types.Event {
	deposit := e.Deposit
	if deposit == nil {
		deposit = big.NewInt(0)
	}
	return &types.Event{
		Type: TypeMintRequested,
		Attributes: map[string]string{
			"contentId": e.ContentID,
			"requester": hexAddr(e.Requester),
			"deposit":   deposit.String(),
		},
	}
}

// CancelledMint records a cancellation together with the refunded amount.
type CancelledMint struct {
	ContentID string
	Requester [20]byte
	Refund    *big.Int
}

func (CancelledMint) EventType() string { return TypeCancelledMint }

func (e CancelledMint) Event() *types.Event {
	refund := e.Refund
	if refund == nil {
		refund = big.NewInt(0)
	}
	return &types.Event{
		Type: TypeCancelledMint,
		Attributes: map[string]string{
			"contentId": e.ContentID,
			"requester": hexAddr(e.Requester),
			"refund":    refund.String(),
		},
	}
}

// MintFulfilled records a settled mint together with the author credit.
type MintFulfilled struct {
	ContentID    string
	Recipient    string
	AuthorCredit *big.Int
}

func (MintFulfilled) EventType() string { return TypeMintFulfilled }

func (e MintFulfilled) Event() *types.Event {
	credit := e.AuthorCredit
	if credit == nil {
		credit = big.NewInt(0)
	}
	return &types.Event{
		Type: TypeMintFulfilled,
		Attributes: map[string]string{
			"contentId":    e.ContentID,
			"recipient":    e.Recipient,
			"authorCredit": credit.String(),
		},
	}
}

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}
