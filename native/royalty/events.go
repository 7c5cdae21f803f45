package royalty

import (
	"encoding/hex"
	"math/big"

	"postmint/core/types"
)

const (
	EventTypeRoyaltyCredited  = "royalty.credited"
	EventTypeRoyaltyDebited   = "royalty.debited"
	EventTypeRoyaltyWithdrawn = "royalty.withdrawn"
	EventTypeManagerUpdated   = "royalty.manager_updated"
)

type royaltyEvent struct {
	evt *types.Event
}

func (e royaltyEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e royaltyEvent) Event() *types.Event { return e.evt }

func wrapEvent(evt *types.Event) royaltyEvent { return royaltyEvent{evt: evt} }

func creditedEvent(author string, amount, total *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeRoyaltyCredited,
		Attributes: map[string]string{
			"author": author,
			"amount": amount.String(),
			"total":  total.String(),
		},
	}
}

func debitedEvent(author string, amount, total *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeRoyaltyDebited,
		Attributes: map[string]string{
			"author": author,
			"amount": amount.String(),
			"total":  total.String(),
		},
	}
}

func withdrawnEvent(manager [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeRoyaltyWithdrawn,
		Attributes: map[string]string{
			"manager": "0x" + hex.EncodeToString(manager[:]),
			"amount":  amount.String(),
		},
	}
}

func managerUpdatedEvent(manager [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeManagerUpdated,
		Attributes: map[string]string{
			"manager": "0x" + hex.EncodeToString(manager[:]),
		},
	}
}
