package proof

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EVMBridge issues journal verification calls against an EVM execution
// environment over JSON-RPC.
type EVMBridge struct {
	client *ethclient.Client
}

// DialBridge initialises an EVM RPC client for the provided endpoint.
func DialBridge(endpoint string) (*EVMBridge, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("proof: bridge endpoint required")
	}
	client, err := ethclient.Dial(trimmed)
	if err != nil {
		return nil, fmt.Errorf("proof: dial bridge: %w", err)
	}
	return &EVMBridge{client: client}, nil
}

// Call performs a read-only contract call against the configured verifier.
// Remote reverts are decoded and their messages surfaced verbatim.
func (b *EVMBridge) Call(ctx context.Context, verifier string, payload []byte) ([]byte, error) {
	if b == nil || b.client == nil {
		return nil, fmt.Errorf("proof: bridge client not initialised")
	}
	trimmed := strings.TrimSpace(verifier)
	if trimmed == "" {
		return nil, fmt.Errorf("proof: remote verifier not configured")
	}
	if !common.IsHexAddress(trimmed) {
		return nil, fmt.Errorf("proof: invalid remote verifier address %q", trimmed)
	}
	addr := common.HexToAddress(trimmed)
	result, err := b.client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		if reason, ok := revertReason(err); ok {
			return nil, fmt.Errorf("remote revert: %s", reason)
		}
		return nil, err
	}
	return result, nil
}

// Close releases the underlying RPC connection.
func (b *EVMBridge) Close() {
	if b != nil && b.client != nil {
		b.client.Close()
	}
}

// revertReason extracts a solidity Error(string) message from an RPC error
// carrying revert data.
func revertReason(err error) (string, bool) {
	dataErr, ok := err.(interface{ ErrorData() interface{} })
	if !ok {
		return "", false
	}
	encoded, ok := dataErr.ErrorData().(string)
	if !ok {
		return "", false
	}
	raw, decodeErr := hex.DecodeString(strings.TrimPrefix(encoded, "0x"))
	if decodeErr != nil || len(raw) < 4 {
		return "", false
	}
	reason, unpackErr := abi.UnpackRevert(raw)
	if unpackErr != nil {
		return "", false
	}
	return reason, true
}
