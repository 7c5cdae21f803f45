package proof

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// journalSelector is the first four bytes of keccak256("isJournalVerified(bytes)").
var journalSelector = ethcrypto.Keccak256([]byte("isJournalVerified(bytes)"))[:4]

var journalArgs = mustJournalArgs()

func mustJournalArgs() abi.Arguments {
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(fmt.Sprintf("proof: build abi type: %v", err))
	}
	return abi.Arguments{{Name: "journal", Type: bytesType}}
}

// BridgeCaller issues the outbound call that asks the remote execution
// environment whether a journal has been verified. Implementations surface
// remote revert messages verbatim in the returned error.
type BridgeCaller interface {
	Call(ctx context.Context, verifier string, payload []byte) ([]byte, error)
}

// BridgeVerifier delegates proof verification to a remote zk-verifier behind
// a bridge call. The metadata digest is bound to the journal locally before
// any outbound traffic so metadata cannot be substituted after proof
// generation.
type BridgeVerifier struct {
	caller  BridgeCaller
	cfg     *ConfigStore
	timeout time.Duration
}

// NewBridgeVerifier constructs a bridge-backed verifier. A non-positive
// timeout disables the per-call deadline.
func NewBridgeVerifier(caller BridgeCaller, cfg *ConfigStore, timeout time.Duration) *BridgeVerifier {
	return &BridgeVerifier{caller: caller, cfg: cfg, timeout: timeout}
}

// Verify implements the Verifier interface.
func (v *BridgeVerifier) Verify(ctx context.Context, contentID, caller string, artifact Artifact) (*VerifiedMetadata, error) {
	if v == nil || v.caller == nil || v.cfg == nil {
		return nil, fmt.Errorf("proof: bridge verifier not configured")
	}
	if artifact.Metadata == nil {
		return nil, fmt.Errorf("%w: metadata required", ErrMetadataPayload)
	}
	digest, err := artifact.Metadata.Digest()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataPayload, err)
	}
	if !bytes.Equal(digest[:], artifact.Journal) {
		return nil, ErrJournalMismatch
	}
	payload, err := EncodeJournalCall(artifact.Journal)
	if err != nil {
		return nil, err
	}
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}
	result, err := v.caller.Call(ctx, v.cfg.Snapshot().RemoteVerifier, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if err := ParseBridgeResult(result); err != nil {
		return nil, err
	}
	recipient, author := resolveIdentities(*artifact.Metadata, caller)
	metadata := *artifact.Metadata
	return &VerifiedMetadata{Metadata: metadata, Recipient: recipient, Author: author}, nil
}

// EncodeJournalCall builds the outbound payload: the 4-byte function
// selector followed by the ABI encoding of (bytes journal).
func EncodeJournalCall(journal []byte) ([]byte, error) {
	packed, err := journalArgs.Pack(journal)
	if err != nil {
		return nil, fmt.Errorf("proof: encode journal: %w", err)
	}
	payload := make([]byte, 0, len(journalSelector)+len(packed))
	payload = append(payload, journalSelector...)
	payload = append(payload, packed...)
	return payload, nil
}

// ParseBridgeResult interprets the fixed-format verification result. The
// remote verifier answers with an ABI-encoded bool: success iff the low-order
// bit of byte 31 is set. Any other byte pattern fails closed.
func ParseBridgeResult(result []byte) error {
	if len(result) < 32 {
		return fmt.Errorf("%w: short result (%d bytes)", ErrInvalidProof, len(result))
	}
	if result[31]&1 != 1 {
		return fmt.Errorf("%w: verifier reported failure", ErrInvalidProof)
	}
	return nil
}
