package proof

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"postmint/core/types"
)

var (
	// ErrJournalMismatch indicates the metadata digest does not match the proof journal.
	ErrJournalMismatch = errors.New("proof: metadata digest does not match journal")
	// ErrInvalidProof indicates the remote verifier rejected the journal.
	ErrInvalidProof = errors.New("proof: invalid proof")
	// ErrMalformedSignature indicates the signature is not the expected 65 bytes.
	ErrMalformedSignature = errors.New("proof: malformed signature")
	// ErrInvalidSignature indicates the recovered key does not match the trusted key.
	ErrInvalidSignature = errors.New("proof: invalid signature")
	// ErrMetadataPayload indicates the embedded metadata payload could not be parsed.
	ErrMetadataPayload = errors.New("proof: malformed metadata payload")
	// ErrUnauthorized indicates the caller may not mutate the verifier configuration.
	ErrUnauthorized = errors.New("proof: unauthorized")
)

// Artifact bundles the strategy-specific inputs supplied with a verification
// request. Bridge verification consumes Journal and Metadata; signature
// verification consumes Proof and Signature.
type Artifact struct {
	Journal   []byte
	Metadata  *types.TokenMetadata
	Proof     []byte
	Signature []byte
}

// VerifiedMetadata is the common downstream shape produced by every
// verification strategy.
type VerifiedMetadata struct {
	Metadata  types.TokenMetadata
	Recipient string
	Author    string
}

// Verifier validates a proof artifact for a piece of content. Implementations
// must not mutate escrow state; the caller decides what a successful
// verification unlocks.
type Verifier interface {
	Verify(ctx context.Context, contentID, caller string, artifact Artifact) (*VerifiedMetadata, error)
}

// VerifierConfig holds the mutable trust anchors shared by the strategies.
type VerifierConfig struct {
	RemoteVerifier   string
	TrustedPublicKey string
	NFTRegistry      string
}

// ConfigStore guards the verifier configuration behind an operator gate.
type ConfigStore struct {
	mu       sync.RWMutex
	operator [20]byte
	cfg      VerifierConfig
}

// NewConfigStore binds the initial configuration to the supplied operator.
func NewConfigStore(operator [20]byte, cfg VerifierConfig) *ConfigStore {
	return &ConfigStore{operator: operator, cfg: cfg}
}

// Update replaces the configuration. Only the configured operator may call it.
func (s *ConfigStore) Update(caller [20]byte, cfg VerifierConfig) error {
	if s == nil {
		return ErrUnauthorized
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if caller != s.operator {
		return ErrUnauthorized
	}
	s.cfg = cfg
	return nil
}

// SetOperator hands the operator role to a new identity. Only the current
// operator may call it.
func (s *ConfigStore) SetOperator(caller, next [20]byte) error {
	if s == nil {
		return ErrUnauthorized
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if caller != s.operator {
		return ErrUnauthorized
	}
	s.operator = next
	return nil
}

// Snapshot returns a copy of the current configuration.
func (s *ConfigStore) Snapshot() VerifierConfig {
	if s == nil {
		return VerifierConfig{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

type metadataExtra struct {
	MintedTo string `json:"minted_to"`
	Author   string `json:"author"`
}

// resolveIdentities extracts the recipient and author recorded in the
// metadata extra payload. An absent recipient defaults to the caller.
func resolveIdentities(md types.TokenMetadata, caller string) (recipient, author string) {
	recipient = strings.TrimSpace(caller)
	if len(md.Extra) == 0 {
		return recipient, ""
	}
	var extra metadataExtra
	if err := json.Unmarshal(md.Extra, &extra); err != nil {
		return recipient, ""
	}
	if trimmed := strings.TrimSpace(extra.MintedTo); trimmed != "" {
		recipient = trimmed
	}
	return recipient, strings.TrimSpace(extra.Author)
}
