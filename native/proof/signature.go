package proof

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"postmint/core/types"
)

const signatureLength = 65

var (
	openDelimiter  = []byte("\r\n{")
	closeDelimiter = []byte("}}\r\n")
)

// SignatureVerifier validates notarized transcripts locally: it recovers the
// signer of an Ethereum personal message over the Merkle root of the proof
// bytes and compares it against the configured trusted key. No outbound call
// is made.
type SignatureVerifier struct {
	cfg *ConfigStore
}

// NewSignatureVerifier constructs a verifier bound to the shared config store.
func NewSignatureVerifier(cfg *ConfigStore) *SignatureVerifier {
	return &SignatureVerifier{cfg: cfg}
}

// Verify implements the Verifier interface.
func (v *SignatureVerifier) Verify(_ context.Context, contentID, caller string, artifact Artifact) (*VerifiedMetadata, error) {
	if v == nil || v.cfg == nil {
		return nil, fmt.Errorf("proof: signature verifier not configured")
	}
	if len(artifact.Signature) != signatureLength {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedSignature, len(artifact.Signature), signatureLength)
	}
	root := MerkleRoot([][32]byte{LeafHash(artifact.Proof)})
	recovered, err := recoverSigner(root, artifact.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	trusted := normalizeKey(v.cfg.Snapshot().TrustedPublicKey)
	if trusted == "" || recovered != trusted {
		return nil, fmt.Errorf("%w: signer %s is not trusted", ErrInvalidSignature, recovered)
	}
	payload, err := extractEmbeddedJSON(artifact.Proof)
	if err != nil {
		return nil, err
	}
	var metadata types.TokenMetadata
	if err := json.Unmarshal(payload, &metadata); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataPayload, err)
	}
	if strings.TrimSpace(metadata.ID) == "" {
		metadata.ID = strings.TrimSpace(contentID)
	}
	recipient, author := resolveIdentities(metadata, caller)
	return &VerifiedMetadata{Metadata: metadata, Recipient: recipient, Author: author}, nil
}

// recoverSigner recovers the uncompressed public key that signed the personal
// message over the hex-encoded root and returns it as lower-case hex without
// the 0x04 point prefix.
func recoverSigner(root [32]byte, signature []byte) (string, error) {
	rootHex := hex.EncodeToString(root[:])
	message := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(rootHex), rootHex)
	digest := ethcrypto.Keccak256([]byte(message))
	sig := make([]byte, signatureLength)
	copy(sig, signature)
	// Legacy convention offsets the recovery id by 27.
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return "", err
	}
	raw := ethcrypto.FromECDSAPub(pub)
	return hex.EncodeToString(raw[1:]), nil
}

func normalizeKey(key string) string {
	trimmed := strings.TrimSpace(strings.ToLower(key))
	return strings.TrimPrefix(trimmed, "0x")
}

// extractEmbeddedJSON pulls the JSON object framed inside an HTTP body
// between the first "\r\n{" and the last "}}\r\n" markers. The framing is
// proof-source specific and intentionally preserved byte for byte.
func extractEmbeddedJSON(proof []byte) ([]byte, error) {
	start := bytes.Index(proof, openDelimiter)
	if start < 0 {
		return nil, fmt.Errorf("%w: opening delimiter not found", ErrMetadataPayload)
	}
	end := bytes.LastIndex(proof, closeDelimiter)
	if end < 0 {
		return nil, fmt.Errorf("%w: closing delimiter not found", ErrMetadataPayload)
	}
	open := start + len(openDelimiter) - 1
	stop := end + 2
	if stop <= open {
		return nil, fmt.Errorf("%w: delimiters out of order", ErrMetadataPayload)
	}
	return proof[open:stop], nil
}
