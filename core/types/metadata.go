package types

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
)

// TokenMetadata is the immutable description of a minted token. The canonical
// JSON encoding is the signing surface: its SHA-256 digest must equal the
// proof journal before any mint is allowed to proceed.
type TokenMetadata struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Media       string          `json:"media"`
	Extra       json.RawMessage `json:"extra,omitempty"`
}

// CanonicalJSON returns the canonical encoding used to bind metadata to a
// proof journal. Field order is fixed and whitespace-free; the extra payload
// is compacted so semantically equal documents hash identically.
func (m TokenMetadata) CanonicalJSON() ([]byte, error) {
	canonical := struct {
		ID          string          `json:"id"`
		Title       string          `json:"title"`
		Description string          `json:"description"`
		Media       string          `json:"media"`
		Extra       json.RawMessage `json:"extra,omitempty"`
	}{
		ID:          strings.TrimSpace(m.ID),
		Title:       m.Title,
		Description: m.Description,
		Media:       strings.TrimSpace(m.Media),
	}
	if canonical.ID == "" {
		return nil, fmt.Errorf("token metadata: id required")
	}
	if len(m.Extra) > 0 {
		var buf strings.Builder
		if err := compactInto(&buf, m.Extra); err != nil {
			return nil, fmt.Errorf("token metadata: invalid extra payload: %w", err)
		}
		canonical.Extra = json.RawMessage(buf.String())
	}
	return json.Marshal(canonical)
}

// Digest computes the SHA-256 hash over the canonical JSON representation.
func (m TokenMetadata) Digest() ([32]byte, error) {
	canonical, err := m.CanonicalJSON()
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(canonical), nil
}

func compactInto(buf *strings.Builder, raw json.RawMessage) error {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = buf.Write(encoded)
	return err
}

// TokenDescriptor is the record returned by the external registry once a
// token has been minted.
type TokenDescriptor struct {
	TokenID  string        `json:"token_id"`
	OwnerID  string        `json:"owner_id"`
	Metadata TokenMetadata `json:"metadata"`
}
