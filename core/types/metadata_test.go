package types

import (
	"bytes"
	"testing"
)

func TestCanonicalJSONStable(t *testing.T) {
	md := TokenMetadata{
		ID:          " 123 ",
		Title:       "post",
		Description: "attested post",
		Media:       "ipfs://cid",
		Extra:       []byte(`{"b": 2, "a": 1}`),
	}
	first, err := md.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	// Key order inside extra must not affect the canonical bytes.
	md.Extra = []byte(`{"a":1,"b":2}`)
	second, err := md.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("canonical encodings differ:\n%s\n%s", first, second)
	}
}

func TestDigestChangesWithContent(t *testing.T) {
	md := TokenMetadata{ID: "123", Title: "post"}
	base, err := md.Digest()
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	md.Title = "other"
	changed, err := md.Digest()
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if base == changed {
		t.Fatal("digest did not change with title")
	}
}

func TestCanonicalJSONRequiresID(t *testing.T) {
	md := TokenMetadata{Title: "post"}
	if _, err := md.CanonicalJSON(); err == nil {
		t.Fatal("expected error for missing id")
	}
}
