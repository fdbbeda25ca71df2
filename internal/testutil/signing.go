package testutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

// KeyPair is an ed25519 signing key for test catalogs.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// NewKeyPair generates a fresh ed25519 key pair.
func NewKeyPair(t testing.TB) KeyPair {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return KeyPair{Public: pub, Private: priv}
}

// Encoded returns the public key in the "ed25519:<base64>" trust key form.
func (k KeyPair) Encoded() string {
	return "ed25519:" + base64.StdEncoding.EncodeToString(k.Public)
}

// Sign returns the base64 detached signature over the canonical form of
// payload.
func (k KeyPair) Sign(t testing.TB, payload []byte) string {
	t.Helper()
	canonical, err := jsoncanonicalizer.Transform(payload)
	if err != nil {
		t.Fatalf("canonicalize payload: %v", err)
	}
	return base64.StdEncoding.EncodeToString(ed25519.Sign(k.Private, canonical))
}

// CatalogPayload builds a catalog document. Extra fields are merged in
// alongside the header fields.
func CatalogPayload(t testing.TB, id, name, schema string, extra map[string]any) []byte {
	t.Helper()
	doc := map[string]any{
		"catalog_id":     id,
		"catalog_name":   name,
		"schema_version": schema,
		"last_updated":   "2025-01-15T00:00:00Z",
		"servers": map[string]any{
			"live": []string{id + "-live.example.com:443"},
			"demo": []string{id + "-demo.example.com:443"},
		},
	}
	for k, v := range extra {
		doc[k] = v
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return payload
}
