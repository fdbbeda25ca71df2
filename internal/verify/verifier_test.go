package verify

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/catalog"
	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/testutil"
)

func newTestVerifier(t *testing.T, trust Trust) *Verifier {
	t.Helper()
	v, err := New(Options{Trust: trust})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func mustKey(t *testing.T, encoded string) PublicKey {
	t.Helper()
	k, err := ParsePublicKey(encoded)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	return k
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	keys := testutil.NewKeyPair(t)
	v := newTestVerifier(t, SingleKey{Active: mustKey(t, keys.Encoded())})

	payload := testutil.CatalogPayload(t, "alpha", "Alpha FX", "1.0", nil)
	if !v.Verify(payload, keys.Sign(t, payload)) {
		t.Fatal("Verify rejected a valid signature")
	}
}

func TestVerifyRejectsSingleByteMutation(t *testing.T) {
	keys := testutil.NewKeyPair(t)
	v := newTestVerifier(t, SingleKey{Active: mustKey(t, keys.Encoded())})

	// Compact, sorted, ASCII-only: already canonical, so every byte is signed.
	payload := []byte(`{"catalog_id":"alpha","catalog_name":"Alpha","schema_version":"1.0","spread":7}`)
	sig := keys.Sign(t, payload)

	for i := range payload {
		mutated := append([]byte(nil), payload...)
		mutated[i] ^= 0x01
		if v.Verify(mutated, sig) {
			t.Fatalf("Verify accepted payload mutated at byte %d: %s", i, mutated)
		}
	}
}

func TestVerifyIgnoresFormatting(t *testing.T) {
	keys := testutil.NewKeyPair(t)
	v := newTestVerifier(t, SingleKey{Active: mustKey(t, keys.Encoded())})

	compact := []byte(`{"a":1,"b":[true,null],"c":"x"}`)
	sig := keys.Sign(t, compact)

	reformatted := []byte("{\n  \"c\": \"x\",\n  \"b\": [ true, null ],\n  \"a\": 1.0\n}\n")
	if !v.Verify(reformatted, sig) {
		t.Error("signature over canonical bytes must survive key reordering and whitespace")
	}
}

func TestVerifyMalformedInput(t *testing.T) {
	keys := testutil.NewKeyPair(t)
	v := newTestVerifier(t, SingleKey{Active: mustKey(t, keys.Encoded())})
	payload := testutil.CatalogPayload(t, "alpha", "Alpha FX", "1.0", nil)
	good := keys.Sign(t, payload)

	tests := []struct {
		name      string
		payload   []byte
		signature string
	}{
		{name: "empty_signature", payload: payload, signature: ""},
		{name: "not_base64", payload: payload, signature: "!!!not-base64!!!"},
		{name: "truncated_signature", payload: payload, signature: good[:20]},
		{name: "invalid_json", payload: []byte(`{"catalog_id":`), signature: good},
		{name: "empty_payload", payload: nil, signature: good},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if v.Verify(tt.payload, tt.signature) {
				t.Error("Verify returned true for malformed input")
			}
		})
	}
}

func TestVerifyRawBase64Signature(t *testing.T) {
	keys := testutil.NewKeyPair(t)
	v := newTestVerifier(t, SingleKey{Active: mustKey(t, keys.Encoded())})
	payload := testutil.CatalogPayload(t, "alpha", "Alpha FX", "1.0", nil)

	raw := strings.TrimRight(keys.Sign(t, payload), "=")
	if !v.Verify(payload, raw) {
		t.Error("Verify rejected unpadded base64 signature")
	}
}

func TestRotatingKeys(t *testing.T) {
	active := testutil.NewKeyPair(t)
	backup := testutil.NewKeyPair(t)
	stranger := testutil.NewKeyPair(t)

	trust, err := NewTrust(active.Encoded(), backup.Encoded())
	if err != nil {
		t.Fatalf("NewTrust: %v", err)
	}
	if _, ok := trust.(RotatingKeys); !ok {
		t.Fatalf("NewTrust with backup = %T, want RotatingKeys", trust)
	}
	v := newTestVerifier(t, trust)
	payload := testutil.CatalogPayload(t, "alpha", "Alpha FX", "1.0", nil)

	if !v.Verify(payload, active.Sign(t, payload)) {
		t.Error("active key signature rejected")
	}
	if !v.Verify(payload, backup.Sign(t, payload)) {
		t.Error("backup key signature rejected")
	}
	if v.Verify(payload, stranger.Sign(t, payload)) {
		t.Error("untrusted key signature accepted")
	}
}

func TestNewTrustDefaultsToEmbeddedKey(t *testing.T) {
	trust, err := NewTrust("", "")
	if err != nil {
		t.Fatalf("NewTrust: %v", err)
	}
	single, ok := trust.(SingleKey)
	if !ok {
		t.Fatalf("NewTrust() = %T, want SingleKey", trust)
	}
	def, err := DefaultKey()
	if err != nil {
		t.Fatalf("DefaultKey: %v", err)
	}
	if single.Active.Fingerprint() != def.Fingerprint() {
		t.Error("empty active key did not select the embedded default")
	}
	if def.Algorithm() != "ed25519" {
		t.Errorf("default key algorithm = %q", def.Algorithm())
	}
}

func TestParsePublicKeyErrors(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{name: "no_prefix", key: "AAAA"},
		{name: "unknown_alg", key: "rsa:AAAA"},
		{name: "bad_base64", key: "ed25519:***"},
		{name: "short_ed25519", key: "ed25519:" + base64.StdEncoding.EncodeToString([]byte("short"))},
		{name: "garbage_openpgp", key: "openpgp:" + base64.StdEncoding.EncodeToString([]byte("not a key"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePublicKey(tt.key); err == nil {
				t.Errorf("ParsePublicKey(%q) expected error", tt.key)
			}
		})
	}
}

func TestOpenPGPKey(t *testing.T) {
	entity, err := openpgp.NewEntity("Catalog Signer", "test", "signer@example.com",
		&packet.Config{Algorithm: packet.PubKeyAlgoEdDSA})
	if err != nil {
		t.Fatalf("NewEntity: %v", err)
	}

	var armored bytes.Buffer
	w, err := armor.Encode(&armored, openpgp.PublicKeyType, nil)
	if err != nil {
		t.Fatalf("armor.Encode: %v", err)
	}
	if err := entity.Serialize(w); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close armor: %v", err)
	}

	key := mustKey(t, "openpgp:"+base64.StdEncoding.EncodeToString(armored.Bytes()))
	if key.Algorithm() != "openpgp" {
		t.Errorf("Algorithm() = %q", key.Algorithm())
	}
	if len(key.Fingerprint()) != 40 {
		t.Errorf("Fingerprint() = %q, want 40 hex chars", key.Fingerprint())
	}

	payload := testutil.CatalogPayload(t, "alpha", "Alpha FX", "1.0", nil)
	canonical, err := Canonicalize(payload)
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	var sig bytes.Buffer
	if err := openpgp.DetachSign(&sig, entity, bytes.NewReader(canonical), nil); err != nil {
		t.Fatalf("DetachSign: %v", err)
	}

	v := newTestVerifier(t, SingleKey{Active: key})
	encoded := base64.StdEncoding.EncodeToString(sig.Bytes())
	if !v.Verify(payload, encoded) {
		t.Error("openpgp detached signature rejected")
	}

	tampered := testutil.CatalogPayload(t, "alpha", "Alpha FX (tampered)", "1.0", nil)
	if v.Verify(tampered, encoded) {
		t.Error("openpgp signature accepted for tampered payload")
	}
}

func TestVerifyAndParse(t *testing.T) {
	keys := testutil.NewKeyPair(t)
	v := newTestVerifier(t, SingleKey{Active: mustKey(t, keys.Encoded())})

	t.Run("valid", func(t *testing.T) {
		payload := testutil.CatalogPayload(t, "alpha", "Alpha FX", "1.3", nil)
		c, err := v.VerifyAndParse(payload, keys.Sign(t, payload))
		if err != nil {
			t.Fatalf("VerifyAndParse: %v", err)
		}
		if c.ID != "alpha" || c.Name != "Alpha FX" || c.SchemaVersion != "1.3" || !c.Verified {
			t.Errorf("unexpected catalog: %+v", c)
		}
		if _, ok := c.Fields["servers"]; !ok {
			t.Error("opaque fields not passed through")
		}
	})

	t.Run("bad_signature", func(t *testing.T) {
		payload := testutil.CatalogPayload(t, "beta", "Beta", "1.0", nil)
		other := testutil.CatalogPayload(t, "beta", "Beta", "1.1", nil)
		_, err := v.VerifyAndParse(payload, keys.Sign(t, other))
		var verr *catalog.VerificationError
		if !errors.As(err, &verr) {
			t.Fatalf("err = %v, want *catalog.VerificationError", err)
		}
		if verr.ID != "beta" {
			t.Errorf("VerificationError.ID = %q, want beta", verr.ID)
		}
	})

	t.Run("schema_too_new", func(t *testing.T) {
		payload := testutil.CatalogPayload(t, "gamma", "Gamma", "2.0", nil)
		_, err := v.VerifyAndParse(payload, keys.Sign(t, payload))
		var serr *catalog.SchemaError
		if !errors.As(err, &serr) {
			t.Fatalf("err = %v, want *catalog.SchemaError", err)
		}
		if serr.Version != "2.0" || serr.Supported != DefaultMinSchema {
			t.Errorf("unexpected SchemaError: %+v", serr)
		}
	})
}

func TestParseUnverified(t *testing.T) {
	keys := testutil.NewKeyPair(t)
	v := newTestVerifier(t, SingleKey{Active: mustKey(t, keys.Encoded())})

	payload := testutil.CatalogPayload(t, "alpha", "Alpha FX", "1.0", nil)
	c, err := v.ParseUnverified(payload, "")
	if err != nil {
		t.Fatalf("ParseUnverified: %v", err)
	}
	if c.Verified {
		t.Error("ParseUnverified must not mark the catalog verified")
	}

	old := testutil.CatalogPayload(t, "alpha", "Alpha FX", "0.9", nil)
	var serr *catalog.SchemaError
	if _, err := v.ParseUnverified(old, ""); !errors.As(err, &serr) {
		t.Errorf("err = %v, want *catalog.SchemaError", err)
	}
}

func TestVerifyBatch(t *testing.T) {
	keys := testutil.NewKeyPair(t)
	v := newTestVerifier(t, SingleKey{Active: mustKey(t, keys.Encoded())})

	good := testutil.CatalogPayload(t, "alpha", "Alpha", "1.0", nil)
	bad := testutil.CatalogPayload(t, "beta", "Beta", "1.0", nil)
	items := map[catalog.CatalogID]Signed{
		"alpha": {Payload: good, Signature: keys.Sign(t, good)},
		"beta":  {Payload: bad, Signature: keys.Sign(t, good)},
		"gamma": {Payload: []byte("{"), Signature: "AAAA"},
	}

	got := v.VerifyBatch(context.Background(), items)
	want := map[catalog.CatalogID]bool{"alpha": true, "beta": false, "gamma": false}
	for id, w := range want {
		if got[id] != w {
			t.Errorf("VerifyBatch[%s] = %v, want %v", id, got[id], w)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for id, ok := range v.VerifyBatch(ctx, items) {
		if ok {
			t.Errorf("VerifyBatch with cancelled context verified %s", id)
		}
	}
}
