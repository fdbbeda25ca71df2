package verify

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/catalog"
)

// Options configures a Verifier.
type Options struct {
	// Trust selects the accepted keys. Nil means the embedded default key.
	Trust Trust
	// MinSchema is the minimum supported schema version ("MAJOR.MINOR").
	MinSchema string
	Logger    *slog.Logger
}

// Verifier checks detached signatures and schema compatibility.
// It holds no mutable state and is safe for concurrent use.
type Verifier struct {
	keys      []PublicKey
	minSchema string
	logger    *slog.Logger
}

// New creates a verifier.
func New(opts Options) (*Verifier, error) {
	trust := opts.Trust
	if trust == nil {
		k, err := DefaultKey()
		if err != nil {
			return nil, err
		}
		trust = SingleKey{Active: k}
	}
	keys := TrustedKeys(trust)
	if len(keys) == 0 {
		return nil, fmt.Errorf("trust has no keys")
	}
	minSchema := opts.MinSchema
	if minSchema == "" {
		minSchema = DefaultMinSchema
	}
	if !SchemaSupported(minSchema, minSchema) {
		return nil, fmt.Errorf("invalid minimum schema version %q", minSchema)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Verifier{keys: keys, minSchema: minSchema, logger: logger}, nil
}

// MinSchema returns the minimum supported schema version.
func (v *Verifier) MinSchema() string { return v.minSchema }

// Keys returns the trusted keys in preference order.
func (v *Verifier) Keys() []PublicKey {
	return append([]PublicKey(nil), v.keys...)
}

// Verify reports whether signature is a valid signature of the canonical form
// of payload under any trusted key. Malformed input yields false.
func (v *Verifier) Verify(payload []byte, signature string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("signature check panicked", "panic", r)
			ok = false
		}
	}()

	canonical, err := Canonicalize(payload)
	if err != nil {
		v.logger.Debug("payload is not canonicalizable JSON", "error", err)
		return false
	}
	sig, err := decodeBase64(signature)
	if err != nil || len(sig) == 0 {
		v.logger.Debug("signature is not valid base64", "error", err)
		return false
	}
	for _, k := range v.keys {
		if k.Verify(canonical, sig) {
			return true
		}
	}
	return false
}

// VerifyAndParse verifies payload and returns the parsed catalog.
// A bad signature yields *catalog.VerificationError; an unreadable schema
// version yields *catalog.SchemaError.
func (v *Verifier) VerifyAndParse(payload []byte, signature string) (*catalog.Catalog, error) {
	if !v.Verify(payload, signature) {
		var id catalog.CatalogID
		if h, _, err := catalog.ParseDocument(payload); err == nil {
			id = h.CatalogID
		}
		return nil, &catalog.VerificationError{ID: id, Reason: "signature does not match any trusted key"}
	}
	c, err := v.parse(payload, signature)
	if err != nil {
		return nil, err
	}
	c.Verified = true
	return c, nil
}

// ParseUnverified parses payload without checking its signature. It is only
// for deployments that disabled signature enforcement; the schema is still
// checked and the result is marked unverified.
func (v *Verifier) ParseUnverified(payload []byte, signature string) (*catalog.Catalog, error) {
	return v.parse(payload, signature)
}

func (v *Verifier) parse(payload []byte, signature string) (*catalog.Catalog, error) {
	h, fields, err := catalog.ParseDocument(payload)
	if err != nil {
		return nil, err
	}
	if !SchemaSupported(h.SchemaVersion, v.minSchema) {
		return nil, &catalog.SchemaError{ID: h.CatalogID, Version: h.SchemaVersion, Supported: v.minSchema}
	}
	return &catalog.Catalog{
		ID:            h.CatalogID,
		Name:          h.CatalogName,
		SchemaVersion: h.SchemaVersion,
		LastUpdated:   h.LastUpdated,
		Payload:       append([]byte(nil), payload...),
		Signature:     signature,
		Fields:        fields,
	}, nil
}

// Signed is a payload with its detached signature.
type Signed struct {
	Payload   []byte
	Signature string
}

// VerifyBatch verifies every entry concurrently. Each outcome is independent;
// entries not reached before ctx is done report false.
func (v *Verifier) VerifyBatch(ctx context.Context, items map[catalog.CatalogID]Signed) map[catalog.CatalogID]bool {
	results := make(map[catalog.CatalogID]bool, len(items))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for id, item := range items {
		mu.Lock()
		results[id] = false
		mu.Unlock()
		if ctx.Err() != nil {
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			ok := v.Verify(item.Payload, item.Signature)
			mu.Lock()
			results[id] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
