package catalog

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestCatalogIDValidate(t *testing.T) {
	tests := []struct {
		name    string
		id      CatalogID
		wantErr bool
	}{
		{name: "simple", id: "alpha", wantErr: false},
		{name: "dotted_and_dashed", id: "ic-markets.v2_live", wantErr: false},
		{name: "empty", id: "", wantErr: true},
		{name: "traversal", id: "a..b", wantErr: true},
		{name: "slash", id: "a/b", wantErr: true},
		{name: "leading_dot", id: ".hidden", wantErr: true},
		{name: "space", id: "my broker", wantErr: true},
		{name: "too_long", id: CatalogID(fmt.Sprintf("%0129d", 0)), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.id.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("Validate(%q) expected error but got none", tt.id)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate(%q) unexpected error: %v", tt.id, err)
			}
		})
	}
}

func TestParseDocument(t *testing.T) {
	payload := []byte(`{"catalog_id":"alpha","catalog_name":"Alpha FX","schema_version":"1.2","last_updated":"2025-01-02","platforms":["mt4","mt5"]}`)

	header, fields, err := ParseDocument(payload)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if header.CatalogID != "alpha" || header.CatalogName != "Alpha FX" || header.SchemaVersion != "1.2" {
		t.Errorf("unexpected header: %+v", header)
	}
	if _, ok := fields["platforms"]; !ok {
		t.Error("opaque field platforms was dropped")
	}
}

func TestParseDocumentRejectsNonObjects(t *testing.T) {
	for _, payload := range []string{`not json`, `[1,2,3]`, `null`} {
		_, _, err := ParseDocument([]byte(payload))
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Errorf("ParseDocument(%q) = %v, want *ParseError", payload, err)
		}
	}
}

func TestFromRecord(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &Record{
		ID:             "alpha",
		Name:           "fallback name",
		SchemaVersion:  "1.0",
		Payload:        []byte(`{"catalog_id":"alpha","catalog_name":"Alpha FX","schema_version":"1.0","spreads":{"eurusd":0.1}}`),
		Signature:      "c2ln",
		Verified:       true,
		CachedAt:       now,
		LastVerifiedAt: now,
	}

	c, err := FromRecord(rec)
	if err != nil {
		t.Fatalf("FromRecord: %v", err)
	}
	if c.Name != "Alpha FX" {
		t.Errorf("Name = %q, want payload name", c.Name)
	}
	var spreads map[string]float64
	if err := c.Field("spreads", &spreads); err != nil {
		t.Fatalf("Field: %v", err)
	}
	if spreads["eurusd"] != 0.1 {
		t.Errorf("spreads = %v", spreads)
	}
	if err := c.Field("missing", &spreads); err == nil {
		t.Error("expected error for missing field")
	}

	// Mutating the parsed view must not touch the record.
	c.Payload[0] = 'X'
	if rec.Payload[0] != '{' {
		t.Error("FromRecord shares the payload buffer with the record")
	}
}

func TestErrorsUnwrapThroughServiceError(t *testing.T) {
	cause := &VerificationError{ID: "beta", Reason: "signature mismatch"}
	err := &ServiceError{Op: "load catalog", ID: "beta", Err: cause}

	var verr *VerificationError
	if !errors.As(err, &verr) {
		t.Fatal("errors.As did not find VerificationError through ServiceError")
	}
	if verr.ID != "beta" {
		t.Errorf("ID = %q", verr.ID)
	}

	notFound := &CacheError{Op: "get", ID: "x", Err: ErrNotFound}
	if !IsNotFound(&ServiceError{Op: "load", Err: notFound}) {
		t.Error("IsNotFound did not see through wrappers")
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(&NetworkError{URL: "u", StatusCode: 503, Transient: true}) {
		t.Error("503 should be transient")
	}
	if IsTransient(&NetworkError{URL: "u", StatusCode: 404}) {
		t.Error("404 should not be transient")
	}
	if IsTransient(errors.New("plain")) {
		t.Error("plain errors are not transient")
	}
}

func TestRecordClone(t *testing.T) {
	rec := &Record{ID: "a", Payload: []byte("abc")}
	c := rec.Clone()
	c.Payload[0] = 'z'
	if string(rec.Payload) != "abc" {
		t.Error("Clone shares payload")
	}
	var nilRec *Record
	if nilRec.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}
