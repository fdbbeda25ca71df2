package catalog

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// CatalogID identifies one broker catalog.
type CatalogID string

// String returns the string representation of the catalog id
func (id CatalogID) String() string {
	return string(id)
}

const maxIDLength = 128

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Validate checks that the id is safe to embed in a resource URL.
func (id CatalogID) Validate() error {
	s := string(id)
	if s == "" {
		return fmt.Errorf("catalog id is empty")
	}
	if len(s) > maxIDLength {
		return fmt.Errorf("catalog id too long: %d characters (max %d)", len(s), maxIDLength)
	}
	if strings.Contains(s, "..") {
		return fmt.Errorf("catalog id %q contains path traversal", s)
	}
	if !idPattern.MatchString(s) {
		return fmt.Errorf("catalog id %q contains invalid characters", s)
	}
	return nil
}

// Record is a catalog as persisted by the cache store.
// Records are replaced wholesale on update.
type Record struct {
	ID             CatalogID
	Name           string
	SchemaVersion  string
	Payload        []byte
	Signature      string // base64 detached signature, trimmed
	Digest         string // BLAKE3 hex of Payload
	Verified       bool
	CachedAt       time.Time
	LastVerifiedAt time.Time
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Payload = append([]byte(nil), r.Payload...)
	return &c
}

// IndexEntry describes one catalog in the remote index manifest.
type IndexEntry struct {
	ID          CatalogID `json:"id" cbor:"id"`
	Name        string    `json:"name" cbor:"name"`
	File        string    `json:"file" cbor:"file"`
	Signature   string    `json:"signature" cbor:"signature"`
	LastUpdated string    `json:"last_updated" cbor:"last_updated"`
}

// Index is the remote manifest listing every published catalog.
type Index struct {
	SchemaVersion string       `json:"schema_version" cbor:"schema_version"`
	LastUpdated   string       `json:"last_updated" cbor:"last_updated"`
	TotalCatalogs int          `json:"total_catalogs" cbor:"total_catalogs"`
	Catalogs      []IndexEntry `json:"catalogs" cbor:"catalogs"`

	// FetchedAt is set locally when the index was downloaded.
	FetchedAt time.Time `json:"-" cbor:"fetched_at"`
	// Stale is set when the index was served from the local snapshot.
	Stale bool `json:"-" cbor:"-"`
}

// IDs returns the catalog ids listed in the index, in manifest order.
func (idx *Index) IDs() []CatalogID {
	ids := make([]CatalogID, 0, len(idx.Catalogs))
	for _, e := range idx.Catalogs {
		ids = append(ids, e.ID)
	}
	return ids
}

// Header holds the payload fields the engine reads. Everything else in a
// catalog document is passed through untouched.
type Header struct {
	SchemaVersion string    `json:"schema_version"`
	CatalogID     CatalogID `json:"catalog_id"`
	CatalogName   string    `json:"catalog_name"`
	LastUpdated   string    `json:"last_updated"`
}

// Catalog is a parsed catalog document handed to callers.
type Catalog struct {
	ID            CatalogID
	Name          string
	SchemaVersion string
	LastUpdated   string
	Payload       []byte
	Signature     string
	// Fields holds every top-level payload field, including the header fields.
	Fields map[string]json.RawMessage

	Verified       bool
	CachedAt       time.Time
	LastVerifiedAt time.Time
	// Stale is set when the catalog came from an expired cache entry because
	// the network was unavailable.
	Stale bool
}

// Clone returns a copy that shares no mutable state with c.
func (c *Catalog) Clone() *Catalog {
	if c == nil {
		return nil
	}
	out := *c
	out.Payload = append([]byte(nil), c.Payload...)
	out.Fields = make(map[string]json.RawMessage, len(c.Fields))
	for k, v := range c.Fields {
		out.Fields[k] = append(json.RawMessage(nil), v...)
	}
	return &out
}

// Field decodes one top-level payload field into v.
func (c *Catalog) Field(name string, v any) error {
	raw, ok := c.Fields[name]
	if !ok {
		return fmt.Errorf("catalog %s has no field %q", c.ID, name)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode field %q: %w", name, err)
	}
	return nil
}

// ParseDocument decodes a catalog payload into its header and top-level fields.
func ParseDocument(payload []byte) (*Header, map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, nil, &ParseError{Resource: "catalog", Err: err}
	}
	if fields == nil {
		return nil, nil, &ParseError{Resource: "catalog", Err: fmt.Errorf("payload is not a JSON object")}
	}
	var h Header
	if err := json.Unmarshal(payload, &h); err != nil {
		return nil, nil, &ParseError{Resource: "catalog", Err: err}
	}
	return &h, fields, nil
}

// FromRecord rebuilds the parsed view of a cached record.
func FromRecord(r *Record) (*Catalog, error) {
	h, fields, err := ParseDocument(r.Payload)
	if err != nil {
		return nil, err
	}
	name := h.CatalogName
	if name == "" {
		name = r.Name
	}
	return &Catalog{
		ID:             r.ID,
		Name:           name,
		SchemaVersion:  r.SchemaVersion,
		LastUpdated:    h.LastUpdated,
		Payload:        append([]byte(nil), r.Payload...),
		Signature:      r.Signature,
		Fields:         fields,
		Verified:       r.Verified,
		CachedAt:       r.CachedAt,
		LastVerifiedAt: r.LastVerifiedAt,
	}, nil
}
