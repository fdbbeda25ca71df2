package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned by stores and engines used before
	// Initialize or after they were closed.
	ErrNotInitialized = errors.New("catalog: not initialized")
	// ErrNotFound is returned when a catalog is absent (or expired) locally.
	ErrNotFound = errors.New("catalog: not found")
)

// IsNotFound reports whether err means the catalog is not available locally.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// NetworkError is a failed network retrieval.
// Transient errors (timeouts, connection failures, 5xx) are retried by the
// fetcher; permanent ones are not.
type NetworkError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Transient  bool
	Err        error
}

func (e *NetworkError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s failure: status %d", e.URL, kind, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s failure: %v", e.URL, kind, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a network failure worth retrying.
func IsTransient(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr) && netErr.Transient
}

// ParseError is malformed JSON in a catalog or the index.
type ParseError struct {
	Resource string // "catalog" or "index"
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Resource, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// VerificationError means a payload did not match its detached signature.
// The payload must never be cached or returned as trusted.
type VerificationError struct {
	ID     CatalogID // empty when the id could not be extracted
	Reason string
	Err    error
}

func (e *VerificationError) Error() string {
	msg := "signature verification failed"
	if e.ID != "" {
		msg += " for catalog " + string(e.ID)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *VerificationError) Unwrap() error { return e.Err }

// SchemaError means the signature was valid but the catalog uses a schema
// version this build cannot read. Callers should prompt for an update.
type SchemaError struct {
	ID        CatalogID
	Version   string
	Supported string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("catalog %s uses schema %q, this build supports %s (update required)",
		e.ID, e.Version, e.Supported)
}

// CacheError is a failure of the local store, never a verification outcome.
type CacheError struct {
	Op  string
	ID  CatalogID
	Err error
}

func (e *CacheError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("cache %s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// ServiceError is the engine-level wrapper carrying the catalog id.
type ServiceError struct {
	Op  string
	ID  CatalogID
	Err error
}

func (e *ServiceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }
