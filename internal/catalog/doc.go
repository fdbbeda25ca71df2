// Package catalog holds the domain types shared by the catalog sync pipeline:
// catalog ids, cached records, the index manifest, parsed catalog documents,
// and the error taxonomy every component reports through.
//
// # Error Taxonomy
//
//   - NetworkError: transient failures are retried by the fetcher, permanent
//     ones surface immediately
//   - ParseError: malformed catalog or index JSON, never retried
//   - VerificationError: signature mismatch; the payload is never cached
//   - SchemaError: valid signature but unsupported schema version
//   - CacheError: local storage failure
//   - ServiceError: engine wrapper carrying the catalog id
//
// All of them unwrap, so errors.As works through a ServiceError.
package catalog
