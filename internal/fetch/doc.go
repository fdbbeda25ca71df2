// Package fetch retrieves catalogs, their detached signatures and the index
// manifest over HTTP.
//
// Every attempt is bounded by its own timeout. Transient failures (connection
// errors, timeouts, 5xx, 408 and 429) are retried with exponential backoff up
// to MaxAttempts; anything else fails immediately. Failures are reported as
// *catalog.NetworkError, and an index that is not valid JSON as
// *catalog.ParseError.
//
// Remote layout, relative to BaseURL:
//
//	index.json
//	catalogs/<id>.json
//	catalogs/<id>.json.sig
package fetch
