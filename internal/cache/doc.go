// Package cache persists verified catalogs in a local SQLite database.
//
// Expiry is a read-time predicate: a record is expired when more than Expiry
// has passed since it was cached. Get hides expired records, Peek does not,
// and only CleanupExpired physically removes them.
//
// Records are written whole in a single statement. Decoded records are kept
// in a small LRU that is updated under the same lock as the database write,
// so readers never observe a record that is newer in one place than the
// other.
//
// Payloads of 1 KiB or more are stored zstd-compressed when that saves space,
// and every record carries the BLAKE3 digest of its payload, checked on read.
// The most recently fetched index is kept as a CBOR snapshot.
package cache
