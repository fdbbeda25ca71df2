// Package engine orchestrates catalog synchronization: cache-first loads,
// fetch and verification on a miss, stale fallback when the network is down,
// forced refreshes, and bounded-concurrency batch runs over the index.
//
// A catalog is only ever served as trusted when it was verified against the
// configured trust anchor. When a fetch fails, LoadCatalog falls back to
// any cached copy, expired or not, and marks the result Stale. Verification
// and schema failures never fall back.
//
// Concurrent loads and refreshes of the same catalog share one network
// round trip. Dispose cancels outstanding work and closes the store.
package engine
