// Package verify checks the authenticity of catalog documents.
//
// A catalog is trusted when its detached signature verifies over the RFC 8785
// canonical form of the payload against one of the keys in the configured
// Trust. Trust is either a SingleKey or RotatingKeys (active plus backup).
// It is fixed when the Verifier is built.
//
// Supported key encodings:
//   - ed25519:<base64 32-byte public key>
//   - openpgp:<base64 of an armored or binary public key>
//
// The default active key is embedded at build time from keys/.
package verify
