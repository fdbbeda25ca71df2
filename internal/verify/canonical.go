package verify

import (
	"fmt"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

// CanonicalizationScheme names the byte form signatures are computed over.
// Signers and verifiers must agree on it; changing it invalidates every
// published signature.
const CanonicalizationScheme = "jcs-rfc8785"

// Canonicalize returns the RFC 8785 canonical form of a JSON document:
// sorted keys, no insignificant whitespace, ES6 number serialization.
func Canonicalize(payload []byte) ([]byte, error) {
	out, err := jsoncanonicalizer.Transform(payload)
	if err != nil {
		return nil, fmt.Errorf("canonicalize (%s): %w", CanonicalizationScheme, err)
	}
	return out, nil
}
