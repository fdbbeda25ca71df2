package verify

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	_ "embed"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
)

// Embedded catalog signing key, fixed at build time.
//
//go:embed keys/catalog-signing.pub
var defaultActiveKey string

// PublicKey verifies detached signatures over canonical bytes.
type PublicKey interface {
	Verify(message, signature []byte) bool
	Algorithm() string
	Fingerprint() string
}

type ed25519Key struct {
	pub ed25519.PublicKey
}

func (k ed25519Key) Verify(message, signature []byte) bool {
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(k.pub, message, signature)
}

func (ed25519Key) Algorithm() string { return "ed25519" }

func (k ed25519Key) Fingerprint() string {
	sum := sha256.Sum256(k.pub)
	return hex.EncodeToString(sum[:16])
}

type openpgpKey struct {
	keyring openpgp.EntityList
}

func (k openpgpKey) Verify(message, signature []byte) bool {
	_, err := openpgp.CheckDetachedSignature(k.keyring, bytes.NewReader(message), bytes.NewReader(signature), nil)
	if err != nil {
		// Try armored signature
		_, err = openpgp.CheckArmoredDetachedSignature(k.keyring, bytes.NewReader(message), bytes.NewReader(signature), nil)
	}
	return err == nil
}

func (openpgpKey) Algorithm() string { return "openpgp" }

func (k openpgpKey) Fingerprint() string {
	return strings.ToUpper(hex.EncodeToString(k.keyring[0].PrimaryKey.Fingerprint))
}

// ParsePublicKey decodes a key in "<alg>:<base64>" form.
func ParsePublicKey(s string) (PublicKey, error) {
	alg, enc, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return nil, fmt.Errorf("invalid key encoding: want <alg>:<base64>")
	}
	raw, err := decodeBase64(enc)
	if err != nil {
		return nil, fmt.Errorf("invalid %s key base64: %w", alg, err)
	}

	switch alg {
	case "ed25519":
		if len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("invalid ed25519 public key length %d", len(raw))
		}
		return ed25519Key{pub: ed25519.PublicKey(raw)}, nil
	case "openpgp":
		keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(raw))
		if err != nil {
			// Try reading as non-armored keyring
			keyring, err = openpgp.ReadKeyRing(bytes.NewReader(raw))
			if err != nil {
				return nil, fmt.Errorf("read openpgp key: %w", err)
			}
		}
		if len(keyring) == 0 {
			return nil, fmt.Errorf("openpgp keyring is empty")
		}
		return openpgpKey{keyring: keyring}, nil
	default:
		return nil, fmt.Errorf("unsupported key algorithm %q", alg)
	}
}

// DefaultKey returns the embedded catalog signing key.
func DefaultKey() (PublicKey, error) {
	if strings.TrimSpace(defaultActiveKey) == "" {
		return nil, fmt.Errorf("default signing key is empty (embed failed)")
	}
	k, err := ParsePublicKey(defaultActiveKey)
	if err != nil {
		return nil, fmt.Errorf("parse default signing key: %w", err)
	}
	return k, nil
}

// Trust is the set of keys a Verifier accepts. It is either SingleKey or
// RotatingKeys.
type Trust interface {
	keys() []PublicKey
}

// SingleKey trusts exactly one key.
type SingleKey struct {
	Active PublicKey
}

func (t SingleKey) keys() []PublicKey { return []PublicKey{t.Active} }

// RotatingKeys trusts the active key and, during a rotation window, a backup.
type RotatingKeys struct {
	Active PublicKey
	Backup PublicKey
}

func (t RotatingKeys) keys() []PublicKey { return []PublicKey{t.Active, t.Backup} }

// NewTrust builds a Trust from encoded keys. An empty active key selects the
// embedded default; an empty backup yields SingleKey.
func NewTrust(active, backup string) (Trust, error) {
	var (
		activeKey PublicKey
		err       error
	)
	if strings.TrimSpace(active) == "" {
		activeKey, err = DefaultKey()
	} else {
		activeKey, err = ParsePublicKey(active)
	}
	if err != nil {
		return nil, fmt.Errorf("active key: %w", err)
	}
	if strings.TrimSpace(backup) == "" {
		return SingleKey{Active: activeKey}, nil
	}
	backupKey, err := ParsePublicKey(backup)
	if err != nil {
		return nil, fmt.Errorf("backup key: %w", err)
	}
	return RotatingKeys{Active: activeKey, Backup: backupKey}, nil
}

// TrustedKeys lists the keys of t in preference order.
func TrustedKeys(t Trust) []PublicKey {
	var out []PublicKey
	for _, k := range t.keys() {
		if k != nil {
			out = append(out, k)
		}
	}
	return out
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
