package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

const signaturePrefix = "sha256="

var (
	errMissingSignature = errors.New("missing X-Hub-Signature-256 header")
	errSignatureFormat  = errors.New("invalid signature format, expected 'sha256=<hash>'")
	errSignatureDigest  = errors.New("signature is not a hex SHA-256 digest")
)

// ParseSignature decodes an X-Hub-Signature-256 header into the raw digest.
func ParseSignature(header string) ([]byte, error) {
	if header == "" {
		return nil, errMissingSignature
	}
	hexDigest, ok := strings.CutPrefix(header, signaturePrefix)
	if !ok {
		return nil, errSignatureFormat
	}
	digest, err := hex.DecodeString(hexDigest)
	if err != nil || len(digest) != sha256.Size {
		return nil, errSignatureDigest
	}
	return digest, nil
}

// Secrets are the webhook secrets currently accepted. Several are allowed so a
// secret can be rotated without dropping deliveries.
type Secrets []string

// Match reports whether digest is the HMAC-SHA256 of payload under any
// non-empty secret. Comparison is constant-time per secret.
func (s Secrets) Match(payload, digest []byte) bool {
	for _, secret := range s {
		if secret == "" {
			continue
		}
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(payload)
		if hmac.Equal(mac.Sum(nil), digest) {
			return true
		}
	}
	return false
}
