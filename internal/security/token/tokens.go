// Package token provides opaque token generation and one-way digests.
// Opaque values leave the process exactly once (toward the client);
// stores only ever see the SHA-256 digest, so read access to a store
// cannot be used to forge a live token.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// Generate returns a random opaque token (base64url, no padding).
// nBytes must be >= 16 to keep at least 128 bits of entropy; callers in
// this codebase use 32.
func Generate(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Digest returns sha256(s) in base64url without padding, the at-rest
// form of every opaque token.
func Digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Equal compares two token strings in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
