// Package pkce produces verifier/challenge pairs for authorization flows
// requiring proof of possession (RFC 7636, S256 only).
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Unreserved URL-safe alphabet permitted for code verifiers.
const verifierAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

// DefaultVerifierLength matches the length used during authorization starts.
const DefaultVerifierLength = 64

// Method is the only challenge transformation supported.
const Method = "S256"

// GenerateVerifier returns a random string of the given length drawn
// uniformly from the unreserved alphabet.
func GenerateVerifier(length int) (string, error) {
	if length <= 0 {
		length = DefaultVerifierLength
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate verifier: %w", err)
		}
		for _, b := range buf {
			// Rejection sampling keeps the distribution uniform: 198 is the
			// largest multiple of len(alphabet) below 256.
			if b >= 198 {
				continue
			}
			out = append(out, verifierAlphabet[int(b)%len(verifierAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// Challenge computes base64url(SHA256(verifier)) with padding stripped.
// Pure function: the same verifier always yields the same challenge.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
