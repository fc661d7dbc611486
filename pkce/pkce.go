// Package pkce generates the Proof Key for Code Exchange values and the CSRF
// state used by the loopback authorization flow.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	// MethodS256 is the only challenge method the flow sends.
	MethodS256 = "S256"

	verifierBytes = 32
	minStateBytes = 32
)

// Challenge holds one flow's PKCE values. The verifier stays in memory for
// the lifetime of the flow and is never persisted or put in a URL.
type Challenge struct {
	Verifier  string
	Challenge string
	Method    string
}

// New generates a verifier and its S256 challenge.
func New() (*Challenge, error) {
	verifier, err := GenerateCodeVerifier()
	if err != nil {
		return nil, err
	}
	return &Challenge{
		Verifier:  verifier,
		Challenge: GenerateCodeChallenge(verifier),
		Method:    MethodS256,
	}, nil
}

// GenerateCodeVerifier returns 32 random bytes, base64url encoded without
// padding (43 characters).
func GenerateCodeVerifier() (string, error) {
	b := make([]byte, verifierBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateCodeChallenge derives base64url(SHA256(verifier)).
func GenerateCodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// GenerateState returns a hex string of length random bytes; lengths below 32
// are raised to 32.
func GenerateState(length int) (string, error) {
	if length < minStateBytes {
		length = minStateBytes
	}
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Verify reports whether verifier hashes to challenge.
func Verify(verifier, challenge string) bool {
	if verifier == "" || challenge == "" {
		return false
	}
	expected := GenerateCodeChallenge(verifier)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(challenge)) == 1
}
