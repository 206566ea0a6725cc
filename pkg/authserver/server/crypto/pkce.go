// Package crypto holds the PKCE and code-minting primitives of the OAuth
// server.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

// PKCEChallengeMethodS256 is the only PKCE challenge method accepted
// (RFC 7636).
const PKCEChallengeMethodS256 = "S256"

// authCodeLength is the byte length of minted authorization codes, twice
// the 128-bit minimum of RFC 6749 §10.10.
const authCodeLength = 32

// GeneratePKCEVerifier generates a cryptographically random code_verifier
// per RFC 7636 Section 4.1, delegating to oauth2.GenerateVerifier.
func GeneratePKCEVerifier() string {
	return oauth2.GenerateVerifier()
}

// ComputePKCEChallenge computes the S256 code_challenge for a verifier:
// BASE64URL(SHA256(verifier)), per RFC 7636 Section 4.2.
func ComputePKCEChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// VerifyPKCE reports whether the verifier matches the challenge under
// S256, comparing in constant time.
func VerifyPKCE(verifier, challenge string) bool {
	computed := ComputePKCEChallenge(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

// GenerateAuthCode mints a random URL-safe authorization code.
func GenerateAuthCode() (string, error) {
	buf := make([]byte, authCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random code bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
