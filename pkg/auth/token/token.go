// Package token implements the fixed-layout bearer token codec and the
// delegate identifier format.
//
// Access tokens are 32 bytes: delegate ID (16) || expiry millis, little
// endian int64 (8) || random nonce (8). Refresh tokens are 24 bytes:
// delegate ID (16) || random nonce (8). The length alone determines the
// token type, so the two layouts must never collide.
package token

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// Type discriminates the two wire layouts.
type Type string

const (
	// TypeAccess is the 32-byte access token layout.
	TypeAccess Type = "access"
	// TypeRefresh is the 24-byte refresh token layout.
	TypeRefresh Type = "refresh"
)

const (
	// AccessTokenLength is the exact byte length of an access token.
	AccessTokenLength = 32
	// RefreshTokenLength is the exact byte length of a refresh token.
	RefreshTokenLength = 24
	// HashLength is the digest size used for stored token hashes.
	HashLength = 16

	idLength    = 16
	nonceLength = 8
)

// randRead is swapped out in tests to make token bytes deterministic.
var randRead = rand.Read

// InvalidLengthError reports a token whose byte length matches neither
// layout.
type InvalidLengthError struct {
	Length int
}

func (e *InvalidLengthError) Error() string {
	return fmt.Sprintf("invalid token length: %d bytes", e.Length)
}

// Token is the decoded form of either layout. ExpiresAt is zero for
// refresh tokens, which never carry an expiry.
type Token struct {
	Type       Type
	DelegateID [16]byte
	ExpiresAt  int64
}

// EncodeAccess builds a fresh 32-byte access token for the delegate,
// embedding the expiry as Unix milliseconds.
func EncodeAccess(delegateID [16]byte, expiresAt int64) ([]byte, error) {
	buf := make([]byte, AccessTokenLength)
	copy(buf[:idLength], delegateID[:])
	binary.LittleEndian.PutUint64(buf[idLength:idLength+8], uint64(expiresAt))
	if _, err := randRead(buf[idLength+8:]); err != nil {
		return nil, fmt.Errorf("failed to read random nonce: %w", err)
	}
	return buf, nil
}

// EncodeRefresh builds a fresh 24-byte refresh token for the delegate.
func EncodeRefresh(delegateID [16]byte) ([]byte, error) {
	buf := make([]byte, RefreshTokenLength)
	copy(buf[:idLength], delegateID[:])
	if _, err := randRead(buf[idLength:]); err != nil {
		return nil, fmt.Errorf("failed to read random nonce: %w", err)
	}
	return buf, nil
}

// Decode parses raw token bytes. The byte length selects the layout; any
// other length yields an *InvalidLengthError.
func Decode(raw []byte) (Token, error) {
	switch len(raw) {
	case AccessTokenLength:
		var t Token
		t.Type = TypeAccess
		copy(t.DelegateID[:], raw[:idLength])
		t.ExpiresAt = int64(binary.LittleEndian.Uint64(raw[idLength : idLength+8]))
		return t, nil
	case RefreshTokenLength:
		var t Token
		t.Type = TypeRefresh
		copy(t.DelegateID[:], raw[:idLength])
		return t, nil
	default:
		return Token{}, &InvalidLengthError{Length: len(raw)}
	}
}

// Hash computes the stored form of a token: a 16-byte unkeyed BLAKE3
// digest of the raw bytes, hex encoded to 32 characters. Stores persist
// only hashes, never token bytes.
func Hash(raw []byte) string {
	h := blake3.New(HashLength, nil)
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil))
}
