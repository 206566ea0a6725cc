package token

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// IDPrefix starts every delegate identifier string.
const IDPrefix = "dlt_"

// crockfordAlphabet is the Crockford Base32 alphabet: no I, L, O or U.
const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// encodedIDLength is the Crockford encoding of 16 bytes.
const encodedIDLength = 26

var crockford = base32.NewEncoding(crockfordAlphabet).WithPadding(base32.NoPadding)

// NewID generates a fresh random delegate identity.
func NewID() [16]byte {
	return [16]byte(uuid.New())
}

// FormatID renders a delegate identity as its canonical string form:
// the dlt_ prefix followed by 26 uppercase Crockford Base32 characters.
func FormatID(id [16]byte) string {
	return IDPrefix + crockford.EncodeToString(id[:])
}

// EncodeCrockford renders 16 raw bytes as 26 Crockford Base32 characters
// without any prefix. Scope set-node identifiers use this form.
func EncodeCrockford(b [16]byte) string {
	return crockford.EncodeToString(b[:])
}

// ParseID decodes a delegate identifier string. Decoding is case
// insensitive and maps the confusable characters I and L to 1 and O to 0
// before decoding.
func ParseID(s string) ([16]byte, error) {
	var id [16]byte
	if !strings.HasPrefix(s, IDPrefix) {
		return id, fmt.Errorf("delegate ID must start with %q", IDPrefix)
	}
	encoded := s[len(IDPrefix):]
	if len(encoded) != encodedIDLength {
		return id, fmt.Errorf("delegate ID must be %d characters after the prefix, got %d", encodedIDLength, len(encoded))
	}
	raw, err := crockford.DecodeString(normalizeCrockford(encoded))
	if err != nil {
		return id, fmt.Errorf("invalid delegate ID encoding: %w", err)
	}
	copy(id[:], raw)
	return id, nil
}

func normalizeCrockford(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case 'i', 'I', 'l', 'L':
			return '1'
		case 'o', 'O':
			return '0'
		case 'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'j', 'k', 'm', 'n',
			'p', 'q', 'r', 's', 't', 'v', 'w', 'x', 'y', 'z':
			return r - ('a' - 'A')
		default:
			return r
		}
	}, s)
}
