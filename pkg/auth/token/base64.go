package token

import (
	"encoding/base64"
	"errors"
)

// ErrInvalidBase64 reports a transported token that decodes under none of
// the accepted base64 alphabets.
var ErrInvalidBase64 = errors.New("invalid base64 token")

// EncodeBase64 renders raw token bytes for transport in HTTP bodies and
// Bearer headers.
func EncodeBase64(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodeBase64 parses a transported token. Clients differ in which base64
// variant they emit, so the standard and URL-safe alphabets are accepted
// with and without padding.
func DecodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if raw, err := enc.DecodeString(s); err == nil {
			return raw, nil
		}
	}
	return nil, ErrInvalidBase64
}
