// Package pagination provides opaque cursor-based pagination for list
// endpoints.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidCursor is returned by Decode for cursors that do not parse.
// Callers map it to their bad-request error; a garbled cursor is client
// input, not a server fault.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is a position in a result set ordered by (createdAt, id).
type Cursor struct {
	CreatedAt int64 // epoch milliseconds
	ID        string
}

// Encode returns an opaque cursor string.
func Encode(createdAt int64, id string) string {
	raw := fmt.Sprintf("%d|%s", createdAt, id)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// Decode parses an opaque cursor string. Returns nil for empty input.
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return nil, ErrInvalidCursor
	}
	millis, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{CreatedAt: millis, ID: parts[1]}, nil
}

// ComputePage takes items fetched with limit+1, the requested limit, and a
// function extracting (createdAt, id) from an item. It returns the trimmed
// page and the cursor for the next page, empty when this is the last page.
func ComputePage[T any](items []T, limit int, extractKey func(T) (int64, string)) ([]T, string) {
	if len(items) <= limit {
		return items, ""
	}
	items = items[:limit]
	createdAt, id := extractKey(items[len(items)-1])
	return items, Encode(createdAt, id)
}
