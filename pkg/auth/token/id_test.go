package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatIDShape(t *testing.T) {
	t.Parallel()

	s := FormatID(testDelegateID())
	assert.True(t, strings.HasPrefix(s, IDPrefix))
	assert.Len(t, s, len(IDPrefix)+encodedIDLength)
	for _, r := range s[len(IDPrefix):] {
		assert.Contains(t, crockfordAlphabet, string(r))
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	t.Parallel()

	for range 16 {
		id := NewID()
		parsed, err := ParseID(FormatID(id))
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	}
}

func TestParseIDCaseInsensitive(t *testing.T) {
	t.Parallel()

	id := testDelegateID()
	s := FormatID(id)

	parsed, err := ParseID(strings.ToLower(s[:len(IDPrefix)]) + strings.ToLower(s[len(IDPrefix):]))
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseIDMapsConfusables(t *testing.T) {
	t.Parallel()

	filler := "ABCDEFGH23456789ABCD"
	canonical, err := ParseID(IDPrefix + "111100" + filler)
	require.NoError(t, err)

	for _, variant := range []string{"IiLl0o", "iIlLoO", "IL11OO"} {
		parsed, err := ParseID(IDPrefix + variant + filler)
		require.NoError(t, err, "variant %q", variant)
		assert.Equal(t, canonical, parsed, "variant %q", variant)
	}
}

func TestParseIDErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "missing prefix", input: "0123456789ABCDEFGHJKMNPQRS"},
		{name: "wrong prefix", input: "dlg_0123456789ABCDEFGHJKMNPQRS"},
		{name: "too short", input: IDPrefix + "0123456789"},
		{name: "too long", input: IDPrefix + "0123456789ABCDEFGHJKMNPQRS0"},
		{name: "excluded letter", input: IDPrefix + "U123456789ABCDEFGHJKMNPQRS"},
		{name: "punctuation", input: IDPrefix + "!123456789ABCDEFGHJKMNPQRS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseID(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestNewIDUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[[16]byte]bool)
	for range 32 {
		id := NewID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}
