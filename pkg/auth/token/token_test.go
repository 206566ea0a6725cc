package token

import (
	"encoding/hex"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRandRead substitutes the nonce source for the duration of a test.
func setRandRead(t *testing.T, f func([]byte) (int, error)) {
	t.Helper()
	orig := randRead
	randRead = f
	t.Cleanup(func() { randRead = orig })
}

func fixedNonce(b byte) func([]byte) (int, error) {
	return func(p []byte) (int, error) {
		for i := range p {
			p[i] = b
		}
		return len(p), nil
	}
}

func testDelegateID() [16]byte {
	var id [16]byte
	for i := range id {
		id[i] = byte(i + 1)
	}
	return id
}

func TestAccessTokenRoundTrip(t *testing.T) {
	id := testDelegateID()

	tests := []struct {
		name      string
		expiresAt int64
	}{
		{name: "zero expiry", expiresAt: 0},
		{name: "typical expiry", expiresAt: 1735689600000},
		{name: "max expiry", expiresAt: math.MaxInt64},
		{name: "negative expiry", expiresAt: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := EncodeAccess(id, tt.expiresAt)
			require.NoError(t, err)
			require.Len(t, raw, AccessTokenLength)
			assert.Equal(t, id[:], raw[:16])

			decoded, err := Decode(raw)
			require.NoError(t, err)
			assert.Equal(t, TypeAccess, decoded.Type)
			assert.Equal(t, id, decoded.DelegateID)
			assert.Equal(t, tt.expiresAt, decoded.ExpiresAt)
		})
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	id := testDelegateID()

	raw, err := EncodeRefresh(id)
	require.NoError(t, err)
	require.Len(t, raw, RefreshTokenLength)
	assert.Equal(t, id[:], raw[:16])

	decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeRefresh, decoded.Type)
	assert.Equal(t, id, decoded.DelegateID)
	assert.Zero(t, decoded.ExpiresAt)
}

func TestDecodeLengthDeterminesType(t *testing.T) {
	t.Parallel()

	access, err := Decode(make([]byte, AccessTokenLength))
	require.NoError(t, err)
	assert.Equal(t, TypeAccess, access.Type)

	refresh, err := Decode(make([]byte, RefreshTokenLength))
	require.NoError(t, err)
	assert.Equal(t, TypeRefresh, refresh.Type)
}

func TestDecodeRejectsOtherLengths(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 16, 23, 25, 31, 33, 64} {
		_, err := Decode(make([]byte, n))
		require.Error(t, err, "length %d", n)

		var lenErr *InvalidLengthError
		require.ErrorAs(t, err, &lenErr)
		assert.Equal(t, n, lenErr.Length)
	}
}

func TestEncodeUsesFreshNonces(t *testing.T) {
	id := testDelegateID()

	a, err := EncodeAccess(id, 1735689600000)
	require.NoError(t, err)
	b, err := EncodeAccess(id, 1735689600000)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "two access tokens for the same delegate must differ")
	assert.NotEqual(t, Hash(a), Hash(b))

	r1, err := EncodeRefresh(id)
	require.NoError(t, err)
	r2, err := EncodeRefresh(id)
	require.NoError(t, err)
	assert.NotEqual(t, r1, r2, "two refresh tokens for the same delegate must differ")
}

func TestEncodeDeterministicWithFixedNonce(t *testing.T) {
	setRandRead(t, fixedNonce(0xAB))
	id := testDelegateID()

	a, err := EncodeAccess(id, 42)
	require.NoError(t, err)
	b, err := EncodeAccess(id, 42)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, Hash(a), Hash(b))
}

func TestEncodeNonceFailure(t *testing.T) {
	setRandRead(t, func(_ []byte) (int, error) {
		return 0, errors.New("entropy exhausted")
	})

	_, err := EncodeAccess(testDelegateID(), 42)
	require.Error(t, err)
	_, err = EncodeRefresh(testDelegateID())
	require.Error(t, err)
}

func TestHashShape(t *testing.T) {
	t.Parallel()

	h := Hash([]byte("some token bytes"))
	assert.Len(t, h, 2*HashLength)
	_, err := hex.DecodeString(h)
	require.NoError(t, err, "hash must be lowercase hex")

	assert.Equal(t, h, Hash([]byte("some token bytes")))
	assert.NotEqual(t, h, Hash([]byte("other token bytes")))
}
