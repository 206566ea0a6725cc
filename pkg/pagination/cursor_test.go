package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	s := Encode(1724630400000, "dlt_0123456789ABCDEFGHJKMNPQRS")
	c, err := Decode(s)
	require.NoError(t, err)
	assert.Equal(t, int64(1724630400000), c.CreatedAt)
	assert.Equal(t, "dlt_0123456789ABCDEFGHJKMNPQRS", c.ID)
}

func TestDecodeEmpty(t *testing.T) {
	t.Parallel()

	c, err := Decode("")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestDecodeInvalid(t *testing.T) {
	t.Parallel()

	_, err := Decode("not base64!!")
	assert.ErrorIs(t, err, ErrInvalidCursor)

	// Valid base64 but missing the separator.
	_, err = Decode("MTIzNDU=")
	assert.ErrorIs(t, err, ErrInvalidCursor)

	// Separator present but the timestamp is not numeric
	// ("not-a-number|id").
	_, err = Decode("bm90LWEtbnVtYmVyfGlk")
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestComputePage(t *testing.T) {
	t.Parallel()

	type row struct {
		createdAt int64
		id        string
	}
	extract := func(r row) (int64, string) { return r.createdAt, r.id }

	t.Run("last page yields no cursor", func(t *testing.T) {
		t.Parallel()
		items := []row{{1, "a"}, {2, "b"}}
		page, next := ComputePage(items, 2, extract)
		assert.Len(t, page, 2)
		assert.Empty(t, next)
	})

	t.Run("full page yields cursor of last item", func(t *testing.T) {
		t.Parallel()
		items := []row{{1, "a"}, {2, "b"}, {3, "c"}}
		page, next := ComputePage(items, 2, extract)
		assert.Len(t, page, 2)
		require.NotEmpty(t, next)

		c, err := Decode(next)
		require.NoError(t, err)
		assert.Equal(t, int64(2), c.CreatedAt)
		assert.Equal(t, "b", c.ID)
	})
}
