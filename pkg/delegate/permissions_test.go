package delegate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casfa/casfa/pkg/errors"
)

func TestValidateNarrowing(t *testing.T) {
	t.Parallel()

	parent := &Delegate{
		DelegateID:      "dlt_parent",
		CanUpload:       true,
		CanManageDepot:  false,
		DelegatedDepots: []string{"depot-a", "depot-b"},
		ExpiresAt:       1000,
		Depth:           2,
	}

	t.Run("equal or narrower passes", func(t *testing.T) {
		t.Parallel()
		err := ValidateNarrowing(parent, ChildSpec{
			CanUpload:       true,
			DelegatedDepots: []string{"depot-a"},
			ExpiresAt:       500,
		}, 0)
		assert.NoError(t, err)
	})

	t.Run("capability escalation", func(t *testing.T) {
		t.Parallel()
		err := ValidateNarrowing(parent, ChildSpec{CanManageDepot: true}, 0)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrPermissionEscalation))
	})

	t.Run("depot outside parent set", func(t *testing.T) {
		t.Parallel()
		err := ValidateNarrowing(parent, ChildSpec{DelegatedDepots: []string{"depot-c"}}, 0)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrPermissionEscalation))
	})

	t.Run("unrestricted parent admits any depot set", func(t *testing.T) {
		t.Parallel()
		open := &Delegate{CanUpload: true}
		err := ValidateNarrowing(open, ChildSpec{DelegatedDepots: []string{"anything"}}, 0)
		assert.NoError(t, err)
	})

	t.Run("later expiry than parent", func(t *testing.T) {
		t.Parallel()
		err := ValidateNarrowing(parent, ChildSpec{ExpiresAt: 2000}, 0)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrPermissionEscalation))
	})

	t.Run("zero child expiry is allowed under a bounded parent", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, ValidateNarrowing(parent, ChildSpec{}, 0))
	})

	t.Run("depth limit", func(t *testing.T) {
		t.Parallel()
		err := ValidateNarrowing(parent, ChildSpec{}, 3)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrDepthExceeded))

		assert.NoError(t, ValidateNarrowing(parent, ChildSpec{}, 4))
	})
}
