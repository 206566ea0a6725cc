package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casfa/casfa/pkg/auth/token"
	"github.com/casfa/casfa/pkg/delegate"
	"github.com/casfa/casfa/pkg/errors"
)

// seedDelegate stores a delegate with a live access token and returns the
// raw token bytes.
func seedDelegate(t *testing.T, store delegate.Store, mutate func(*delegate.Delegate)) (*delegate.Delegate, []byte) {
	t.Helper()

	rawID := token.NewID()
	id := token.FormatID(rawID)
	atExpiresAt := time.Now().Add(time.Hour).UnixMilli()

	at, err := token.EncodeAccess(rawID, atExpiresAt)
	require.NoError(t, err)

	d := &delegate.Delegate{
		DelegateID:    id,
		Realm:         "alice",
		ParentID:      "dlt_parent",
		Chain:         []string{"dlt_parent", id},
		Depth:         1,
		CanUpload:     true,
		CreatedAt:     time.Now().UnixMilli(),
		CurrentATHash: token.Hash(at),
		CurrentRTHash: "rt-hash",
		ATExpiresAt:   atExpiresAt,
	}
	if mutate != nil {
		mutate(d)
	}
	require.NoError(t, store.Create(context.Background(), d))
	return d, at
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()
	store := delegate.NewMemoryStore()
	a := NewAuthenticator(store)
	ctx := context.Background()

	d, at := seedDelegate(t, store, nil)

	t.Run("valid token yields the access identity", func(t *testing.T) {
		t.Parallel()
		got, err := a.Authenticate(ctx, "Bearer "+token.EncodeBase64(at))
		require.NoError(t, err)
		assert.Equal(t, TypeAccess, got.Type)
		assert.Equal(t, d.DelegateID, got.DelegateID)
		assert.Equal(t, "alice", got.Realm)
		assert.True(t, got.CanUpload)
		assert.False(t, got.CanManageDepot)
		assert.Equal(t, d.Chain, got.IssuerChain)
		assert.Equal(t, at, got.TokenBytes)
	})

	t.Run("header failures", func(t *testing.T) {
		t.Parallel()
		cases := []struct {
			name   string
			header string
			kind   errors.Kind
		}{
			{"missing header", "", errors.ErrUnauthorized},
			{"not bearer", "Basic abc", errors.ErrUnauthorized},
			{"bad base64", "Bearer !!!", errors.ErrInvalidTokenFormat},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				t.Parallel()
				_, err := a.Authenticate(ctx, tc.header)
				require.Error(t, err)
				assert.True(t, errors.Is(err, tc.kind), "got %v", err)
			})
		}
	})

	t.Run("wrong length is a format error", func(t *testing.T) {
		t.Parallel()
		_, err := a.Authenticate(ctx, "Bearer "+token.EncodeBase64(make([]byte, 17)))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidTokenFormat))
	})

	t.Run("refresh token is refused with 403", func(t *testing.T) {
		t.Parallel()
		rt, err := token.EncodeRefresh(token.NewID())
		require.NoError(t, err)
		_, err = a.Authenticate(ctx, "Bearer "+token.EncodeBase64(rt))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrAccessTokenRequired))

		var appErr *errors.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, http.StatusForbidden, appErr.HTTPStatus())
	})

	t.Run("unknown delegate", func(t *testing.T) {
		t.Parallel()
		stray, err := token.EncodeAccess(token.NewID(), time.Now().Add(time.Hour).UnixMilli())
		require.NoError(t, err)
		_, err = a.Authenticate(ctx, "Bearer "+token.EncodeBase64(stray))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrDelegateNotFound))
	})

	t.Run("stale token generation", func(t *testing.T) {
		t.Parallel()
		d2, _ := seedDelegate(t, store, func(d *delegate.Delegate) {
			d.CurrentATHash = "something-else"
		})
		stale, err := token.ParseID(d2.DelegateID)
		require.NoError(t, err)
		raw, err := token.EncodeAccess(stale, d2.ATExpiresAt)
		require.NoError(t, err)

		_, err = a.Authenticate(ctx, "Bearer "+token.EncodeBase64(raw))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrTokenInvalid))
	})

	t.Run("revoked delegate", func(t *testing.T) {
		t.Parallel()
		_, rawAT := seedDelegate(t, store, func(d *delegate.Delegate) {
			d.IsRevoked = true
		})
		_, err := a.Authenticate(ctx, "Bearer "+token.EncodeBase64(rawAT))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrDelegateRevoked))
	})

	t.Run("expired delegate", func(t *testing.T) {
		t.Parallel()
		_, rawAT := seedDelegate(t, store, func(d *delegate.Delegate) {
			d.ExpiresAt = time.Now().Add(-time.Minute).UnixMilli()
		})
		_, err := a.Authenticate(ctx, "Bearer "+token.EncodeBase64(rawAT))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrDelegateExpired))
	})

	t.Run("expired access token", func(t *testing.T) {
		t.Parallel()
		store2 := delegate.NewMemoryStore()
		a2 := NewAuthenticator(store2)
		_, rawAT := seedDelegate(t, store2, nil)
		a2.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

		_, err := a2.Authenticate(ctx, "Bearer "+token.EncodeBase64(rawAT))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrTokenExpired))
	})
}

func TestAuthenticatorMiddleware(t *testing.T) {
	t.Parallel()
	store := delegate.NewMemoryStore()
	a := NewAuthenticator(store)
	d, at := seedDelegate(t, store, nil)

	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := FromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, d.DelegateID, got.DelegateID)
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("authenticated request reaches the handler", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/api/thing", nil)
		req.Header.Set("Authorization", "Bearer "+token.EncodeBase64(at))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("rejection renders the typed error body", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/api/thing", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t,
			`{"error":"UNAUTHORIZED","message":"missing Authorization header"}`,
			rec.Body.String())
	})
}
