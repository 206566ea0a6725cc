package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-hmac-secret")

func newHS256Validator(t *testing.T, issuer, audience string) *JWTValidator {
	t.Helper()
	v, err := NewJWTValidator(context.Background(), JWTValidatorConfig{
		Issuer:     issuer,
		Audience:   audience,
		HMACSecret: testSecret,
	})
	require.NoError(t, err)
	return v
}

func mintJWT(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func TestJWTValidate(t *testing.T) {
	t.Parallel()
	v := newHS256Validator(t, "https://idp.example.com", "casfa")

	baseClaims := func() jwt.MapClaims {
		return jwt.MapClaims{
			"iss": "https://idp.example.com",
			"aud": "casfa",
			"sub": "alice",
			"exp": time.Now().Add(time.Hour).Unix(),
		}
	}

	t.Run("valid token maps onto the user identity", func(t *testing.T) {
		t.Parallel()
		claims := baseClaims()
		claims["role"] = "admin"
		got, err := v.Validate(context.Background(), mintJWT(t, claims))
		require.NoError(t, err)
		assert.Equal(t, TypeJWT, got.Type)
		assert.Equal(t, "alice", got.UserID)
		assert.Equal(t, "alice", got.Realm, "the subject owns the realm named after it")
		assert.Equal(t, "admin", got.Role)
	})

	t.Run("claim failures", func(t *testing.T) {
		t.Parallel()
		cases := []struct {
			name   string
			mutate func(jwt.MapClaims)
		}{
			{"wrong issuer", func(c jwt.MapClaims) { c["iss"] = "https://evil.example.com" }},
			{"wrong audience", func(c jwt.MapClaims) { c["aud"] = "other" }},
			{"expired", func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Minute).Unix() }},
			{"no subject", func(c jwt.MapClaims) { delete(c, "sub") }},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				t.Parallel()
				claims := baseClaims()
				tc.mutate(claims)
				_, err := v.Validate(context.Background(), mintJWT(t, claims))
				assert.Error(t, err)
			})
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		t.Parallel()
		_, err := v.Validate(context.Background(), "not.a.jwt")
		assert.Error(t, err)
	})
}

func TestJWTMiddleware(t *testing.T) {
	t.Parallel()
	v := newHS256Validator(t, "", "")

	handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := FromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "alice", got.UserID)
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("valid JWT passes", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/api/tokens/root", nil)
		req.Header.Set("Authorization", "Bearer "+mintJWT(t, jwt.MapClaims{
			"sub": "alice",
			"exp": time.Now().Add(time.Hour).Unix(),
		}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("missing credential is challenged", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/api/tokens/root", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
	})

	t.Run("bad signature is challenged", func(t *testing.T) {
		t.Parallel()
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "alice",
			"exp": time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte("wrong-secret"))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/tokens/root", nil)
		req.Header.Set("Authorization", "Bearer "+forged)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestNewJWTValidatorRequiresKeySource(t *testing.T) {
	t.Parallel()
	_, err := NewJWTValidator(context.Background(), JWTValidatorConfig{})
	assert.ErrorIs(t, err, ErrMissingJWKSURL)
}
