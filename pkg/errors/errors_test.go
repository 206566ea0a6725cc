package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	t.Parallel()

	err := New(ErrTokenInvalid, "hash mismatch")
	assert.Equal(t, "TOKEN_INVALID: hash mismatch", err.Error())

	wrapped := Wrap(ErrInternal, "store failure", fmt.Errorf("connection reset"))
	assert.Equal(t, "INTERNAL: store failure: connection reset", wrapped.Error())
	assert.EqualError(t, wrapped.Unwrap(), "connection reset")
}

func TestKindMatching(t *testing.T) {
	t.Parallel()

	err := New(ErrPermissionEscalation, "child wants canUpload")
	assert.True(t, Is(err, ErrPermissionEscalation))
	assert.False(t, Is(err, ErrInvalidScope))
	assert.Equal(t, ErrPermissionEscalation, KindOf(err))

	// Wrapped chains preserve the kind.
	outer := fmt.Errorf("creating delegate: %w", err)
	assert.True(t, Is(outer, ErrPermissionEscalation))

	assert.Equal(t, ErrInternal, KindOf(fmt.Errorf("plain")))
	assert.False(t, Is(nil, ErrInternal))
}

func TestHTTPStatusDefaultsAndOverride(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusUnauthorized, New(ErrDelegateNotFound, "x").HTTPStatus())
	assert.Equal(t, http.StatusNotFound, New(ErrDelegateNotFound, "x").WithStatus(http.StatusNotFound).HTTPStatus())
	assert.Equal(t, http.StatusConflict, New(ErrTokenInvalid, "x").WithStatus(http.StatusConflict).HTTPStatus())
	assert.Equal(t, http.StatusForbidden, New(ErrRealmMismatch, "x").HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, New(Kind("BOGUS"), "x").HTTPStatus())
}

func TestWriteHTTP(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteHTTP(rec, New(ErrRealmMismatch, "realm does not match token"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "REALM_MISMATCH", body["error"])
	assert.Equal(t, "realm does not match token", body["message"])
}

func TestWriteHTTPUntypedError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteHTTP(rec, fmt.Errorf("redis: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INTERNAL", body["error"])
	assert.NotContains(t, body["message"], "redis")
}
