package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCode(code string, ttl time.Duration) *AuthorizationCode {
	now := time.Now()
	return &AuthorizationCode{
		Code:                code,
		ClientID:            "mcp-client",
		RedirectURI:         "http://localhost:53511/callback",
		UserID:              "alice",
		Realm:               "alice",
		Scopes:              []string{"cas:read", "cas:write"},
		CodeChallenge:       "challenge",
		CodeChallengeMethod: "S256",
		Granted:             GrantedPermissions{CanUpload: true},
		CreatedAt:           now.UnixMilli(),
		ExpiresAt:           now.Add(ttl).UnixMilli(),
	}
}

func TestMemoryStoreConsume(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	t.Cleanup(s.Close)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, testCode("code-1", time.Minute)))

	got, err := s.Consume(ctx, "code-1")
	require.NoError(t, err)
	assert.Equal(t, "mcp-client", got.ClientID)
	assert.Equal(t, "alice", got.Realm)
	assert.True(t, got.Used)

	// One-shot: the second consume fails identically to a missing code.
	_, err = s.Consume(ctx, "code-1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Consume(ctx, "never-issued")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreExpiry(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	t.Cleanup(s.Close)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, testCode("code-1", time.Minute)))
	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err := s.Consume(ctx, "code-1")
	assert.ErrorIs(t, err, ErrNotFound)

	t.Run("sweep removes expired entries", func(t *testing.T) {
		s.removeExpired()
		s.mu.RLock()
		defer s.mu.RUnlock()
		assert.Empty(t, s.codes)
	})
}
