package authserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchRedirectURI(t *testing.T) {
	t.Parallel()

	client := &Client{
		ClientID: "mcp-client",
		RedirectURIs: []string{
			"https://app.example.com/callback",
			"http://localhost:*/callback",
			"http://127.0.0.1:*",
		},
	}

	cases := []struct {
		name string
		uri  string
		want bool
	}{
		{"exact match", "https://app.example.com/callback", true},
		{"exact match wrong path", "https://app.example.com/other", false},
		{"wildcard port with path", "http://localhost:53511/callback", true},
		{"wildcard port wrong path", "http://localhost:53511/other", false},
		{"wildcard localhost case-insensitive", "http://LOCALHOST:8000/callback", true},
		{"wildcard requires explicit port", "http://localhost/callback", false},
		{"wildcard wrong scheme", "https://localhost:53511/callback", false},
		{"pathless wildcard accepts any path", "http://127.0.0.1:9999/anything/at/all", true},
		{"pathless wildcard still needs a port", "http://127.0.0.1/cb", false},
		{"wrong host", "http://evil.example.com:53511/callback", false},
		{"unparseable", "http://[::1", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, client.MatchRedirectURI(tc.uri))
		})
	}
}

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	t.Run("defaults applied", func(t *testing.T) {
		t.Parallel()
		r, err := NewRegistry([]Client{{
			ClientID:     "c1",
			Name:         "Client One",
			RedirectURIs: []string{"http://localhost:*/cb"},
		}})
		require.NoError(t, err)

		c, ok := r.Get("c1")
		require.True(t, ok)
		assert.Equal(t, []string{"authorization_code", "refresh_token"}, c.GrantTypes)
		assert.Equal(t, TokenEndpointAuthMethodNone, c.TokenEndpointAuthMethod)
	})

	t.Run("rejections", func(t *testing.T) {
		t.Parallel()
		_, err := NewRegistry([]Client{{RedirectURIs: []string{"x"}}})
		assert.Error(t, err, "missing clientId")

		_, err = NewRegistry([]Client{{ClientID: "c1"}})
		assert.Error(t, err, "missing redirect URIs")

		_, err = NewRegistry([]Client{
			{ClientID: "c1", RedirectURIs: []string{"x"}},
			{ClientID: "c1", RedirectURIs: []string{"y"}},
		})
		assert.Error(t, err, "duplicate id")
	})

	t.Run("unknown client", func(t *testing.T) {
		t.Parallel()
		r, err := NewRegistry(nil)
		require.NoError(t, err)
		_, ok := r.Get("nope")
		assert.False(t, ok)
	})
}

func TestParseClients(t *testing.T) {
	t.Parallel()

	clients, err := ParseClients(`[{"clientId":"c1","name":"One","redirectUris":["http://localhost:*/cb"]}]`)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "c1", clients[0].ClientID)

	clients, err = ParseClients("  ")
	require.NoError(t, err)
	assert.Empty(t, clients)

	_, err = ParseClients("{not json")
	assert.Error(t, err)
}

func TestScopeMapping(t *testing.T) {
	t.Parallel()

	canUpload, canManageDepot := CapsFromScopes([]string{ScopeRead, ScopeWrite})
	assert.True(t, canUpload)
	assert.False(t, canManageDepot)

	canUpload, canManageDepot = CapsFromScopes([]string{ScopeDepotManage})
	assert.False(t, canUpload)
	assert.True(t, canManageDepot)

	assert.Equal(t, []string{ScopeRead}, ScopesFromCaps(false, false))
	assert.Equal(t, []string{ScopeRead, ScopeWrite, ScopeDepotManage}, ScopesFromCaps(true, true))

	assert.True(t, ScopesSupported([]string{ScopeRead, ScopeWrite, ScopeDepotManage}))
	assert.False(t, ScopesSupported([]string{"cas:admin"}))
}
