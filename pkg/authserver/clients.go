// Package authserver implements the OAuth 2.1 authorization-code server
// that lets MCP clients obtain delegate tokens: a static client registry,
// scope-to-capability mapping, and the authorize/approve/token handlers.
package authserver

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// TokenEndpointAuthMethodNone marks public clients (RFC 8414). Every
// registered client is public; PKCE is the proof of possession.
const TokenEndpointAuthMethodNone = "none"

// Client is a statically registered OAuth client.
//
// A RedirectURIs entry is either an exact URI or a port-wildcard pattern
// `scheme://host:*[/path]`. A pattern without a path accepts ANY path on
// that host; register a path when the client's callback route is known.
type Client struct {
	ClientID                string   `json:"clientId"`
	Name                    string   `json:"name"`
	RedirectURIs            []string `json:"redirectUris"`
	GrantTypes              []string `json:"grantTypes,omitempty"`
	TokenEndpointAuthMethod string   `json:"tokenEndpointAuthMethod,omitempty"`
}

// MatchRedirectURI reports whether the candidate redirect URI is allowed
// for this client: an exact registered match, or a port-wildcard pattern
// match. Wildcard matching requires an equal scheme, an equal host
// (localhost compared case-insensitively), and an explicit port in the
// candidate; when the pattern carries a path the candidate path must equal
// it exactly.
func (c *Client) MatchRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
		if strings.Contains(registered, ":*") && matchPortWildcard(registered, uri) {
			return true
		}
	}
	return false
}

func matchPortWildcard(pattern, uri string) bool {
	scheme, rest, found := strings.Cut(pattern, "://")
	if !found {
		return false
	}
	hostPart, patternPath, _ := strings.Cut(rest, "/")
	patternHost, ok := strings.CutSuffix(hostPart, ":*")
	if !ok {
		return false
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return false
	}
	if parsed.Scheme != scheme {
		return false
	}
	if parsed.Port() == "" {
		return false
	}
	if !hostsEqual(parsed.Hostname(), patternHost) {
		return false
	}
	if patternPath != "" {
		return parsed.Path == "/"+patternPath
	}
	return true
}

// hostsEqual compares hosts, treating localhost case-insensitively since
// loopback names are not case-sensitive in practice.
func hostsEqual(a, b string) bool {
	if strings.EqualFold(a, "localhost") || strings.EqualFold(b, "localhost") {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// Registry holds the statically configured clients.
type Registry struct {
	clients map[string]*Client
}

// NewRegistry builds a Registry from configured clients. Clients without
// grant types default to the two the server supports; the auth method is
// always "none".
func NewRegistry(clients []Client) (*Registry, error) {
	r := &Registry{clients: make(map[string]*Client, len(clients))}
	for i := range clients {
		c := clients[i]
		if c.ClientID == "" {
			return nil, fmt.Errorf("client %d has no clientId", i)
		}
		if len(c.RedirectURIs) == 0 {
			return nil, fmt.Errorf("client %s has no redirect URIs", c.ClientID)
		}
		if _, dup := r.clients[c.ClientID]; dup {
			return nil, fmt.Errorf("duplicate client id %s", c.ClientID)
		}
		if len(c.GrantTypes) == 0 {
			c.GrantTypes = []string{"authorization_code", "refresh_token"}
		}
		c.TokenEndpointAuthMethod = TokenEndpointAuthMethodNone
		r.clients[c.ClientID] = &c
	}
	return r, nil
}

// ParseClients parses the KNOWN_CLIENTS configuration value, a JSON array
// of Client records.
func ParseClients(raw string) ([]Client, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var clients []Client
	if err := json.Unmarshal([]byte(raw), &clients); err != nil {
		return nil, fmt.Errorf("malformed client registry JSON: %w", err)
	}
	return clients, nil
}

// Get returns the client by id.
func (r *Registry) Get(clientID string) (*Client, bool) {
	c, ok := r.clients[clientID]
	return c, ok
}
