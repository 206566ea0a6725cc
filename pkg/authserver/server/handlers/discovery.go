package handlers

import (
	"fmt"
	"net/http"

	"github.com/casfa/casfa/pkg/authserver"
	"github.com/casfa/casfa/pkg/authserver/server/crypto"
)

// DefaultDiscoveryCacheMaxAge is the Cache-Control max-age for the
// discovery endpoint (1 hour).
const DefaultDiscoveryCacheMaxAge = 3600

// authorizationServerMetadata is the RFC 8414 discovery document.
type authorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
}

// DiscoveryHandler handles GET /.well-known/oauth-authorization-server/api/auth,
// returning the OAuth 2.0 Authorization Server Metadata per RFC 8414.
func (h *Handler) DiscoveryHandler(w http.ResponseWriter, _ *http.Request) {
	issuer := h.config.Issuer
	metadata := authorizationServerMetadata{
		Issuer:                            issuer,
		AuthorizationEndpoint:             issuer + "/api/auth/authorize",
		TokenEndpoint:                     issuer + "/api/auth/token",
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token"},
		CodeChallengeMethodsSupported:     []string{crypto.PKCEChallengeMethodS256},
		TokenEndpointAuthMethodsSupported: []string{authserver.TokenEndpointAuthMethodNone},
		ScopesSupported:                   authserver.SupportedScopes,
	}

	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", DefaultDiscoveryCacheMaxAge))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	writeJSON(w, http.StatusOK, metadata)
}
