// Package handlers provides the HTTP handlers for the OAuth authorization
// server endpoints: discovery, authorize, approve, and token.
package handlers

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/casfa/casfa/pkg/authserver"
	"github.com/casfa/casfa/pkg/authserver/storage"
	"github.com/casfa/casfa/pkg/delegate"
	"github.com/casfa/casfa/pkg/logger"
)

// OAuth error codes per RFC 6749 §5.2 and §4.1.2.1.
const (
	ErrorInvalidRequest          = "invalid_request"
	ErrorInvalidClient           = "invalid_client"
	ErrorInvalidGrant            = "invalid_grant"
	ErrorInvalidScope            = "invalid_scope"
	ErrorUnsupportedResponseType = "unsupported_response_type"
	ErrorUnsupportedGrantType    = "unsupported_grant_type"
	ErrorServerError             = "server_error"
)

// Config carries the handler's issuer identity and TTLs.
type Config struct {
	// Issuer is the public base URL of this server, used in discovery
	// metadata and endpoint URLs.
	Issuer string

	// AccessTokenTTL is reported as expires_in on token responses.
	AccessTokenTTL time.Duration

	// AuthCodeTTL bounds the authorize-to-exchange window.
	AuthCodeTTL time.Duration
}

// Handler provides the OAuth authorization server endpoints.
type Handler struct {
	clients *authserver.Registry
	codes   storage.Store
	manager *delegate.Manager
	config  Config

	// now is swapped out in tests.
	now func() time.Time
}

// NewHandler creates a Handler over the client registry, code store, and
// delegate manager.
func NewHandler(clients *authserver.Registry, codes storage.Store, manager *delegate.Manager, config Config) *Handler {
	if config.AuthCodeTTL <= 0 {
		config.AuthCodeTTL = storage.DefaultAuthCodeTTL
	}
	return &Handler{
		clients: clients,
		codes:   codes,
		manager: manager,
		config:  config,
		now:     time.Now,
	}
}

// WellKnownRoutes registers the RFC 8414 discovery endpoint. The metadata
// path carries the /api/auth suffix because the issuer's OAuth surface
// lives under that prefix.
func (h *Handler) WellKnownRoutes(r chi.Router) {
	r.Get("/.well-known/oauth-authorization-server/api/auth", h.DiscoveryHandler)
}

// OAuthRoutes registers the authorize, approve, and token endpoints.
// Authorize and approve act for the logged-in user and sit behind the JWT
// middleware; token is unauthenticated (public clients, PKCE-proven).
func (h *Handler) OAuthRoutes(r chi.Router, requireUser func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(requireUser)
		r.Get("/api/auth/authorize", h.AuthorizeHandler)
		r.Post("/api/auth/approve", h.ApproveHandler)
	})
	r.Post("/api/auth/token", h.TokenHandler)
}

// oauthError is the RFC 6749 §5.2 error body.
type oauthError struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(oauthError{Error: code, Description: description}); err != nil {
		logger.Errorw("failed to write OAuth error response", "error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorw("failed to write response", "error", err.Error())
	}
}

// formOrJSON decodes a request body that may be form-urlencoded (the RFC
// shape) or JSON (what several MCP clients send). Values land in dst's
// json-tagged string fields.
func formOrJSON(r *http.Request, dst any) error {
	contentType := r.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "application/json" {
		return json.NewDecoder(r.Body).Decode(dst)
	}

	if err := r.ParseForm(); err != nil {
		return err
	}
	// Round-trip the form through JSON so both content types share one
	// destination struct.
	values := make(map[string]string, len(r.PostForm))
	for key := range r.PostForm {
		values[key] = r.PostForm.Get(key)
	}
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func splitScopes(scope string) []string {
	return strings.Fields(scope)
}
