// Package v1 contains the delegate-facing REST controllers: delegate
// management, root issuance, and token refresh.
package v1

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/casfa/casfa/pkg/auth"
	"github.com/casfa/casfa/pkg/auth/token"
	"github.com/casfa/casfa/pkg/delegate"
	"github.com/casfa/casfa/pkg/errors"
	"github.com/casfa/casfa/pkg/logger"
)

// List pagination bounds.
const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// DelegatesRoutes defines the routes for delegate management.
type DelegatesRoutes struct {
	manager *delegate.Manager
}

// DelegatesRouter creates the delegate-management router, mounted under
// /api/realm/{realmId}/delegates behind the access-token middleware.
func DelegatesRouter(manager *delegate.Manager) http.Handler {
	routes := DelegatesRoutes{manager: manager}

	r := chi.NewRouter()
	r.Use(requireRealmMatch)
	r.Post("/", routes.createDelegate)
	r.Get("/", routes.listDelegates)
	r.Get("/{delegateID}", routes.getDelegate)
	r.Post("/{delegateID}/revoke", routes.revokeDelegate)
	return r
}

// requireRealmMatch rejects requests whose path realm differs from the
// authenticated token's realm.
func requireRealmMatch(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, ok := auth.FromContext(r.Context())
		if !ok {
			errors.WriteHTTP(w, errors.New(errors.ErrUnauthorized, "authentication required"))
			return
		}
		if realm := chi.URLParam(r, "realmId"); realm != authCtx.Realm {
			errors.WriteHTTP(w, errors.New(errors.ErrRealmMismatch, "token is not valid for this realm"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type createDelegateRequest struct {
	Name            string   `json:"name,omitempty"`
	CanUpload       bool     `json:"canUpload,omitempty"`
	CanManageDepot  bool     `json:"canManageDepot,omitempty"`
	DelegatedDepots []string `json:"delegatedDepots,omitempty"`
	Scope           []string `json:"scope,omitempty"`

	// ExpiresIn bounds the new delegate's lifetime in seconds.
	ExpiresIn int64 `json:"expiresIn,omitempty"`

	// TokenTTLSeconds overrides the access-token lifetime for the first
	// token pair.
	TokenTTLSeconds int64 `json:"tokenTtlSeconds,omitempty"`
}

// delegateWithTokens is the create response: the metadata plus the only
// copy of the raw token pair the server will ever emit.
type delegateWithTokens struct {
	delegate.Metadata
	RefreshToken         string `json:"refreshToken"`
	AccessToken          string `json:"accessToken"`
	AccessTokenExpiresAt int64  `json:"accessTokenExpiresAt"`
}

func (s *DelegatesRoutes) createDelegate(w http.ResponseWriter, r *http.Request) {
	authCtx, _ := auth.FromContext(r.Context())

	var req createDelegateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteHTTP(w, errors.New(errors.ErrInvalidRequest, "malformed request body"))
		return
	}

	childReq := delegate.ChildRequest{
		Name:            req.Name,
		CanUpload:       req.CanUpload,
		CanManageDepot:  req.CanManageDepot,
		DelegatedDepots: req.DelegatedDepots,
		Scopes:          req.Scope,
		TokenTTL:        time.Duration(req.TokenTTLSeconds) * time.Second,
	}
	if req.ExpiresIn > 0 {
		childReq.ExpiresAt = time.Now().UnixMilli() + req.ExpiresIn*1000
	}

	child, pair, err := s.manager.CreateChild(r.Context(), authCtx.DelegateID, childReq)
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, delegateWithTokens{
		Metadata:             child.Metadata(),
		RefreshToken:         token.EncodeBase64(pair.RefreshToken),
		AccessToken:          token.EncodeBase64(pair.AccessToken),
		AccessTokenExpiresAt: pair.ATExpiresAt,
	})
}

type delegateListResponse struct {
	Delegates  []delegate.Metadata `json:"delegates"`
	NextCursor string              `json:"nextCursor,omitempty"`
}

func (s *DelegatesRoutes) listDelegates(w http.ResponseWriter, r *http.Request) {
	authCtx, _ := auth.FromContext(r.Context())
	q := r.URL.Query()

	limit := defaultListLimit
	if v := q.Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			errors.WriteHTTP(w, errors.New(errors.ErrInvalidRequest, "limit must be a positive integer"))
			return
		}
		limit = min(parsed, maxListLimit)
	}
	includeRevoked := q.Get("includeRevoked") == "true"

	children, next, err := s.manager.ListChildren(
		r.Context(), authCtx.DelegateID, authCtx.DelegateID, limit, q.Get("cursor"), includeRevoked)
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	out := delegateListResponse{Delegates: make([]delegate.Metadata, 0, len(children)), NextCursor: next}
	for _, child := range children {
		out.Delegates = append(out.Delegates, child.Metadata())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *DelegatesRoutes) getDelegate(w http.ResponseWriter, r *http.Request) {
	authCtx, _ := auth.FromContext(r.Context())

	d, err := s.manager.GetVisible(r.Context(), authCtx.DelegateID, chi.URLParam(r, "delegateID"))
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Metadata())
}

type revokeResponse struct {
	DelegateID string `json:"delegateId"`
	RevokedAt  int64  `json:"revokedAt"`
}

func (s *DelegatesRoutes) revokeDelegate(w http.ResponseWriter, r *http.Request) {
	authCtx, _ := auth.FromContext(r.Context())
	id := chi.URLParam(r, "delegateID")

	// Visibility first: out-of-subtree targets 404 before any revocation
	// state leaks.
	if _, err := s.manager.GetVisible(r.Context(), authCtx.DelegateID, id); err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	if _, err := s.manager.RevokeCascade(r.Context(), id, authCtx.DelegateID); err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	revoked, err := s.manager.GetVisible(r.Context(), authCtx.DelegateID, id)
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, revokeResponse{DelegateID: id, RevokedAt: revoked.RevokedAt})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorw("failed to write response", "error", err.Error())
	}
}
