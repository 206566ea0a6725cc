package handlers

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/casfa/casfa/pkg/auth/token"
	"github.com/casfa/casfa/pkg/authserver"
	"github.com/casfa/casfa/pkg/authserver/server/crypto"
	"github.com/casfa/casfa/pkg/authserver/storage"
	"github.com/casfa/casfa/pkg/delegate"
	"github.com/casfa/casfa/pkg/errors"
	"github.com/casfa/casfa/pkg/logger"
	"github.com/casfa/casfa/pkg/metrics"
)

// tokenRequest covers both grant types; unused fields stay empty.
type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	ClientID     string `json:"client_id"`
	CodeVerifier string `json:"code_verifier"`
	RefreshToken string `json:"refresh_token"`
}

// tokenResponse is the RFC 6749 §5.1 success body. Token values are
// base64 of the raw opaque bytes.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
}

// TokenHandler handles POST /api/auth/token for the authorization_code
// and refresh_token grants.
func (h *Handler) TokenHandler(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := formOrJSON(r, &req); err != nil {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidRequest, "malformed request body")
		return
	}

	switch req.GrantType {
	case "authorization_code":
		h.exchangeCode(w, r, req)
	case "refresh_token":
		h.refreshGrant(w, r, req)
	default:
		writeOAuthError(w, http.StatusBadRequest, ErrorUnsupportedGrantType, "unsupported grant_type")
	}
}

// exchangeCode consumes the one-shot authorization code, verifies PKCE,
// and mints the delegate the consent promised: a child of the realm's
// root, named after the client.
func (h *Handler) exchangeCode(w http.ResponseWriter, r *http.Request, req tokenRequest) {
	if req.Code == "" || req.RedirectURI == "" || req.ClientID == "" || req.CodeVerifier == "" {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidRequest, "code, redirect_uri, client_id and code_verifier are required")
		return
	}

	record, err := h.codes.Consume(r.Context(), req.Code)
	if err != nil {
		if !stderrors.Is(err, storage.ErrNotFound) {
			logger.Errorw("failed to consume authorization code", "error", err.Error())
		}
		metrics.AuthCodesConsumedTotal.WithLabelValues("rejected").Inc()
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidGrant, "authorization code is invalid or expired")
		return
	}

	// Everything below must match what the code was minted for; any
	// mismatch burns the code (it was already consumed) without detail.
	if record.ClientID != req.ClientID || record.RedirectURI != req.RedirectURI ||
		!crypto.VerifyPKCE(req.CodeVerifier, record.CodeChallenge) {
		metrics.AuthCodesConsumedTotal.WithLabelValues("rejected").Inc()
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidGrant, "authorization code is invalid or expired")
		return
	}

	root, _, err := h.manager.EnsureRoot(r.Context(), record.Realm)
	if err != nil {
		metrics.AuthCodesConsumedTotal.WithLabelValues("rejected").Inc()
		h.writeDelegationError(w, err)
		return
	}

	childReq := delegate.ChildRequest{
		Name:            "MCP: " + record.ClientID,
		CanUpload:       record.Granted.CanUpload,
		CanManageDepot:  record.Granted.CanManageDepot,
		DelegatedDepots: record.Granted.DelegatedDepots,
		ScopeNodeHash:   record.Granted.ScopeNodeHash,
	}
	if record.Granted.ExpiresIn > 0 {
		childReq.ExpiresAt = h.now().UnixMilli() + record.Granted.ExpiresIn*1000
	}

	child, pair, err := h.manager.CreateChild(r.Context(), root.DelegateID, childReq)
	if err != nil {
		metrics.AuthCodesConsumedTotal.WithLabelValues("rejected").Inc()
		h.writeDelegationError(w, err)
		return
	}
	metrics.AuthCodesConsumedTotal.WithLabelValues("ok").Inc()
	logger.Infow("authorization code exchanged",
		"client_id", record.ClientID,
		"realm", record.Realm,
		"delegate_id", child.DelegateID)

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  token.EncodeBase64(pair.AccessToken),
		RefreshToken: token.EncodeBase64(pair.RefreshToken),
		TokenType:    "Bearer",
		ExpiresIn:    int64(h.config.AccessTokenTTL.Seconds()),
		Scope:        strings.Join(record.Scopes, " "),
	})
}

// refreshGrant rotates a delegate token pair through the OAuth surface.
func (h *Handler) refreshGrant(w http.ResponseWriter, r *http.Request, req tokenRequest) {
	if req.RefreshToken == "" {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidRequest, "refresh_token is required")
		return
	}

	raw, err := token.DecodeBase64(req.RefreshToken)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidGrant, "refresh token is invalid")
		return
	}

	result, err := h.manager.Refresh(r.Context(), raw)
	if err != nil {
		h.writeDelegationError(w, err)
		return
	}

	d := result.Delegate
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  token.EncodeBase64(result.Tokens.AccessToken),
		RefreshToken: token.EncodeBase64(result.Tokens.RefreshToken),
		TokenType:    "Bearer",
		ExpiresIn:    int64(h.config.AccessTokenTTL.Seconds()),
		Scope:        strings.Join(authserver.ScopesFromCaps(d.CanUpload, d.CanManageDepot), " "),
	})
}

// writeDelegationError maps delegation-layer failures onto OAuth error
// codes: internal faults stay 500, everything else is invalid_grant.
func (h *Handler) writeDelegationError(w http.ResponseWriter, err error) {
	if errors.KindOf(err) == errors.ErrInternal {
		logger.Errorw("delegation failed during token grant", "error", err.Error())
		writeOAuthError(w, http.StatusInternalServerError, ErrorServerError, "internal error")
		return
	}
	writeOAuthError(w, http.StatusBadRequest, ErrorInvalidGrant, "the grant could not be honored")
}
