package handlers

import (
	"net/http"
	"net/url"
	"slices"

	"github.com/casfa/casfa/pkg/auth"
	"github.com/casfa/casfa/pkg/authserver"
	"github.com/casfa/casfa/pkg/authserver/server/crypto"
	"github.com/casfa/casfa/pkg/authserver/storage"
	"github.com/casfa/casfa/pkg/errors"
	"github.com/casfa/casfa/pkg/logger"
	"github.com/casfa/casfa/pkg/metrics"
)

// consentPayload is what the consent UI renders for the user's decision.
type consentPayload struct {
	Client struct {
		ClientID string `json:"clientId"`
		Name     string `json:"name"`
	} `json:"client"`
	Scopes              []string `json:"scopes"`
	State               string   `json:"state"`
	RedirectURI         string   `json:"redirectUri"`
	CodeChallenge       string   `json:"codeChallenge"`
	CodeChallengeMethod string   `json:"codeChallengeMethod"`
}

// AuthorizeHandler handles GET /api/auth/authorize. It validates the
// authorization request and returns the consent payload; the actual grant
// happens at the approve endpoint.
func (h *Handler) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	client, ok := h.clients.Get(q.Get("client_id"))
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidClient, "unknown client_id")
		return
	}
	redirectURI := q.Get("redirect_uri")
	if redirectURI == "" || !client.MatchRedirectURI(redirectURI) {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidRequest, "redirect_uri is not registered for this client")
		return
	}
	if q.Get("response_type") != "code" {
		writeOAuthError(w, http.StatusBadRequest, ErrorUnsupportedResponseType, "only response_type=code is supported")
		return
	}

	scopes := splitScopes(q.Get("scope"))
	if len(scopes) == 0 {
		scopes = []string{authserver.ScopeRead}
	}
	if !authserver.ScopesSupported(scopes) {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidScope, "request includes an unsupported scope")
		return
	}

	state := q.Get("state")
	if state == "" {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidRequest, "state is required")
		return
	}
	if q.Get("code_challenge") == "" {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidRequest, "code_challenge is required")
		return
	}
	if q.Get("code_challenge_method") != crypto.PKCEChallengeMethodS256 {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidRequest, "code_challenge_method must be S256")
		return
	}

	payload := consentPayload{
		Scopes:              scopes,
		State:               state,
		RedirectURI:         redirectURI,
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: crypto.PKCEChallengeMethodS256,
	}
	payload.Client.ClientID = client.ClientID
	payload.Client.Name = client.Name
	writeJSON(w, http.StatusOK, payload)
}

// approveRequest is the consent decision posted back by the UI. Approved
// scopes default to everything requested; the optional fields narrow the
// eventual delegate.
type approveRequest struct {
	ClientID            string   `json:"client_id"`
	RedirectURI         string   `json:"redirect_uri"`
	State               string   `json:"state"`
	CodeChallenge       string   `json:"code_challenge"`
	CodeChallengeMethod string   `json:"code_challenge_method"`
	Scopes              []string `json:"scopes"`
	ApprovedScopes      []string `json:"approved_scopes,omitempty"`
	DelegatedDepots     []string `json:"delegated_depots,omitempty"`
	ScopeNodeHash       string   `json:"scope_node_hash,omitempty"`
	ExpiresIn           int64    `json:"expires_in,omitempty"`
}

// ApproveHandler handles POST /api/auth/approve: it turns the user's
// consent into a one-shot authorization code bound to the PKCE challenge.
func (h *Handler) ApproveHandler(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := auth.FromContext(r.Context())
	if !ok {
		errors.WriteHTTP(w, errors.New(errors.ErrUnauthorized, "a valid user credential is required"))
		return
	}

	var req approveRequest
	if err := formOrJSON(r, &req); err != nil {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidRequest, "malformed request body")
		return
	}

	client, ok := h.clients.Get(req.ClientID)
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidClient, "unknown client_id")
		return
	}
	if req.RedirectURI == "" || !client.MatchRedirectURI(req.RedirectURI) {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidRequest, "redirect_uri is not registered for this client")
		return
	}
	if req.State == "" || req.CodeChallenge == "" || req.CodeChallengeMethod != crypto.PKCEChallengeMethodS256 {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidRequest, "state, code_challenge and S256 method are required")
		return
	}

	approved := req.ApprovedScopes
	if approved == nil {
		approved = req.Scopes
	}
	// Consent only subtracts: the user cannot approve scopes the client
	// never asked for.
	for _, s := range approved {
		if !slices.Contains(req.Scopes, s) {
			writeOAuthError(w, http.StatusBadRequest, ErrorInvalidScope, "approved scopes exceed the requested ones")
			return
		}
	}
	if !authserver.ScopesSupported(approved) {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidScope, "request includes an unsupported scope")
		return
	}

	code, err := crypto.GenerateAuthCode()
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, ErrorServerError, "failed to mint authorization code")
		return
	}

	canUpload, canManageDepot := authserver.CapsFromScopes(approved)
	now := h.now()
	record := &storage.AuthorizationCode{
		Code:                code,
		ClientID:            client.ClientID,
		RedirectURI:         req.RedirectURI,
		UserID:              authCtx.UserID,
		Realm:               authCtx.Realm,
		Scopes:              approved,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: crypto.PKCEChallengeMethodS256,
		Granted: storage.GrantedPermissions{
			CanUpload:       canUpload,
			CanManageDepot:  canManageDepot,
			DelegatedDepots: req.DelegatedDepots,
			ScopeNodeHash:   req.ScopeNodeHash,
			ExpiresIn:       req.ExpiresIn,
		},
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.Add(h.config.AuthCodeTTL).UnixMilli(),
	}
	if err := h.codes.Create(r.Context(), record); err != nil {
		logger.Errorw("failed to store authorization code", "client_id", client.ClientID, "error", err.Error())
		writeOAuthError(w, http.StatusInternalServerError, ErrorServerError, "failed to store authorization code")
		return
	}
	metrics.AuthCodesIssuedTotal.Inc()

	redirect, err := url.Parse(req.RedirectURI)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidRequest, "redirect_uri is not a valid URL")
		return
	}
	query := redirect.Query()
	query.Set("code", code)
	query.Set("state", req.State)
	redirect.RawQuery = query.Encode()

	writeJSON(w, http.StatusOK, map[string]string{"redirect_uri": redirect.String()})
}
