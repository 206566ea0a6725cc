package v1

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/casfa/casfa/pkg/auth/token"
	"github.com/casfa/casfa/pkg/delegate"
	"github.com/casfa/casfa/pkg/errors"
)

// RefreshRoutes defines the token-rotation route.
type RefreshRoutes struct {
	manager *delegate.Manager
}

// RefreshRouter creates the refresh router, mounted at /api/refresh.
// The refresh token itself is the credential, so no middleware applies.
func RefreshRouter(manager *delegate.Manager) http.Handler {
	routes := RefreshRoutes{manager: manager}

	r := chi.NewRouter()
	r.Post("/", routes.refresh)
	return r
}

type refreshResponse struct {
	RefreshToken         string `json:"refreshToken"`
	AccessToken          string `json:"accessToken"`
	AccessTokenExpiresAt int64  `json:"accessTokenExpiresAt"`
	DelegateID           string `json:"delegateId"`
}

func (s *RefreshRoutes) refresh(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	scheme, rest, found := strings.Cut(header, " ")
	if header == "" || !found || !strings.EqualFold(scheme, "Bearer") {
		errors.WriteHTTP(w, errors.New(errors.ErrUnauthorized, "missing refresh token credential"))
		return
	}

	raw, err := token.DecodeBase64(strings.TrimSpace(rest))
	if err != nil {
		errors.WriteHTTP(w, errors.Wrap(errors.ErrInvalidTokenFormat, "token is not valid base64", err))
		return
	}

	result, err := s.manager.Refresh(r.Context(), raw)
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		RefreshToken:         token.EncodeBase64(result.Tokens.RefreshToken),
		AccessToken:          token.EncodeBase64(result.Tokens.AccessToken),
		AccessTokenExpiresAt: result.Tokens.ATExpiresAt,
		DelegateID:           result.Delegate.DelegateID,
	})
}
