package v1

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/casfa/casfa/pkg/auth"
	"github.com/casfa/casfa/pkg/delegate"
	"github.com/casfa/casfa/pkg/errors"
)

// RootRoutes defines the root-delegate issuance route.
type RootRoutes struct {
	manager *delegate.Manager
}

// RootRouter creates the root-issuance router, mounted at
// /api/tokens/root behind the JWT middleware.
func RootRouter(manager *delegate.Manager) http.Handler {
	routes := RootRoutes{manager: manager}

	r := chi.NewRouter()
	r.Post("/", routes.ensureRoot)
	return r
}

type rootRequest struct {
	// Realm defaults to the authenticated user's own realm; naming any
	// other realm is an error.
	Realm string `json:"realm,omitempty"`
}

func (s *RootRoutes) ensureRoot(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := auth.FromContext(r.Context())
	if !ok || authCtx.Type != auth.TypeJWT {
		errors.WriteHTTP(w, errors.New(errors.ErrUnauthorized, "a user credential is required"))
		return
	}

	var req rootRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		errors.WriteHTTP(w, errors.New(errors.ErrInvalidRequest, "malformed request body"))
		return
	}
	if req.Realm != "" && req.Realm != authCtx.UserID {
		errors.WriteHTTP(w, errors.New(errors.ErrInvalidRealm, "a user can only issue a root for their own realm"))
		return
	}

	root, created, err := s.manager.EnsureRoot(r.Context(), authCtx.UserID)
	if err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	// Metadata only: roots are credentialed by the user's JWT, never by
	// tokens of their own.
	writeJSON(w, status, root.Metadata())
}
