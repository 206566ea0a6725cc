// Package auth provides request authentication for the API surface: the
// opaque access-token middleware backed by the delegate store, and the JWT
// middleware backed by the identity provider's JWKS (or a shared secret in
// development).
package auth

import "context"

// Identity types carried by an AuthContext.
const (
	// TypeAccess marks a request authenticated by an opaque access token.
	TypeAccess = "access"
	// TypeJWT marks a request authenticated by a user JWT.
	TypeJWT = "jwt"
)

// AuthContext is the authenticated identity attached to a request.
type AuthContext struct {
	// Type is TypeAccess or TypeJWT.
	Type string

	// DelegateID is set for access-token requests.
	DelegateID string

	// UserID is set for JWT requests, from the token's sub claim.
	UserID string

	// Realm the request acts within. For JWTs this equals UserID.
	Realm string

	// Role is the JWT's role claim, when present.
	Role string

	CanUpload      bool
	CanManageDepot bool

	// IssuerChain is the delegate chain from root to the authenticated
	// delegate, for downstream visibility checks.
	IssuerChain []string

	// TokenBytes holds the raw access token for handlers that need to
	// re-present it.
	TokenBytes []byte
}

type contextKey struct{}

// WithAuth returns a context carrying the authenticated identity.
func WithAuth(ctx context.Context, a *AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

// FromContext extracts the authenticated identity, if any.
func FromContext(ctx context.Context) (*AuthContext, bool) {
	a, ok := ctx.Value(contextKey{}).(*AuthContext)
	return a, ok
}
