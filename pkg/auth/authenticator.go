package auth

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/casfa/casfa/pkg/auth/token"
	"github.com/casfa/casfa/pkg/delegate"
	"github.com/casfa/casfa/pkg/errors"
)

// Authenticator validates opaque access tokens against the delegate store
// and attaches the resulting AuthContext to the request.
type Authenticator struct {
	store delegate.Store

	// now is swapped out in tests.
	now func() time.Time
}

// NewAuthenticator creates an Authenticator over the delegate store.
func NewAuthenticator(store delegate.Store) *Authenticator {
	return &Authenticator{store: store, now: time.Now}
}

// Middleware enforces a valid access token on every request it wraps.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, err := a.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			errors.WriteHTTP(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
	})
}

// Authenticate resolves a raw Authorization header value into an access
// identity. Every rejection is a typed error carrying its HTTP status.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (*AuthContext, error) {
	raw, err := bearerToken(header)
	if err != nil {
		return nil, err
	}

	// The byte length alone separates the two token layouts; a refresh
	// token at an access endpoint is a distinct, actionable failure.
	switch len(raw) {
	case token.AccessTokenLength:
	case token.RefreshTokenLength:
		return nil, errors.New(errors.ErrAccessTokenRequired, "a refresh token cannot be used for access")
	default:
		return nil, errors.New(errors.ErrInvalidTokenFormat, "token matches no known layout")
	}

	decoded, err := token.Decode(raw)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidTokenFormat, "token matches no known layout", err)
	}

	id := token.FormatID(decoded.DelegateID)
	d, err := a.store.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, delegate.ErrNotFound) {
			return nil, errors.New(errors.ErrDelegateNotFound, "delegate not found")
		}
		return nil, errors.Wrap(errors.ErrInternal, "failed to load delegate", err)
	}

	now := a.now()
	if d.IsRevoked {
		return nil, errors.New(errors.ErrDelegateRevoked, "delegate has been revoked")
	}
	if d.IsExpired(now) {
		return nil, errors.New(errors.ErrDelegateExpired, "delegate has expired")
	}
	if token.Hash(raw) != d.CurrentATHash {
		return nil, errors.New(errors.ErrTokenInvalid, "access token is not the current generation")
	}
	if d.ATExpiresAt != 0 && d.ATExpiresAt <= now.UnixMilli() {
		return nil, errors.New(errors.ErrTokenExpired, "access token has expired")
	}

	return &AuthContext{
		Type:           TypeAccess,
		DelegateID:     d.DelegateID,
		Realm:          d.Realm,
		CanUpload:      d.CanUpload,
		CanManageDepot: d.CanManageDepot,
		IssuerChain:    d.Chain,
		TokenBytes:     raw,
	}, nil
}

// bearerToken extracts and decodes the token bytes from an Authorization
// header value.
func bearerToken(header string) ([]byte, error) {
	if header == "" {
		return nil, errors.New(errors.ErrUnauthorized, "missing Authorization header")
	}
	scheme, rest, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || rest == "" {
		return nil, errors.New(errors.ErrUnauthorized, "Authorization header is not a Bearer credential")
	}
	raw, err := token.DecodeBase64(strings.TrimSpace(rest))
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidTokenFormat, "token is not valid base64", err)
	}
	return raw, nil
}
