package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/casfa/casfa/pkg/errors"
	"github.com/casfa/casfa/pkg/logger"
)

// JWT validation errors
var (
	ErrMissingJWKSURL  = stderrors.New("either a JWKS URL or an HMAC secret is required")
	ErrInvalidIssuer   = stderrors.New("invalid issuer")
	ErrInvalidAudience = stderrors.New("invalid audience")
	ErrTokenExpired    = stderrors.New("token expired")
	ErrInvalidToken    = stderrors.New("invalid token")
)

// JWTValidatorConfig configures the identity-provider side of JWT
// validation.
type JWTValidatorConfig struct {
	// Issuer is the expected iss claim; empty skips the check.
	Issuer string

	// Audience is the expected aud claim; empty skips the check.
	Audience string

	// JWKSURL is the identity provider's key-set endpoint.
	JWKSURL string

	// HMACSecret selects symmetric HS256 validation instead of JWKS.
	// Development and test deployments only.
	HMACSecret []byte
}

// JWTValidator validates user JWTs from the identity provider.
type JWTValidator struct {
	issuer   string
	audience string
	jwksURL  string
	secret   []byte

	jwksClient *jwk.Cache

	jwksRegistrationMu  sync.Mutex
	jwksRegistered      bool
	jwksRegistrationErr error
}

// NewJWTValidator creates a JWT validator. With an HMAC secret no JWKS
// machinery is set up; otherwise a self-refreshing JWKS cache is created
// over the configured URL.
func NewJWTValidator(ctx context.Context, config JWTValidatorConfig) (*JWTValidator, error) {
	v := &JWTValidator{
		issuer:   config.Issuer,
		audience: config.Audience,
		jwksURL:  config.JWKSURL,
		secret:   config.HMACSecret,
	}

	if len(config.HMACSecret) > 0 {
		return v, nil
	}
	if config.JWKSURL == "" {
		return nil, ErrMissingJWKSURL
	}

	cache, err := jwk.NewCache(ctx, httprc.NewClient())
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS cache: %w", err)
	}
	v.jwksClient = cache
	return v, nil
}

// Middleware enforces a valid user JWT on every request it wraps.
// Rejections carry a WWW-Authenticate challenge per RFC 6750.
func (v *JWTValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		scheme, rest, found := strings.Cut(header, " ")
		if header == "" || !found || !strings.EqualFold(scheme, "Bearer") {
			v.challenge(w)
			return
		}

		authCtx, err := v.Validate(r.Context(), strings.TrimSpace(rest))
		if err != nil {
			logger.Debugw("JWT validation failed", "error", err.Error())
			v.challenge(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
	})
}

func (*JWTValidator) challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	errors.WriteHTTP(w, errors.New(errors.ErrUnauthorized, "a valid user credential is required"))
}

// Validate parses and validates the JWT string and maps its claims onto
// an AuthContext. The subject doubles as the realm: a user owns exactly
// the realm named after them.
func (v *JWTValidator) Validate(ctx context.Context, tokenString string) (*AuthContext, error) {
	claims, err := v.parse(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	if err := v.validateClaims(claims); err != nil {
		return nil, err
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("token has no subject: %w", err)
	}

	role, _ := claims["role"].(string)
	return &AuthContext{
		Type:   TypeJWT,
		UserID: sub,
		Realm:  sub,
		Role:   role,
	}, nil
}

func (v *JWTValidator) parse(ctx context.Context, tokenString string) (jwt.MapClaims, error) {
	keyFunc := func(t *jwt.Token) (any, error) {
		if len(v.secret) > 0 {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return v.secret, nil
		}
		return v.getKeyFromJWKS(ctx, t)
	}

	parsed, err := jwt.Parse(tokenString, keyFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("failed to get claims from token")
	}
	return claims, nil
}

// ensureJWKSRegistered lazily registers the JWKS URL with the cache so
// construction never blocks on the identity provider.
func (v *JWTValidator) ensureJWKSRegistered(ctx context.Context) error {
	v.jwksRegistrationMu.Lock()
	defer v.jwksRegistrationMu.Unlock()

	if v.jwksRegistered {
		return v.jwksRegistrationErr
	}

	registrationCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := v.jwksClient.Register(registrationCtx, v.jwksURL); err != nil {
		v.jwksRegistrationErr = fmt.Errorf("failed to register JWKS URL: %w", err)
	} else {
		v.jwksRegistrationErr = nil
	}

	v.jwksRegistered = true
	return v.jwksRegistrationErr
}

// getKeyFromJWKS resolves the token's kid against the cached key set.
func (v *JWTValidator) getKeyFromJWKS(ctx context.Context, t *jwt.Token) (any, error) {
	if err := v.ensureJWKSRegistered(ctx); err != nil {
		return nil, fmt.Errorf("JWKS registration failed: %w", err)
	}

	if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}

	kid, ok := t.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("token header missing kid")
	}

	keySet, err := v.jwksClient.Lookup(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup JWKS: %w", err)
	}
	key, found := keySet.LookupKeyID(kid)
	if !found {
		return nil, fmt.Errorf("key ID %s not found in JWKS", kid)
	}

	var rawKey any
	if err := jwk.Export(key, &rawKey); err != nil {
		return nil, fmt.Errorf("failed to export raw key: %w", err)
	}
	return rawKey, nil
}

// validateClaims checks issuer, audience, and expiry.
func (v *JWTValidator) validateClaims(claims jwt.MapClaims) error {
	if v.issuer != "" {
		issuerClaim, err := claims.GetIssuer()
		if err != nil {
			return fmt.Errorf("failed to get issuer from claims: %w", err)
		}
		if strings.TrimSpace(issuerClaim) != strings.TrimSpace(v.issuer) {
			return ErrInvalidIssuer
		}
	}

	if v.audience != "" {
		audiences, err := claims.GetAudience()
		if err != nil {
			return ErrInvalidAudience
		}
		found := false
		for _, aud := range audiences {
			if aud == v.audience {
				found = true
				break
			}
		}
		if !found {
			return ErrInvalidAudience
		}
	}

	expirationTime, err := claims.GetExpirationTime()
	if err != nil || expirationTime == nil || expirationTime.Before(time.Now()) {
		return ErrTokenExpired
	}
	return nil
}
