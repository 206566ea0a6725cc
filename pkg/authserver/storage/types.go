// Package storage provides the authorization-code store for the OAuth
// server, with in-memory and Redis implementations.
package storage

import (
	"context"
	"errors"
	"time"
)

// DefaultAuthCodeTTL bounds how long an issued authorization code stays
// exchangeable.
const DefaultAuthCodeTTL = 10 * time.Minute

// ErrNotFound is returned by Consume when the code is missing, expired, or
// already used. The three cases are deliberately indistinguishable.
var ErrNotFound = errors.New("authorization code not found")

// GrantedPermissions captures what the user approved on the consent
// screen, to be applied to the delegate minted at code exchange.
type GrantedPermissions struct {
	CanUpload       bool     `json:"canUpload"`
	CanManageDepot  bool     `json:"canManageDepot"`
	DelegatedDepots []string `json:"delegatedDepots,omitempty"`

	// ScopeNodeHash restricts the delegate to a single CAS subtree.
	ScopeNodeHash string `json:"scopeNodeHash,omitempty"`

	// ExpiresIn bounds the delegate's lifetime in seconds; zero means no
	// bound beyond the realm's defaults.
	ExpiresIn int64 `json:"expiresIn,omitempty"`
}

// AuthorizationCode is a one-shot, short-lived credential binding the
// user's consent to a pending token exchange.
type AuthorizationCode struct {
	// Code is the URL-safe random code string, at least 128 bits.
	Code string `json:"code"`

	ClientID    string `json:"clientId"`
	RedirectURI string `json:"redirectUri"`
	UserID      string `json:"userId"`
	Realm       string `json:"realm"`

	// Scopes are the approved OAuth scopes.
	Scopes []string `json:"scopes"`

	// CodeChallenge and CodeChallengeMethod carry the client's PKCE
	// commitment; the method is always S256.
	CodeChallenge       string `json:"codeChallenge"`
	CodeChallengeMethod string `json:"codeChallengeMethod"`

	Granted GrantedPermissions `json:"grantedPermissions"`

	// CreatedAt and ExpiresAt are epoch milliseconds.
	CreatedAt int64 `json:"createdAt"`
	ExpiresAt int64 `json:"expiresAt"`

	// Used marks a consumed code. Stored for audit; a used code is never
	// returned by Consume.
	Used bool `json:"used"`
}

// IsExpired reports whether the code's exchange window has passed.
func (c *AuthorizationCode) IsExpired(now time.Time) bool {
	return c.ExpiresAt <= now.UnixMilli()
}

// Store persists authorization codes. Consume must be atomic: two
// exchanges of the same code must yield exactly one success.
type Store interface {
	// Create stores a freshly minted code.
	Create(ctx context.Context, code *AuthorizationCode) error

	// Consume atomically retrieves and invalidates the code. Missing,
	// expired, and already-used codes all return ErrNotFound.
	Consume(ctx context.Context, code string) (*AuthorizationCode, error)
}
