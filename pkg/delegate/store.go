package delegate

import (
	"context"
	"errors"
)

// Sentinel errors returned by Store implementations. Condition failures on
// conditional updates are reported as booleans, never as errors.
var (
	// ErrNotFound is returned by Get when the delegate does not exist.
	ErrNotFound = errors.New("delegate not found")

	// ErrAlreadyExists is returned by Create on a duplicate primary key.
	ErrAlreadyExists = errors.New("delegate already exists")
)

// RootParentSentinel is the parent-index key under which root delegates are
// stored, so "list the roots of a realm" is an ordinary children query.
const RootParentSentinel = "ROOT"

// RotateRequest describes an atomic token rotation. The three new fields
// are applied only if the stored refresh-token hash still equals
// ExpectedRTHash at commit time.
type RotateRequest struct {
	DelegateID     string
	ExpectedRTHash string
	NewRTHash      string
	NewATHash      string
	NewATExpiresAt int64
}

// Store is the persistence contract for delegates. Implementations must
// make RotateTokens and Revoke atomic per key: compare-and-swap semantics
// on CurrentRTHash and IsRevoked respectively.
type Store interface {
	// Create stores a new delegate. Returns ErrAlreadyExists if the
	// primary key is taken.
	Create(ctx context.Context, d *Delegate) error

	// Get returns the delegate by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Delegate, error)

	// RotateTokens atomically installs a new token generation if the
	// stored refresh-token hash matches the expected one. Returns false,
	// without error, when the condition fails.
	RotateTokens(ctx context.Context, req RotateRequest) (bool, error)

	// Revoke atomically marks the delegate revoked if it is not already.
	// Returns false when the delegate is missing or already revoked.
	Revoke(ctx context.Context, id, by string) (bool, error)

	// ListChildren pages through the direct children of parentID in
	// creation order. Use RootParentSentinel to list a realm's roots.
	// The returned cursor is empty on the last page.
	ListChildren(ctx context.Context, parentID string, limit int, cursor string) ([]*Delegate, string, error)

	// GetOrCreateRoot returns the realm's root delegate, creating one from
	// proposed if none exists. The second return is true when this call
	// created the root. On a creation race the loser re-reads and returns
	// the winner.
	GetOrCreateRoot(ctx context.Context, realm string, proposed *Delegate) (*Delegate, bool, error)
}
