// Package delegate implements the capability-delegation tree: the delegate
// model, its permission-narrowing rules, the store contract with in-memory
// and cached implementations, and the manager orchestrating creation, token
// rotation, and cascading revocation.
package delegate

import (
	"slices"
	"time"
)

// Delegate is a capability-holding node in a per-realm tree. Capabilities
// only ever narrow from parent to child; revocation is monotonic and
// cascades down the tree.
type Delegate struct {
	// DelegateID is the primary key, in dlt_ string form.
	DelegateID string `json:"delegateId"`

	// Realm is the owning user's namespace.
	Realm string `json:"realm"`

	// ParentID is empty for the realm's root delegate.
	ParentID string `json:"parentId,omitempty"`

	// Chain lists delegate ids from the root to this delegate, self
	// included. len(Chain) == Depth+1 always holds.
	Chain []string `json:"chain"`

	// Depth is 0 for the root.
	Depth int `json:"depth"`

	// Name is an optional human-readable label.
	Name string `json:"name,omitempty"`

	CanUpload      bool `json:"canUpload"`
	CanManageDepot bool `json:"canManageDepot"`

	// DelegatedDepots restricts which depots the delegate may touch.
	// Empty means unrestricted within the parent's reach.
	DelegatedDepots []string `json:"delegatedDepots,omitempty"`

	// ScopeNodeHash is set when the delegate's scope has exactly one root.
	// Mutually exclusive with ScopeSetNodeID.
	ScopeNodeHash string `json:"scopeNodeHash,omitempty"`

	// ScopeSetNodeID references a refcounted set-node for multi-root scopes.
	ScopeSetNodeID string `json:"scopeSetNodeId,omitempty"`

	// ExpiresAt is the delegate's own expiry in epoch milliseconds.
	// Zero means never.
	ExpiresAt int64 `json:"expiresAt,omitempty"`

	IsRevoked bool   `json:"isRevoked"`
	RevokedAt int64  `json:"revokedAt,omitempty"`
	RevokedBy string `json:"revokedBy,omitempty"`

	CreatedAt int64 `json:"createdAt"`

	// CurrentRTHash and CurrentATHash bind the delegate to its live token
	// pair. Both are empty for root delegates, which are authenticated by
	// the user's JWT and never carry tokens.
	CurrentRTHash string `json:"currentRtHash,omitempty"`
	CurrentATHash string `json:"currentAtHash,omitempty"`

	// ATExpiresAt is the live access token's expiry in epoch milliseconds.
	ATExpiresAt int64 `json:"atExpiresAt,omitempty"`
}

// IsRoot reports whether this is a realm's depth-0 delegate.
func (d *Delegate) IsRoot() bool {
	return d.ParentID == ""
}

// IsExpired reports whether the delegate's own expiry has passed.
func (d *Delegate) IsExpired(now time.Time) bool {
	return d.ExpiresAt != 0 && d.ExpiresAt <= now.UnixMilli()
}

// HasAncestor reports whether id appears in the delegate's chain.
// A delegate is its own ancestor for authorization purposes.
func (d *Delegate) HasAncestor(id string) bool {
	return slices.Contains(d.Chain, id)
}

// Clone returns a deep copy so stores and caches never alias caller state.
func (d *Delegate) Clone() *Delegate {
	out := *d
	out.Chain = slices.Clone(d.Chain)
	out.DelegatedDepots = slices.Clone(d.DelegatedDepots)
	return &out
}

// Metadata is the client-visible view of a delegate. Token hashes never
// leave the server; everything else is safe to return.
type Metadata struct {
	DelegateID      string   `json:"delegateId"`
	Realm           string   `json:"realm"`
	ParentID        string   `json:"parentId,omitempty"`
	Chain           []string `json:"chain"`
	Depth           int      `json:"depth"`
	Name            string   `json:"name,omitempty"`
	CanUpload       bool     `json:"canUpload"`
	CanManageDepot  bool     `json:"canManageDepot"`
	DelegatedDepots []string `json:"delegatedDepots,omitempty"`
	ScopeNodeHash   string   `json:"scopeNodeHash,omitempty"`
	ScopeSetNodeID  string   `json:"scopeSetNodeId,omitempty"`
	ExpiresAt       int64    `json:"expiresAt,omitempty"`
	IsRevoked       bool     `json:"isRevoked"`
	RevokedAt       int64    `json:"revokedAt,omitempty"`
	CreatedAt       int64    `json:"createdAt"`
}

// Metadata returns the client-visible view.
func (d *Delegate) Metadata() Metadata {
	return Metadata{
		DelegateID:      d.DelegateID,
		Realm:           d.Realm,
		ParentID:        d.ParentID,
		Chain:           slices.Clone(d.Chain),
		Depth:           d.Depth,
		Name:            d.Name,
		CanUpload:       d.CanUpload,
		CanManageDepot:  d.CanManageDepot,
		DelegatedDepots: slices.Clone(d.DelegatedDepots),
		ScopeNodeHash:   d.ScopeNodeHash,
		ScopeSetNodeID:  d.ScopeSetNodeID,
		ExpiresAt:       d.ExpiresAt,
		IsRevoked:       d.IsRevoked,
		RevokedAt:       d.RevokedAt,
		CreatedAt:       d.CreatedAt,
	}
}
