// Package scope resolves delegate scope requests against the parent's
// scope roots.
//
// A scope request is relative by construction: each entry is either "."
// (inherit the parent's scope) or a path of ~N index segments walked from
// the parent's roots through the CAS node graph. A child can therefore
// never name a node outside its parent's subtree. Multi-root results are
// deduplicated into reference-counted set-nodes so that many delegates
// sharing a scope fingerprint share one stored record.
package scope

import (
	"context"
	"errors"
)

// InheritMarker is the request entry meaning "use the parent's scope".
const InheritMarker = "."

// ErrNodeNotFound is returned by NodeSource implementations when the hash
// does not resolve to a stored node.
var ErrNodeNotFound = errors.New("scope node not found")

// ErrSetNodeNotFound is returned by SetStore implementations.
var ErrSetNodeNotFound = errors.New("scope set-node not found")

// NodeSource reads CAS nodes by hash. The returned bytes decode to the
// node's ordered child-hash list.
type NodeSource interface {
	GetNode(ctx context.Context, hash string) ([]byte, error)
}

// SetNode is a reference-counted record holding the sorted roots of a
// multi-root scope. Its id is derived from the sorted root list, so equal
// sets collide onto one record.
type SetNode struct {
	ID        string   `json:"id"`
	Children  []string `json:"children"`
	RefCount  int      `json:"refCount"`
	CreatedAt int64    `json:"createdAt"`
}

// SetStore persists scope set-nodes.
type SetStore interface {
	// CreateOrIncrement stores the set-node with refCount 1, or bumps the
	// refCount when the id already exists.
	CreateOrIncrement(ctx context.Context, id string, children []string) (*SetNode, error)

	// Get returns the set-node by id, or ErrSetNodeNotFound.
	Get(ctx context.Context, id string) (*SetNode, error)
}

// Resolution is the outcome of a successful scope resolution: exactly one
// of the fields is set when the resolved scope is non-empty, neither when
// the scope is unrestricted.
type Resolution struct {
	// NodeHash is the single scope root.
	NodeHash string

	// SetNodeID references a SetNode holding several roots.
	SetNodeID string
}

// IsUnrestricted reports whether the resolution carries no scope at all.
func (r Resolution) IsUnrestricted() bool {
	return r.NodeHash == "" && r.SetNodeID == ""
}
