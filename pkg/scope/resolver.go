package scope

import (
	"context"
	"encoding/json"
	"slices"
	"strconv"
	"strings"

	"lukechampine.com/blake3"

	"github.com/casfa/casfa/pkg/auth/token"
	"github.com/casfa/casfa/pkg/errors"
)

// Resolver walks scope requests against parent roots using a CAS node
// source, and persists multi-root results as set-nodes.
type Resolver struct {
	nodes NodeSource
	sets  SetStore
}

// NewResolver creates a Resolver over the given node source and set store.
func NewResolver(nodes NodeSource, sets SetStore) *Resolver {
	return &Resolver{nodes: nodes, sets: sets}
}

// Resolve evaluates a requested scope against the parent's roots.
//
// An empty request or ["."] inherits the parent's scope directly. Every
// other entry must be a ~N(/~N)* relative path; each path is walked from
// every parent root and all resolutions are collected. A path resolving
// from no root, or any malformed path, invalidates the whole request.
func (r *Resolver) Resolve(ctx context.Context, requested, parentRoots []string) (Resolution, error) {
	if isInherit(requested) {
		return r.materialize(ctx, dedupeSorted(parentRoots))
	}

	if len(parentRoots) == 0 {
		return Resolution{}, errors.New(errors.ErrInvalidScope, "parent has no scope roots to resolve against")
	}

	var resolved []string
	for _, path := range requested {
		segments, err := parsePath(path)
		if err != nil {
			return Resolution{}, err
		}

		found := false
		for _, root := range parentRoots {
			hash, walkErr := r.walk(ctx, root, segments)
			if walkErr != nil {
				continue
			}
			resolved = append(resolved, hash)
			found = true
		}
		if !found {
			return Resolution{}, errors.Newf(errors.ErrInvalidScope, "scope path %q does not resolve from any parent root", path)
		}
	}

	return r.materialize(ctx, dedupeSorted(resolved))
}

// Roots expands a delegate's stored scope fields back into the list of
// root hashes, for use as the parent side of a child resolution. Both
// fields empty means unrestricted, reported as an empty list.
func (r *Resolver) Roots(ctx context.Context, nodeHash, setNodeID string) ([]string, error) {
	switch {
	case nodeHash != "":
		return []string{nodeHash}, nil
	case setNodeID != "":
		node, err := r.sets.Get(ctx, setNodeID)
		if err != nil {
			return nil, err
		}
		return node.Children, nil
	default:
		return nil, nil
	}
}

// materialize turns a sorted, deduplicated root list into a Resolution,
// creating or incrementing a set-node when several roots remain.
func (r *Resolver) materialize(ctx context.Context, roots []string) (Resolution, error) {
	switch len(roots) {
	case 0:
		return Resolution{}, nil
	case 1:
		return Resolution{NodeHash: roots[0]}, nil
	default:
		id := SetNodeID(roots)
		if _, err := r.sets.CreateOrIncrement(ctx, id, roots); err != nil {
			return Resolution{}, err
		}
		return Resolution{SetNodeID: id}, nil
	}
}

// walk follows the index segments from root, reading each node and
// stepping into the indexed child hash.
func (r *Resolver) walk(ctx context.Context, root string, segments []int) (string, error) {
	current := root
	for _, idx := range segments {
		data, err := r.nodes.GetNode(ctx, current)
		if err != nil {
			return "", err
		}
		children, err := decodeNode(data)
		if err != nil {
			return "", err
		}
		if idx >= len(children) {
			return "", errors.Newf(errors.ErrInvalidScope, "index %d out of range", idx)
		}
		current = children[idx]
	}
	return current, nil
}

// SetNodeID derives the deterministic set-node id for a sorted root list:
// the first 16 bytes of BLAKE3 over the comma-joined hashes, rendered as
// Crockford Base32. Equal sets always map to the same id.
func SetNodeID(sortedRoots []string) string {
	digest := blake3.Sum256([]byte(strings.Join(sortedRoots, ",")))
	var id [16]byte
	copy(id[:], digest[:16])
	return token.EncodeCrockford(id)
}

// decodeNode parses a CAS node body into its ordered child-hash list.
func decodeNode(data []byte) ([]string, error) {
	var children []string
	if err := json.Unmarshal(data, &children); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidScope, "malformed scope node", err)
	}
	return children, nil
}

func isInherit(requested []string) bool {
	if len(requested) == 0 {
		return true
	}
	return len(requested) == 1 && requested[0] == InheritMarker
}

// parsePath splits a ~N(/~N)* relative path into its index segments.
func parsePath(path string) ([]int, error) {
	if path == "" || path == InheritMarker {
		return nil, errors.New(errors.ErrInvalidScope, "scope paths cannot mix inherit with explicit paths")
	}
	parts := strings.Split(path, "/")
	segments := make([]int, 0, len(parts))
	for _, part := range parts {
		if !strings.HasPrefix(part, "~") {
			return nil, errors.Newf(errors.ErrInvalidScope, "malformed scope segment %q", part)
		}
		idx, err := strconv.Atoi(part[1:])
		if err != nil || idx < 0 {
			return nil, errors.Newf(errors.ErrInvalidScope, "malformed scope segment %q", part)
		}
		segments = append(segments, idx)
	}
	return segments, nil
}

func dedupeSorted(hashes []string) []string {
	out := slices.Clone(hashes)
	slices.Sort(out)
	return slices.Compact(out)
}
