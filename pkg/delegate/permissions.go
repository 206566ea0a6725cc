package delegate

import (
	"github.com/casfa/casfa/pkg/errors"
)

// ChildSpec is the proposed shape of a new child delegate, before identity
// and tokens are attached.
type ChildSpec struct {
	Name            string
	CanUpload       bool
	CanManageDepot  bool
	DelegatedDepots []string

	// ExpiresAt is the child's own expiry in epoch milliseconds; zero
	// means no expiry is requested.
	ExpiresAt int64
}

// ValidateNarrowing checks that the proposed child does not hold anything
// its parent lacks. Delegation is strictly subtractive: capability flags
// may only be dropped, depot sets may only shrink, and an expiry may only
// move earlier than the parent's.
//
// maxDepth caps the tree depth when positive; zero means unlimited.
func ValidateNarrowing(parent *Delegate, child ChildSpec, maxDepth int) error {
	if child.CanUpload && !parent.CanUpload {
		return errors.New(errors.ErrPermissionEscalation, "parent does not grant upload")
	}
	if child.CanManageDepot && !parent.CanManageDepot {
		return errors.New(errors.ErrPermissionEscalation, "parent does not grant depot management")
	}

	// Depot sets are compared only when both sides are constrained; an
	// unrestricted parent admits any child set.
	if len(child.DelegatedDepots) > 0 && len(parent.DelegatedDepots) > 0 {
		allowed := make(map[string]struct{}, len(parent.DelegatedDepots))
		for _, depot := range parent.DelegatedDepots {
			allowed[depot] = struct{}{}
		}
		for _, depot := range child.DelegatedDepots {
			if _, ok := allowed[depot]; !ok {
				return errors.Newf(errors.ErrPermissionEscalation, "depot %s is outside the parent's delegation", depot)
			}
		}
	}

	// Conservative expiry rule: only compare when the child supplies one.
	if child.ExpiresAt != 0 && parent.ExpiresAt != 0 && child.ExpiresAt > parent.ExpiresAt {
		return errors.New(errors.ErrPermissionEscalation, "child expiry exceeds parent expiry")
	}

	if maxDepth > 0 && parent.Depth+1 > maxDepth {
		return errors.Newf(errors.ErrDepthExceeded, "delegation depth limit of %d exceeded", maxDepth)
	}

	return nil
}
