package authserver

import "slices"

// OAuth scopes understood by the server and their capability mapping.
const (
	// ScopeRead grants read access. Every delegate can read within its
	// scope, so this maps to no capability flag.
	ScopeRead = "cas:read"

	// ScopeWrite maps to the canUpload capability.
	ScopeWrite = "cas:write"

	// ScopeDepotManage maps to the canManageDepot capability.
	ScopeDepotManage = "depot:manage"
)

// SupportedScopes lists every scope the server understands, in the order
// advertised by the discovery document.
var SupportedScopes = []string{ScopeRead, ScopeWrite, ScopeDepotManage}

// ScopesSupported reports whether every requested scope is a known one.
func ScopesSupported(scopes []string) bool {
	for _, s := range scopes {
		if !slices.Contains(SupportedScopes, s) {
			return false
		}
	}
	return true
}

// CapsFromScopes maps granted scopes onto delegate capability flags.
func CapsFromScopes(scopes []string) (canUpload, canManageDepot bool) {
	for _, s := range scopes {
		switch s {
		case ScopeWrite:
			canUpload = true
		case ScopeDepotManage:
			canManageDepot = true
		}
	}
	return canUpload, canManageDepot
}

// ScopesFromCaps renders capability flags as the scope list reported back
// to OAuth clients. Read access is implicit and always present.
func ScopesFromCaps(canUpload, canManageDepot bool) []string {
	scopes := []string{ScopeRead}
	if canUpload {
		scopes = append(scopes, ScopeWrite)
	}
	if canManageDepot {
		scopes = append(scopes, ScopeDepotManage)
	}
	return scopes
}
