package authz

import "strings"

// Resolution is the outcome of normalizing a stored role against the fixed
// administrator email. When CorrectionNeeded is true the caller must issue a
// single-row role update persisting CorrectedRole; that write is
// fire-and-forget. The in-memory EffectiveRole is honored for the current
// session either way, and drift is re-detected on the next resolution.
type Resolution struct {
	EffectiveRole    string
	CorrectionNeeded bool
	CorrectedRole    string
}

// ResolveRole normalizes the (stored role, email) pair each time a profile is
// loaded. The fixed administrator email always resolves to RoleAdmin; a
// stored RoleAdmin on any other email is demoted to RoleUser so manual data
// edits cannot mint administrators. Idempotent: resolving the corrected role
// again yields no further correction.
func ResolveRole(profileRole, email, adminEmail string) Resolution {
	if NormalizeEmail(email) == NormalizeEmail(adminEmail) {
		if profileRole != RoleAdmin {
			return Resolution{EffectiveRole: RoleAdmin, CorrectionNeeded: true, CorrectedRole: RoleAdmin}
		}
		return Resolution{EffectiveRole: RoleAdmin}
	}
	if profileRole == RoleAdmin {
		return Resolution{EffectiveRole: RoleUser, CorrectionNeeded: true, CorrectedRole: RoleUser}
	}
	return Resolution{EffectiveRole: profileRole}
}

// NormalizeEmail canonicalizes an email for comparison and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
