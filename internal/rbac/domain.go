// Package rbac maps account roles to dashboard permissions.
package rbac

import (
	"slices"
	"strings"

	"github.com/altss/altss/internal/shared"
)

// Account roles as stored by the backend.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleUser   = "user"
)

// Policy maps a role to the permissions it grants.
type Policy map[string][]string

// DefaultPolicy grants admins everything and editors the integration tool.
func DefaultPolicy() Policy {
	return Policy{
		RoleAdmin:  shared.CoreScopes(),
		RoleEditor: {shared.PermIntegrationView, shared.PermIntegrationEdit},
		RoleUser:   nil,
	}
}

// Merge returns a copy of p with extra grants added. Unknown permissions are
// kept so deployments can stage new ones ahead of a release.
func (p Policy) Merge(extra Policy) Policy {
	out := make(Policy, len(p)+len(extra))
	for role, perms := range p {
		out[normalize(role)] = normalizePermissions(perms)
	}
	for role, perms := range extra {
		role = normalize(role)
		out[role] = normalizePermissions(append(slices.Clone(out[role]), perms...))
	}
	return out
}

// ParsePolicy reads "role:perm,perm;role:perm" as used by the RBAC_GRANTS
// setting.
func ParsePolicy(raw string) Policy {
	out := Policy{}
	for _, entry := range strings.Split(raw, ";") {
		role, perms, ok := strings.Cut(entry, ":")
		if !ok || strings.TrimSpace(role) == "" {
			continue
		}
		out[normalize(role)] = append(out[normalize(role)], strings.Split(perms, ",")...)
	}
	return out
}

func normalize(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}
