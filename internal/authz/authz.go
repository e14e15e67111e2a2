// Package authz decides whether an authenticated principal may use a route.
package authz

import (
	"github.com/vyrodovalexey/edgegw/internal/auth"
)

// RoleSet is the set of roles allowed on a route. An empty set admits any
// authenticated principal.
type RoleSet map[auth.Role]struct{}

// NewRoleSet builds a RoleSet from roles.
func NewRoleSet(roles ...auth.Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Contains reports whether r is in the set.
func (s RoleSet) Contains(r auth.Role) bool {
	_, ok := s[r]
	return ok
}

// Roles returns the members in privilege order.
func (s RoleSet) Roles() []auth.Role {
	out := make([]auth.Role, 0, len(s))
	for _, r := range auth.Roles() {
		if s.Contains(r) {
			out = append(out, r)
		}
	}
	return out
}

// Authorize allows p when allowed is empty or holds p's role.
// A nil principal yields ErrMissingCredential, a disallowed role ErrForbidden.
func Authorize(p *auth.Principal, allowed RoleSet) error {
	if p == nil {
		return auth.NewError(auth.ErrMissingCredential, "no authenticated principal")
	}
	if len(allowed) == 0 || allowed.Contains(p.Role) {
		return nil
	}
	return auth.NewError(auth.ErrForbidden, "role "+p.Role.String()+" is not permitted")
}
