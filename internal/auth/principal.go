package auth

import (
	"context"
	"strings"
	"time"
)

// Role is the single role carried by a principal.
type Role string

// Known roles.
const (
	RoleUser     Role = "user"
	RoleEngineer Role = "engineer"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

var knownRoles = map[Role]struct{}{
	RoleUser:     {},
	RoleEngineer: {},
	RoleManager:  {},
	RoleAdmin:    {},
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// ParseRole converts a claim value into a Role. Matching is exact.
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(s))
	if !r.Valid() {
		return "", NewError(ErrInvalidToken, "unknown role "+quote(s))
	}
	return r, nil
}

// Roles returns all known roles in privilege order.
func Roles() []Role {
	return []Role{RoleUser, RoleEngineer, RoleManager, RoleAdmin}
}

// Principal is the identity derived from a verified bearer token.
type Principal struct {
	// SubjectID is the user identifier forwarded downstream.
	SubjectID string `json:"userId"`

	Role  Role   `json:"role"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`

	// ExpiresAt is the credential expiry.
	ExpiresAt time.Time `json:"exp"`
}

// HasRole reports whether the principal holds any of the given roles.
func (p *Principal) HasRole(roles ...Role) bool {
	if p == nil {
		return false
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// IsExpired reports whether the credential has expired at now.
func (p *Principal) IsExpired(now time.Time) bool {
	if p == nil {
		return true
	}
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

type principalKey struct{}

// ContextWithPrincipal returns a copy of ctx carrying p.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored on ctx.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

func quote(s string) string {
	return "\"" + s + "\""
}
