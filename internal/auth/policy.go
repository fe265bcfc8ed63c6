package auth

import (
	"errors"
	"slices"
)

var ErrEmptyRolePolicy = errors.New("role policy needs at least one role")

// RolePolicy is the ordered set of roles allowed on a route
type RolePolicy struct {
	roles []Role
}

// NewRolePolicy builds a policy from role names, keeping first-seen order
func NewRolePolicy(names ...string) (RolePolicy, error) {
	if len(names) == 0 {
		return RolePolicy{}, ErrEmptyRolePolicy
	}

	roles := make([]Role, 0, len(names))
	for _, name := range names {
		role, err := ParseRole(name)
		if err != nil {
			return RolePolicy{}, err
		}
		if !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
	}
	return RolePolicy{roles: roles}, nil
}

// Allows reports exact membership of role
func (p RolePolicy) Allows(role Role) bool {
	return slices.Contains(p.roles, role)
}

// Roles returns a copy of the allowed roles
func (p RolePolicy) Roles() []Role {
	return slices.Clone(p.roles)
}

// Authorize returns ErrInsufficientRole-kind error when p's role is not allowed.
// The error never names the allowed roles.
func (p RolePolicy) Authorize(principal Principal) error {
	if p.Allows(principal.Role) {
		return nil
	}
	return newError(KindInsufficientRole, nil)
}
