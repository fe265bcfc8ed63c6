package auth

import (
	"errors"
	"fmt"
)

// Role is a storefront access level. Roles are flat: no role implies another.
type Role string

const (
	RoleUser    Role = "user"
	RolePremium Role = "premium"
	RoleAdmin   Role = "admin"
)

var ErrUnknownRole = errors.New("unknown role")

// ParseRole validates s against the closed role set
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RolePremium, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// Principal is the authenticated identity attached to a request.
// It is a value type; copies handed to handlers cannot alter the original.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}
