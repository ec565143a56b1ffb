package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Role is the access level carried by a session token.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

// SystemActor is recorded as updated_by when authentication is disabled.
const SystemActor = "system"

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInsufficientRole = errors.New("insufficient role for this operation")
)

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", NewValidationError("role", fmt.Errorf("unknown role %q", s))
	}
	return r, nil
}

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleOperator, RoleViewer:
		return true
	}
	return false
}

// CanWrite reports whether the role may change overrides. Viewers only read
// the ledger and the audit log.
func (r Role) CanWrite() bool {
	return r == RoleAdmin || r == RoleOperator
}
