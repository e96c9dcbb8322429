package domain

import (
	"errors"
	"strings"
)

var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("access forbidden")
	ErrUserNotFound         = errors.New("user not found")
	ErrUserExists           = errors.New("username already taken")
	ErrEmailExists          = errors.New("email already taken")
	ErrRoleNotFound         = errors.New("role not found")
	ErrRoleExists           = errors.New("role already exists")
	ErrUserInRole           = errors.New("user already in role")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrMissingTokenConfig   = errors.New("token configuration incomplete")
)

// ValidationError carries every reason an input was rejected. Reasons are
// returned to the client verbatim.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Reasons, "; ")
}

// NewValidationError returns a ValidationError holding reasons.
func NewValidationError(reasons ...string) *ValidationError {
	return &ValidationError{Reasons: reasons}
}
