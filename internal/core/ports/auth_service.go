package ports

import (
	"context"

	"github.com/nerdwiki/nerdwiki-api/internal/core/domain"
)

type AuthService interface {
	SignUp(ctx context.Context, username, email, password string) (*domain.User, error)
	SignIn(ctx context.Context, username, password string) (*domain.TokenPair, error)
	SignOut(ctx context.Context, userID string) error
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
}

type RoleService interface {
	AddRole(ctx context.Context, name string) (*domain.Role, error)
	AssignRole(ctx context.Context, username, roleName string) error
}
