package ports

import (
	"context"

	"github.com/nerdwiki/nerdwiki-api/internal/core/domain"
)

// CredentialStore persists user accounts and role memberships. Usernames,
// emails and role names are matched case-insensitively.
type CredentialStore interface {
	CreateUser(ctx context.Context, user *domain.User) error
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	GetRoles(ctx context.Context, userID string) ([]string, error)
	AddToRole(ctx context.Context, userID, roleName string) error

	CreateRole(ctx context.Context, role *domain.Role) error
	FindRole(ctx context.Context, name string) (*domain.Role, error)
}

// PasswordHasher hashes and verifies user passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}
