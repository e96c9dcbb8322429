package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nerdwiki/nerdwiki-api/internal/core/domain"
	"github.com/nerdwiki/nerdwiki-api/internal/core/ports"
)

// RoleService manages roles and memberships.
type RoleService struct {
	users ports.CredentialStore
	log   zerolog.Logger
}

func NewRoleService(users ports.CredentialStore, log zerolog.Logger) *RoleService {
	return &RoleService{users: users, log: log}
}

func (s *RoleService) AddRole(ctx context.Context, name string) (*domain.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewValidationError("Role name is required.")
	}

	role := &domain.Role{ID: uuid.NewString(), Name: name}
	if err := s.users.CreateRole(ctx, role); err != nil {
		if errors.Is(err, domain.ErrRoleExists) {
			return nil, err
		}
		return nil, fmt.Errorf("add role: %w", err)
	}

	s.log.Info().Str("role", name).Msg("role created")
	return role, nil
}

// AssignRole adds the named user to the named role.
func (s *RoleService) AssignRole(ctx context.Context, username, roleName string) error {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return fmt.Errorf("user '%s': %w", username, domain.ErrUserNotFound)
		}
		return fmt.Errorf("assign role: %w", err)
	}

	role, err := s.users.FindRole(ctx, roleName)
	if err != nil {
		if errors.Is(err, domain.ErrRoleNotFound) {
			return fmt.Errorf("role '%s': %w", roleName, domain.ErrRoleNotFound)
		}
		return fmt.Errorf("assign role: %w", err)
	}

	if err := s.users.AddToRole(ctx, user.ID, role.Name); err != nil {
		if errors.Is(err, domain.ErrUserInRole) {
			return err
		}
		return fmt.Errorf("assign role: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Str("role", role.Name).Msg("role assigned")
	return nil
}

// EnsureAdmins creates the Admin role when missing and adds every existing
// user in usernames to it. Unknown usernames are skipped.
func (s *RoleService) EnsureAdmins(ctx context.Context, usernames []string) error {
	err := s.users.CreateRole(ctx, &domain.Role{ID: uuid.NewString(), Name: domain.RoleAdmin})
	if err != nil && !errors.Is(err, domain.ErrRoleExists) {
		return fmt.Errorf("ensure admin role: %w", err)
	}

	for _, username := range usernames {
		if username == "" {
			continue
		}
		err := s.AssignRole(ctx, username, domain.RoleAdmin)
		switch {
		case err == nil, errors.Is(err, domain.ErrUserInRole):
		case errors.Is(err, domain.ErrUserNotFound):
			s.log.Warn().Str("username", username).Msg("admin user not found, skipping")
		default:
			return err
		}
	}
	return nil
}
