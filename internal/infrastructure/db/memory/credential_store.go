// Package memory holds process-local stores for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/nerdwiki/nerdwiki-api/internal/core/domain"
)

// CredentialStore keeps users and roles in maps guarded by a RWMutex.
type CredentialStore struct {
	mu         sync.RWMutex
	users      map[string]*domain.User
	byUsername map[string]string
	byEmail    map[string]string
	roles      map[string]*domain.Role
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		users:      make(map[string]*domain.User),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
		roles:      make(map[string]*domain.Role),
	}
}

func cloneUser(u *domain.User) *domain.User {
	clone := *u
	clone.Roles = append([]string{}, u.Roles...)
	return &clone
}

func (s *CredentialStore) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := domain.NormalizeName(user.Username)
	email := domain.NormalizeName(user.Email)
	if _, ok := s.byUsername[username]; ok {
		return domain.ErrUserExists
	}
	if _, ok := s.byEmail[email]; ok {
		return domain.ErrEmailExists
	}

	s.users[user.ID] = cloneUser(user)
	s.byUsername[username] = user.ID
	s.byEmail[email] = user.ID
	return nil
}

func (s *CredentialStore) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(s.byUsername[domain.NormalizeName(username)])
}

func (s *CredentialStore) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(s.byEmail[domain.NormalizeName(email)])
}

func (s *CredentialStore) FindByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(id)
}

// lookup expects s.mu to be held.
func (s *CredentialStore) lookup(id string) (*domain.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (s *CredentialStore) GetRoles(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return append([]string{}, u.Roles...), nil
}

func (s *CredentialStore) AddToRole(_ context.Context, userID, roleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	role, ok := s.roles[domain.NormalizeName(roleName)]
	if !ok {
		return domain.ErrRoleNotFound
	}
	if u.HasRole(role.Name) {
		return domain.ErrUserInRole
	}
	u.Roles = append(u.Roles, role.Name)
	return nil
}

func (s *CredentialStore) CreateRole(_ context.Context, role *domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.NormalizeName(role.Name)
	if _, ok := s.roles[key]; ok {
		return domain.ErrRoleExists
	}
	clone := *role
	s.roles[key] = &clone
	return nil
}

func (s *CredentialStore) FindRole(_ context.Context, name string) (*domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[domain.NormalizeName(name)]
	if !ok {
		return nil, domain.ErrRoleNotFound
	}
	clone := *r
	return &clone, nil
}

// Ping always succeeds.
func (s *CredentialStore) Ping(context.Context) error { return nil }
