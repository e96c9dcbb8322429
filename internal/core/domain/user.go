package domain

import "time"

// RoleAdmin is the role that guards role management.
const RoleAdmin = "Admin"

// User models an account that can sign in.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasRole reports whether the user is a member of role. Role names compare
// case-insensitively.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if NormalizeName(r) == NormalizeName(role) {
			return true
		}
	}
	return false
}

// Role is a named group of users.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
