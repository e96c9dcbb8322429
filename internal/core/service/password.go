package service

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher implements ports.PasswordHasher.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using cost, or bcrypt.DefaultCost when
// cost is outside bcrypt's accepted range.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (h *BcryptHasher) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

const (
	minPasswordLength    = 6
	maxPasswordBytes     = 72 // bcrypt input limit
	allowedUsernameChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-._@+"
)

// CredentialPolicy checks sign-up input and phrases each failure as a
// client-facing reason.
type CredentialPolicy struct {
	validate *validator.Validate
}

func NewCredentialPolicy() *CredentialPolicy {
	return &CredentialPolicy{validate: validator.New()}
}

// CheckUsername returns an empty string when username is acceptable.
func (p *CredentialPolicy) CheckUsername(username string) string {
	invalid := strings.ContainsFunc(username, func(r rune) bool {
		return !strings.ContainsRune(allowedUsernameChars, r)
	})
	if username == "" || invalid {
		return fmt.Sprintf("Username '%s' is invalid, can only contain letters or digits.", username)
	}
	return ""
}

// CheckEmail returns an empty string when email is acceptable.
func (p *CredentialPolicy) CheckEmail(email string) string {
	if err := p.validate.Var(email, "required,email"); err != nil {
		return fmt.Sprintf("Email '%s' is invalid.", email)
	}
	return ""
}

// CheckPassword returns every rule password breaks.
func (p *CredentialPolicy) CheckPassword(password string) []string {
	var reasons []string
	if len(password) < minPasswordLength {
		reasons = append(reasons, fmt.Sprintf("Passwords must be at least %d characters.", minPasswordLength))
	}
	if len(password) > maxPasswordBytes {
		reasons = append(reasons, fmt.Sprintf("Passwords must be at most %d bytes.", maxPasswordBytes))
	}

	var digit, lower, upper, symbol bool
	for _, r := range password {
		switch {
		case r >= '0' && r <= '9':
			digit = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		default:
			symbol = true
		}
	}

	if !symbol {
		reasons = append(reasons, "Passwords must have at least one non alphanumeric character.")
	}
	if !digit {
		reasons = append(reasons, "Passwords must have at least one digit ('0'-'9').")
	}
	if !lower {
		reasons = append(reasons, "Passwords must have at least one lowercase ('a'-'z').")
	}
	if !upper {
		reasons = append(reasons, "Passwords must have at least one uppercase ('A'-'Z').")
	}
	return reasons
}

func usernameTaken(username string) string {
	return fmt.Sprintf("Username '%s' is already taken.", username)
}

func emailTaken(email string) string {
	return fmt.Sprintf("Email '%s' is already taken.", email)
}
