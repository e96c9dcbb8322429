package domain

import "strings"

// NormalizeName returns the lookup key for usernames, emails and role names.
// Uniqueness and lookups are case-insensitive.
func NormalizeName(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
