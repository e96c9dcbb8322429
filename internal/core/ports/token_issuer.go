package ports

import "github.com/nerdwiki/nerdwiki-api/internal/core/domain"

type TokenIssuer interface {
	IssueAccessToken(user *domain.User) (string, error)
	IssueRefreshToken() (string, error)
	Issuer() string
}

// TokenVerifier validates bearer access tokens.
type TokenVerifier interface {
	ParseAccessToken(token string) (*domain.Identity, error)
}
