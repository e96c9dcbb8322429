package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nerdwiki/nerdwiki-api/internal/core/domain"
)

// RBAC enforces role-based access control. Anonymous callers get 401,
// authenticated callers lacking every allowed role get 403.
func RBAC(allowedRoles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[domain.NormalizeName(r)] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}
			for _, role := range id.Roles {
				if _, ok := allowed[domain.NormalizeName(role)]; ok {
					return next(c)
				}
			}
			return domain.ErrForbidden
		}
	}
}
