package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nerdwiki/nerdwiki-api/internal/api/middleware"
	"github.com/nerdwiki/nerdwiki-api/internal/core/domain"
)

// ctxIdentity returns the caller injected by the Authenticate middleware and
// fails fast with 401 before any service call when there is none.
func ctxIdentity(c echo.Context) (*domain.Identity, error) {
	id, ok := middleware.IdentityFrom(c)
	if !ok || id.UserID == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return id, nil
}
