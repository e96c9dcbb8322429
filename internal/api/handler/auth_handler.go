package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nerdwiki/nerdwiki-api/internal/api/middleware"
	"github.com/nerdwiki/nerdwiki-api/internal/core/domain"
	"github.com/nerdwiki/nerdwiki-api/internal/core/ports"
)

type AuthHandler struct {
	authService ports.AuthService
	cookie      CookieOptions
}

func NewAuthHandler(authService ports.AuthService, cookie CookieOptions) *AuthHandler {
	return &AuthHandler{authService: authService, cookie: cookie}
}

// Status reports whether the request carries a valid access token.
//
// @Summary      Authentication status
// @Tags         auth
// @Produce      json
// @Success      200  {boolean}  boolean
// @Router       /api/auth/ [get]
func (h *AuthHandler) Status(c echo.Context) error {
	_, ok := middleware.IdentityFrom(c)
	return c.JSON(http.StatusOK, ok)
}

// SignUp creates a new account.
//
// @Summary      Sign up
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      signUpRequest  true  "Account details"
// @Success      201   {object}  messageResponse
// @Failure      400   {object}  ValidationErrorResponse
// @Failure      500   {object}  ErrorResponse
// @Router       /api/auth/signup [post]
func (h *AuthHandler) SignUp(c echo.Context) (err error) {
	defer observe("signup", time.Now(), &err)

	var req signUpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	if _, err := h.authService.SignUp(c.Request().Context(), req.Username, req.Email, req.Password); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, messageResponse{Message: "User registered successfully."})
}

// SignIn checks credentials, sets the refresh cookie and returns an access token.
//
// @Summary      Sign in
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      signInRequest  true  "Credentials"
// @Success      200   {string}  string  "Access token"
// @Header       200   {string}  Set-Cookie  "refreshToken (HttpOnly; Secure; SameSite=Strict)"
// @Failure      400   {object}  ValidationErrorResponse
// @Failure      401   {object}  ErrorResponse
// @Router       /api/auth/signin [post]
func (h *AuthHandler) SignIn(c echo.Context) (err error) {
	defer observe("signin", time.Now(), &err)

	var req signInRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	pair, err := h.authService.SignIn(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}

	setRefreshCookie(c, h.cookie, pair.RefreshToken, pair.RefreshExpiresAt)
	return c.JSON(http.StatusOK, pair.AccessToken)
}

// SignOut revokes the caller's refresh token.
//
// @Summary      Sign out
// @Tags         auth
// @Security     BearerAuth
// @Success      204
// @Failure      401  {object}  ErrorResponse
// @Router       /api/auth/signout [post]
func (h *AuthHandler) SignOut(c echo.Context) (err error) {
	defer observe("signout", time.Now(), &err)

	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	if err := h.authService.SignOut(c.Request().Context(), id.UserID); err != nil {
		return err
	}

	clearRefreshCookie(c, h.cookie)
	return c.NoContent(http.StatusNoContent)
}

// Refresh exchanges the refresh cookie for a new token pair.
//
// @Summary      Refresh tokens
// @Tags         auth
// @Produce      json
// @Success      200  {string}  string  "Access token"
// @Failure      401  {object}  ErrorResponse
// @Router       /api/auth/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) (err error) {
	defer observe("refresh", time.Now(), &err)

	cookie, err := c.Cookie(RefreshCookieName)
	if err != nil || cookie.Value == "" {
		return domain.ErrUnauthorized
	}

	pair, err := h.authService.Refresh(c.Request().Context(), cookie.Value)
	if err != nil {
		return err
	}

	setRefreshCookie(c, h.cookie, pair.RefreshToken, pair.RefreshExpiresAt)
	return c.JSON(http.StatusOK, pair.AccessToken)
}
