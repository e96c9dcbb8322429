package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nerdwiki/nerdwiki-api/internal/core/ports"
)

type RoleHandler struct {
	roleService ports.RoleService
}

func NewRoleHandler(roleService ports.RoleService) *RoleHandler {
	return &RoleHandler{roleService: roleService}
}

// AddRole creates a role.
//
// @Summary      Create role
// @Tags         roles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createRoleRequest  true  "Role"
// @Success      201   {object}  roleResponse
// @Failure      400   {object}  ValidationErrorResponse
// @Failure      403   {object}  ErrorResponse
// @Failure      409   {object}  ErrorResponse
// @Router       /api/auth/role [post]
func (h *RoleHandler) AddRole(c echo.Context) (err error) {
	defer observe("add_role", time.Now(), &err)

	var req createRoleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	role, err := h.roleService.AddRole(c.Request().Context(), req.RoleName)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, roleResponse{ID: role.ID, Name: role.Name})
}

// AssignRole adds a user to a role.
//
// @Summary      Assign role
// @Tags         roles
// @Accept       json
// @Security     BearerAuth
// @Param        body  body  assignRoleRequest  true  "Membership"
// @Success      204
// @Failure      403   {object}  ErrorResponse
// @Failure      404   {object}  ErrorResponse
// @Failure      409   {object}  ErrorResponse
// @Router       /api/auth/assign-role [post]
func (h *RoleHandler) AssignRole(c echo.Context) (err error) {
	defer observe("assign_role", time.Now(), &err)

	var req assignRoleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.roleService.AssignRole(c.Request().Context(), req.Username, req.RoleName); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
