package handler

type signUpRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type createRoleRequest struct {
	RoleName string `json:"roleName" validate:"required,max=256"`
}

type assignRoleRequest struct {
	Username string `json:"username" validate:"required"`
	RoleName string `json:"roleName" validate:"required"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type roleResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ErrorResponse is the canonical error envelope for all API errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ValidationErrorResponse lists every rejected rule of a 400 response.
type ValidationErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details"`
}
