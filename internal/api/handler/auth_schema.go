package handler

import (
	"encoding/json"

	"github.com/99minutos/auth-service/internal/core/domain"
)

// --- Request types ---

type registerRequest struct {
	Username string `json:"username"  validate:"required,max=255"`
	Login    string `json:"login"     validate:"required,max=255"`
	Password string `json:"password"  validate:"required,max=1024"`
	RoleName string `json:"role_name" validate:"omitempty,max=255"`
}

type loginRequest struct {
	Login    string `json:"login"    validate:"required"`
	Password string `json:"password" validate:"required"`
}

// --- Response types ---

// registerResponse deliberately omits the password hash.
type registerResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Login    string `json:"login"`
	RoleID   int64  `json:"role_id"`
}

type roleSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type userResponse struct {
	ID       int64        `json:"id"`
	Username string       `json:"username"`
	Login    string       `json:"login"`
	Role     *roleSummary `json:"role,omitempty"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type roleResponse struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Attributes json.RawMessage `json:"attributes" swaggertype:"object"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// --- Mappers ---

func toRegisterResponse(u *domain.User) registerResponse {
	return registerResponse{ID: u.ID, Username: u.Username, Login: u.Login, RoleID: u.RoleID}
}

func toUserResponse(u *domain.User, r *domain.Role) userResponse {
	resp := userResponse{ID: u.ID, Username: u.Username, Login: u.Login}
	if r != nil {
		resp.Role = &roleSummary{ID: r.ID, Name: r.Name}
	}
	return resp
}

func toRoleResponses(roles []domain.Role) []roleResponse {
	out := make([]roleResponse, 0, len(roles))
	for _, r := range roles {
		out = append(out, roleResponse{ID: r.ID, Name: r.Name, Attributes: r.Attributes})
	}
	return out
}
