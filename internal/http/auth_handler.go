package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/service"
	"github.com/go-chi/chi/v5"
)

type AuthHandler struct {
	identity *service.IdentityService
	timeout  time.Duration
}

func NewAuthHandler(identity *service.IdentityService, timeout time.Duration) *AuthHandler {
	return &AuthHandler{identity: identity, timeout: timeout}
}

type RegisterRequestDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

type LoginRequestDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponseDTO struct {
	Token  string   `json:"token"`
	UserID int64    `json:"user_id"`
	Roles  []string `json:"roles"`
}

type RoleRequestDTO struct {
	Role string `json:"role"`
}

type RolesResponseDTO struct {
	UserID int64    `json:"user_id"`
	Roles  []string `json:"roles"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req RegisterRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, err)
		return
	}
	customer, err := h.identity.Register(ctx, service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    req.Phone,
	})
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, customer)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req LoginRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, err)
		return
	}
	res, err := h.identity.Login(ctx, req.Email, req.Password)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, LoginResponseDTO{Token: res.Token, UserID: res.User.ID, Roles: res.Roles})
}

func (h *AuthHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, err := pathID(r, "user_id")
	if err != nil {
		handleError(w, err)
		return
	}
	var req RoleRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, err)
		return
	}
	roles, err := h.identity.AssignRole(ctx, userID, req.Role)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, RolesResponseDTO{UserID: userID, Roles: roles})
}

func (h *AuthHandler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, err := pathID(r, "user_id")
	if err != nil {
		handleError(w, err)
		return
	}
	roles, err := h.identity.RevokeRole(ctx, userID, chi.URLParam(r, "role"))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, RolesResponseDTO{UserID: userID, Roles: roles})
}
