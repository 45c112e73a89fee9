package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/service"
)

type UserHandler struct {
	identity *service.IdentityService
	timeout  time.Duration
}

func NewUserHandler(identity *service.IdentityService, timeout time.Duration) *UserHandler {
	return &UserHandler{identity: identity, timeout: timeout}
}

// UserUpdateRequestDTO leaves absent fields unchanged. Active is read only on
// the admin route.
type UserUpdateRequestDTO struct {
	FullName *string `json:"full_name"`
	Phone    *string `json:"phone"`
	Active   *bool   `json:"active"`
}

func (req UserUpdateRequestDTO) toUpdate() service.UserUpdate {
	return service.UserUpdate{FullName: req.FullName, Phone: req.Phone, Active: req.Active}
}

func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	profile, err := h.identity.GetProfile(ctx, claimsFromContext(ctx).UserID)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UserUpdateRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, err)
		return
	}
	profile, err := h.identity.UpdateProfile(ctx, claimsFromContext(ctx).UserID, req.toUpdate())
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (h *UserHandler) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	limit, offset, err := pagination(r)
	if err != nil {
		handleError(w, err)
		return
	}
	users, err := h.identity.ListUsers(ctx, limit, offset)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

func (h *UserHandler) AdminGetUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, err := pathID(r, "user_id")
	if err != nil {
		handleError(w, err)
		return
	}
	profile, err := h.identity.GetProfile(ctx, userID)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (h *UserHandler) AdminUpdateUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, err := pathID(r, "user_id")
	if err != nil {
		handleError(w, err)
		return
	}
	var req UserUpdateRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, err)
		return
	}
	profile, err := h.identity.UpdateUser(ctx, userID, req.toUpdate())
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}
