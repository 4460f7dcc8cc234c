package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/meridianpress/editorial-backend/internal/model"
	"github.com/meridianpress/editorial-backend/internal/repository"
	"github.com/meridianpress/editorial-backend/internal/service"
)

// UserHandler exposes the admin user-management surface. Accounts are
// created without a password; the activation mail goes out through the
// same reset flow the frontend uses for forgotten passwords.
type UserHandler struct {
	Users *repository.UserRepo
	Auth  *service.AuthService
}

func NewUserHandler(users *repository.UserRepo, auth *service.AuthService) *UserHandler {
	return &UserHandler{Users: users, Auth: auth}
}

type createUserReq struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Role  string `json:"role"`
}

type updateUserReq struct {
	Name   *string `json:"name"`
	Phone  *string `json:"phone"`
	Role   *string `json:"role"`
	Active *bool   `json:"isActive"`
}

// Create provisions a user and enqueues the activation mail.
func (h *UserHandler) Create(c echo.Context) error {
	var req createUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || strings.TrimSpace(req.Name) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/name required"})
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = model.RoleUser
	}
	if !model.ValidRole(role) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown role"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	id, err := h.Users.Create(ctx, req.Email, req.Name, req.Phone, role)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}

	// Activation reuses the reset flow; a publish failure is already
	// logged there and must not fail the creation.
	_ = h.Auth.RequestPasswordReset(ctx, req.Email)

	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"user": model.ProfileOf(u)})
}

// List returns every user without credential fields.
func (h *UserHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	users, err := h.Users.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]model.Profile, 0, len(users))
	for _, u := range users {
		out = append(out, model.ProfileOf(u))
	}
	return c.JSON(http.StatusOK, echo.Map{"users": out})
}

// Update applies admin-editable fields to a user.
func (h *UserHandler) Update(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req updateUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Role != nil && !model.ValidRole(*req.Role) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown role"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Users.UpdateAdmin(ctx, id, req.Name, req.Phone, req.Role, req.Active); err != nil {
		if errors.Is(err, repository.ErrNoChange) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": service.ErrInvalidUpdates.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"user": model.ProfileOf(u)})
}

// Delete deactivates a user; rows are never removed so authored content
// keeps its byline.
func (h *UserHandler) Delete(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Users.Deactivate(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNoChange) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": service.ErrInvalidUpdates.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
