package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/meridianpress/editorial-backend/internal/middleware"
	"github.com/meridianpress/editorial-backend/internal/model"
	"github.com/meridianpress/editorial-backend/internal/repository"
	"github.com/meridianpress/editorial-backend/internal/service"
)

// AuthHandler exposes the auth/session HTTP surface.
type AuthHandler struct {
	Auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{Auth: auth}
}

// ----- DTOs -----

// The login body field is named username for wire compatibility with the
// admin frontend, but it carries the email address.
type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}
type profileReq struct {
	Name     string  `json:"name"`
	Password *string `json:"password"`
}
type resetRequestReq struct {
	Email string `json:"email"`
}
type resetReq struct {
	ResetPasswordToken string `json:"resetPasswordToken"`
	Password           string `json:"password"`
}
type validateTokenReq struct {
	ResetPasswordToken string `json:"resetPasswordToken"`
}

type sessionPart struct {
	ID                string               `json:"id"`
	CreatedAt         time.Time            `json:"createdAt"`
	LastTokenIssuedAt time.Time            `json:"lastTokenIssuedAt"`
	Details           model.SessionDetails `json:"userSessionDetails"`
}

func sessionParts(sessions []model.SessionToken) []sessionPart {
	out := make([]sessionPart, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionPart{
			ID:                s.ID,
			CreatedAt:         s.CreatedAt,
			LastTokenIssuedAt: s.LastTokenIssuedAt,
			Details:           s.Details,
		})
	}
	return out
}

// Login verifies credentials and opens a device session.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Password) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res, err := h.Auth.Login(ctx, req.Username, req.Password, c.RealIP(), c.Request().UserAgent())
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}
	return c.JSON(http.StatusOK, res)
}

// Refresh mints a new access token for an existing session. The guard has
// already verified signature, session correlation and refresh possession;
// the handler enforces the renewal grace ceiling. The refresh token itself
// is not rotated.
func (h *AuthHandler) Refresh(c echo.Context) error {
	uid, _ := c.Get(middleware.CtxUserID).(uint64)
	role, _ := c.Get(middleware.CtxRole).(string)
	sessionID, _ := c.Get(middleware.CtxSessionID).(string)
	exp, ok := c.Get(middleware.CtxTokenExp).(time.Time)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid token"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	token, err := h.Auth.Renew(ctx, uid, role, sessionID, exp)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTokenExpired), errors.Is(err, service.ErrInvalidToken):
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"accessToken": token})
}

// Logout closes the session correlated to the presented access token and
// returns the sessions that remain open on other devices.
func (h *AuthHandler) Logout(c echo.Context) error {
	uid, _ := c.Get(middleware.CtxUserID).(uint64)
	sessionID, _ := c.Get(middleware.CtxSessionID).(string)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	remaining, err := h.Auth.Logout(ctx, uid, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNoChange) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "logout had no effect"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"tokens": sessionParts(remaining)})
}

// RemoveExpiredToken triggers the stale-session sweep on demand; the same
// logic runs on the cron schedule.
func (h *AuthHandler) RemoveExpiredToken(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	removed, err := h.Auth.Sweep(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "sweep failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"removed": removed})
}

// Me returns the current profile decorated with role permissions.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, _ := c.Get(middleware.CtxUserID).(uint64)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	p, err := h.Auth.Profile(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"user": p})
}

// UpdateProfile changes the caller's name and optionally the password.
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	uid, _ := c.Get(middleware.CtxUserID).(uint64)

	var req profileReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(req.Name) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Auth.UpdateProfile(ctx, uid, req.Name, req.Password); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": service.ErrInvalidUpdates.Error()})
	}
	p, err := h.Auth.Profile(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"user": p})
}

// ResetPasswordRequest starts the reset/activation flow. The response
// reports the mail as sent as soon as the job is enqueued; SMTP delivery
// is asynchronous.
func (h *AuthHandler) ResetPasswordRequest(c echo.Context) error {
	var req resetRequestReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Auth.RequestPasswordReset(ctx, req.Email); err != nil {
		switch {
		case errors.Is(err, service.ErrEmailNotRegistered):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		case errors.Is(err, service.ErrInvalidUpdates):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reset request failed"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"mailSent": true})
}

// ValidateToken reports whether a reset token is still usable and whether
// it belongs to a never-activated account.
func (h *AuthHandler) ValidateToken(c echo.Context) error {
	var req validateTokenReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.ResetPasswordToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "resetPasswordToken required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	info, err := h.Auth.ValidateResetToken(ctx, req.ResetPasswordToken)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "validate failed"})
	}
	return c.JSON(http.StatusOK, info)
}

// ResetPassword consumes a reset token and stores the new password.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := c.Bind(&req); err != nil ||
		strings.TrimSpace(req.ResetPasswordToken) == "" || strings.TrimSpace(req.Password) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "resetPasswordToken/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Auth.ResetPassword(ctx, req.ResetPasswordToken, req.Password); err != nil {
		switch {
		case errors.Is(err, service.ErrResetTokenExpired), errors.Is(err, service.ErrUpdatingPassword):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reset failed"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"mailSent": true})
}
