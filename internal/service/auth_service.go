// Package service holds the auth/session core: credential verification,
// session issuing with a per-user cap, access-token renewal inside a grace
// window, the stale-session sweep and the password reset flow. Storage and
// mail delivery are reached through small interfaces so the logic is
// testable with in-memory fakes.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridianpress/editorial-backend/internal/model"
	"github.com/meridianpress/editorial-backend/internal/queue"
	"github.com/meridianpress/editorial-backend/internal/utils"
)

// UserStore is the slice of the user repository the auth core needs.
type UserStore interface {
	GetActiveByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	GetByResetToken(ctx context.Context, token string) (model.User, error)
	SetResetToken(ctx context.Context, id uint64, token string) error
	SetPassword(ctx context.Context, id uint64, hash string) error
	UpdateProfile(ctx context.Context, id uint64, name string, hash *string) error
}

// SessionStore persists per-device sessions.
type SessionStore interface {
	Append(ctx context.Context, s model.SessionToken, maxSessions int) error
	Find(ctx context.Context, userID uint64, id string) (model.SessionToken, error)
	Touch(ctx context.Context, id string, at time.Time) error
	Remove(ctx context.Context, userID uint64, id string) error
	ListByUser(ctx context.Context, userID uint64) ([]model.SessionToken, error)
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// MailPublisher enqueues a mail job; delivery happens in a background
// worker, never on the request path.
type MailPublisher interface {
	Publish(ctx context.Context, job queue.MailJob) error
}

// Clock lets tests pin the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// AuthConfig carries the token parameters of the auth core.
type AuthConfig struct {
	JWTSecret     string
	AccessTTLMin  int
	MaxSessions   int
	RenewExpire   time.Duration // grace window after access-token expiry
	BcryptCost    int
	ResetTokenTTL time.Duration
	WebsiteURL    string
}

type AuthService struct {
	users    UserStore
	sessions SessionStore
	mail     MailPublisher
	clock    Clock
	cfg      AuthConfig
}

func NewAuthService(users UserStore, sessions SessionStore, mail MailPublisher, clock Clock, cfg AuthConfig) *AuthService {
	if clock == nil {
		clock = systemClock{}
	}
	return &AuthService{users: users, sessions: sessions, mail: mail, clock: clock, cfg: cfg}
}

// LoginResult is the payload of a successful login.
type LoginResult struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	User         model.Profile `json:"user"`
}

// Login verifies credentials and opens a new device session. When the user
// is already at the session cap, the oldest session (by creation time) is
// evicted before the new one is appended.
func (s *AuthService) Login(ctx context.Context, email, password, ip, userAgent string) (*LoginResult, error) {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := s.users.GetActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !u.PasswordHash.Valid || !utils.VerifyPassword(u.PasswordHash.String, password) {
		return nil, ErrInvalidCredentials
	}

	refresh, err := utils.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	ua := utils.ParseUserAgent(userAgent)
	sess := model.SessionToken{
		ID:                uuid.NewString(),
		UserID:            u.ID,
		RefreshTokenHash:  utils.HashRefreshRaw(refresh),
		CreatedAt:         now,
		LastTokenIssuedAt: now,
		Details: model.SessionDetails{
			IP:      ip,
			Device:  ua.Device,
			OS:      ua.OS,
			Browser: ua.Browser,
		},
	}
	if err := s.sessions.Append(ctx, sess, s.cfg.MaxSessions); err != nil {
		return nil, err
	}

	access, err := utils.NewAccessToken(s.cfg.JWTSecret, u.ID, u.Role, sess.ID, s.cfg.AccessTTLMin)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		AccessToken:  access.Token,
		RefreshToken: refresh,
		User:         model.ProfileOf(u),
	}, nil
}

// Renew mints a fresh access token for an existing session. The caller has
// already proven possession of the paired refresh token; here we only
// enforce the renewal ceiling: once the old access token has been expired
// for longer than the grace window, the session cannot silently mint new
// tokens anymore. The refresh token is not rotated.
func (s *AuthService) Renew(ctx context.Context, userID uint64, role, sessionID string, oldExp time.Time) (string, error) {
	if s.clock.Now().Sub(oldExp) > s.cfg.RenewExpire {
		return "", ErrTokenExpired
	}

	access, err := utils.NewAccessToken(s.cfg.JWTSecret, userID, role, sessionID, s.cfg.AccessTTLMin)
	if err != nil {
		return "", err
	}

	if _, err := s.sessions.Find(ctx, userID, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrInvalidToken
		}
		return "", err
	}
	if err := s.sessions.Touch(ctx, sessionID, s.clock.Now()); err != nil {
		return "", err
	}
	return access.Token, nil
}

// Logout closes exactly one session and returns the sessions that remain.
func (s *AuthService) Logout(ctx context.Context, userID uint64, sessionID string) ([]model.SessionToken, error) {
	if err := s.sessions.Remove(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.sessions.ListByUser(ctx, userID)
}

// Sweep removes, across all users, every session whose last issued access
// token is older than the renewal grace window. Returns the number of
// sessions removed.
func (s *AuthService) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-s.cfg.RenewExpire)
	return s.sessions.DeleteStale(ctx, cutoff)
}

// Profile returns the client-facing view of a user.
func (s *AuthService) Profile(ctx context.Context, userID uint64) (model.Profile, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.Profile{}, err
	}
	return model.ProfileOf(u), nil
}

// UpdateProfile changes the user's display name and, when given, password.
func (s *AuthService) UpdateProfile(ctx context.Context, userID uint64, name string, password *string) error {
	var hash *string
	if password != nil && *password != "" {
		h, err := utils.HashPassword(*password, s.cfg.BcryptCost)
		if err != nil {
			return err
		}
		hash = &h
	}
	return s.users.UpdateProfile(ctx, userID, name, hash)
}

// RequestPasswordReset issues a signed reset token, stores it on the user
// (invalidating any previously issued one) and enqueues the reset mail.
// Mail delivery is best effort; a publish failure is logged and the request
// still reports the mail as sent.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.users.GetActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrEmailNotRegistered
		}
		return err
	}

	token, err := utils.NewResetToken(s.cfg.JWTSecret, u.Email, u.Name, s.cfg.ResetTokenTTL)
	if err != nil {
		return err
	}
	if err := s.users.SetResetToken(ctx, u.ID, token); err != nil {
		return ErrInvalidUpdates
	}

	job := queue.MailJob{
		Kind: queue.MailPasswordReset,
		To:   u.Email,
		Name: u.Name,
		Link: s.cfg.WebsiteURL + "/reset-password?token=" + token,
	}
	if err := s.mail.Publish(ctx, job); err != nil {
		log.Printf("auth: enqueue reset mail for %s failed: %v", u.Email, err)
	}
	return nil
}

// ResetTokenInfo is the result of validating a reset token. IsNewUser is
// true for admin-provisioned accounts that have never set a password; the
// frontend shows an activation screen instead of a reset screen.
type ResetTokenInfo struct {
	IsValid   bool   `json:"isValid"`
	IsNewUser bool   `json:"isNewUser"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
}

// ValidateResetToken looks up the user holding this exact token.
func (s *AuthService) ValidateResetToken(ctx context.Context, token string) (ResetTokenInfo, error) {
	u, err := s.users.GetByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ResetTokenInfo{IsValid: false}, nil
		}
		return ResetTokenInfo{}, err
	}
	return ResetTokenInfo{
		IsValid:   true,
		IsNewUser: !u.PasswordHash.Valid,
		Name:      u.Name,
		Email:     u.Email,
	}, nil
}

// ResetPassword consumes a reset token and stores the new password hash.
// The token is cleared in the same update, so a second attempt with the
// same token fails the lookup.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	u, err := s.users.GetByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrResetTokenExpired
		}
		return err
	}

	hash, err := utils.HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	if err := s.users.SetPassword(ctx, u.ID, hash); err != nil {
		return ErrUpdatingPassword
	}

	job := queue.MailJob{
		Kind: queue.MailPasswordChanged,
		To:   u.Email,
		Name: u.Name,
		Link: s.cfg.WebsiteURL + "/login",
	}
	if err := s.mail.Publish(ctx, job); err != nil {
		log.Printf("auth: enqueue confirmation mail for %s failed: %v", u.Email, err)
	}
	return nil
}
