package service_test

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/meridianpress/editorial-backend/internal/model"
	"github.com/meridianpress/editorial-backend/internal/queue"
	"github.com/meridianpress/editorial-backend/internal/repository"
	"github.com/meridianpress/editorial-backend/internal/service"
	"github.com/meridianpress/editorial-backend/internal/utils"
)

const (
	testSecret   = "test-secret"
	testEmail    = "editor@example.com"
	testPassword = "correct-horse"
	testUA       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

// ----- fakes -----

type fakeUserStore struct {
	mu    sync.Mutex
	users map[uint64]*model.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[uint64]*model.User{}}
}

func (f *fakeUserStore) add(u model.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := u
	f.users[u.ID] = &cp
}

func (f *fakeUserStore) GetActiveByEmail(_ context.Context, email string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email && u.IsActive {
			return *u, nil
		}
	}
	return model.User{}, sql.ErrNoRows
}

func (f *fakeUserStore) GetByID(_ context.Context, id uint64) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return *u, nil
	}
	return model.User{}, sql.ErrNoRows
}

func (f *fakeUserStore) GetByResetToken(_ context.Context, token string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ResetPasswordToken.Valid && u.ResetPasswordToken.String == token {
			return *u, nil
		}
	}
	return model.User{}, sql.ErrNoRows
}

func (f *fakeUserStore) SetResetToken(_ context.Context, id uint64, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.ResetPasswordToken = sql.NullString{String: token, Valid: true}
	return nil
}

func (f *fakeUserStore) SetPassword(_ context.Context, id uint64, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = sql.NullString{String: hash, Valid: true}
	u.ResetPasswordToken = sql.NullString{}
	return nil
}

func (f *fakeUserStore) UpdateProfile(_ context.Context, id uint64, name string, hash *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Name = name
	if hash != nil {
		u.PasswordHash = sql.NullString{String: *hash, Valid: true}
	}
	return nil
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions []model.SessionToken
}

func (f *fakeSessionStore) Append(_ context.Context, s model.SessionToken, maxSessions int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if maxSessions > 0 {
		var mine []int
		for i, it := range f.sessions {
			if it.UserID == s.UserID {
				mine = append(mine, i)
			}
		}
		if over := len(mine) - maxSessions + 1; over > 0 {
			sort.Slice(mine, func(a, b int) bool {
				return f.sessions[mine[a]].CreatedAt.Before(f.sessions[mine[b]].CreatedAt)
			})
			drop := map[int]bool{}
			for _, idx := range mine[:over] {
				drop[idx] = true
			}
			kept := f.sessions[:0]
			for i, it := range f.sessions {
				if !drop[i] {
					kept = append(kept, it)
				}
			}
			f.sessions = kept
		}
	}
	f.sessions = append(f.sessions, s)
	return nil
}

func (f *fakeSessionStore) Find(_ context.Context, userID uint64, id string) (model.SessionToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.UserID == userID && s.ID == id {
			return s, nil
		}
	}
	return model.SessionToken{}, sql.ErrNoRows
}

func (f *fakeSessionStore) Touch(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.sessions {
		if f.sessions[i].ID == id {
			f.sessions[i].LastTokenIssuedAt = at
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeSessionStore) Remove(_ context.Context, userID uint64, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.sessions {
		if s.UserID == userID && s.ID == id {
			f.sessions = append(f.sessions[:i], f.sessions[i+1:]...)
			return nil
		}
	}
	return repository.ErrNoChange
}

func (f *fakeSessionStore) ListByUser(_ context.Context, userID uint64) ([]model.SessionToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.SessionToken
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (f *fakeSessionStore) DeleteStale(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed int64
	kept := f.sessions[:0]
	for _, s := range f.sessions {
		if s.LastTokenIssuedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	f.sessions = kept
	return removed, nil
}

type fakeMail struct {
	mu   sync.Mutex
	jobs []queue.MailJob
}

func (f *fakeMail) Publish(_ context.Context, job queue.MailJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ----- fixture -----

type fixture struct {
	users    *fakeUserStore
	sessions *fakeSessionStore
	mail     *fakeMail
	clock    *stepClock
	svc      *service.AuthService
}

func setup(t *testing.T, cfg service.AuthConfig) *fixture {
	t.Helper()
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = testSecret
	}
	if cfg.AccessTTLMin == 0 {
		cfg.AccessTTLMin = 15
	}
	if cfg.RenewExpire == 0 {
		cfg.RenewExpire = time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 4 // keep the test suite fast
	}
	if cfg.ResetTokenTTL == 0 {
		cfg.ResetTokenTTL = 24 * time.Hour
	}
	if cfg.WebsiteURL == "" {
		cfg.WebsiteURL = "https://admin.example.com"
	}

	f := &fixture{
		users:    newFakeUserStore(),
		sessions: &fakeSessionStore{},
		mail:     &fakeMail{},
		clock:    &stepClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.svc = service.NewAuthService(f.users, f.sessions, f.mail, f.clock, cfg)

	hash, err := utils.HashPassword(testPassword, 4)
	require.NoError(t, err)
	f.users.add(model.User{
		ID:           1,
		Email:        testEmail,
		Name:         "Edith Editor",
		Role:         model.RoleAdmin,
		PasswordHash: sql.NullString{String: hash, Valid: true},
		IsActive:     true,
	})
	return f
}

func decodeClaims(t *testing.T, token string) jwt.MapClaims {
	t.Helper()
	tok, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	}, jwt.WithoutClaimsValidation())
	require.NoError(t, err)
	claims, ok := tok.Claims.(jwt.MapClaims)
	require.True(t, ok)
	return claims
}

// ----- login -----

func TestLoginIssuesCorrelatedTokens(t *testing.T) {
	f := setup(t, service.AuthConfig{MaxSessions: 5})

	res, err := f.svc.Login(context.Background(), testEmail, testPassword, "203.0.113.9", testUA)
	require.NoError(t, err)
	require.Len(t, res.RefreshToken, 128)
	require.Equal(t, model.RoleAdmin, res.User.Role)
	require.Contains(t, res.User.Permissions, model.PermUsersRead)

	sessions, err := f.sessions.ListByUser(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, utils.HashRefreshRaw(res.RefreshToken), sessions[0].RefreshTokenHash)
	require.Equal(t, "203.0.113.9", sessions[0].Details.IP)
	require.NotEmpty(t, sessions[0].Details.Browser)

	claims := decodeClaims(t, res.AccessToken)
	require.Equal(t, sessions[0].ID, claims["refreshTokenId"])
	require.Equal(t, float64(1), claims["sub"])
	require.Equal(t, model.RoleAdmin, claims["role"])
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := setup(t, service.AuthConfig{})
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "", testPassword, "", "")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, testEmail, "", "", "")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "nobody@example.com", testPassword, "", "")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, testEmail, "wrong-password", "", "")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestLoginRejectsUnactivatedAccount(t *testing.T) {
	f := setup(t, service.AuthConfig{})
	f.users.add(model.User{ID: 2, Email: "new@example.com", Name: "New", Role: model.RoleUser, IsActive: true})

	_, err := f.svc.Login(context.Background(), "new@example.com", "anything", "", "")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestLoginEvictsOldestSessionAtCap(t *testing.T) {
	f := setup(t, service.AuthConfig{MaxSessions: 2})
	ctx := context.Background()

	var results []*service.LoginResult
	for i := 0; i < 3; i++ {
		res, err := f.svc.Login(ctx, testEmail, testPassword, "203.0.113.9", testUA)
		require.NoError(t, err)
		results = append(results, res)
		f.clock.advance(time.Minute)
	}

	sessions, err := f.sessions.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	// The two most recently created sessions survive; the first is gone.
	firstID := decodeClaims(t, results[0].AccessToken)["refreshTokenId"].(string)
	for _, s := range sessions {
		require.NotEqual(t, firstID, s.ID)
	}
	lastID := decodeClaims(t, results[2].AccessToken)["refreshTokenId"].(string)
	require.Equal(t, lastID, sessions[1].ID)
}

func TestRapidLoginsNeverExceedCap(t *testing.T) {
	f := setup(t, service.AuthConfig{MaxSessions: 3})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := f.svc.Login(ctx, testEmail, testPassword, "", "")
		require.NoError(t, err)
		sessions, err := f.sessions.ListByUser(ctx, 1)
		require.NoError(t, err)
		require.LessOrEqual(t, len(sessions), 3)
		f.clock.advance(time.Second)
	}
}

// ----- renewal -----

func TestRenewWithinGraceWindow(t *testing.T) {
	f := setup(t, service.AuthConfig{RenewExpire: time.Hour})
	ctx := context.Background()

	res, err := f.svc.Login(ctx, testEmail, testPassword, "", "")
	require.NoError(t, err)
	sessionID := decodeClaims(t, res.AccessToken)["refreshTokenId"].(string)

	// The old access token expired 30 minutes ago; still inside the window.
	f.clock.advance(45 * time.Minute)
	oldExp := f.clock.Now().Add(-30 * time.Minute)

	token, err := f.svc.Renew(ctx, 1, model.RoleAdmin, sessionID, oldExp)
	require.NoError(t, err)

	claims := decodeClaims(t, token)
	require.Equal(t, sessionID, claims["refreshTokenId"])

	sess, err := f.sessions.Find(ctx, 1, sessionID)
	require.NoError(t, err)
	require.Equal(t, f.clock.Now(), sess.LastTokenIssuedAt)
}

func TestRenewBeyondGraceWindowFails(t *testing.T) {
	f := setup(t, service.AuthConfig{RenewExpire: time.Hour})
	ctx := context.Background()

	res, err := f.svc.Login(ctx, testEmail, testPassword, "", "")
	require.NoError(t, err)
	sessionID := decodeClaims(t, res.AccessToken)["refreshTokenId"].(string)

	oldExp := f.clock.Now().Add(-2 * time.Hour)
	_, err = f.svc.Renew(ctx, 1, model.RoleAdmin, sessionID, oldExp)
	require.ErrorIs(t, err, service.ErrTokenExpired)
}

func TestRenewUnknownSessionFails(t *testing.T) {
	f := setup(t, service.AuthConfig{})
	_, err := f.svc.Renew(context.Background(), 1, model.RoleAdmin, "no-such-session", f.clock.Now())
	require.ErrorIs(t, err, service.ErrInvalidToken)
}

// ----- logout -----

func TestLogoutRemovesExactlyOneSession(t *testing.T) {
	f := setup(t, service.AuthConfig{MaxSessions: 5})
	ctx := context.Background()

	first, err := f.svc.Login(ctx, testEmail, testPassword, "", "")
	require.NoError(t, err)
	f.clock.advance(time.Minute)
	second, err := f.svc.Login(ctx, testEmail, testPassword, "", "")
	require.NoError(t, err)

	firstID := decodeClaims(t, first.AccessToken)["refreshTokenId"].(string)
	secondID := decodeClaims(t, second.AccessToken)["refreshTokenId"].(string)

	remaining, err := f.svc.Logout(ctx, 1, firstID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, secondID, remaining[0].ID)

	// A second logout for the same session reports no change.
	_, err = f.svc.Logout(ctx, 1, firstID)
	require.ErrorIs(t, err, repository.ErrNoChange)
}

// ----- sweep -----

func TestSweepRemovesOnlyStaleSessionsAcrossUsers(t *testing.T) {
	f := setup(t, service.AuthConfig{RenewExpire: time.Hour})
	ctx := context.Background()
	now := f.clock.Now()

	seed := []model.SessionToken{
		{ID: "stale-1", UserID: 1, LastTokenIssuedAt: now.Add(-3 * time.Hour), CreatedAt: now.Add(-3 * time.Hour)},
		{ID: "fresh-1", UserID: 1, LastTokenIssuedAt: now.Add(-10 * time.Minute), CreatedAt: now.Add(-10 * time.Minute)},
		{ID: "stale-2", UserID: 2, LastTokenIssuedAt: now.Add(-2 * time.Hour), CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "fresh-2", UserID: 2, LastTokenIssuedAt: now, CreatedAt: now},
	}
	for _, s := range seed {
		require.NoError(t, f.sessions.Append(ctx, s, 0))
	}

	removed, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	u1, _ := f.sessions.ListByUser(ctx, 1)
	u2, _ := f.sessions.ListByUser(ctx, 2)
	require.Len(t, u1, 1)
	require.Equal(t, "fresh-1", u1[0].ID)
	require.Len(t, u2, 1)
	require.Equal(t, "fresh-2", u2[0].ID)
}

// ----- password reset -----

func TestResetRequestIssuesTokenAndMail(t *testing.T) {
	f := setup(t, service.AuthConfig{})
	ctx := context.Background()

	require.NoError(t, f.svc.RequestPasswordReset(ctx, testEmail))

	u, err := f.users.GetByID(ctx, 1)
	require.NoError(t, err)
	require.True(t, u.ResetPasswordToken.Valid)

	require.Len(t, f.mail.jobs, 1)
	require.Equal(t, queue.MailPasswordReset, f.mail.jobs[0].Kind)
	require.Equal(t, testEmail, f.mail.jobs[0].To)
	require.Contains(t, f.mail.jobs[0].Link, u.ResetPasswordToken.String)
}

func TestResetRequestUnknownEmail(t *testing.T) {
	f := setup(t, service.AuthConfig{})
	err := f.svc.RequestPasswordReset(context.Background(), "ghost@example.com")
	require.ErrorIs(t, err, service.ErrEmailNotRegistered)
}

func TestSecondResetRequestInvalidatesFirstToken(t *testing.T) {
	f := setup(t, service.AuthConfig{})
	ctx := context.Background()

	require.NoError(t, f.svc.RequestPasswordReset(ctx, testEmail))
	u, _ := f.users.GetByID(ctx, 1)
	firstToken := u.ResetPasswordToken.String

	f.clock.advance(time.Second)
	require.NoError(t, f.svc.RequestPasswordReset(ctx, testEmail))
	u, _ = f.users.GetByID(ctx, 1)
	secondToken := u.ResetPasswordToken.String
	require.NotEqual(t, firstToken, secondToken)

	info, err := f.svc.ValidateResetToken(ctx, firstToken)
	require.NoError(t, err)
	require.False(t, info.IsValid)

	info, err = f.svc.ValidateResetToken(ctx, secondToken)
	require.NoError(t, err)
	require.True(t, info.IsValid)
	require.Equal(t, testEmail, info.Email)
	require.False(t, info.IsNewUser)
}

func TestValidateReportsNewUserForUnactivatedAccount(t *testing.T) {
	f := setup(t, service.AuthConfig{})
	ctx := context.Background()
	f.users.add(model.User{ID: 3, Email: "fresh@example.com", Name: "Fresh", Role: model.RoleUser, IsActive: true})

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "fresh@example.com"))
	u, _ := f.users.GetByID(ctx, 3)

	info, err := f.svc.ValidateResetToken(ctx, u.ResetPasswordToken.String)
	require.NoError(t, err)
	require.True(t, info.IsValid)
	require.True(t, info.IsNewUser)
	require.Equal(t, "Fresh", info.Name)
}

func TestResetPasswordIsSingleUse(t *testing.T) {
	f := setup(t, service.AuthConfig{})
	ctx := context.Background()

	require.NoError(t, f.svc.RequestPasswordReset(ctx, testEmail))
	u, _ := f.users.GetByID(ctx, 1)
	token := u.ResetPasswordToken.String

	require.NoError(t, f.svc.ResetPassword(ctx, token, "brand-new-password"))

	// Token was consumed: validation and a second reset both fail.
	info, err := f.svc.ValidateResetToken(ctx, token)
	require.NoError(t, err)
	require.False(t, info.IsValid)

	err = f.svc.ResetPassword(ctx, token, "another-password")
	require.ErrorIs(t, err, service.ErrResetTokenExpired)

	// Confirmation mail was enqueued after the reset mail.
	require.Len(t, f.mail.jobs, 2)
	require.Equal(t, queue.MailPasswordChanged, f.mail.jobs[1].Kind)

	// The new password works, the old one does not.
	_, err = f.svc.Login(ctx, testEmail, testPassword, "", "")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, testEmail, "brand-new-password", "", "")
	require.NoError(t, err)
}
