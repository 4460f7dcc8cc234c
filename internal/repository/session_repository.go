package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/meridianpress/editorial-backend/internal/model"
)

// SessionRepo persists per-device sessions in the 'session_tokens' table.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

const sessionColumns = "id,user_id,refresh_token_hash,created_at,last_token_issued_at,ip,device,os,browser"

// Append inserts a new session row for the user. When maxSessions > 0 and
// the user is already at the cap, the oldest rows by created_at are evicted
// first. Count and insert run in one transaction so concurrent logins can
// momentarily overshoot only by as much as the isolation level allows; no
// cross-request lock is taken beyond the row locks of the SELECT ... FOR
// UPDATE.
func (r *SessionRepo) Append(ctx context.Context, s model.SessionToken, maxSessions int) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if maxSessions > 0 {
		var cnt int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM session_tokens WHERE user_id=? FOR UPDATE",
			s.UserID).Scan(&cnt); err != nil {
			return err
		}
		if over := cnt - maxSessions + 1; over > 0 {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM session_tokens WHERE user_id=? ORDER BY created_at ASC LIMIT ?",
				s.UserID, over); err != nil {
				return err
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO session_tokens ("+sessionColumns+") VALUES (?,?,?,?,?,?,?,?,?)",
		s.ID, s.UserID, s.RefreshTokenHash, s.CreatedAt, s.LastTokenIssuedAt,
		s.Details.IP, s.Details.Device, s.Details.OS, s.Details.Browser); err != nil {
		return err
	}
	return tx.Commit()
}

// Find returns the session with the given id belonging to the given user.
func (r *SessionRepo) Find(ctx context.Context, userID uint64, id string) (model.SessionToken, error) {
	var s model.SessionToken
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM session_tokens WHERE user_id=? AND id=? LIMIT 1",
		userID, id).Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &s.CreatedAt,
		&s.LastTokenIssuedAt, &s.Details.IP, &s.Details.Device, &s.Details.OS, &s.Details.Browser)
	return s, err
}

// Touch records that a fresh access token was minted for this session.
func (r *SessionRepo) Touch(ctx context.Context, id string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE session_tokens SET last_token_issued_at=? WHERE id=?", at, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Remove deletes exactly one session; other sessions of the same user are
// untouched. Returns ErrNoChange when the row was already gone.
func (r *SessionRepo) Remove(ctx context.Context, userID uint64, id string) error {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM session_tokens WHERE user_id=? AND id=?", userID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoChange
	}
	return nil
}

// ListByUser returns the user's sessions ordered oldest first.
func (r *SessionRepo) ListByUser(ctx context.Context, userID uint64) ([]model.SessionToken, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM session_tokens WHERE user_id=? ORDER BY created_at ASC",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SessionToken
	for rows.Next() {
		var s model.SessionToken
		if err := rows.Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &s.CreatedAt,
			&s.LastTokenIssuedAt, &s.Details.IP, &s.Details.Device, &s.Details.OS, &s.Details.Browser); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteStale removes every session, across all users, whose last access
// token was issued before the cutoff. One statement, atomic per row at the
// storage layer.
func (r *SessionRepo) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM session_tokens WHERE last_token_issued_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
