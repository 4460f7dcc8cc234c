package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/meridianpress/editorial-backend/internal/model"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,email,name,phone,role,password_hash,reset_password_token,is_active,created_at,updated_at"

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.Role,
		&u.PasswordHash, &u.ResetPasswordToken, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// Create inserts a user without a password; the account is activated later
// through the reset flow. Returns the new user's id.
func (r *UserRepo) Create(ctx context.Context, email, name, phone, role string) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, name, phone, role, is_active) VALUES (?,?,?,?,1)",
		email, name, phone, role)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetActiveByEmail fetches an active user by normalized email.
func (r *UserRepo) GetActiveByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? AND is_active=1 LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// GetByResetToken fetches the user whose stored reset token equals the
// given one. Only the latest issued token matches; older ones were
// overwritten and no longer resolve.
func (r *UserRepo) GetByResetToken(ctx context.Context, token string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE reset_password_token=? LIMIT 1", token))
}

// SetResetToken overwrites the user's reset token, invalidating any
// previously issued one.
func (r *UserRepo) SetResetToken(ctx context.Context, id uint64, token string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET reset_password_token=? WHERE id=?", token, id)
	return err
}

// SetPassword stores a new password hash and clears the reset token in the
// same statement, which is what makes a reset token single-use.
func (r *UserRepo) SetPassword(ctx context.Context, id uint64, hash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=?, reset_password_token=NULL WHERE id=?", hash, id)
	return err
}

// UpdateProfile updates the user's own editable fields. A nil hash leaves
// the password untouched.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, name string, hash *string) error {
	if hash != nil {
		_, err := r.DB.ExecContext(ctx,
			"UPDATE users SET name=?, password_hash=? WHERE id=?", name, *hash, id)
		return err
	}
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET name=? WHERE id=?", name, id)
	return err
}

// List returns all users ordered by creation time.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY created_at ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.Role,
			&u.PasswordHash, &u.ResetPasswordToken, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UpdateAdmin applies the admin-editable fields. Nil pointers are skipped.
func (r *UserRepo) UpdateAdmin(ctx context.Context, id uint64, name, phone, role *string, active *bool) error {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if name != nil {
		sets = append(sets, "name=?")
		args = append(args, *name)
	}
	if phone != nil {
		sets = append(sets, "phone=?")
		args = append(args, *phone)
	}
	if role != nil {
		sets = append(sets, "role=?")
		args = append(args, *role)
	}
	if active != nil {
		sets = append(sets, "is_active=?")
		args = append(args, *active)
	}
	if len(sets) == 0 {
		return ErrNoChange
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id=?", args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoChange
	}
	return nil
}

// Deactivate soft-deletes a user.
func (r *UserRepo) Deactivate(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_active=0 WHERE id=? AND is_active=1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoChange
	}
	return nil
}
