package model

import (
	"database/sql"
	"time"
)

// Role values stored in the users.role column and carried in JWT claims.
const (
	RoleSuperAdmin = "super-admin"
	RoleAdmin      = "admin"
	RoleUser       = "user"
)

// ValidRole reports whether s is one of the known role values.
func ValidRole(s string) bool {
	return s == RoleSuperAdmin || s == RoleAdmin || s == RoleUser
}

// User mirrors the 'users' table. Emails are stored lower-cased and unique.
// PasswordHash is NULL for accounts that were provisioned by an admin but
// never activated; such users set their first password through the reset flow.
type User struct {
	ID                 uint64
	Email              string
	Name               string
	Phone              string
	Role               string
	PasswordHash       sql.NullString
	ResetPasswordToken sql.NullString
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Profile is the read-model returned to clients: no credential material.
type Profile struct {
	ID          uint64   `json:"id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Phone       string   `json:"phone"`
	Role        string   `json:"role"`
	IsActive    bool     `json:"isActive"`
	Permissions []string `json:"permissions"`
}

// ProfileOf builds the client-facing view of a user, decorated with the
// permission list for its role.
func ProfileOf(u User) Profile {
	return Profile{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Phone:       u.Phone,
		Role:        u.Role,
		IsActive:    u.IsActive,
		Permissions: PermissionsFor(u.Role),
	}
}
