package models

import "time"

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
	RoleUser       Role = "user"
)

// IsPrivileged reports whether the role may use the admin console.
func (r Role) IsPrivileged() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Account is a row of the admin_accounts record store.
type Account struct {
	ID           string
	Email        string
	Name         string
	PasswordHash []byte
	Role         Role
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is the projection of an account handed to callers after
// authentication. It never carries the password hash.
type Identity struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Role        Role       `json:"role"`
	LastLoginAt *time.Time `json:"lastLoginAt"`
}

func (a Account) Identity() Identity {
	return Identity{
		ID:          a.ID,
		Email:       a.Email,
		Name:        a.Name,
		Role:        a.Role,
		LastLoginAt: a.LastLoginAt,
	}
}
