// Package auth handles user accounts, login sessions and the mapping from a
// session to the tabletop Actor that every other plugin authorizes against.
// Accounts live in the users document collection; sessions live in Redis
// when it is configured and in process memory otherwise.
package auth

import (
	"time"

	"github.com/keyxmakerx/tabletop/internal/tabletop"
)

// Stored role names.
const (
	RoleAdmin  = "admin"
	RolePlayer = "player"
)

// User is an account. PasswordHash is persisted with the document so that
// backups restore logins, but it is never included in API responses; use
// Public for those.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"password_hash"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// IsAdmin reports whether the user is the game master.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// PublicUser is the API view of a User.
type PublicUser struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Role        string     `json:"role"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// Public strips credentials.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:          u.ID,
		Username:    u.Username,
		Role:        u.Role,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

// --- Request DTOs ---

// RegisterRequest is the body of POST /api/v1/auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	AdminKey string `json:"admin_key"`
}

// LoginRequest is the body of POST /api/v1/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the session token for clients that cannot use the
// cookie (the table client sends it as a bearer token).
type LoginResponse struct {
	Token string     `json:"token"`
	User  PublicUser `json:"user"`
}

// --- Service Input DTOs ---

// RegisterInput is the validated input for creating an account.
type RegisterInput struct {
	Username string
	Password string
	Role     string
	AdminKey string
}

// LoginInput is the validated input for authenticating.
type LoginInput struct {
	Username string
	Password string
}

// --- Session ---

// Session is an authenticated login, stored JSON-encoded under its token.
type Session struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Actor returns the tabletop identity of the session.
func (s *Session) Actor() tabletop.Actor {
	return tabletop.Actor{
		UserID: s.UserID,
		Name:   s.Username,
		Role:   tabletop.RoleFromString(s.Role),
	}
}

// IsAdmin reports whether the session belongs to the game master.
func (s *Session) IsAdmin() bool {
	return tabletop.CanPublishMap(s.Actor())
}
