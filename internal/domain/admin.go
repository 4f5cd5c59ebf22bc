package domain

import "time"

// Admin roles.
const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// IsValidRole reports whether role is an admin role.
func IsValidRole(role string) bool {
	return role == RoleAdmin || role == RoleSuperAdmin
}

// Admin is a back-office user.
type Admin struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Phone        string     `json:"phone,omitempty"`
	Role         string     `json:"role"`
	IsActive     bool       `json:"is_active"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// RefreshToken is a stored refresh credential. Only the SHA-256 of the
// secret is kept.
type RefreshToken struct {
	ID        string    `json:"id" db:"id"`
	AdminID   string    `json:"admin_id" db:"admin_id"`
	TokenHash string    `json:"-" db:"token_hash"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	IsRevoked bool      `json:"is_revoked" db:"is_revoked"`
	LastUsed  time.Time `json:"last_used" db:"last_used"`
	UserAgent string    `json:"user_agent,omitempty" db:"user_agent"`
	IPAddress string    `json:"ip_address,omitempty" db:"ip_address"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IsUsable reports whether the token is unrevoked and unexpired at now.
func (t *RefreshToken) IsUsable(now time.Time) bool {
	return !t.IsRevoked && now.Before(t.ExpiresAt)
}

// TimeRemaining returns how long until expiry, never negative.
func (t *RefreshToken) TimeRemaining(now time.Time) time.Duration {
	if d := t.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// SessionMetadata describes the client a refresh token was issued to.
type SessionMetadata struct {
	UserAgent string
	IPAddress string
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}
