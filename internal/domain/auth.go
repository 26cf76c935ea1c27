package domain

import (
	"strings"
	"time"
)

const (
	RoleApp   = "APP"
	RoleAdmin = "ADMIN"
)

// AuthClaims represents validated JWT claims
type AuthClaims struct {
	Subject   string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IsAdmin reports whether the caller may operate on the queue
func (c *AuthClaims) IsAdmin() bool {
	return strings.EqualFold(c.Role, RoleAdmin)
}

// NormalizeRole maps arbitrary role input onto the known roles
func NormalizeRole(role string) string {
	switch strings.ToUpper(strings.TrimSpace(role)) {
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleApp
	}
}

// AuthService issues and validates API bearer tokens
type AuthService interface {
	GenerateAccessToken(subject, role string) (string, error)
	ValidateToken(token string) (*AuthClaims, error)
}
