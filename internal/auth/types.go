package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoSecret           = errors.New("auth enabled but no secret configured")
	ErrWeakSecret         = errors.New("auth secret must be at least 16 bytes")
)

// Roles understood by the control API.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// Actions checked against the caller's roles.
const (
	ActionRead    = "read"
	ActionControl = "control"
)

// Claims represents JWT claims
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Result represents a successful authentication
type Result struct {
	Subject string   `json:"subject"`
	Roles   []string `json:"roles,omitempty"`
}

// Token represents a JWT token
type Token struct {
	Type      string    `json:"type"`  // "Bearer"
	Value     string    `json:"value"` // JWT token string
	ExpiresAt time.Time `json:"expires_at"`
}
