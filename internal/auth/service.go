// Package auth issues and verifies bearer tokens for the control API.
package auth

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/loykin/hotkeyd/internal/config"
)

const issuer = "hotkeyd"

// Service signs tokens with a shared HMAC secret.
type Service struct {
	secret   []byte
	tokenTTL time.Duration
}

// NewService creates a token service from the server auth settings.
func NewService(c config.AuthConfig) (*Service, error) {
	if c.Secret == "" {
		return nil, ErrNoSecret
	}
	if len(c.Secret) < 16 {
		return nil, ErrWeakSecret
	}
	ttl := c.TokenTTL
	if ttl <= 0 {
		ttl = config.DefaultTokenTTL
	}
	return &Service{secret: []byte(c.Secret), tokenTTL: ttl}, nil
}

// Issue signs a token for subject. A zero ttl uses the configured default.
func (s *Service) Issue(subject string, roles []string, ttl time.Duration) (*Token, error) {
	if ttl <= 0 {
		ttl = s.tokenTTL
	}
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Token{
		Type:      "Bearer",
		Value:     tokenString,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify validates signature, issuer and expiry.
func (s *Service) Verify(tokenString string) (*Result, error) {
	if tokenString == "" {
		return nil, ErrInvalidCredentials
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidCredentials
	}
	return &Result{Subject: claims.Subject, Roles: claims.Roles}, nil
}

// HasPermission reports whether any of roles grants action.
func HasPermission(roles []string, action string) bool {
	rolePermissions := map[string][]string{
		RoleAdmin:    {ActionRead, ActionControl},
		RoleOperator: {ActionRead, ActionControl},
		RoleViewer:   {ActionRead},
	}
	for _, role := range roles {
		if slices.Contains(rolePermissions[role], action) {
			return true
		}
	}
	return false
}
