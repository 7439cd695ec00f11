// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookieName is the cookie accepted as an alternative to the
// Authorization header.
const SessionCookieName = "gatehouse_session"

// SessionClaims are the JWT claims carried by a session token.
type SessionClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// SessionManager creates and validates HS256 session tokens.
type SessionManager struct {
	secret  []byte
	timeout time.Duration
}

// NewSessionManager builds a manager from the configured secret. The secret
// must be at least 32 characters.
func NewSessionManager(secret string, timeout time.Duration) (*SessionManager, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 characters")
	}
	if timeout <= 0 {
		timeout = 24 * time.Hour
	}
	return &SessionManager{secret: []byte(secret), timeout: timeout}, nil
}

// Generate signs a session token for the user.
func (m *SessionManager) Generate(userID, email string) (string, error) {
	now := time.Now()
	claims := &SessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.timeout)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a session token.
func (m *SessionManager) Validate(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid session claims")
	}
	return claims, nil
}

// SessionAuthenticator verifies signed sessions from the Authorization
// header or the session cookie.
type SessionAuthenticator struct {
	manager *SessionManager
}

// NewSessionAuthenticator creates a session authenticator.
func NewSessionAuthenticator(manager *SessionManager) *SessionAuthenticator {
	return &SessionAuthenticator{manager: manager}
}

// Authenticate extracts and validates the session token.
func (a *SessionAuthenticator) Authenticate(_ context.Context, r *http.Request) (*Identity, error) {
	tokenStr := a.extractToken(r)
	if tokenStr == "" {
		return nil, ErrNoCredentials
	}

	claims, err := a.manager.Validate(tokenStr)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredCredentials
		}
		return nil, ErrInvalidCredentials
	}

	return &Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Method: MethodSession,
	}, nil
}

// Name returns the authenticator name.
func (a *SessionAuthenticator) Name() string {
	return string(MethodSession)
}

// Priority places sessions after service keys in the chain.
func (a *SessionAuthenticator) Priority() int {
	return 20
}

// extractToken reads the bearer token, falling back to the session cookie.
// Bearers carrying the service-key prefix are left for the service-key
// authenticator.
func (a *SessionAuthenticator) extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			token := strings.TrimSpace(parts[1])
			if token != "" && !IsServiceKeyToken(token) {
				return token
			}
		}
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}
