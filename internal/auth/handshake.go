// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openlancer/relay/internal/models"
)

// Handshake errors.
var (
	ErrNoCredentials      = errors.New("no credentials provided")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrExpiredCredentials = errors.New("expired credentials")
)

// Authenticator resolves a request's bearer credential to a user identity.
// It runs once per connection attempt, before any other component sees the
// connection; a failure simply refuses the connection.
type Authenticator interface {
	Authenticate(r *http.Request) (models.UserID, error)
}

// JWTAuthenticator validates HS256 bearer tokens from the Authorization
// header, the "token" query parameter (browser WebSocket clients cannot set
// headers on the upgrade request), or the token cookie.
type JWTAuthenticator struct {
	manager     *Manager
	tokenCookie string
}

// NewJWTAuthenticator creates a JWT-backed authenticator.
func NewJWTAuthenticator(manager *Manager) *JWTAuthenticator {
	return &JWTAuthenticator{manager: manager, tokenCookie: "token"}
}

// Authenticate extracts and validates the credential, returning the user ID.
func (a *JWTAuthenticator) Authenticate(r *http.Request) (models.UserID, error) {
	tokenStr := a.extractToken(r)
	if tokenStr == "" {
		return "", ErrNoCredentials
	}

	claims, err := a.manager.ValidateToken(tokenStr)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredCredentials
		}
		return "", ErrInvalidCredentials
	}
	return models.UserID(claims.Subject), nil
}

func (a *JWTAuthenticator) extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if token := strings.TrimSpace(parts[1]); token != "" {
				return token
			}
		}
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	cookie, err := r.Cookie(a.tokenCookie)
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}
