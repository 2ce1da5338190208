// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestManager(t *testing.T, timeout time.Duration) *Manager {
	t.Helper()
	m, err := NewManager(testSecret, timeout)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestNewManagerRejectsShortSecret(t *testing.T) {
	if _, err := NewManager("short", time.Hour); err == nil {
		t.Error("expected error for short secret")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	m := newTestManager(t, time.Hour)

	token, err := m.GenerateToken("user-42", "Ada")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Errorf("subject = %q, want user-42", claims.Subject)
	}
	if claims.Name != "Ada" {
		t.Errorf("name = %q, want Ada", claims.Name)
	}
}

func TestValidateTokenRejections(t *testing.T) {
	m := newTestManager(t, time.Hour)

	t.Run("garbage", func(t *testing.T) {
		if _, err := m.ValidateToken("not.a.token"); err == nil {
			t.Error("expected error for malformed token")
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := newTestManager(t, time.Hour)
		other.secret = []byte("ffffffffffffffffffffffffffffffff")
		token, err := other.GenerateToken("user-1", "")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := m.ValidateToken(token); err == nil {
			t.Error("expected error for token signed with different secret")
		}
	})

	t.Run("expired", func(t *testing.T) {
		short := newTestManager(t, -time.Minute)
		token, err := short.GenerateToken("user-1", "")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := m.ValidateToken(token); err == nil {
			t.Error("expected error for expired token")
		}
	})
}

func TestAuthenticateSources(t *testing.T) {
	m := newTestManager(t, time.Hour)
	a := NewJWTAuthenticator(m)

	token, err := m.GenerateToken("user-7", "")
	if err != nil {
		t.Fatal(err)
	}

	t.Run("authorization header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		uid, err := a.Authenticate(r)
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if uid != "user-7" {
			t.Errorf("user = %q", uid)
		}
	})

	t.Run("query parameter", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws?token="+token, nil)
		uid, err := a.Authenticate(r)
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if uid != "user-7" {
			t.Errorf("user = %q", uid)
		}
	})

	t.Run("cookie", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.AddCookie(&http.Cookie{Name: "token", Value: token})
		uid, err := a.Authenticate(r)
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if uid != "user-7" {
			t.Errorf("user = %q", uid)
		}
	})

	t.Run("missing", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		if _, err := a.Authenticate(r); err != ErrNoCredentials {
			t.Errorf("err = %v, want ErrNoCredentials", err)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Authorization", "Bearer junk")
		if _, err := a.Authenticate(r); err != ErrInvalidCredentials {
			t.Errorf("err = %v, want ErrInvalidCredentials", err)
		}
	})
}
