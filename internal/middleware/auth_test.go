package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Strob0t/LabCore/internal/middleware"
)

const testSecret = "test-secret-key-for-middleware"

func signToken(t *testing.T, secret, issuer, subject string, expires time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth_ValidToken_SetsUser(t *testing.T) {
	v := middleware.NewTokenVerifier(testSecret, "labcore")
	var got string
	handler := middleware.Auth(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = middleware.UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/clients", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "labcore", "user-1", time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got != "user-1" {
		t.Errorf("user = %q, want user-1", got)
	}
}

func TestAuth_Rejections(t *testing.T) {
	v := middleware.NewTokenVerifier(testSecret, "labcore")
	handler := middleware.Auth(v)(okHandler())
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer invalid.token.here"},
		{"wrong secret", "Bearer " + signToken(t, "other-secret", "labcore", "user-1", future)},
		{"wrong issuer", "Bearer " + signToken(t, testSecret, "someone-else", "user-1", future)},
		{"expired", "Bearer " + signToken(t, testSecret, "labcore", "user-1", time.Now().Add(-time.Minute))},
		{"no subject", "Bearer " + signToken(t, testSecret, "labcore", "", future)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/clients", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestAuth_PublicPath_NoAuthRequired(t *testing.T) {
	handler := middleware.Auth(middleware.NewTokenVerifier(testSecret, ""))(okHandler())

	for _, path := range []string{"/health", "/health/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("path %s: status = %d, want 200", path, rec.Code)
		}
	}
}

func TestVerify_ExpiredError(t *testing.T) {
	v := middleware.NewTokenVerifier(testSecret, "")
	_, err := v.Verify(signToken(t, testSecret, "", "user-1", time.Now().Add(-time.Minute)))
	if err != middleware.ErrExpiredToken {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerify_RotatedSecret(t *testing.T) {
	secret := "first-secret"
	v := middleware.NewRotatingTokenVerifier(func() string { return secret }, "")

	old := signToken(t, "first-secret", "", "user-1", time.Now().Add(time.Hour))
	if _, err := v.Verify(old); err != nil {
		t.Fatalf("expected token to verify, got %v", err)
	}

	secret = "second-secret"
	if _, err := v.Verify(old); err != middleware.ErrInvalidToken {
		t.Fatalf("expected old token to be rejected after rotation, got %v", err)
	}
	if _, err := v.Verify(signToken(t, "second-secret", "", "user-1", time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("expected new token to verify, got %v", err)
	}
}

func TestVerify_EmptySecretRejectsEverything(t *testing.T) {
	v := middleware.NewTokenVerifier("", "")
	if _, err := v.Verify(signToken(t, "any-secret", "", "user-1", time.Now().Add(time.Hour))); err != middleware.ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
