package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dm-go/internal/auth"
	"dm-go/internal/config"
)

const testSecret = "test-secret"

type memoryBlacklist struct {
	revoked map[string]bool
}

func (b *memoryBlacklist) Add(ctx context.Context, jti string, _ time.Time) error {
	b.revoked[jti] = true
	return nil
}

func (b *memoryBlacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	return b.revoked[jti], nil
}

func protected(t *testing.T, gotUserID *uint) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetUserIDFromContext(r.Context())
		if !ok {
			t.Error("user id missing from request context")
		}
		if _, ok := GetClaimsFromContext(r.Context()); !ok {
			t.Error("claims missing from request context")
		}
		*gotUserID = userID
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	blacklist := &memoryBlacklist{revoked: make(map[string]bool)}
	token, err := auth.GenerateToken(7, "a@example.com", config.AuthConfig{JWTSecretKey: testSecret, JWTExpiry: time.Hour})
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}

	var gotUserID uint
	handler := AuthMiddleware(testSecret, blacklist)(protected(t, &gotUserID))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/user-info", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotUserID != 7 {
		t.Errorf("context user id = %d, want 7", gotUserID)
	}
}

func TestAuthMiddlewareRejectsBadRequests(t *testing.T) {
	blacklist := &memoryBlacklist{revoked: make(map[string]bool)}
	handler := AuthMiddleware(testSecret, blacklist)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("protected handler reached without a valid token")
	}))

	cases := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not bearer", "Basic abc"},
		{"malformed header", "Bearer"},
		{"garbage token", "Bearer not.a.jwt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/user-info", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestAuthMiddlewareRejectsRevokedToken(t *testing.T) {
	blacklist := &memoryBlacklist{revoked: make(map[string]bool)}
	cfg := config.AuthConfig{JWTSecretKey: testSecret, JWTExpiry: time.Hour}
	token, err := auth.GenerateToken(7, "a@example.com", cfg)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}
	claims, err := auth.ValidateToken(context.Background(), token, testSecret, nil)
	if err != nil {
		t.Fatalf("ValidateToken returned error: %v", err)
	}
	blacklist.revoked[claims.ID] = true

	handler := AuthMiddleware(testSecret, blacklist)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("protected handler reached with a revoked token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/user-info", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
