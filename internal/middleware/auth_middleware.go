package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"dm-go/internal/auth"
)

// contextKey is a private type for context keys set by this package.
type contextKey string

// UserIDKey holds the authenticated user's id in the request context.
const UserIDKey contextKey = "userID"

// ClaimsKey holds the full validated JWT claims in the request context.
const ClaimsKey contextKey = "claims"

// AuthMiddleware validates the Bearer token on every request, rejecting
// revoked tokens through the blacklist, and stores the user identity in the
// request context.
func AuthMiddleware(jwtSecretKey string, blacklist auth.TokenBlacklist) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, "missing authorization token")
				return
			}

			headerParts := strings.Split(authHeader, " ")
			if len(headerParts) != 2 || strings.ToLower(headerParts[0]) != "bearer" {
				writeAuthError(w, "authorization header must be Bearer {token}")
				return
			}

			claims, err := auth.ValidateToken(r.Context(), headerParts[1], jwtSecretKey, blacklist)
			if err != nil {
				writeAuthError(w, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserIDFromContext returns the authenticated user id set by
// AuthMiddleware.
func GetUserIDFromContext(ctx context.Context) (uint, bool) {
	userID, ok := ctx.Value(UserIDKey).(uint)
	return userID, ok
}

// GetClaimsFromContext returns the validated claims set by AuthMiddleware.
func GetClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*auth.Claims)
	return claims, ok
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
