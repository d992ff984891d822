/**
 * @description
 * Authentication middleware for the catalog-service.
 */
package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/mehedi-4/LMS/catalog-service/internal/app"
)

type contextKey string

// UserIDContextKey is the key used to store the authenticated user ID.
const UserIDContextKey = contextKey("userID")

// TokenParser verifies access tokens.
type TokenParser interface {
	Parse(token string) (*app.Claims, error)
}

func unauthorized(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnauthorized, errorResponse{Success: false, Message: message, Code: "unauthorized"})
}

// RoleAuthMiddleware validates a bearer token for the given role and injects the user ID.
func RoleAuthMiddleware(tokens TokenParser, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "Authorization header required")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				unauthorized(w, "Invalid Authorization header format")
				return
			}

			claims, err := tokens.Parse(tokenString)
			if err != nil {
				unauthorized(w, "Invalid token")
				return
			}
			if claims.Role != role {
				writeJSON(w, http.StatusForbidden, errorResponse{Success: false, Message: "Forbidden", Code: "forbidden"})
				return
			}

			userID, err := claims.UserID()
			if err != nil {
				unauthorized(w, "Invalid token subject")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InternalAuthMiddleware validates the internal API key for server-to-server calls.
func InternalAuthMiddleware(requiredKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-Internal-API-Key")
			if requiredKey == "" || provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(requiredKey)) != 1 {
				unauthorized(w, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext retrieves the authenticated user ID from the request context.
func UserFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(UserIDContextKey).(int64)
	return userID, ok
}
