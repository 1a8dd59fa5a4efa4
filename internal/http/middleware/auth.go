package middleware

import (
	"context"
	"net/http"
	"strings"

	"vendsim/internal/auth"
)

type contextKey string

const roleKey contextKey = "role"

// AuthMiddleware validates operator JWTs on administrative routes.
func AuthMiddleware(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}

			claims, err := tokens.ValidateToken(strings.TrimSpace(parts[1]))
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if claims.Role != auth.RoleOperator {
				http.Error(w, "operator role required", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), roleKey, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RoleFromContext retrieves the authenticated role from request context.
func RoleFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(roleKey)
	if val == nil {
		return "", false
	}
	role, ok := val.(string)
	return role, ok
}
