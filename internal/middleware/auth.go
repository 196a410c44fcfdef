package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/estatehub/sentinel/internal/tokens"
)

type contextKey string

const claimsKey = contextKey("claims")

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator interface {
	ValidateAccessToken(token string) (*tokens.Claims, error)
}

// RequireBearer rejects requests without a valid bearer token carrying at
// least one of roles. An empty roles list accepts any valid token.
func RequireBearer(v TokenValidator, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			claims, err := v.ValidateAccessToken(token)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			if len(roles) > 0 && !hasAnyRole(claims.Roles, roles) {
				http.Error(w, "insufficient permissions", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaims returns the claims stored by RequireBearer, or nil.
func GetClaims(ctx context.Context) *tokens.Claims {
	if c, ok := ctx.Value(claimsKey).(*tokens.Claims); ok {
		return c
	}
	return nil
}

func hasAnyRole(have, want []string) bool {
	for _, r := range want {
		if slices.Contains(have, r) {
			return true
		}
	}
	return false
}
