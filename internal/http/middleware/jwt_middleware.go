package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Virang41/visiting/internal/http/response"
	"github.com/Virang41/visiting/internal/platform/auth"
)

type ctxKey string

const CtxClaims ctxKey = "claims"

// RequireJWT admits requests carrying a bearer access token signed with the
// given secret. Reset-purpose tokens are rejected here; they only work on
// the password-reset endpoint.
func RequireJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				response.Unauthorized(w, "missing or invalid authorization header")
				return
			}
			claims, err := auth.Parse(strings.TrimPrefix(authz, "Bearer "), secret)
			if err != nil {
				response.Unauthorized(w, "invalid authorization token")
				return
			}
			if claims.Purpose != auth.PurposeAccess {
				response.Unauthorized(w, "token not valid for API access")
				return
			}
			ctx := context.WithValue(r.Context(), CtxClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a subtree to the listed roles. Must sit inside
// RequireJWT.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := Claims(r)
			if claims == nil {
				response.Unauthorized(w, "authentication required")
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				response.Forbidden(w, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func Claims(r *http.Request) *auth.Claims {
	v := r.Context().Value(CtxClaims)
	if v == nil {
		return nil
	}
	return v.(*auth.Claims)
}
