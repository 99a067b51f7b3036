package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/diagnosis/expo-appointments/internal/http/response"
	"github.com/diagnosis/expo-appointments/pkg/auth"
	"github.com/diagnosis/expo-appointments/pkg/logger"
)

type ctxKey string

const CtxClaims ctxKey = "claims"

// RequireIdentity rejects requests without a valid bearer token and stores the claims on the context.
func RequireIdentity(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				response.Unauthenticated(w, "missing bearer token")
				return
			}
			claims, err := auth.Parse(strings.TrimPrefix(authz, "Bearer "), secret)
			if err != nil {
				logger.DebugContext(r.Context(), "rejected token", "error", err)
				response.Unauthenticated(w, "invalid authorization token")
				return
			}
			ctx := context.WithValue(r.Context(), CtxClaims, claims)
			ctx = logger.WithUserID(ctx, claims.Sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Claims returns nil when RequireIdentity did not run.
func Claims(r *http.Request) *auth.Claims {
	v, _ := r.Context().Value(CtxClaims).(*auth.Claims)
	return v
}
