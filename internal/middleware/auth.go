// Package middleware provides HTTP middleware components for the checkout API server.
package middleware

import (
	"io"
	"net/http"
	"strings"

	"github.com/gatherly-app/gatherly/internal/auth"
)

// Authenticator validates a bearer token and returns its claims.
type Authenticator interface {
	ValidateToken(tokenString string) (*auth.Claims, error)
}

// writeAuthError writes a JSON 401 response and records the error code for
// the logging middleware.
func writeAuthError(w http.ResponseWriter, r *http.Request, message string) {
	ctx := SetErrorCode(r.Context(), "auth_failed")
	UpdateResponseContext(w, ctx)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	io.WriteString(w, `{"error":{"code":"auth_failed","message":"`+message+`"}}`)
}

// RequireAuth returns middleware that rejects requests without a valid
// Bearer access token. On success the user ID from the token's subject is
// stored in the request context for handlers and the request log.
func RequireAuth(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeAuthError(w, r, "Authorization header is required")
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeAuthError(w, r, "Authorization header must be a Bearer token")
				return
			}

			claims, err := authenticator.ValidateToken(token)
			if err != nil {
				if err == auth.ErrExpiredToken {
					writeAuthError(w, r, "Token has expired")
					return
				}
				writeAuthError(w, r, "Invalid token")
				return
			}

			if claims.Type != auth.TokenTypeAccess {
				writeAuthError(w, r, "Access token required")
				return
			}

			ctx := SetUserID(r.Context(), claims.UserID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
