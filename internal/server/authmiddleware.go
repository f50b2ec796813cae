package server

import (
	"context"
	"net/http"

	"github.com/tjfontaine/helpdesk-gateway/internal/auth"
	"github.com/tjfontaine/helpdesk-gateway/internal/core/ports"
)

type authContextKey struct{}

// AuthMiddleware validates the front-end API key from the Authorization
// header (Bearer format) and stores the caller in the request context.
func AuthMiddleware(authenticator ports.AuthProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey, err := auth.ExtractAPIKey(r)
			if err != nil {
				AddError(r.Context(), err)
				WriteError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}

			ac, err := authenticator.Authenticate(r.Context(), apiKey)
			if err != nil {
				AddError(r.Context(), err)
				WriteError(w, http.StatusUnauthorized, "unauthorized", "Invalid API key")
				return
			}

			AddLogField(r.Context(), "api_key_id", ac.KeyID)
			ctx := context.WithValue(r.Context(), authContextKey{}, ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAuth retrieves the authenticated caller from context.
// Returns nil if the request was not authenticated.
func GetAuth(ctx context.Context) *ports.AuthContext {
	if ac, ok := ctx.Value(authContextKey{}).(*ports.AuthContext); ok {
		return ac
	}
	return nil
}
