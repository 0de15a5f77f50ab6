package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/viviendahub/go-viviendahub/pkg/errors"
	"github.com/viviendahub/go-viviendahub/pkg/userdir"
)

// Authentication resolves the Authorization bearer token against the user
// directory and attaches the account to the request context. Requests without
// a valid token are rejected with 401.
func Authentication(directory userdir.Directory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				WriteJSON(w, http.StatusUnauthorized, errors.ServiceError{
					Code:    errors.CodePermissionDenied,
					Message: "a bearer token is required",
				})
				return
			}

			user, err := directory.Authenticate(r.Context(), token)
			if err != nil {
				if err != userdir.ErrUnauthorized {
					log.Ctx(r.Context()).Warn().Err(err).Msg("authenticating request")
				}
				w.Header().Set("WWW-Authenticate", "Bearer")
				WriteJSON(w, http.StatusUnauthorized, errors.ServiceError{
					Code:    errors.CodePermissionDenied,
					Message: "the bearer token is not valid",
				})
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUser, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects authenticated requests whose account holds none of the
// given roles. It must run after Authentication.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				WriteError(w, errors.PermissionDenied("authentication is required"))
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			WriteError(w, errors.PermissionDenied("the %s role cannot access this resource", user.Role))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
