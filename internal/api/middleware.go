package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/MimoJanra/SSOPulse/internal/auth"
)

type contextKey string

const userContextKey contextKey = "authenticated-user"

func userFrom(ctx context.Context) (auth.UserDetails, bool) {
	user, ok := ctx.Value(userContextKey).(auth.UserDetails)
	return user, ok
}

// requireAuth authenticates the request's SSO token against the identity
// service and, when requiredRoles is non-empty, enforces role membership.
// The resolved identity is stored on the request context.
func (s *Server) requireAuth(requiredRoles []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := s.auth.ExtractToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			user, err := s.auth.Authenticate(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrMissingToken):
					writeError(w, http.StatusUnauthorized, "authentication required")
				case errors.Is(err, auth.ErrRejected), errors.Is(err, auth.ErrMissingIdentity):
					writeError(w, http.StatusForbidden, "token rejected")
				default:
					writeError(w, http.StatusBadGateway, "identity service unavailable")
				}
				return
			}

			if !auth.HasPrivileges(user, requiredRoles) {
				s.log.Warnf("User '%s' lacks required roles %v", user.Username, requiredRoles)
				writeError(w, http.StatusForbidden, "insufficient privileges")
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
