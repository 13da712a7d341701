package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/taskdeck/apiserver/internal/services"
	"github.com/taskdeck/apiserver/types"
)

type contextKey string

const contextPrincipalKey contextKey = "principal"

// Principal is the authenticated identity attached to a request: the
// resolved user plus the exact token that proved it, so logout can
// revoke that one session.
type Principal struct {
	User  types.User
	Token string
}

// RequireAuth resolves the bearer token into a Principal and injects it
// into the request context. Any failure halts the pipeline with 401.
func RequireAuth(auth *services.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			user, err := auth.Validate(r.Context(), tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			principal := Principal{User: user, Token: tokenString}
			ctx := context.WithValue(r.Context(), contextPrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func principalFromContext(ctx context.Context) (Principal, error) {
	principal, ok := ctx.Value(contextPrincipalKey).(Principal)
	if !ok || principal.User.ID < 1 {
		return Principal{}, errors.New("missing principal")
	}
	return principal, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
