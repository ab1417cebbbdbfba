package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"kisan-choice-api/internal/models"
)

type principalKey struct{}

// TokenVerifier resolves a bearer token. *auth.Verifier satisfies it.
type TokenVerifier interface {
	Verify(token string) (models.Principal, error)
}

// WithPrincipal returns ctx carrying p.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the authenticated caller stored by Authenticate.
func PrincipalFrom(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(models.Principal)
	return p, ok
}

// Authenticate requires a valid bearer token.
func Authenticate(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				writeFail(w, http.StatusUnauthorized, "You are not logged in. Please log in to get access.")
				return
			}
			p, err := v.Verify(strings.TrimSpace(token))
			if err != nil {
				writeFail(w, http.StatusUnauthorized, "Invalid or expired token. Please log in again.")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole admits only principals holding one of roles.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				writeFail(w, http.StatusUnauthorized, "You are not logged in. Please log in to get access.")
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeFail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		})
	}
}

func writeFail(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.ErrorResponse{Status: "fail", Message: message})
}
