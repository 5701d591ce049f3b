// pkg/middleware/scope.go
package middleware

import (
	"context"
	"net/http"

	"tenantdb/pkg/problems"
)

type scopeCtxKey struct{}

// Admin token scopes. Write implies read.
const (
	ScopeTenantsRead  = "tenants:read"
	ScopeTenantsWrite = "tenants:write"
)

var implied = map[string][]string{
	ScopeTenantsWrite: {ScopeTenantsRead},
}

// WithScopes stores the token's granted scopes in ctx.
func WithScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, scopeCtxKey{}, scopes)
}

func ScopesFrom(ctx context.Context) []string {
	s, _ := ctx.Value(scopeCtxKey{}).([]string)
	return s
}

// Granted reports whether ctx carries scope directly or through a scope that implies it.
func Granted(ctx context.Context, scope string) bool {
	for _, s := range ScopesFrom(ctx) {
		if s == scope {
			return true
		}
		for _, i := range implied[s] {
			if i == scope {
				return true
			}
		}
	}
	return false
}

// RequireScope rejects requests whose token (see JWTAuth) was not granted scope.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !Granted(r.Context(), scope) {
				problems.Write(w, problems.Problem{
					Type:   problems.Type(problems.Forbidden),
					Title:  "Insufficient scope",
					Status: http.StatusForbidden,
					Detail: "token lacks " + scope,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
