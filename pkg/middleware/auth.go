// pkg/middleware/auth.go
package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"tenantdb/pkg/config"
)

// Scopes granted to every request when auth is not configured in dev.
var devScopes = []string{ScopeTenantsRead, ScopeTenantsWrite}

// jwksCache caches JWKS sets per URL.
type jwksCache struct {
	mu   sync.RWMutex
	sets map[string]cachedJWKS
}

type cachedJWKS struct {
	set     jwk.Set
	expires time.Time
}

func (c *jwksCache) get(ctx context.Context, url string, ttl time.Duration) (jwk.Set, error) {
	c.mu.RLock()
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		c.mu.RUnlock()
		return e.set, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sets == nil {
		c.sets = map[string]cachedJWKS{}
	}
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		return e.set, nil
	}
	set, err := jwk.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	c.sets[url] = cachedJWKS{set: set, expires: time.Now().Add(ttl)}
	return set, nil
}

// JWTAuth validates admin bearer tokens against the configured JWKS and stores
// their scopes in the request context. Without a JWKS URL, dev requests pass
// through with full scopes.
func JWTAuth(cfg config.Config) func(http.Handler) http.Handler {
	cache := &jwksCache{}
	jwksTTL := 6 * time.Hour
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}
			if cfg.AdminJWKSURL == "" {
				if cfg.Env != "dev" {
					http.Error(w, "auth not configured", http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r.WithContext(WithScopes(r.Context(), devScopes)))
				return
			}

			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				http.Error(w, "missing bearer", http.StatusUnauthorized)
				return
			}
			set, err := cache.get(r.Context(), cfg.AdminJWKSURL, jwksTTL)
			if err != nil {
				http.Error(w, "jwks fetch failed", http.StatusInternalServerError)
				return
			}
			raw := strings.TrimSpace(authz[len("Bearer "):])

			parseOpts := []jwt.ParseOption{jwt.WithKeySet(set), jwt.WithValidate(true), jwt.WithVerify(true)}
			if cfg.AdminIssuer != "" {
				parseOpts = append(parseOpts, jwt.WithIssuer(strings.TrimRight(cfg.AdminIssuer, "/")))
			}
			if cfg.AdminAudience != "" {
				parseOpts = append(parseOpts, jwt.WithAudience(cfg.AdminAudience))
			}
			jt, err := jwt.Parse([]byte(raw), parseOpts...)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithScopes(r.Context(), scopesOf(jt))))
		})
	}
}

func scopesOf(jt jwt.Token) []string {
	var scopes []string
	if sc, ok := jt.Get("scope"); ok {
		if s, _ := sc.(string); s != "" {
			scopes = append(scopes, strings.Fields(s)...)
		}
	}
	return scopes
}
