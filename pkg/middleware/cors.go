// pkg/middleware/cors.go
package middleware

import (
	"net/http"
	"strings"
)

// CORS lets the listed origins ("*" for any) call the admin API from a browser.
// Preflight requests from an allowed origin are answered here.
func CORS(allowed []string) func(http.Handler) http.Handler {
	origins := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		if a = strings.TrimSpace(a); a != "" {
			origins[a] = struct{}{}
		}
	}
	_, wildcard := origins["*"]
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if _, ok := origins[origin]; origin != "" && (ok || wildcard) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Methods", "GET, PUT, POST, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+TenantHeader+", X-Request-Id")
				h.Set("Access-Control-Expose-Headers", "X-Request-Id")
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
