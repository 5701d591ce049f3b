// pkg/middleware/recover.go
package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"tenantdb/pkg/problems"
)

// Recover turns a handler panic into a 500 problem. A session bound further down
// is still closed by WithSession's deferred Close.
func Recover(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				fields := []any{"err", rec, "request_id", RequestIDFrom(r.Context()), "path", r.URL.Path}
				if t := TenantOf(r); t != "" {
					fields = append(fields, "tenant", t)
				}
				log.Errorw("panic", append(fields, "stack", string(debug.Stack()))...)
				problems.Write(w, problems.Problem{
					Type:   problems.Type(problems.Internal),
					Title:  "Internal error",
					Status: http.StatusInternalServerError,
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
