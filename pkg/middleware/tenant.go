// pkg/middleware/tenant.go
package middleware

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"tenantdb/pkg/problems"
	"tenantdb/pkg/tenancy"
)

// TenantHeader names the tenant a request runs against; the host's first label is the fallback.
const TenantHeader = "X-Tenant-ID"

// WithSession binds a tenancy session to each request, switched to the request's
// tenant. The session is reset and its connection released when the request ends.
func WithSession(a *tenancy.Adapter, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Allow health/metrics without tenant context
			switch r.URL.Path {
			case "/healthz", "/metrics":
				next.ServeHTTP(w, r)
				return
			}
			s := a.NewSession()
			defer s.Close(r.Context())

			tenant := TenantOf(r)
			if err := s.Switch(r.Context(), tenant); err != nil {
				log.Warnw("tenant switch", "tenant", tenant, "request_id", RequestIDFrom(r.Context()), "err", err)
				WriteTenantError(w, tenant, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(tenancy.NewContext(r.Context(), s)))
		})
	}
}

// TenantOf names the tenant of r: the X-Tenant-ID header, else the first label
// of a host name with a subdomain. Empty means the default tenant.
func TenantOf(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get(TenantHeader)); t != "" {
		return t
	}
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" || host == "localhost" || net.ParseIP(host) != nil {
		return ""
	}
	labels := strings.Split(host, ".")
	if len(labels) < 3 || labels[0] == "www" {
		return ""
	}
	return labels[0]
}

// WriteTenantError maps tenancy errors to problem responses.
func WriteTenantError(w http.ResponseWriter, tenant string, err error) {
	p := problems.Problem{Tenant: tenant, Detail: err.Error()}
	switch {
	case errors.Is(err, tenancy.ErrDatabaseNotFound):
		p.Type, p.Title, p.Status = problems.Type(problems.DatabaseNotFound), "Database not found", http.StatusNotFound
	case errors.Is(err, tenancy.ErrTenantNotFound):
		p.Type, p.Title, p.Status = problems.Type(problems.TenantNotFound), "Tenant not found", http.StatusNotFound
	default:
		p.Type, p.Title, p.Status = problems.Type(problems.Internal), "Tenant operation failed", http.StatusInternalServerError
	}
	problems.Write(w, p)
}
