package adminapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tenantdb/pkg/middleware"
)

// Handler builds the HTTP handler with routes and middleware.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID(), chimw.RealIP, chimw.Logger, middleware.Recover(a.log))

	r.Get("/healthz", a.healthz)
	r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	r.Get("/openapi.json", apiDoc().ServeHandler("tenancy-admin", "v1"))

	// Requests scoped to the tenant named by X-Tenant-ID or the subdomain
	r.Group(func(tr chi.Router) {
		tr.Use(middleware.WithSession(a.adapter, a.log))
		tr.Get("/tenant/whoami", a.whoami)
	})

	r.Route("/admin", func(ar chi.Router) {
		ar.Use(middleware.CORS(a.origins))
		ar.Use(middleware.JWTAuth(a.cfg))

		ar.Group(func(rr chi.Router) {
			rr.Use(middleware.RequireScope(middleware.ScopeTenantsRead))
			rr.Get("/tenants", a.listTenants)
			rr.Get("/tenants/{tenant}", a.getTenant)
			// Switch to the tenant, report what is active, reset
			rr.Get("/tenants/{tenant}/probe", a.probeTenant)
		})
		ar.Group(func(rw chi.Router) {
			rw.Use(middleware.RequireScope(middleware.ScopeTenantsWrite))
			rw.Put("/tenants/{tenant}", a.putTenant)
			// Provision database and schema
			rw.Post("/tenants/{tenant}", a.createTenant)
			// ?mode=database|schema overrides the strategy's choice; ?forget=true unregisters it too
			rw.Delete("/tenants/{tenant}", a.dropTenant)
		})
	})

	return r
}
