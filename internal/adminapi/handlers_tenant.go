package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tenantdb/pkg/middleware"
	"tenantdb/pkg/tenancy"
	"tenantdb/pkg/tenants"
)

type probeResult struct {
	Tenant   string         `json:"tenant"`
	Config   tenants.Config `json:"config"`
	Strategy string         `json:"strategy"`
	After    string         `json:"after"`
}

func (a *App) healthz(w http.ResponseWriter, r *http.Request) {
	if err := a.registry.Ping(r.Context()); err != nil {
		a.log.Warnw("healthz", "err", err)
		writeJSON(w, map[string]any{"ok": false, "error": err.Error()}, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "handles": a.registry.Len()}, http.StatusOK)
}

func (a *App) whoami(w http.ResponseWriter, r *http.Request) {
	s := tenancy.FromContext(r.Context())
	cfg := s.Config()
	writeJSON(w, map[string]any{
		"tenant":   s.Current(),
		"database": cfg.Database,
		"schema":   cfg.FirstSchema(),
	}, http.StatusOK)
}

func (a *App) listTenants(w http.ResponseWriter, r *http.Request) {
	names, err := a.store.List(r.Context())
	if err != nil {
		a.log.Errorw("list tenants", "err", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"default": a.adapter.DefaultTenant(), "tenants": names}, http.StatusOK)
}

func (a *App) getTenant(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	cfg, err := a.store.ConfigFor(r.Context(), tenant)
	if err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			middleware.WriteTenantError(w, tenant, &tenancy.TenantNotFoundError{Tenant: tenant, Reason: "unknown tenant", Missing: true, Cause: err})
			return
		}
		a.log.Errorw("get tenant", "tenant", tenant, "err", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, tenants.Tenant{Name: tenant, Config: redacted(cfg)}, http.StatusOK)
}

// putTenant registers or replaces a tenant's config. An empty body derives it from the default tenant.
func (a *App) putTenant(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	if tenant == a.adapter.DefaultTenant() {
		badRequest(w, "the default tenant is configured by DATABASE_URL")
		return
	}
	var cfg tenants.Config
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			badRequest(w, "bad json")
			return
		}
	}
	if cfg == (tenants.Config{}) {
		def, _ := a.adapter.Provider().ConfigFor(r.Context(), a.adapter.DefaultTenant())
		cfg = tenants.Derive(def, tenant, a.adapter.Strategy().UsesSchemas())
	} else if cfg.Adapter == "" {
		cfg.Adapter = a.adapter.Dialect().Name()
	}
	if _, err := tenancy.DialectFor(cfg.Adapter); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := a.store.Save(r.Context(), tenant, cfg); err != nil {
		a.log.Errorw("save tenant", "tenant", tenant, "err", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	a.log.Infow("tenant registered", "tenant", tenant, "database", cfg.Database, "schema", cfg.FirstSchema())
	writeJSON(w, tenants.Tenant{Name: tenant, Config: redacted(cfg)}, http.StatusOK)
}

func (a *App) createTenant(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	s := a.adapter.NewSession()
	defer s.Close(r.Context())

	if err := s.CreateTenant(r.Context(), tenant); err != nil {
		a.log.Warnw("create tenant", "tenant", tenant, "request_id", middleware.RequestIDFrom(r.Context()), "err", err)
		middleware.WriteTenantError(w, tenant, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "tenant": tenant}, http.StatusCreated)
}

func (a *App) dropTenant(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	if tenant == a.adapter.DefaultTenant() {
		badRequest(w, "the default tenant cannot be dropped")
		return
	}
	s := a.adapter.NewSession()
	defer s.Close(r.Context())

	var drop func(context.Context, string) error
	switch mode := r.URL.Query().Get("mode"); mode {
	case "":
		drop = s.Drop
	case "database":
		drop = s.DropDatabase
	case "schema":
		drop = s.DropSchema
	default:
		badRequest(w, "mode must be database or schema")
		return
	}
	if err := drop(r.Context(), tenant); err != nil {
		a.log.Warnw("drop tenant", "tenant", tenant, "request_id", middleware.RequestIDFrom(r.Context()), "err", err)
		middleware.WriteTenantError(w, tenant, err)
		return
	}
	if r.URL.Query().Get("forget") == "true" {
		if err := a.store.Remove(r.Context(), tenant); err != nil {
			a.log.Errorw("remove tenant", "tenant", tenant, "err", err)
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) probeTenant(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	s := a.adapter.NewSession()
	defer s.Close(r.Context())

	out := probeResult{Strategy: a.adapter.Strategy().Name()}
	err := s.Within(r.Context(), tenant, func(ctx context.Context) error {
		out.Tenant, out.Config = s.Current(), redacted(s.Config())
		conn, err := s.Conn(ctx)
		if err != nil {
			return err
		}
		return conn.Exec(ctx, "SELECT 1")
	})
	if err != nil {
		middleware.WriteTenantError(w, tenant, err)
		return
	}
	out.After = s.Current()
	writeJSON(w, out, http.StatusOK)
}
