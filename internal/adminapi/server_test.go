package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tenantdb/pkg/config"
	"tenantdb/pkg/db"
	"tenantdb/pkg/db/dbtest"
	"tenantdb/pkg/tenancy"
	"tenantdb/pkg/tenants"
)

func newTestApp(t *testing.T) (http.Handler, *dbtest.Server, tenants.Store) {
	t.Helper()
	ctx := context.Background()
	srv := dbtest.NewServer(tenants.AdapterPostgreSQL, "app")
	def := tenants.Config{Adapter: tenants.AdapterPostgreSQL, Host: "db.internal", Database: "app", SchemaSearchPath: "public", Password: "secret"}
	store := tenants.NewMemoryProvider(nil, "public", def, true)
	reg := db.NewRegistry(nil, false)
	reg.RegisterOpener(tenants.AdapterPostgreSQL, srv.Opener())

	prom := prometheus.NewRegistry()
	a, err := tenancy.New(ctx, tenancy.Options{
		DefaultTenant: "public",
		UseSchemas:    true,
		Provider:      store,
		Registry:      reg,
		Metrics:       tenancy.NewMetrics(prom),
	})
	require.NoError(t, err)
	app := New(zap.NewNop().Sugar(), config.Config{Env: "dev"}, a, store, reg, prom)
	return app.Handler(), srv, store
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestTenantLifecycleOverHTTP(t *testing.T) {
	h, srv, _ := newTestApp(t)

	w := do(h, http.MethodPut, "/admin/tenants/acme", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var registered tenants.Tenant
	require.NoError(t, json.NewDecoder(w.Body).Decode(&registered))
	assert.Equal(t, "acme", registered.Config.SchemaSearchPath)
	assert.Equal(t, "***", registered.Config.Password)

	w = do(h, http.MethodGet, "/admin/tenants/acme/probe", "")
	assert.Equal(t, http.StatusNotFound, w.Code, "registered but not provisioned")

	w = do(h, http.MethodPost, "/admin/tenants/acme", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, srv.HasSchema("app", "acme"))

	w = do(h, http.MethodGet, "/admin/tenants/acme/probe", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var probe probeResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&probe))
	assert.Equal(t, "acme", probe.Tenant)
	assert.Equal(t, "public", probe.After)
	assert.Equal(t, "schema", probe.Strategy)

	w = do(h, http.MethodGet, "/admin/tenants", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"default":"public","tenants":["acme"]}`, w.Body.String())

	w = do(h, http.MethodDelete, "/admin/tenants/acme?forget=true", "")
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	assert.False(t, srv.HasSchema("app", "acme"))

	w = do(h, http.MethodGet, "/admin/tenants/acme", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 0, srv.InUse())
}

func TestDropErrors(t *testing.T) {
	h, _, store := newTestApp(t)
	require.NoError(t, store.Save(context.Background(), "ghost", tenants.Config{Adapter: tenants.AdapterPostgreSQL, Host: "db.internal", Database: "app", SchemaSearchPath: "ghost"}))

	w := do(h, http.MethodDelete, "/admin/tenants/ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "tenant-not-found")

	w = do(h, http.MethodDelete, "/admin/tenants/ghost?mode=table", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(h, http.MethodDelete, "/admin/tenants/public", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPutTenantRejectsUnknownAdapter(t *testing.T) {
	h, _, _ := newTestApp(t)
	w := do(h, http.MethodPut, "/admin/tenants/acme", `{"adapter":"oracle","database":"acme"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthzAndMetrics(t *testing.T) {
	h, _, _ := newTestApp(t)

	w := do(h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"handles":0}`, w.Body.String())

	do(h, http.MethodGet, "/admin/tenants/nope/probe", "")
	w = do(h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `tenancy_switch_failures_total{op="switch"} 1`)
}

func TestWhoami(t *testing.T) {
	h, srv, store := newTestApp(t)
	srv.AddSchema("app", "acme")
	require.NoError(t, store.Save(context.Background(), "acme", tenants.Config{Adapter: tenants.AdapterPostgreSQL, Host: "db.internal", Database: "app", SchemaSearchPath: "acme"}))

	r := httptest.NewRequest(http.MethodGet, "/tenant/whoami", nil)
	r.Host = "acme.tenants.example.com"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"tenant":"acme","database":"app","schema":"acme"}`, w.Body.String())

	r = httptest.NewRequest(http.MethodGet, "/tenant/whoami", nil)
	r.Header.Set("X-Tenant-ID", "nope")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOpenAPI(t *testing.T) {
	h, _, _ := newTestApp(t)
	w := do(h, http.MethodGet, "/openapi.json", "")
	require.Equal(t, http.StatusOK, w.Code)

	var doc struct {
		Paths map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&doc))
	assert.Contains(t, doc.Paths["/admin/tenants/{tenant}"], "delete")
	assert.Contains(t, doc.Paths["/admin/tenants/{tenant}"], "post")
	assert.Contains(t, doc.Paths, "/tenant/whoami")
}
