package adminapi

import (
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"tenantdb/pkg/config"
	"tenantdb/pkg/db"
	"tenantdb/pkg/tenancy"
	"tenantdb/pkg/tenants"
)

// App is the tenancy admin application container.
// Handlers and middleware have methods on this type.
//
// Keep it lean: shared deps and config only. Every request that touches a
// tenant works through its own tenancy.Session.
type App struct {
	log      *zap.SugaredLogger
	cfg      config.Config
	adapter  *tenancy.Adapter
	store    tenants.Store
	registry *db.Registry
	gatherer prometheus.Gatherer
	origins  []string
}

// New constructs App. gatherer backs /metrics; nil uses the default registry.
func New(log *zap.SugaredLogger, cfg config.Config, adapter *tenancy.Adapter, store tenants.Store, registry *db.Registry, gatherer prometheus.Gatherer) *App {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &App{
		log:      log,
		cfg:      cfg,
		adapter:  adapter,
		store:    store,
		registry: registry,
		gatherer: gatherer,
		origins:  corsOrigins(),
	}
}

func corsOrigins() []string {
	allowed := []string{"http://localhost:3001"}
	if v := strings.TrimSpace(os.Getenv("ADMIN_CORS_ORIGINS")); v != "" {
		parts := strings.Split(v, ",")
		tmp := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				tmp = append(tmp, s)
			}
		}
		if len(tmp) > 0 {
			allowed = tmp
		}
	}
	return allowed
}
