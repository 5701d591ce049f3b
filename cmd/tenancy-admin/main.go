// cmd/tenancy-admin/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tenantdb/internal/adminapi"
	"tenantdb/pkg/config"
	"tenantdb/pkg/db"
	"tenantdb/pkg/logger"
	"tenantdb/pkg/middleware"
	"tenantdb/pkg/tenancy"
	"tenantdb/pkg/tenants"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env, "tenancy-admin")
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	def, err := db.ConfigFromURL(cfg.DatabaseURL)
	if err != nil {
		log.Fatalw("default tenant", "err", err)
	}

	var store tenants.Store
	if pool := db.MustConnect(cfg, log); pool != nil {
		store = tenants.NewPostgresProvider(pool, logger.Named(log, "provider"), cfg.DefaultTenant, def)
		if err := tenants.EnsureSchema(ctx, pool); err != nil {
			log.Fatalw("schema", "err", err)
		}
		if err := tenants.SeedFromEnv(ctx, store, def, cfg.TenantSeedJSON, cfg.UseSchemas); err != nil {
			log.Warnw("seed", "err", err)
		}
	} else {
		store = tenants.NewMemoryProvider(logger.Named(log, "provider"), cfg.DefaultTenant, def, cfg.UseSchemas)
		if err := tenants.Seed(store, cfg.TenantSeedJSON, cfg.TenantsFile); err != nil {
			log.Fatalw("seed", "err", err)
		}
	}
	store = tenants.NewCachedProvider(store, db.MustRedis(cfg, log), cfg.CacheTTL, logger.Named(log, "cache"))

	registry := db.NewRegistry(logger.Named(log, "registry"), cfg.PoolPerConfig)
	defer registry.Close()

	tenancy.RegisterRegistry(prometheus.DefaultRegisterer, registry)
	adapter, err := tenancy.New(ctx, tenancy.Options{
		DefaultTenant: cfg.DefaultTenant,
		UseSchemas:    cfg.UseSchemas,
		Provider:      store,
		Registry:      registry,
		Log:           logger.Named(log, "tenancy"),
		Metrics:       tenancy.NewMetrics(prometheus.DefaultRegisterer),
	})
	cancel()
	if err != nil {
		log.Fatalw("tenancy", "err", err)
	}
	log.Infow("tenancy ready",
		"default", adapter.DefaultTenant(),
		"strategy", adapter.Strategy().Name(),
		"dialect", adapter.Dialect().Name())

	app := adminapi.New(log, cfg, adapter, store, registry, prometheus.DefaultGatherer)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: middleware.Tracing("tenancy-admin", log)(app.Handler())}
	go func() {
		log.Infow("tenancy-admin listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = middleware.ShutdownTracing(shutdownCtx)
	fmt.Println("tenancy-admin stopped")
}
