package tenancy

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tenantdb/pkg/db"
	"tenantdb/pkg/tenants"
)

// GenericLifecycle holds the lifecycle operations that only need engine SQL,
// shared by every adapter type.
type GenericLifecycle struct {
	dialect  Dialect
	registry *db.Registry
}

// DropDatabase drops the database of cfg. The statement runs on a maintenance
// connection to the same server, since a database cannot be dropped from inside itself.
func (g GenericLifecycle) DropDatabase(ctx context.Context, tenant string, cfg tenants.Config) error {
	if cfg.Database == "" {
		return &TenantNotFoundError{Tenant: tenant, Reason: "no database configured", Missing: true}
	}
	// the tenant's own handle keeps connections open on the database
	g.registry.Invalidate(g.registry.SpecName(cfg))

	pool, _, err := g.registry.Establish(ctx, cfg.Without(tenants.KeyDatabase, tenants.KeySchemaSearchPath))
	if err != nil {
		return &TenantNotFoundError{Tenant: tenant, Reason: "could not reach the tenant's server", Cause: err}
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return &TenantNotFoundError{Tenant: tenant, Reason: "could not reach the tenant's server", Cause: err}
	}
	defer conn.Release()

	if err := conn.Exec(ctx, g.dialect.DropDatabaseSQL(cfg.Database)); err != nil {
		return &TenantNotFoundError{
			Tenant:  tenant,
			Reason:  "the tenant database could not be dropped",
			Missing: g.dialect.IsNotFound(err),
			Cause:   err,
		}
	}
	return nil
}

// CreateTenant provisions the database and first schema of tenant if they do not
// exist yet. On success the session ends on the new tenant's connection. Engine
// errors are returned as is and the session is rolled back to the tenant it was on.
func (s *Session) CreateTenant(ctx context.Context, tenant string) error {
	cfg, err := s.a.provider.ConfigFor(ctx, tenant)
	if err != nil {
		return &TenantNotFoundError{Tenant: tenant, Reason: "unknown tenant", Missing: errors.Is(err, tenants.ErrNotFound), Cause: err}
	}
	err = s.provision(ctx, tenant, cfg)
	s.a.metrics.lifecycle("create", err)
	return err
}

// CreateConfig provisions an explicit configuration not registered with the provider.
// On success the session's current tenant becomes the configured database name.
func (s *Session) CreateConfig(ctx context.Context, cfg tenants.Config) error {
	err := s.provision(ctx, cfg.Database, cfg)
	s.a.metrics.lifecycle("create", err)
	return err
}

// provision walks the session through the maintenance, database and scope steps.
// current only changes once every step succeeded.
func (s *Session) provision(ctx context.Context, name string, cfg tenants.Config) (err error) {
	ctx, span := s.a.tracer.Start(ctx, "tenancy.Create", trace.WithAttributes(attribute.String("tenant", name)))
	defer span.End()
	d := s.a.dialect

	previous, previousCfg, held := s.current, s.cfg, s.conn != nil
	defer func() {
		if err == nil {
			s.current = name
			return
		}
		span.RecordError(err)
		s.rollback(ctx, previous, previousCfg, held)
	}()

	if s.cfg.Diff(cfg).Any(tenants.KeyAdapter, tenants.KeyHost, tenants.KeyPort) {
		if err := s.attach(ctx, cfg.Without(tenants.KeyDatabase, tenants.KeySchemaSearchPath)); err != nil {
			return err
		}
	}
	primary := cfg.Without(tenants.KeySchemaSearchPath)

	if cfg.Database != "" {
		ok, err := s.exists(ctx, d.DatabaseExistsSQL(), cfg.Database)
		if err != nil {
			return err
		}
		if !ok {
			if err := s.conn.Exec(ctx, d.CreateDatabaseSQL(cfg.Database)); err != nil {
				return err
			}
			s.a.log.Infow("tenant database created", "tenant", name, "database", cfg.Database)
			if err := s.attach(ctx, primary); err != nil {
				return err
			}
		}
	}
	if !s.cfg.Diff(primary).Empty() {
		if err := s.attach(ctx, primary); err != nil {
			return err
		}
	}

	if q := d.ScopeExistsSQL(); q != "" {
		if schema := cfg.FirstSchema(); schema != "" {
			ok, err := s.exists(ctx, q, schema)
			if err != nil {
				return err
			}
			if !ok {
				if err := s.conn.Exec(ctx, d.CreateSchemaSQL(schema)); err != nil {
					return err
				}
				s.a.log.Infow("tenant schema created", "tenant", name, "schema", schema)
			}
		}
	}
	return nil
}

// attach moves the session's connection onto cfg's handle during provisioning,
// without translating errors. current is left alone.
func (s *Session) attach(ctx context.Context, cfg tenants.Config) error {
	if err := s.connectionSwitch(ctx, s.poolConfig(cfg), cfg); err != nil {
		var me *moveError
		if errors.As(err, &me) {
			return me.err
		}
		return err
	}
	return nil
}

// rollback puts the session back on the tenant it was on before a failed
// provisioning. A session that held no connection goes back to holding none.
func (s *Session) rollback(ctx context.Context, tenant string, cfg tenants.Config, held bool) {
	if !held {
		s.release()
		s.current, s.cfg = tenant, cfg
		return
	}
	if s.cfg.Diff(cfg).Empty() {
		s.current = tenant
		return
	}
	s.restore(ctx, tenant, cfg)
}

// DropDatabase drops tenant's database. A session scoped to that database is
// reset to the default tenant first.
func (s *Session) DropDatabase(ctx context.Context, tenant string) error {
	ctx, span := s.a.tracer.Start(ctx, "tenancy.DropDatabase", trace.WithAttributes(attribute.String("tenant", tenant)))
	defer span.End()

	cfg, err := s.a.provider.ConfigFor(ctx, tenant)
	if err != nil {
		err = &TenantNotFoundError{Tenant: tenant, Reason: "unknown tenant", Missing: errors.Is(err, tenants.ErrNotFound), Cause: err}
		s.a.metrics.lifecycle("drop_database", err)
		span.RecordError(err)
		return err
	}
	if !s.cfg.Diff(cfg).Any(tenants.KeyAdapter, tenants.KeyHost, tenants.KeyPort, tenants.KeyDatabase) {
		s.release()
		s.current, s.cfg = s.a.defaultTenant, s.a.defaultCfg
	}
	err = s.a.generic.DropDatabase(ctx, tenant, cfg)
	s.a.metrics.lifecycle("drop_database", err)
	if err != nil {
		span.RecordError(err)
		return err
	}
	s.a.log.Infow("tenant database dropped", "tenant", tenant, "database", cfg.Database)
	return nil
}

// DropSchema drops the first schema of tenant's search path; a tenant without one
// has nothing to drop. The session is returned to the tenant it was on before, or
// to the default tenant when that fails.
func (s *Session) DropSchema(ctx context.Context, tenant string) (err error) {
	ctx, span := s.a.tracer.Start(ctx, "tenancy.DropSchema", trace.WithAttributes(attribute.String("tenant", tenant)))
	defer span.End()

	previous, previousCfg := s.current, s.cfg
	defer func() {
		s.a.metrics.lifecycle("drop_schema", err)
		if err != nil {
			span.RecordError(err)
		}
		s.restore(ctx, previous, previousCfg)
	}()

	cfg, err := s.a.provider.ConfigFor(ctx, tenant)
	if err != nil {
		return &TenantNotFoundError{Tenant: tenant, Reason: "unknown tenant", Missing: errors.Is(err, tenants.ErrNotFound), Cause: err}
	}
	if s.cfg.Diff(cfg).Any(tenants.KeyAdapter, tenants.KeyHost, tenants.KeyPort, tenants.KeyDatabase) {
		if err := s.attach(ctx, cfg.Without(tenants.KeySchemaSearchPath)); err != nil {
			return &TenantNotFoundError{Tenant: tenant, Reason: "could not connect", Missing: s.a.dialect.IsNotFound(err), Cause: err}
		}
	}
	schema := cfg.FirstSchema()
	if schema == "" {
		s.current = tenant
		s.a.log.Infow("tenant has no schema, nothing dropped", "tenant", tenant)
		return nil
	}
	if err := s.ensureConn(ctx); err != nil {
		return &TenantNotFoundError{Tenant: tenant, Reason: "could not connect", Cause: err}
	}
	if err := s.conn.Exec(ctx, s.a.dialect.DropSchemaSQL(schema)); err != nil {
		return &TenantNotFoundError{
			Tenant:  tenant,
			Reason:  fmt.Sprintf("error while dropping schema %s", schema),
			Missing: s.a.dialect.IsNotFound(err),
			Cause:   err,
		}
	}
	s.current = tenant
	s.a.log.Infow("tenant schema dropped", "tenant", tenant, "schema", schema)
	return nil
}

// Drop removes tenant's storage: its schema when tenants live in schemas of a
// shared database, its database otherwise.
func (s *Session) Drop(ctx context.Context, tenant string) error {
	if s.a.strategy.UsesSchemas() && s.a.dialect.ScopeKey() == tenants.KeySchemaSearchPath {
		return s.DropSchema(ctx, tenant)
	}
	return s.DropDatabase(ctx, tenant)
}
