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

// Session is the tenant context of one execution context (a request, a job).
// It tracks the current tenant and the connection checked out for it.
// A Session is not safe for concurrent use; the Adapter and its registry are.
//
// Invariant: cfg is the configuration the checked-out connection actually
// reflects, and current is the tenant cfg belongs to. Every failed switch
// leaves the session on the default tenant.
type Session struct {
	a       *Adapter
	current string
	cfg     tenants.Config
	conn    db.Conn
	spec    string
}

// Current returns the tenant the session is scoped to.
func (s *Session) Current() string { return s.current }

// Config returns the configuration the session is scoped to.
func (s *Session) Config() tenants.Config { return s.cfg }

// Conn returns the connection scoped to the current tenant, checking one out if needed.
// The connection stays owned by the session; do not release it.
func (s *Session) Conn(ctx context.Context) (db.Conn, error) {
	if err := s.ensureConn(ctx); err != nil {
		return nil, err
	}
	return s.conn, nil
}

// Switch moves the session to tenant. An empty tenant means the default tenant.
// On failure the session is back on the default tenant and the error matches
// ErrTenantNotFound.
func (s *Session) Switch(ctx context.Context, tenant string) error {
	if tenant == "" {
		tenant = s.a.defaultTenant
	}
	ctx, span := s.a.tracer.Start(ctx, "tenancy.Switch", trace.WithAttributes(attribute.String("tenant", tenant)))
	defer span.End()

	target, err := s.a.provider.ConfigFor(ctx, tenant)
	if err != nil {
		err = &TenantNotFoundError{
			Tenant:  tenant,
			Reason:  "unknown tenant",
			Missing: errors.Is(err, tenants.ErrNotFound),
			Cause:   err,
		}
		s.a.metrics.failed("switch")
		s.hardReset(tenant, err)
		span.RecordError(err)
		return err
	}
	if err := s.switchTenant(ctx, tenant, target); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Within runs fn with the session switched to tenant, then switches back to the
// tenant that was active before, even when the switch or fn failed. If switching
// back fails the session ends on the default tenant.
func (s *Session) Within(ctx context.Context, tenant string, fn func(ctx context.Context) error) error {
	previous, previousCfg := s.current, s.cfg
	defer s.restore(ctx, previous, previousCfg)

	if err := s.Switch(ctx, tenant); err != nil {
		return err
	}
	return fn(ctx)
}

// Reset returns the session to the default tenant. It does not fail: when the
// transition cannot be applied the connection is dropped and the next operation
// checks out a fresh one on the default tenant.
func (s *Session) Reset(ctx context.Context) error {
	def := s.a.defaultCfg
	if s.conn == nil {
		s.current, s.cfg = s.a.defaultTenant, def
		return nil
	}
	move, err := s.a.strategy.ApplyDifference(ctx, s, s.cfg.Diff(def), def)
	if err != nil {
		s.a.metrics.failed("reset")
		s.hardReset(s.a.defaultTenant, err)
		return nil
	}
	s.current, s.cfg = s.a.defaultTenant, def
	s.a.metrics.switched(move)
	return nil
}

// Close resets the session and hands its connection back to the pool.
func (s *Session) Close(ctx context.Context) {
	_ = s.Reset(ctx)
	s.release()
}

func (s *Session) switchTenant(ctx context.Context, tenant string, target tenants.Config) error {
	diff := s.cfg.Diff(target)
	move, err := s.a.strategy.ApplyDifference(ctx, s, diff, target)
	if err != nil {
		s.a.metrics.failed("switch")
		err = s.a.translate(tenant, target, err)
		s.hardReset(tenant, err)
		return err
	}
	s.current = tenant
	s.a.metrics.switched(move)
	s.a.log.Debugw("tenant switched", "tenant", tenant, "move", move.String(), "diff", diff.Keys())
	return nil
}

func (s *Session) restore(ctx context.Context, tenant string, cfg tenants.Config) {
	// a failed restore has already fallen back to the default tenant
	if err := s.switchTenant(ctx, tenant, cfg); err != nil {
		s.a.log.Warnw("restore previous tenant", "tenant", tenant, "err", err)
	}
}

// hardReset puts the session on the default tenant without touching the engine.
// The connection goes back to the pool; whoever checks it out next re-issues its scope.
func (s *Session) hardReset(failed string, cause error) {
	s.release()
	s.current, s.cfg = s.a.defaultTenant, s.a.defaultCfg
	s.a.log.Warnw("tenant switch failed, back on default tenant",
		"tenant", failed, "default", s.a.defaultTenant, "err", cause)
}

// connectionSwitch checks out a connection from the handle for poolCfg, scopes it
// to target and makes it the session's connection.
func (s *Session) connectionSwitch(ctx context.Context, poolCfg, target tenants.Config) error {
	conn, spec, err := s.checkout(ctx, poolCfg, &target)
	if err != nil {
		return &moveError{move: MoveConnection, err: err}
	}
	s.release()
	s.conn, s.spec, s.cfg = conn, spec, target
	return nil
}

// scopeSwitch changes the scope of the current connection to target's.
func (s *Session) scopeSwitch(ctx context.Context, target tenants.Config) error {
	if s.conn == nil {
		conn, spec, err := s.checkout(ctx, s.poolConfig(s.cfg), nil)
		if err != nil {
			return &moveError{move: MoveConnection, err: err}
		}
		s.conn, s.spec = conn, spec
	}
	d := s.a.dialect
	if q := d.ScopeExistsSQL(); q != "" {
		if owner := d.ScopeOwner(target); owner != "" {
			ok, err := s.exists(ctx, q, owner)
			if err != nil {
				return &moveError{move: MoveScope, err: err}
			}
			if !ok {
				return &moveError{move: MoveScope, err: fmt.Errorf("could not find schema %s: %w", owner, errScopeMissing)}
			}
		}
	}
	stmt := d.ScopeSQL(target)
	if stmt == "" {
		stmt = d.ScopeSQL(s.a.defaultCfg)
	}
	if stmt != "" {
		if err := s.conn.Exec(ctx, stmt); err != nil {
			return &moveError{move: MoveScope, err: err}
		}
	}
	s.cfg = target
	return nil
}

// checkout acquires a connection from the handle of poolCfg and, when scope is set,
// issues its scope statement so a connection left in another scope is never reused as is.
func (s *Session) checkout(ctx context.Context, poolCfg tenants.Config, scope *tenants.Config) (db.Conn, string, error) {
	pool, spec, err := s.a.registry.Establish(ctx, poolCfg)
	if err != nil {
		return nil, spec, err
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.a.registry.Invalidate(spec)
		}
		return nil, spec, err
	}
	if scope != nil {
		if stmt := s.a.dialect.ScopeSQL(*scope); stmt != "" {
			if err := conn.Exec(ctx, stmt); err != nil {
				conn.Release()
				return nil, spec, err
			}
		}
	}
	return conn, spec, nil
}

func (s *Session) ensureConn(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}
	conn, spec, err := s.checkout(ctx, s.poolConfig(s.cfg), &s.cfg)
	if err != nil {
		return err
	}
	s.conn, s.spec = conn, spec
	return nil
}

// poolConfig is the config a handle is keyed by. When the scope is the database
// itself (MySQL schema mode) all tenants of a server share one handle.
func (s *Session) poolConfig(cfg tenants.Config) tenants.Config {
	if s.a.strategy.UsesSchemas() && s.a.dialect.ScopeKey() == tenants.KeyDatabase {
		return cfg.Without(tenants.KeyDatabase)
	}
	return cfg
}

func (s *Session) exists(ctx context.Context, query, name string) (bool, error) {
	if err := s.ensureConn(ctx); err != nil {
		return false, err
	}
	var ok bool
	if err := s.conn.QueryRow(ctx, query, name).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (s *Session) release() {
	if s.conn != nil {
		s.conn.Release()
		s.conn, s.spec = nil, ""
	}
}
