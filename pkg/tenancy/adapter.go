package tenancy

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"tenantdb/pkg/db"
	"tenantdb/pkg/tenants"
)

// Options configures an Adapter.
type Options struct {
	// DefaultTenant names the tenant every session starts on and resets to.
	DefaultTenant string
	UseSchemas    bool
	Provider      tenants.Provider
	Registry      *db.Registry
	Log           *zap.SugaredLogger
	Metrics       *Metrics
	// Strategy and Dialect override the ones derived from UseSchemas and the default config.
	Strategy Strategy
	Dialect  Dialect
}

// Adapter is the process-wide part of tenant routing: resolver, handle registry,
// strategy and dialect. It holds no per-session state; every execution context
// works through its own Session.
type Adapter struct {
	defaultTenant string
	defaultCfg    tenants.Config
	provider      tenants.Provider
	registry      *db.Registry
	strategy      Strategy
	dialect       Dialect
	generic       GenericLifecycle
	log           *zap.SugaredLogger
	metrics       *Metrics
	tracer        trace.Tracer
}

// New resolves the default tenant and wires the adapter.
func New(ctx context.Context, opts Options) (*Adapter, error) {
	if opts.Provider == nil || opts.Registry == nil {
		return nil, errors.New("tenancy: provider and registry are required")
	}
	def, err := opts.Provider.ConfigFor(ctx, opts.DefaultTenant)
	if err != nil {
		return nil, fmt.Errorf("resolve default tenant %q: %w", opts.DefaultTenant, err)
	}
	a := &Adapter{
		defaultTenant: opts.DefaultTenant,
		defaultCfg:    def,
		provider:      opts.Provider,
		registry:      opts.Registry,
		strategy:      opts.Strategy,
		dialect:       opts.Dialect,
		log:           opts.Log,
		metrics:       opts.Metrics,
		tracer:        otel.Tracer("tenantdb/tenancy"),
	}
	if a.strategy == nil {
		a.strategy = StrategyFor(opts.UseSchemas)
	}
	if a.dialect == nil {
		if a.dialect, err = DialectFor(def.Adapter); err != nil {
			return nil, err
		}
	}
	if a.log == nil {
		a.log = zap.NewNop().Sugar()
	}
	if a.metrics == nil {
		a.metrics = NewMetrics(nil)
	}
	a.generic = GenericLifecycle{dialect: a.dialect, registry: a.registry}
	return a, nil
}

// NewSession starts a session on the default tenant. The connection is checked
// out lazily by the first operation that needs one.
func (a *Adapter) NewSession() *Session {
	return &Session{a: a, current: a.defaultTenant, cfg: a.defaultCfg}
}

func (a *Adapter) DefaultTenant() string { return a.defaultTenant }

func (a *Adapter) Strategy() Strategy { return a.strategy }

func (a *Adapter) Dialect() Dialect { return a.dialect }

func (a *Adapter) Provider() tenants.Provider { return a.provider }

// translate maps a strategy failure to the domain error of its move. A scope
// move on a dialect whose scope is the database (MySQL USE) failed on a database.
func (a *Adapter) translate(tenant string, target tenants.Config, err error) error {
	cause := err
	var me *moveError
	if errors.As(err, &me) {
		cause = me.err
		if me.move == MoveConnection || a.dialect.ScopeKey() == tenants.KeyDatabase {
			return &DatabaseNotFoundError{
				Tenant:   tenant,
				Database: target.Database,
				Missing:  a.dialect.IsNotFound(cause),
				Cause:    cause,
			}
		}
	}
	return &TenantNotFoundError{
		Tenant:  tenant,
		Reason:  "could not switch",
		Missing: errors.Is(cause, errScopeMissing) || a.dialect.IsNotFound(cause),
		Cause:   cause,
	}
}
