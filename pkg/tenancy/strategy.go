package tenancy

import (
	"context"

	"tenantdb/pkg/tenants"
)

// Move is the kind of transition a switch performed.
type Move int

const (
	MoveNone Move = iota
	MoveScope
	MoveConnection
)

func (m Move) String() string {
	switch m {
	case MoveScope:
		return "scope"
	case MoveConnection:
		return "connection"
	}
	return "none"
}

// Strategy turns a config difference into a transition on the session.
type Strategy interface {
	Name() string
	// UsesSchemas reports whether tenants share a database and differ by scope.
	UsesSchemas() bool
	ApplyDifference(ctx context.Context, s *Session, diff tenants.Difference, target tenants.Config) (Move, error)
}

// StrategyFor picks the strategy for the configured tenancy mode.
func StrategyFor(useSchemas bool) Strategy {
	if useSchemas {
		return SchemaPerTenant{}
	}
	return DatabasePerTenant{}
}

// DatabasePerTenant reconnects whenever any identifying attribute changes.
type DatabasePerTenant struct{}

func (DatabasePerTenant) Name() string { return "database" }

func (DatabasePerTenant) UsesSchemas() bool { return false }

func (DatabasePerTenant) ApplyDifference(ctx context.Context, s *Session, diff tenants.Difference, target tenants.Config) (Move, error) {
	if diff.Empty() {
		return MoveNone, nil
	}
	return MoveConnection, s.connectionSwitch(ctx, target, target)
}

// SchemaPerTenant keeps the connection when only the dialect's scope differs and
// changes the session scope instead (search path on PostgreSQL, USE on MySQL).
type SchemaPerTenant struct{}

func (SchemaPerTenant) Name() string { return "schema" }

func (SchemaPerTenant) UsesSchemas() bool { return true }

func (SchemaPerTenant) ApplyDifference(ctx context.Context, s *Session, diff tenants.Difference, target tenants.Config) (Move, error) {
	scope := s.a.dialect.ScopeKey()
	reconnect := []tenants.Key{tenants.KeyAdapter, tenants.KeyHost, tenants.KeyPort, tenants.KeyDatabase}
	for _, k := range reconnect {
		if k != scope && diff.Has(k) {
			return MoveConnection, s.connectionSwitch(ctx, s.poolConfig(target), target)
		}
	}
	if diff.Has(scope) {
		return MoveScope, s.scopeSwitch(ctx, target)
	}
	return MoveNone, nil
}
