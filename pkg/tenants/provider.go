package tenants

import (
	"context"
	"errors"
)

// ErrNotFound is returned by providers for unknown tenant identifiers.
var ErrNotFound = errors.New("tenant not found")

type Provider interface {
	// ConfigFor resolves the connection configuration of a tenant.
	ConfigFor(ctx context.Context, tenant string) (Config, error)
	// List returns every configured tenant name.
	List(ctx context.Context) ([]string, error)
}

// Writer is implemented by providers that can register tenants created at runtime.
type Writer interface {
	Save(ctx context.Context, name string, cfg Config) error
	Remove(ctx context.Context, name string) error
}

// Store is a Provider that also accepts writes.
type Store interface {
	Provider
	Writer
}
