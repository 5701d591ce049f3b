package tenancy

import (
	"errors"
	"fmt"
)

var (
	// ErrTenantNotFound is matched by every error raised when a tenant cannot be activated,
	// resolved or dropped.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrDatabaseNotFound is matched by database-level connection failures.
	ErrDatabaseNotFound = errors.New("database not found")
)

// TenantNotFoundError names the tenant that could not be activated, resolved or dropped.
type TenantNotFoundError struct {
	Tenant string
	Reason string
	// Missing is true when the engine reported the object as absent (as opposed to unreachable).
	Missing bool
	Cause   error
}

func (e *TenantNotFoundError) Error() string {
	msg := "tenant " + e.Tenant + " not found"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *TenantNotFoundError) Unwrap() error { return e.Cause }

func (e *TenantNotFoundError) Is(target error) bool { return target == ErrTenantNotFound }

// DatabaseNotFoundError is raised when connecting to a tenant's database fails.
// It also matches ErrTenantNotFound: callers only need to check for the latter.
type DatabaseNotFoundError struct {
	Tenant   string
	Database string
	Missing  bool
	Cause    error
}

func (e *DatabaseNotFoundError) Error() string {
	return fmt.Sprintf("cannot find database %s for tenant %s: %v", e.Database, e.Tenant, e.Cause)
}

func (e *DatabaseNotFoundError) Unwrap() error { return e.Cause }

func (e *DatabaseNotFoundError) Is(target error) bool {
	return target == ErrDatabaseNotFound || target == ErrTenantNotFound
}

// IsMissing reports whether err says the tenant's database or schema does not exist.
func IsMissing(err error) bool {
	var tnf *TenantNotFoundError
	if errors.As(err, &tnf) {
		return tnf.Missing
	}
	var dnf *DatabaseNotFoundError
	if errors.As(err, &dnf) {
		return dnf.Missing
	}
	return false
}

// moveError records which kind of transition produced an error; the session boundary
// uses it to pick the domain error.
type moveError struct {
	move Move
	err  error
}

func (e *moveError) Error() string { return e.err.Error() }

func (e *moveError) Unwrap() error { return e.err }

// errScopeMissing is returned when a lightweight switch targets a schema that does not exist.
var errScopeMissing = errors.New("scope does not exist")
