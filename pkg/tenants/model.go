package tenants

import "strings"

// Adapter types understood by the connection registry.
const (
	AdapterPostgreSQL = "postgresql"
	AdapterMySQL      = "mysql"
)

// Tenant represents a logical customer / workspace and the connection it is routed to.
type Tenant struct {
	Name   string `json:"name" yaml:"name"`
	Config Config `json:"config" yaml:"config"`
}

// Config describes where a tenant lives: a database, a schema inside one, or both.
type Config struct {
	Adapter          string `json:"adapter" yaml:"adapter"` // postgresql | mysql
	Host             string `json:"host,omitempty" yaml:"host,omitempty"`
	Port             int    `json:"port,omitempty" yaml:"port,omitempty"`
	Database         string `json:"database,omitempty" yaml:"database,omitempty"`
	SchemaSearchPath string `json:"schema_search_path,omitempty" yaml:"schema_search_path,omitempty"` // "tenant_x,public"
	Username         string `json:"username,omitempty" yaml:"username,omitempty"`
	Password         string `json:"password,omitempty" yaml:"password,omitempty"`
	SSLMode          string `json:"sslmode,omitempty" yaml:"sslmode,omitempty"`
	PoolKey          string `json:"pool_key,omitempty" yaml:"pool_key,omitempty"` // share one pool across configs
}

// FirstSchema returns the tenant-owned schema of the search path: its first element, unquoted.
// Remaining elements are shared schemas and never belong to a tenant.
func (c Config) FirstSchema() string {
	if strings.TrimSpace(c.SchemaSearchPath) == "" {
		return ""
	}
	first := strings.TrimSpace(strings.SplitN(c.SchemaSearchPath, ",", 2)[0])
	if len(first) >= 2 && first[0] == '"' && first[len(first)-1] == '"' {
		first = first[1 : len(first)-1]
	}
	return first
}

// HostOrDefault is the host used for routing when none is configured.
func (c Config) HostOrDefault() string {
	if c.Host == "" {
		return "127.0.0.1"
	}
	return c.Host
}
