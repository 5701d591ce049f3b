package tenants

import (
	"sort"
	"strconv"
)

// Key names one attribute of a Config.
type Key string

const (
	KeyAdapter          Key = "adapter"
	KeyHost             Key = "host"
	KeyPort             Key = "port"
	KeyDatabase         Key = "database"
	KeySchemaSearchPath Key = "schema_search_path"
	KeyUsername         Key = "username"
	KeyPassword         Key = "password"
	KeySSLMode          Key = "sslmode"
	KeyPoolKey          Key = "pool_key"
)

var allKeys = []Key{
	KeyAdapter, KeyHost, KeyPort, KeyDatabase, KeySchemaSearchPath,
	KeyUsername, KeyPassword, KeySSLMode, KeyPoolKey,
}

// Difference is the set of keys whose value differs between two configs.
type Difference map[Key]struct{}

// Has reports whether k is part of the difference.
func (d Difference) Has(k Key) bool {
	_, ok := d[k]
	return ok
}

// Any reports whether at least one of keys is part of the difference.
func (d Difference) Any(keys ...Key) bool {
	for _, k := range keys {
		if d.Has(k) {
			return true
		}
	}
	return false
}

func (d Difference) Empty() bool { return len(d) == 0 }

// Keys returns the differing keys in a stable order (for logging).
func (d Difference) Keys() []string {
	out := make([]string, 0, len(d))
	for k := range d {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}

// Get returns the string form of the value stored under k.
func (c Config) Get(k Key) string {
	switch k {
	case KeyAdapter:
		return c.Adapter
	case KeyHost:
		return c.Host
	case KeyPort:
		if c.Port == 0 {
			return ""
		}
		return strconv.Itoa(c.Port)
	case KeyDatabase:
		return c.Database
	case KeySchemaSearchPath:
		return c.SchemaSearchPath
	case KeyUsername:
		return c.Username
	case KeyPassword:
		return c.Password
	case KeySSLMode:
		return c.SSLMode
	case KeyPoolKey:
		return c.PoolKey
	}
	return ""
}

// Diff computes the keys of target whose value differs from c.
func (c Config) Diff(target Config) Difference {
	d := Difference{}
	for _, k := range allKeys {
		if c.Get(k) != target.Get(k) {
			d[k] = struct{}{}
		}
	}
	return d
}

// Without returns a copy of c with the given keys cleared.
func (c Config) Without(keys ...Key) Config {
	for _, k := range keys {
		switch k {
		case KeyAdapter:
			c.Adapter = ""
		case KeyHost:
			c.Host = ""
		case KeyPort:
			c.Port = 0
		case KeyDatabase:
			c.Database = ""
		case KeySchemaSearchPath:
			c.SchemaSearchPath = ""
		case KeyUsername:
			c.Username = ""
		case KeyPassword:
			c.Password = ""
		case KeySSLMode:
			c.SSLMode = ""
		case KeyPoolKey:
			c.PoolKey = ""
		}
	}
	return c
}
