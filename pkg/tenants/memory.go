// pkg/tenants/memory.go
package tenants

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// memProvider keeps tenant configs in process; seeded from env JSON or a YAML file.
type memProvider struct {
	log         *zap.SugaredLogger
	defaultName string
	defaultCfg  Config
	useSchemas  bool

	mu     sync.RWMutex
	byName map[string]Config
}

// NewMemoryProvider builds a provider whose default tenant resolves to def.
// Tenants seeded by name only get a config derived from def (see Derive).
func NewMemoryProvider(log *zap.SugaredLogger, defaultName string, def Config, useSchemas bool) Store {
	return &memProvider{
		log:         log,
		defaultName: defaultName,
		defaultCfg:  def,
		useSchemas:  useSchemas,
		byName:      map[string]Config{},
	}
}

// Derive builds the config of a tenant that only has a name: a schema of the default
// database in schema mode, a database next to the default one otherwise.
func Derive(def Config, name string, useSchemas bool) Config {
	cfg := def
	if useSchemas {
		if def.Adapter == AdapterMySQL {
			cfg.Database = name
		} else {
			cfg.SchemaSearchPath = name
		}
		return cfg
	}
	cfg.Database = name
	return cfg
}

// SeedJSON ingests TENANT_SEED_JSON: [{"name":"acme","config":{...}}, {"name":"globex"}].
func (m *memProvider) SeedJSON(raw string) error {
	if raw == "" {
		return nil
	}
	var entries []Tenant
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return fmt.Errorf("tenant seed: %w", err)
	}
	m.seed(entries)
	return nil
}

type tenantsFile struct {
	Tenants []Tenant `yaml:"tenants"`
}

// LoadFile ingests a YAML tenants file (top-level "tenants" list).
func (m *memProvider) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read tenants file: %w", err)
	}
	var f tenantsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse tenants file %s: %w", path, err)
	}
	m.seed(f.Tenants)
	return nil
}

func (m *memProvider) seed(entries []Tenant) {
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		cfg := e.Config
		if cfg == (Config{}) {
			cfg = Derive(m.defaultCfg, e.Name, m.useSchemas)
		} else if cfg.Adapter == "" {
			cfg.Adapter = m.defaultCfg.Adapter
		}
		m.put(e.Name, cfg)
	}
	if m.log != nil {
		m.log.Infow("tenants seeded", "count", len(entries))
	}
}

// Seed loads JSON and YAML sources into a Store created by NewMemoryProvider.
func Seed(p Store, seedJSON, file string) error {
	m, ok := p.(*memProvider)
	if !ok {
		return fmt.Errorf("seed: unsupported provider %T", p)
	}
	if err := m.SeedJSON(seedJSON); err != nil {
		return err
	}
	return m.LoadFile(file)
}

func (m *memProvider) put(name string, cfg Config) {
	m.mu.Lock()
	m.byName[name] = cfg
	m.mu.Unlock()
}

func (m *memProvider) Save(ctx context.Context, name string, cfg Config) error {
	m.put(name, cfg)
	return nil
}

func (m *memProvider) Remove(ctx context.Context, name string) error {
	m.mu.Lock()
	delete(m.byName, name)
	m.mu.Unlock()
	return nil
}

func (m *memProvider) ConfigFor(ctx context.Context, tenant string) (Config, error) {
	if tenant == "" || tenant == m.defaultName {
		return m.defaultCfg, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.byName[tenant]; ok {
		return c, nil
	}
	return Config{}, fmt.Errorf("%w: %s", ErrNotFound, tenant)
}

func (m *memProvider) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.byName))
	for n := range m.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}
