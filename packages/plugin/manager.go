package plugin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Manager owns the ordered plugin registry, the merged resolver table,
// the report ledger, and hook dispatch. Registration order is execution
// order for every hook kind.
type Manager struct {
	logger      zerolog.Logger
	projectRoot string
	config      map[string]any
	policy      *PermissionPolicy
	secrets     SecretsAPI
	enterprise  map[string]any
	hookTimeout time.Duration

	mu        sync.RWMutex
	plugins   []*LoadedPlugin
	index     map[string]*LoadedPlugin
	resolvers map[string]ResolverFunc
	commands  map[string]CommandFunc

	ledger *reportLedger

	subMu       sync.RWMutex
	subscribers []EventFunc
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithPermissionPolicy sets the project permission configuration.
func WithPermissionPolicy(policy *PermissionPolicy) ManagerOption {
	return func(m *Manager) { m.policy = policy }
}

// WithSecrets provides the store backing the secrets capability.
func WithSecrets(secrets SecretsAPI) ManagerOption {
	return func(m *Manager) { m.secrets = secrets }
}

// WithEnterprise provides the enterprise context exposed to plugins with
// the enterprise permission.
func WithEnterprise(enterprise map[string]any) ManagerOption {
	return func(m *Manager) { m.enterprise = enterprise }
}

// WithHookTimeout bounds individual hook invocations. Zero disables the
// bound.
func WithHookTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.hookTimeout = d }
}

// WithConfig sets the project config map exposed on hook contexts.
func WithConfig(config map[string]any) ManagerOption {
	return func(m *Manager) { m.config = config }
}

func NewManager(logger zerolog.Logger, projectRoot string, opts ...ManagerOption) *Manager {
	m := &Manager{
		logger:      logger.With().Str("component", "plugin-manager").Logger(),
		projectRoot: projectRoot,
		index:       make(map[string]*LoadedPlugin),
		resolvers:   make(map[string]ResolverFunc),
		commands:    make(map[string]CommandFunc),
		ledger:      newReportLedger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register validates the definition, computes the granted permission set,
// builds the restricted plugin context, and appends the plugin to the
// ordered registry. Plugin ids (name#instanceId) are unique per manager.
func (m *Manager) Register(def *Definition, source Source, config map[string]any) (*LoadedPlugin, error) {
	if err := ValidateDefinition(def); err != nil {
		return nil, fmt.Errorf("registering plugin: %w", err)
	}

	id := def.ID()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.index[id]; exists {
		return nil, fmt.Errorf("plugin %s already registered", id)
	}

	granted := m.policy.Grant(def.Name, def.Permissions)
	lp := &LoadedPlugin{
		ID:         id,
		Definition: def,
		Source:     source,
		Granted:    granted,
		Context:    m.buildPluginContext(id, def.Name, config, granted),
		LoadedAt:   time.Now(),
	}

	m.plugins = append(m.plugins, lp)
	m.index[id] = lp

	// Resolver collisions across plugins resolve last-registered-wins,
	// deterministically.
	for name, fn := range def.Resolvers {
		m.resolvers[name] = fn
	}
	for name, fn := range def.Commands {
		m.commands[name] = fn
	}

	m.logger.Info().
		Str("plugin", id).
		Str("source", string(source)).
		Int("resolvers", len(def.Resolvers)).
		Int("hooks", len(def.Hooks)).
		Msg("plugin registered")

	return lp, nil
}

// RegisterResolver adds a standalone resolver (builtin or command-backed)
// to the merged table. The name must be $-prefixed.
func (m *Manager) RegisterResolver(name string, fn ResolverFunc) error {
	if len(name) < 2 || name[0] != '$' {
		return fmt.Errorf("resolver %q must start with '$'", name)
	}
	if fn == nil {
		return fmt.Errorf("resolver %q is nil", name)
	}
	m.mu.Lock()
	m.resolvers[name] = fn
	m.mu.Unlock()
	return nil
}

// ResolverTable returns a snapshot of the merged resolver table.
func (m *Manager) ResolverTable() map[string]ResolverFunc {
	m.mu.RLock()
	defer m.mu.RUnlock()
	table := make(map[string]ResolverFunc, len(m.resolvers))
	for name, fn := range m.resolvers {
		table[name] = fn
	}
	return table
}

// Command returns the named plugin command, if any.
func (m *Manager) Command(name string) (CommandFunc, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn, ok := m.commands[name]
	return fn, ok
}

// Plugins returns the registry in registration order.
func (m *Manager) Plugins() []*LoadedPlugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*LoadedPlugin(nil), m.plugins...)
}

// Get retrieves a plugin by id.
func (m *Manager) Get(id string) (*LoadedPlugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lp, ok := m.index[id]
	return lp, ok
}

// Setup runs every plugin's setup callback in registration order. A
// failing setup fails the load; plugins without one are marked
// initialized immediately.
func (m *Manager) Setup(ctx context.Context) error {
	for _, lp := range m.Plugins() {
		if lp.Definition.Setup != nil {
			if err := lp.Definition.Setup(ctx, lp.Context); err != nil {
				return fmt.Errorf("plugin %s: setup: %w", lp.ID, err)
			}
		}
		m.mu.Lock()
		lp.Initialized = true
		m.mu.Unlock()
	}
	return nil
}

// Teardown runs every plugin's teardown callback in reverse registration
// order. Failures are logged and do not stop the remaining teardowns.
func (m *Manager) Teardown(ctx context.Context) {
	plugins := m.Plugins()
	for i := len(plugins) - 1; i >= 0; i-- {
		lp := plugins[i]
		if lp.Definition.Teardown == nil {
			continue
		}
		if err := lp.Definition.Teardown(ctx); err != nil {
			m.logger.Warn().Str("plugin", lp.ID).Err(err).Msg("teardown failed")
		}
	}
}
