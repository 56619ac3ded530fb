package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	treqhttp "github.com/abdul-hamid-achik/treq/packages/http"
)

// PermissionPolicy is the project-level permission configuration: a
// default allow-list plus optional per-plugin-name overrides.
//
// The JSON shape is flat: {"default": [...], "<pluginName>": [...]}.
type PermissionPolicy struct {
	Default   []Permission            `json:"default,omitempty"`
	PerPlugin map[string][]Permission `json:"-"`
}

func (p *PermissionPolicy) UnmarshalJSON(data []byte) error {
	var raw map[string][]Permission
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Default = nil
	p.PerPlugin = make(map[string][]Permission)
	for name, perms := range raw {
		if name == "default" {
			p.Default = perms
			continue
		}
		p.PerPlugin[name] = perms
	}
	return nil
}

// Grant computes the effective permission set for a plugin: declared ∩
// configured-allowed, or declared as-is when no restriction is configured
// for that plugin name.
func (p *PermissionPolicy) Grant(pluginName string, declared []Permission) map[Permission]bool {
	granted := make(map[Permission]bool, len(declared))

	var allowed []Permission
	restricted := false
	if p != nil {
		if perPlugin, ok := p.PerPlugin[pluginName]; ok {
			allowed = perPlugin
			restricted = true
		} else if p.Default != nil {
			allowed = p.Default
			restricted = true
		}
	}

	if !restricted {
		for _, perm := range declared {
			granted[perm] = true
		}
		return granted
	}

	allowSet := make(map[Permission]bool, len(allowed))
	for _, perm := range allowed {
		allowSet[perm] = true
	}
	for _, perm := range declared {
		if allowSet[perm] {
			granted[perm] = true
		}
	}
	return granted
}

// Capability surfaces. Each is present on a PluginContext only when the
// matching permission is in the granted set; an absent capability is a
// type-level impossibility rather than a runtime check.
type (
	// SecretsAPI reads named secrets.
	SecretsAPI interface {
		Get(name string) (string, bool)
	}

	// FetchFunc performs an outbound HTTP request on the plugin's behalf.
	FetchFunc func(ctx context.Context, req *treqhttp.Request) (*treqhttp.Response, error)

	// FSAPI reads and writes files under the project root.
	FSAPI interface {
		ReadFile(path string) ([]byte, error)
		WriteFile(path string, data []byte) error
	}

	// EnvFunc reads an environment variable.
	EnvFunc func(key string) string

	// SpawnFunc runs an external program and returns its combined output.
	SpawnFunc func(ctx context.Context, argv []string) ([]byte, error)
)

// PluginContext is the restricted capability object handed to a plugin's
// setup callback and report/command surfaces. Capability fields are
// populated once, at grant time; editing the definition's Permissions
// afterwards has no effect.
type PluginContext struct {
	PluginID    string
	Config      map[string]any
	ProjectRoot string
	Logger      zerolog.Logger

	Secrets    SecretsAPI
	Fetch      FetchFunc
	FS         FSAPI
	Env        EnvFunc
	Spawn      SpawnFunc
	Enterprise map[string]any

	granted map[Permission]bool
}

// RequireSecrets returns the secrets capability or a PermissionDeniedError.
func (c *PluginContext) RequireSecrets() (SecretsAPI, error) {
	if c.Secrets == nil {
		return nil, &PermissionDeniedError{PluginID: c.PluginID, Permission: PermissionSecrets}
	}
	return c.Secrets, nil
}

// RequireFetch returns the network capability or a PermissionDeniedError.
func (c *PluginContext) RequireFetch() (FetchFunc, error) {
	if c.Fetch == nil {
		return nil, &PermissionDeniedError{PluginID: c.PluginID, Permission: PermissionNetwork}
	}
	return c.Fetch, nil
}

// RequireFS returns the filesystem capability or a PermissionDeniedError.
func (c *PluginContext) RequireFS() (FSAPI, error) {
	if c.FS == nil {
		return nil, &PermissionDeniedError{PluginID: c.PluginID, Permission: PermissionFilesystem}
	}
	return c.FS, nil
}

// RequireEnv returns the env capability or a PermissionDeniedError.
func (c *PluginContext) RequireEnv() (EnvFunc, error) {
	if c.Env == nil {
		return nil, &PermissionDeniedError{PluginID: c.PluginID, Permission: PermissionEnv}
	}
	return c.Env, nil
}

// RequireSpawn returns the subprocess capability or a PermissionDeniedError.
func (c *PluginContext) RequireSpawn() (SpawnFunc, error) {
	if c.Spawn == nil {
		return nil, &PermissionDeniedError{PluginID: c.PluginID, Permission: PermissionSubprocess}
	}
	return c.Spawn, nil
}

// Has reports whether the permission was granted at load time.
func (c *PluginContext) Has(perm Permission) bool {
	return c.granted[perm]
}

// buildPluginContext injects only the capabilities covered by granted.
func (m *Manager) buildPluginContext(id, name string, config map[string]any, granted map[Permission]bool) *PluginContext {
	pctx := &PluginContext{
		PluginID:    id,
		Config:      config,
		ProjectRoot: m.projectRoot,
		Logger:      m.logger.With().Str("plugin", id).Logger(),
		granted:     granted,
	}

	if granted[PermissionSecrets] && m.secrets != nil {
		pctx.Secrets = m.secrets
	}
	if granted[PermissionNetwork] {
		client := treqhttp.NewClient()
		pctx.Fetch = func(ctx context.Context, req *treqhttp.Request) (*treqhttp.Response, error) {
			return client.Do(ctx, req)
		}
	}
	if granted[PermissionFilesystem] {
		pctx.FS = &rootedFS{root: m.projectRoot}
	}
	if granted[PermissionEnv] {
		pctx.Env = os.Getenv
	}
	if granted[PermissionSubprocess] {
		pctx.Spawn = func(ctx context.Context, argv []string) ([]byte, error) {
			if len(argv) == 0 {
				return nil, fmt.Errorf("spawn: empty argv")
			}
			cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
			cmd.Dir = m.projectRoot
			cmd.Env = os.Environ()
			return cmd.CombinedOutput()
		}
	}
	if granted[PermissionEnterprise] {
		pctx.Enterprise = m.enterprise
	}

	return pctx
}

// rootedFS resolves relative paths against the project root and rejects
// escapes above it.
type rootedFS struct {
	root string
}

func (f *rootedFS) resolve(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(f.root, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	root, err := filepath.Abs(f.root)
	if err != nil {
		return "", fmt.Errorf("resolving project root: %w", err)
	}
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside project root %s", path, f.root)
	}
	return abs, nil
}

func (f *rootedFS) ReadFile(path string) ([]byte, error) {
	abs, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(abs)
}

func (f *rootedFS) WriteFile(path string, data []byte) error {
	abs, err := f.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	return os.WriteFile(abs, data, 0o644)
}

// MapSecrets is a simple in-memory SecretsAPI.
type MapSecrets map[string]string

func (s MapSecrets) Get(name string) (string, bool) {
	v, ok := s[name]
	return v, ok
}
