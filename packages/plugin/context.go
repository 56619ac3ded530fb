package plugin

import (
	"github.com/google/uuid"
)

// Session is the shared session view exposed on hook contexts.
type Session struct {
	ID        string
	Variables map[string]any
	Reports   []*Report
}

// ExecutionContext carries the scope keys a hook context derives its
// report sequencing from. Keys are opaque identifiers and never parsed.
type ExecutionContext struct {
	RunID       string
	FlowID      string
	SessionID   string
	RequestName string
}

// ContextOverrides parameterize CreateHookContext.
type ContextOverrides struct {
	ExecutionContext ExecutionContext
	Variables        map[string]any
	MaxRetries       int
	Enterprise       map[string]any
}

// HookContext is the immutable per-invocation view passed to every hook.
// Retries starts at 0 and increments by exactly one per pipeline restart,
// never exceeding MaxRetries.
type HookContext struct {
	Retries     int
	MaxRetries  int
	Session     *Session
	Variables   map[string]any
	Config      map[string]any
	ProjectRoot string
	Enterprise  map[string]any

	RunID       string
	FlowID      string
	RequestName string

	// pluginID is stamped by the executor so Report attributes entries
	// to the plugin whose hook is running.
	pluginID string
	manager  *Manager
}

// CreateHookContext builds a HookContext for one pipeline attempt,
// deriving report scope keys from the overrides' execution context. A
// missing runId is generated.
func (m *Manager) CreateHookContext(o *ContextOverrides) *HookContext {
	if o == nil {
		o = &ContextOverrides{}
	}

	runID := o.ExecutionContext.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	sessionID := o.ExecutionContext.SessionID
	if sessionID == "" {
		sessionID = runID
	}

	return &HookContext{
		MaxRetries: o.MaxRetries,
		Session: &Session{
			ID:        sessionID,
			Variables: o.Variables,
			Reports:   m.ReportsForRun(runID),
		},
		Variables:   o.Variables,
		Config:      m.config,
		ProjectRoot: m.projectRoot,
		Enterprise:  o.Enterprise,
		RunID:       runID,
		FlowID:      o.ExecutionContext.FlowID,
		RequestName: o.ExecutionContext.RequestName,
		manager:     m,
	}
}

// WithRetries returns a copy for the given attempt number.
func (c *HookContext) WithRetries(retries int) *HookContext {
	clone := *c
	clone.Retries = retries
	return &clone
}

// forPlugin returns a copy bound to one plugin for report attribution.
func (c *HookContext) forPlugin(pluginID string) *HookContext {
	clone := *c
	clone.pluginID = pluginID
	return &clone
}

// Report appends a plugin observation to the manager's ledger under this
// context's run (and, when present, flow) scope. Data must survive a JSON
// round trip; a violation is a hook failure and nothing is recorded.
func (c *HookContext) Report(data any) error {
	if c.manager == nil {
		return nil
	}
	name := c.pluginID
	if name == "" {
		name = "unknown"
	}
	return c.manager.report(name, c.RunID, c.FlowID, c.RequestName, data)
}
