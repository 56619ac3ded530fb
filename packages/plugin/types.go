package plugin

import (
	"context"
	"time"

	"github.com/abdul-hamid-achik/treq/packages/http"
)

// Permission is a capability category a plugin can request.
type Permission string

const (
	PermissionSecrets    Permission = "secrets"
	PermissionNetwork    Permission = "network"
	PermissionFilesystem Permission = "filesystem"
	PermissionEnv        Permission = "env"
	PermissionSubprocess Permission = "subprocess"
	PermissionEnterprise Permission = "enterprise"
)

// ValidPermissions is the set of recognized permissions.
var ValidPermissions = map[Permission]bool{
	PermissionSecrets:    true,
	PermissionNetwork:    true,
	PermissionFilesystem: true,
	PermissionEnv:        true,
	PermissionSubprocess: true,
	PermissionEnterprise: true,
}

// Source records where a plugin definition came from.
type Source string

const (
	SourceNPM        Source = "npm"
	SourceFile       Source = "file"
	SourceInline     Source = "inline"
	SourceSubprocess Source = "subprocess"
)

// HookName identifies an extension point in the request lifecycle.
type HookName string

const (
	HookRequestBefore   HookName = "request.before"
	HookRequestCompiled HookName = "request.compiled"
	HookRequestAfter    HookName = "request.after"
	HookResponseAfter   HookName = "response.after"
	HookError           HookName = "error"
	HookValidate        HookName = "validate"
)

// DefaultInstanceID is used when a definition does not set InstanceID.
const DefaultInstanceID = "default"

// ResolverFunc produces a dynamic value during variable substitution.
type ResolverFunc func(ctx context.Context, args []string) (string, error)

// CommandFunc is a CLI-style command a plugin exposes by name.
type CommandFunc func(ctx context.Context, args []string) error

// ToolFunc is a named tool surface; validated at registration, dispatched
// by front-ends.
type ToolFunc func(ctx context.Context, input map[string]any) (any, error)

// MiddlewareFunc wraps request carriers outside the hook pipeline.
type MiddlewareFunc func(ctx context.Context, req *http.Request) (*http.Request, error)

// EventFunc receives pipeline telemetry events.
type EventFunc func(Event)

// RetrySignal asks the pipeline to re-run the request after a delay.
type RetrySignal struct {
	Delay  time.Duration
	Reason string
}

// HookInput is the read side passed to request-stage hooks.
type HookInput struct {
	Request *http.Request
	Ctx     *HookContext
}

// RequestOutput is the mutable carrier threaded through request.before and
// request.compiled chains. Each plugin receives the previous plugin's
// mutated Request.
type RequestOutput struct {
	Request *http.Request
	// Skip stops the pipeline from advancing through remaining
	// before-hooks and suppresses transmission for this attempt.
	Skip bool
}

func (o *RequestOutput) clone() *RequestOutput {
	return &RequestOutput{Request: o.Request.Clone(), Skip: o.Skip}
}

// ResponseInput is the read side passed to response.after hooks. Response
// is the transport's original response; overrides accumulate in the
// output.
type ResponseInput struct {
	Request  *http.Request
	Response *http.Response
	Ctx      *HookContext
}

// ResponseOutput collects response overrides. Nil pointer fields mean "not
// overridden"; Headers shallow-merge over the original. A hook that reads
// the original body must set Body, since response bodies are single-read
// streams at the transport.
type ResponseOutput struct {
	Status     *int
	StatusText *string
	Headers    map[string]string
	Body       []byte
	BodySet    bool
	Retry      *RetrySignal
}

func (o *ResponseOutput) clone() *ResponseOutput {
	clone := &ResponseOutput{BodySet: o.BodySet}
	if o.Status != nil {
		v := *o.Status
		clone.Status = &v
	}
	if o.StatusText != nil {
		v := *o.StatusText
		clone.StatusText = &v
	}
	if o.Headers != nil {
		clone.Headers = make(map[string]string, len(o.Headers))
		for k, v := range o.Headers {
			clone.Headers[k] = v
		}
	}
	if o.BodySet {
		clone.Body = append([]byte(nil), o.Body...)
	}
	if o.Retry != nil {
		v := *o.Retry
		clone.Retry = &v
	}
	return clone
}

// SetBody records a body override.
func (o *ResponseOutput) SetBody(body []byte) {
	o.Body = body
	o.BodySet = true
}

// Apply merges the collected overrides onto a copy of resp.
func (o *ResponseOutput) Apply(resp *http.Response) *http.Response {
	merged := resp.Clone()
	if o.Status != nil {
		merged.StatusCode = *o.Status
	}
	if o.StatusText != nil {
		merged.Status = *o.StatusText
	}
	for k, v := range o.Headers {
		merged.Headers[k] = v
	}
	if o.BodySet {
		merged.Body = append([]byte(nil), o.Body...)
	}
	return merged
}

// ErrorInput is passed to error hooks when compilation or transmission
// fails fatally.
type ErrorInput struct {
	Err   error
	Stage string
	Ctx   *HookContext
}

// ErrorOutput lets an error hook replace the error, suppress it, supply a
// substitute response, or request a retry.
type ErrorOutput struct {
	Err      error
	Suppress bool
	Response *http.Response
	Retry    *RetrySignal
}

func (o *ErrorOutput) clone() *ErrorOutput {
	clone := &ErrorOutput{Err: o.Err, Suppress: o.Suppress}
	if o.Response != nil {
		clone.Response = o.Response.Clone()
	}
	if o.Retry != nil {
		v := *o.Retry
		clone.Retry = &v
	}
	return clone
}

// Severity grades a validation diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Position is a zero-based line/column pair.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Range spans a region of raw file content.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Diagnostic is a static-analysis finding over raw file content.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Range    Range    `json:"range"`
}

// ValidateInput carries raw file content to validate hooks.
type ValidateInput struct {
	Content       string
	Path          string
	LinePositions []int
	Ctx           *HookContext
}

// ValidateOutput accumulates diagnostics across all plugins, in plugin
// order.
type ValidateOutput struct {
	Diagnostics []Diagnostic
}

func (o *ValidateOutput) clone() *ValidateOutput {
	return &ValidateOutput{Diagnostics: append([]Diagnostic(nil), o.Diagnostics...)}
}

// Hook function types, one per whitelisted hook name.
type (
	RequestBeforeHook   func(ctx context.Context, in *HookInput, out *RequestOutput) error
	RequestCompiledHook func(ctx context.Context, in *HookInput, out *RequestOutput) error
	RequestAfterHook    func(ctx context.Context, in *HookInput) error
	ResponseAfterHook   func(ctx context.Context, in *ResponseInput, out *ResponseOutput) error
	ErrorHook           func(ctx context.Context, in *ErrorInput, out *ErrorOutput) error
	ValidateHook        func(ctx context.Context, in *ValidateInput, out *ValidateOutput) error
)

// Definition is the plugin registration surface. Hooks is keyed by
// HookName; each value's concrete type must match its key (see
// ValidateDefinition).
type Definition struct {
	Name        string
	InstanceID  string
	Version     string
	Permissions []Permission
	Resolvers   map[string]ResolverFunc
	Hooks       map[HookName]any
	Commands    map[string]CommandFunc
	Tools       map[string]ToolFunc
	Middleware  []MiddlewareFunc
	OnEvent     EventFunc
	Setup       func(ctx context.Context, pctx *PluginContext) error
	Teardown    func(ctx context.Context) error
}

// ID returns name#instanceId, the identity plugins are registered under.
func (d *Definition) ID() string {
	instance := d.InstanceID
	if instance == "" {
		instance = DefaultInstanceID
	}
	return d.Name + "#" + instance
}

// LoadedPlugin is a registered plugin with its granted capability set.
type LoadedPlugin struct {
	ID          string
	Definition  *Definition
	Source      Source
	Granted     map[Permission]bool
	Context     *PluginContext
	Initialized bool
	LoadedAt    time.Time
}

// HasPermission reports whether the plugin was granted perm at load time.
func (p *LoadedPlugin) HasPermission(perm Permission) bool {
	return p.Granted[perm]
}

func (p *LoadedPlugin) hook(name HookName) (any, bool) {
	if p.Definition == nil || p.Definition.Hooks == nil {
		return nil, false
	}
	h, ok := p.Definition.Hooks[name]
	return h, ok && h != nil
}

// Report is a sequence-numbered observation recorded against a run/flow
// scope.
type Report struct {
	PluginName  string    `json:"pluginName"`
	RunID       string    `json:"runId"`
	Ts          time.Time `json:"ts"`
	Seq         int       `json:"seq"`
	RequestName string    `json:"requestName,omitempty"`
	Data        any       `json:"data"`
}
