package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/abdul-hamid-achik/treq/packages/core/env"
	"github.com/abdul-hamid-achik/treq/packages/core/parser"
	treqhttp "github.com/abdul-hamid-achik/treq/packages/http"
	"github.com/abdul-hamid-achik/treq/packages/plugin"
)

// Transport sends a compiled request. *http.Client satisfies this; tests
// substitute fakes.
type Transport interface {
	Do(ctx context.Context, req *treqhttp.Request) (*treqhttp.Response, error)
}

type Pipeline struct {
	manager        *plugin.Manager
	transport      Transport
	cookies        CookieProvider
	defaultHeaders map[string]string
	retryDelay     time.Duration
	logger         zerolog.Logger
}

type Option func(*Pipeline)

// WithCookieProvider injects a cookie source consulted before transmit.
func WithCookieProvider(cookies CookieProvider) Option {
	return func(p *Pipeline) { p.cookies = cookies }
}

// WithDefaultHeaders sets headers merged under request headers at compile
// time.
func WithDefaultHeaders(headers map[string]string) Option {
	return func(p *Pipeline) { p.defaultHeaders = headers }
}

// WithRetryDelay sets the wait before a retry attempt when neither the
// retry signal nor the request's own retryDelay carries one.
func WithRetryDelay(d time.Duration) Option {
	return func(p *Pipeline) { p.retryDelay = d }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger.With().Str("component", "pipeline").Logger() }
}

func New(manager *plugin.Manager, transport Transport, opts ...Option) *Pipeline {
	p := &Pipeline{
		manager:   manager,
		transport: transport,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the request until it completes, errors fatally, or
// exhausts its retry budget. The returned response may carry hook
// overrides.
func (p *Pipeline) Run(ctx context.Context, parsed *parser.Request, variables map[string]any, basePath string, hctx *plugin.HookContext) (*treqhttp.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	for retries := 0; ; retries++ {
		attemptCtx := hctx.WithRetries(retries)

		resp, retry, err := p.attempt(ctx, parsed, variables, basePath, attemptCtx)

		if retry != nil && retries < attemptCtx.MaxRetries {
			delay := p.delayFor(retry, parsed)
			p.manager.Emit(plugin.Event{
				Type:        plugin.EventRetryScheduled,
				RequestName: attemptCtx.RequestName,
				Retries:     retries + 1,
				DelayMs:     delay.Milliseconds(),
				Message:     retry.Reason,
			})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}

		return resp, err
	}
}

// delayFor resolves the retry wait: the signal's own delay wins, then
// the request's @retryDelay, then the pipeline default.
func (p *Pipeline) delayFor(retry *plugin.RetrySignal, parsed *parser.Request) time.Duration {
	if retry.Delay > 0 {
		return retry.Delay
	}
	if parsed.RetryDelay > 0 {
		return time.Duration(parsed.RetryDelay) * time.Millisecond
	}
	return p.retryDelay
}

// attempt runs one full pass through the stages. The returned retry
// signal, if any, is honored by Run subject to the retry budget.
func (p *Pipeline) attempt(ctx context.Context, parsed *parser.Request, variables map[string]any, basePath string, hctx *plugin.HookContext) (*treqhttp.Response, *plugin.RetrySignal, error) {
	req := requestFromParsed(parsed)

	// Stage 1: before hooks, sequential composition with skip.
	req, skip := p.manager.TriggerRequestBefore(ctx, hctx, req)
	if skip {
		return treqhttp.NoContent(), nil, nil
	}

	// Stage 2: interpolation over the merged resolver table.
	req, err := p.interpolate(ctx, req, variables)
	if err != nil {
		return p.handleError(ctx, hctx, "interpolate", err)
	}

	// Stage 3: compile into a transmission-ready request.
	compiled, err := compile(req, basePath, p.defaultHeaders)
	if err != nil {
		return p.handleError(ctx, hctx, "compile", err)
	}

	// Stage 4: compiled hooks (signing happens here).
	compiled = p.manager.TriggerRequestCompiled(ctx, hctx, compiled)

	// Stage 5: after hooks, observation only.
	p.manager.TriggerRequestAfter(ctx, hctx, compiled)

	// Stage 6: cookie injection and transmission.
	if p.cookies != nil && compiled.Header("Cookie") == "" {
		if cookie := p.cookies.CookieHeader(compiled.URL); cookie != "" {
			compiled.Headers["Cookie"] = cookie
		}
	}

	p.manager.Emit(plugin.Event{
		Type:        plugin.EventFetchStarted,
		RequestName: hctx.RequestName,
		Method:      compiled.Method,
		URL:         compiled.URL,
		Retries:     hctx.Retries,
	})

	resp, err := p.transport.Do(ctx, compiled)
	if err != nil {
		return p.handleError(ctx, hctx, "transmit", err)
	}

	if p.cookies != nil {
		p.cookies.Remember(compiled.URL, resp)
	}

	p.manager.Emit(plugin.Event{
		Type:        plugin.EventFetchFinished,
		RequestName: hctx.RequestName,
		Method:      compiled.Method,
		URL:         compiled.URL,
		Status:      resp.StatusCode,
		Retries:     hctx.Retries,
	})

	// Stage 7: response hooks accumulate overrides and retry signals.
	out := p.manager.TriggerResponseAfter(ctx, hctx, compiled, resp)

	return out.Apply(resp), out.Retry, nil
}

// handleError routes a fatal stage failure through error hooks, which may
// replace the error, suppress it (optionally substituting a response), or
// request a retry.
func (p *Pipeline) handleError(ctx context.Context, hctx *plugin.HookContext, stage string, cause error) (*treqhttp.Response, *plugin.RetrySignal, error) {
	p.manager.Emit(plugin.Event{
		Type:        plugin.EventError,
		Stage:       stage,
		RequestName: hctx.RequestName,
		Retries:     hctx.Retries,
		Message:     cause.Error(),
	})

	out := p.manager.TriggerError(ctx, hctx, stage, cause)

	if out.Suppress {
		resp := out.Response
		if resp == nil {
			resp = treqhttp.NoContent()
		}
		return resp, out.Retry, nil
	}

	return nil, out.Retry, out.Err
}

// interpolate substitutes variables and resolver calls into the request's
// method, url, headers, and body.
func (p *Pipeline) interpolate(ctx context.Context, req *treqhttp.Request, variables map[string]any) (*treqhttp.Request, error) {
	resolver := env.NewResolver()
	resolver.SetVariables(variables)
	resolver.SetResolverTable(resolverTable(p.manager))
	resolver.SetWarnFunc(func(format string, args ...any) {
		p.logger.Warn().Msgf(format, args...)
	})

	var err error
	resolved := req.Clone()
	if resolved.URL, err = resolver.Resolve(ctx, req.URL); err != nil {
		return nil, err
	}
	if resolved.Method, err = resolver.Resolve(ctx, req.Method); err != nil {
		return nil, err
	}
	if resolved.Headers, err = resolver.ResolveMap(ctx, req.Headers); err != nil {
		return nil, err
	}
	if resolved.Body, err = resolver.Resolve(ctx, req.Body); err != nil {
		return nil, err
	}
	return resolved, nil
}

func resolverTable(m *plugin.Manager) map[string]env.ResolverFunc {
	merged := m.ResolverTable()
	table := make(map[string]env.ResolverFunc, len(merged))
	for name, fn := range merged {
		table[name] = env.ResolverFunc(fn)
	}
	return table
}

func requestFromParsed(parsed *parser.Request) *treqhttp.Request {
	req := treqhttp.NewRequest(parsed.Method, parsed.URL)
	req.Name = parsed.Name
	for k, v := range parsed.Headers {
		req.Headers[k] = v
	}
	req.Body = parsed.Body
	req.BodyFile = parsed.BodyFile
	return req
}
