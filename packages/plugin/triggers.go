package plugin

import (
	"context"

	"github.com/abdul-hamid-achik/treq/packages/http"
)

// Trigger methods invoke one hook kind across all loaded plugins in
// registration order, threading the output forward: each plugin receives
// the previous plugin's committed mutation as its input. A failing plugin's
// mutation is discarded and dispatch continues, so the chain's result is
// whatever the last successful plugin produced.

// TriggerRequestBefore runs request.before across the registry. It returns
// the composed request and whether any plugin set the skip flag; once set,
// remaining before-hooks do not run.
func (m *Manager) TriggerRequestBefore(ctx context.Context, hctx *HookContext, req *http.Request) (*http.Request, bool) {
	out := &RequestOutput{Request: req.Clone()}

	for _, lp := range m.Plugins() {
		raw, ok := lp.hook(HookRequestBefore)
		if !ok {
			continue
		}
		hook := raw.(RequestBeforeHook)

		in := &HookInput{Request: out.Request.Clone(), Ctx: hctx.forPlugin(lp.ID)}
		candidate := out.clone()
		err := m.invokeHook(ctx, lp, HookRequestBefore, "before", func(c context.Context) error {
			return hook(c, in, candidate)
		})
		if err != nil {
			continue
		}
		out = candidate

		if out.Skip {
			m.Emit(Event{
				Type:        EventRequestSkipped,
				Plugin:      lp.ID,
				RequestName: hctx.RequestName,
				Method:      out.Request.Method,
				URL:         out.Request.URL,
				Retries:     hctx.Retries,
			})
			break
		}
	}

	return out.Request, out.Skip
}

// TriggerRequestCompiled runs request.compiled across the registry. The
// request is fully interpolated and compiled, which makes this the stage
// for request signing. No skip capability here.
func (m *Manager) TriggerRequestCompiled(ctx context.Context, hctx *HookContext, req *http.Request) *http.Request {
	out := &RequestOutput{Request: req.Clone()}

	for _, lp := range m.Plugins() {
		raw, ok := lp.hook(HookRequestCompiled)
		if !ok {
			continue
		}
		hook := raw.(RequestCompiledHook)

		in := &HookInput{Request: out.Request.Clone(), Ctx: hctx.forPlugin(lp.ID)}
		candidate := out.clone()
		err := m.invokeHook(ctx, lp, HookRequestCompiled, "compiled", func(c context.Context) error {
			return hook(c, in, candidate)
		})
		if err != nil {
			continue
		}
		out = candidate
	}

	return out.Request
}

// TriggerRequestAfter runs request.after across the registry. Hooks are
// observational: there is no output object and errors never mutate the
// request.
func (m *Manager) TriggerRequestAfter(ctx context.Context, hctx *HookContext, req *http.Request) {
	for _, lp := range m.Plugins() {
		raw, ok := lp.hook(HookRequestAfter)
		if !ok {
			continue
		}
		hook := raw.(RequestAfterHook)

		in := &HookInput{Request: req.Clone(), Ctx: hctx.forPlugin(lp.ID)}
		_ = m.invokeHook(ctx, lp, HookRequestAfter, "after", func(c context.Context) error {
			return hook(c, in)
		})
	}
}

// TriggerResponseAfter runs response.after across the registry and
// returns the accumulated override set (possibly carrying a retry
// signal). The input response stays the transport's original; overrides
// compose in the output.
func (m *Manager) TriggerResponseAfter(ctx context.Context, hctx *HookContext, req *http.Request, resp *http.Response) *ResponseOutput {
	out := &ResponseOutput{}

	for _, lp := range m.Plugins() {
		raw, ok := lp.hook(HookResponseAfter)
		if !ok {
			continue
		}
		hook := raw.(ResponseAfterHook)

		in := &ResponseInput{Request: req.Clone(), Response: resp.Clone(), Ctx: hctx.forPlugin(lp.ID)}
		candidate := out.clone()
		err := m.invokeHook(ctx, lp, HookResponseAfter, "response", func(c context.Context) error {
			return hook(c, in, candidate)
		})
		if err != nil {
			continue
		}
		out = candidate
	}

	return out
}

// TriggerError runs error hooks when compilation or transmission fails
// fatally. A hook may replace the error, suppress it, or signal a retry.
func (m *Manager) TriggerError(ctx context.Context, hctx *HookContext, stage string, cause error) *ErrorOutput {
	out := &ErrorOutput{Err: cause}

	for _, lp := range m.Plugins() {
		raw, ok := lp.hook(HookError)
		if !ok {
			continue
		}
		hook := raw.(ErrorHook)

		in := &ErrorInput{Err: out.Err, Stage: stage, Ctx: hctx.forPlugin(lp.ID)}
		candidate := out.clone()
		err := m.invokeHook(ctx, lp, HookError, stage, func(c context.Context) error {
			return hook(c, in, candidate)
		})
		if err != nil {
			continue
		}
		out = candidate
	}

	return out
}

// TriggerValidate runs validate hooks over raw file content. All plugins
// append to a single shared diagnostics slice, in plugin order; a failing
// plugin contributes nothing.
func (m *Manager) TriggerValidate(ctx context.Context, in *ValidateInput) []Diagnostic {
	out := &ValidateOutput{}

	for _, lp := range m.Plugins() {
		raw, ok := lp.hook(HookValidate)
		if !ok {
			continue
		}
		hook := raw.(ValidateHook)

		pin := *in
		if in.Ctx != nil {
			pin.Ctx = in.Ctx.forPlugin(lp.ID)
		}
		candidate := out.clone()
		err := m.invokeHook(ctx, lp, HookValidate, "validate", func(c context.Context) error {
			return hook(c, &pin, candidate)
		})
		if err != nil {
			continue
		}
		out = candidate
	}

	return out.Diagnostics
}
