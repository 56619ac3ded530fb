package plugin

import (
	"context"
	"fmt"
	"time"
)

// invokeHook runs exactly one plugin's hook, timing the call and catching
// both returned errors and panics. On failure the error is recorded, an
// error event names the offending plugin/hook/stage, and the caller
// discards the plugin's pending output mutation. The next plugin still
// runs.
//
// When a hook timeout is configured, a hook that never settles is
// abandoned after the deadline; its goroutine keeps the discarded output
// clone, so a late write cannot poison pipeline state.
func (m *Manager) invokeHook(ctx context.Context, lp *LoadedPlugin, name HookName, stage string, call func(context.Context) error) error {
	start := time.Now()
	err := m.callWithRecovery(ctx, call)
	elapsed := time.Since(start)

	m.logger.Trace().
		Str("plugin", lp.ID).
		Str("hook", string(name)).
		Dur("elapsed", elapsed).
		Msg("hook invoked")

	if err == nil {
		return nil
	}

	hookErr := &HookExecutionError{PluginID: lp.ID, Hook: name, Stage: stage, Err: err}
	m.Emit(Event{
		Type:    EventError,
		Plugin:  lp.ID,
		Hook:    string(name),
		Stage:   stage,
		Message: hookErr.Error(),
	})
	return hookErr
}

func (m *Manager) callWithRecovery(ctx context.Context, call func(context.Context) error) (err error) {
	if m.hookTimeout <= 0 {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return call(ctx)
	}

	hookCtx, cancel := context.WithTimeout(ctx, m.hookTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- call(hookCtx)
	}()

	select {
	case err = <-done:
		return err
	case <-hookCtx.Done():
		return fmt.Errorf("hook did not settle within %s", m.hookTimeout)
	}
}
