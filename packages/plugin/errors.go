package plugin

import (
	"errors"
	"fmt"
)

// HookExecutionError wraps a failure (returned error or panic) inside one
// plugin's hook. It is isolated by the executor and never propagates to
// the request caller.
type HookExecutionError struct {
	PluginID string
	Hook     HookName
	Stage    string
	Err      error
}

func (e *HookExecutionError) Error() string {
	return fmt.Sprintf("plugin %s: hook %s failed: %v", e.PluginID, e.Hook, e.Err)
}

func (e *HookExecutionError) Unwrap() error {
	return e.Err
}

// ResolverError wraps an in-process or command resolver failure. It
// propagates out of interpolation and aborts the current pipeline attempt.
type ResolverError struct {
	Resolver string
	Err      error
}

func (e *ResolverError) Error() string {
	return fmt.Sprintf("resolver %s: %v", e.Resolver, e.Err)
}

func (e *ResolverError) Unwrap() error {
	return e.Err
}

// PermissionDeniedError reports a capability requested without the
// corresponding permission in the granted set.
type PermissionDeniedError struct {
	PluginID   string
	Permission Permission
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("plugin %s: permission denied: %s", e.PluginID, e.Permission)
}

// IsPermissionDenied reports whether err is a PermissionDeniedError.
func IsPermissionDenied(err error) bool {
	var pd *PermissionDeniedError
	return errors.As(err, &pd)
}
