package plugin

import (
	"fmt"
	"strings"
)

// ValidateDefinition enforces the registration shape contract: required
// name, recognized permissions, $-prefixed resolver names, whitelisted
// hook names with matching callable types, and non-nil command/tool/
// middleware entries. Any violation fails registration immediately.
func ValidateDefinition(def *Definition) error {
	if def == nil {
		return fmt.Errorf("plugin definition is nil")
	}
	if strings.TrimSpace(def.Name) == "" {
		return fmt.Errorf("plugin name is required")
	}
	if strings.Contains(def.Name, "#") {
		return fmt.Errorf("plugin %q: name must not contain '#'", def.Name)
	}

	for _, perm := range def.Permissions {
		if !ValidPermissions[perm] {
			return fmt.Errorf("plugin %q: unrecognized permission: %s", def.Name, perm)
		}
	}

	for name, fn := range def.Resolvers {
		if !strings.HasPrefix(name, "$") {
			return fmt.Errorf("plugin %q: resolver %q must start with '$'", def.Name, name)
		}
		if len(name) == 1 {
			return fmt.Errorf("plugin %q: resolver name %q is empty", def.Name, name)
		}
		if fn == nil {
			return fmt.Errorf("plugin %q: resolver %q is nil", def.Name, name)
		}
	}

	for name, fn := range def.Hooks {
		if err := validateHook(name, fn); err != nil {
			return fmt.Errorf("plugin %q: %w", def.Name, err)
		}
	}

	for name, fn := range def.Commands {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("plugin %q: command with empty name", def.Name)
		}
		if fn == nil {
			return fmt.Errorf("plugin %q: command %q is nil", def.Name, name)
		}
	}

	for name, fn := range def.Tools {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("plugin %q: tool with empty name", def.Name)
		}
		if fn == nil {
			return fmt.Errorf("plugin %q: tool %q is nil", def.Name, name)
		}
	}

	for i, mw := range def.Middleware {
		if mw == nil {
			return fmt.Errorf("plugin %q: middleware %d is nil", def.Name, i)
		}
	}

	return nil
}

// validateHook checks the hook name against the whitelist and the value
// against the concrete function type belonging to that name.
func validateHook(name HookName, fn any) error {
	if fn == nil {
		return fmt.Errorf("hook %s is nil", name)
	}

	switch name {
	case HookRequestBefore:
		if _, ok := fn.(RequestBeforeHook); !ok {
			return hookTypeError(name, "RequestBeforeHook")
		}
	case HookRequestCompiled:
		if _, ok := fn.(RequestCompiledHook); !ok {
			return hookTypeError(name, "RequestCompiledHook")
		}
	case HookRequestAfter:
		if _, ok := fn.(RequestAfterHook); !ok {
			return hookTypeError(name, "RequestAfterHook")
		}
	case HookResponseAfter:
		if _, ok := fn.(ResponseAfterHook); !ok {
			return hookTypeError(name, "ResponseAfterHook")
		}
	case HookError:
		if _, ok := fn.(ErrorHook); !ok {
			return hookTypeError(name, "ErrorHook")
		}
	case HookValidate:
		if _, ok := fn.(ValidateHook); !ok {
			return hookTypeError(name, "ValidateHook")
		}
	default:
		return fmt.Errorf("unknown hook name: %s", name)
	}

	return nil
}

func hookTypeError(name HookName, want string) error {
	return fmt.Errorf("hook %s: value must be a %s", name, want)
}
