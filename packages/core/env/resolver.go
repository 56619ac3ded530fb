package env

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/abdul-hamid-achik/treq/packages/builtin"
	"github.com/abdul-hamid-achik/treq/packages/plugin"
)

var variablePattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// WarnFunc is a function type for handling warnings
type WarnFunc func(format string, args ...any)

// ResolverFunc produces a dynamic value for a $-prefixed call.
type ResolverFunc func(ctx context.Context, args []string) (string, error)

// Resolver substitutes variables into request text. Plain {{name}}
// expressions read the variable map; {{$name(...)}} expressions dispatch
// into the resolver table (plugin and command resolvers merged by the
// manager), falling back to builtin functions. Resolver calls may block,
// so every entry point takes a context.
type Resolver struct {
	mu        sync.RWMutex
	variables map[string]any
	table     map[string]ResolverFunc
	funcs     *builtin.Registry
	warnFunc  WarnFunc
}

func NewResolver() *Resolver {
	return &Resolver{
		variables: make(map[string]any),
		table:     make(map[string]ResolverFunc),
		funcs:     builtin.NewRegistry(),
	}
}

// SetWarnFunc sets a function to be called for unresolved variables.
func (r *Resolver) SetWarnFunc(fn WarnFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnFunc = fn
}

func (r *Resolver) warn(format string, args ...any) {
	r.mu.RLock()
	fn := r.warnFunc
	r.mu.RUnlock()
	if fn != nil {
		fn(format, args...)
	}
}

func (r *Resolver) SetVariables(vars map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range vars {
		r.variables[k] = v
	}
}

func (r *Resolver) SetVariable(name string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.variables[name] = value
}

// SetResolverTable installs the merged resolver table. Keys carry the "$"
// prefix.
func (r *Resolver) SetResolverTable(table map[string]ResolverFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table = make(map[string]ResolverFunc, len(table))
	for name, fn := range table {
		r.table[name] = fn
	}
}

func (r *Resolver) GetVariable(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.variables[name]
	return v, ok
}

func (r *Resolver) HasVariable(name string) bool {
	_, ok := r.GetVariable(name)
	return ok
}

// Resolve substitutes every {{...}} expression in input. A failing
// resolver call aborts with a ResolverError; unresolved plain variables
// warn and keep the placeholder text.
func (r *Resolver) Resolve(ctx context.Context, input string) (string, error) {
	var firstErr error

	result := variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		if firstErr != nil {
			return match
		}

		expr := strings.TrimSpace(match[2 : len(match)-2])

		if strings.HasPrefix(expr, "$") {
			value, err := r.callResolver(ctx, expr, match)
			if err != nil {
				firstErr = err
				return match
			}
			return value
		}

		r.mu.RLock()
		val, ok := r.variables[expr]
		r.mu.RUnlock()
		if ok {
			return fmt.Sprintf("%v", val)
		}

		r.warn("unresolved variable: %s", expr)
		return match
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// ResolveMap resolves every value of a string map.
func (r *Resolver) ResolveMap(ctx context.Context, values map[string]string) (map[string]string, error) {
	result := make(map[string]string, len(values))
	for k, v := range values {
		resolved, err := r.Resolve(ctx, v)
		if err != nil {
			return nil, err
		}
		result[k] = resolved
	}
	return result, nil
}

// callResolver dispatches one $name(args) expression. Table entries win
// over builtins; an unknown name warns and keeps the placeholder.
func (r *Resolver) callResolver(ctx context.Context, expr, match string) (string, error) {
	name, args := splitCall(expr)

	r.mu.RLock()
	fn, ok := r.table[name]
	r.mu.RUnlock()

	if ok {
		value, err := fn(ctx, args)
		if err != nil {
			return "", &plugin.ResolverError{Resolver: name, Err: err}
		}
		return value, nil
	}

	value, found, err := r.funcs.Call(ctx, strings.TrimPrefix(name, "$"), args)
	if err != nil {
		return "", &plugin.ResolverError{Resolver: name, Err: err}
	}
	if found {
		return value, nil
	}

	r.warn("unresolved resolver call: %s", expr)
	return match, nil
}

// splitCall separates "$name(a, 'b c')" into name and parsed arguments.
// A bare "$name" is a zero-argument call.
func splitCall(expr string) (string, []string) {
	open := strings.Index(expr, "(")
	if open < 0 || !strings.HasSuffix(expr, ")") {
		return expr, nil
	}
	name := strings.TrimSpace(expr[:open])
	argsStr := expr[open+1 : len(expr)-1]
	if strings.TrimSpace(argsStr) == "" {
		return name, nil
	}
	return name, parseArgs(argsStr)
}

// parseArgs splits a comma-separated argument list, honoring single and
// double quotes.
func parseArgs(s string) []string {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := byte(0)

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case !inQuote && (ch == '"' || ch == '\''):
			inQuote = true
			quoteChar = ch
		case inQuote && ch == quoteChar:
			inQuote = false
			quoteChar = 0
		case !inQuote && ch == ',':
			args = append(args, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}

	if current.Len() > 0 {
		args = append(args, strings.TrimSpace(current.String()))
	}

	return args
}
