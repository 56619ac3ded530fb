package env

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/treq/packages/plugin"
)

func TestResolve_Variables(t *testing.T) {
	r := NewResolver()
	r.SetVariables(map[string]any{
		"baseUrl": "http://localhost:3000",
		"port":    8080,
	})

	result, err := r.Resolve(context.Background(), "{{baseUrl}}/users?port={{port}}")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/users?port=8080", result)
}

func TestResolve_UnresolvedVariableKeepsPlaceholder(t *testing.T) {
	r := NewResolver()

	var warnings []string
	r.SetWarnFunc(func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	})

	result, err := r.Resolve(context.Background(), "GET {{missing}}/path")
	require.NoError(t, err)
	assert.Equal(t, "GET {{missing}}/path", result)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "missing")
}

func TestResolve_ResolverTable(t *testing.T) {
	r := NewResolver()
	r.SetResolverTable(map[string]ResolverFunc{
		"$vault": func(ctx context.Context, args []string) (string, error) {
			return "secret:" + args[0] + "/" + args[1], nil
		},
	})

	result, err := r.Resolve(context.Background(), "Bearer {{$vault(db, 'pass word')}}")
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret:db/pass word", result)
}

func TestResolve_ResolverErrorAborts(t *testing.T) {
	r := NewResolver()
	r.SetResolverTable(map[string]ResolverFunc{
		"$vault": func(ctx context.Context, args []string) (string, error) {
			return "", errors.New("sealed")
		},
	})

	_, err := r.Resolve(context.Background(), "Bearer {{$vault(key)}}")
	require.Error(t, err)

	var resErr *plugin.ResolverError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "$vault", resErr.Resolver)
}

func TestResolve_TableWinsOverBuiltin(t *testing.T) {
	r := NewResolver()
	r.SetResolverTable(map[string]ResolverFunc{
		"$uuid": func(ctx context.Context, args []string) (string, error) {
			return "fixed-id", nil
		},
	})

	result, err := r.Resolve(context.Background(), "{{$uuid}}")
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", result)
}

func TestResolve_BuiltinFallback(t *testing.T) {
	r := NewResolver()

	result, err := r.Resolve(context.Background(), "{{$base64(hello)}}")
	require.NoError(t, err)
	assert.Equal(t, "aGVsbG8=", result)
}

func TestResolve_UnknownResolverKeepsPlaceholder(t *testing.T) {
	r := NewResolver()

	var warned bool
	r.SetWarnFunc(func(format string, args ...any) { warned = true })

	result, err := r.Resolve(context.Background(), "{{$nope(1)}}")
	require.NoError(t, err)
	assert.Equal(t, "{{$nope(1)}}", result)
	assert.True(t, warned)
}

func TestResolveMap(t *testing.T) {
	r := NewResolver()
	r.SetVariable("token", "abc")

	resolved, err := r.ResolveMap(context.Background(), map[string]string{
		"Authorization": "Bearer {{token}}",
		"Accept":        "application/json",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", resolved["Authorization"])
	assert.Equal(t, "application/json", resolved["Accept"])
}

func TestSplitCall(t *testing.T) {
	tests := []struct {
		expr     string
		wantName string
		wantArgs []string
	}{
		{"$uuid", "$uuid", nil},
		{"$uuid()", "$uuid", nil},
		{"$env(HOME)", "$env", []string{"HOME"}},
		{"$randomInt(1, 10)", "$randomInt", []string{"1", "10"}},
		{`$date('2006-01-02', "UTC")`, "$date", []string{"2006-01-02", "UTC"}},
		{"$jsonpath(a,b)", "$jsonpath", []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			name, args := splitCall(tt.expr)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}
