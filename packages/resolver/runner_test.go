package resolver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, content string) Definition {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resolver.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+content), 0755))
	return Definition{Command: []string{"sh", path}}
}

func newTestRunner() *Runner {
	r := NewRunner(zerolog.Nop())
	r.GracePeriod = 50 * time.Millisecond
	return r
}

func TestExecute_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	def := writeScript(t, `read line
printf '%s' "$line" > request.json
printf '{"value":"s3cret"}\n'`)

	value, err := newTestRunner().Execute(context.Background(), def, "$vault", []string{"db", "password"}, dir)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", value)

	// The request line carries the resolver name and args as one JSON object.
	data, err := os.ReadFile(filepath.Join(dir, "request.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"resolver":"$vault","args":["db","password"]}`, string(data))
}

func TestExecute_FirstNonEmptyLineWins(t *testing.T) {
	def := writeScript(t, `printf '\r\n\n{"value":"first"}\r\n{"value":"second"}\n'`)

	value, err := newTestRunner().Execute(context.Background(), def, "$r", nil, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "first", value)
}

func TestExecute_Timeout(t *testing.T) {
	// exec so SIGTERM reaches the sleeping process, not just the shell.
	def := writeScript(t, `exec sleep 5`)
	def.TimeoutMs = 50

	start := time.Now()
	_, err := newTestRunner().Execute(context.Background(), def, "$slow", nil, t.TempDir())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	var resErr *Error
	require.ErrorAs(t, err, &resErr)
	assert.Contains(t, resErr.Detail, "timed out after 50ms")
	assert.Equal(t, "$slow", resErr.Resolver)
}

func TestExecute_ExitCodeAndStderr(t *testing.T) {
	def := writeScript(t, `echo "no such key" >&2
exit 3`)

	_, err := newTestRunner().Execute(context.Background(), def, "$vault", nil, t.TempDir())
	require.Error(t, err)

	var resErr *Error
	require.ErrorAs(t, err, &resErr)
	assert.Contains(t, resErr.Detail, "exited with code 3")
	assert.Contains(t, resErr.Stderr, "no such key")
}

func TestExecute_MissingValueField(t *testing.T) {
	def := writeScript(t, `printf '{"other":1}\n'`)

	_, err := newTestRunner().Execute(context.Background(), def, "$r", nil, t.TempDir())
	require.Error(t, err)

	var resErr *Error
	require.ErrorAs(t, err, &resErr)
	assert.Contains(t, resErr.Detail, `missing "value"`)
}

func TestExecute_InvalidJSON(t *testing.T) {
	def := writeScript(t, `echo not-json`)

	_, err := newTestRunner().Execute(context.Background(), def, "$r", nil, t.TempDir())
	require.Error(t, err)

	var resErr *Error
	require.ErrorAs(t, err, &resErr)
	assert.Contains(t, resErr.Detail, "invalid JSON output")
}

func TestExecute_NoOutput(t *testing.T) {
	def := writeScript(t, `exit 0`)

	_, err := newTestRunner().Execute(context.Background(), def, "$r", nil, t.TempDir())
	require.Error(t, err)

	var resErr *Error
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "no output", resErr.Detail)
}

func TestExecute_StdoutTruncation(t *testing.T) {
	def := writeScript(t, `printf 'aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa\n{"value":"x"}\n'`)

	r := newTestRunner()
	r.StdoutLimit = 16

	_, err := r.Execute(context.Background(), def, "$big", nil, t.TempDir())
	require.Error(t, err)

	var resErr *Error
	require.ErrorAs(t, err, &resErr)
	assert.True(t, resErr.Truncated)
	assert.Contains(t, resErr.Error(), "output truncated")
}

func TestExecute_ContextCancelled(t *testing.T) {
	def := writeScript(t, `exec sleep 5`)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newTestRunner().Execute(ctx, def, "$slow", nil, t.TempDir())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	var resErr *Error
	require.ErrorAs(t, err, &resErr)
	assert.True(t, resErr.Cancelled)
}

func TestExecute_EmptyCommand(t *testing.T) {
	_, err := newTestRunner().Execute(context.Background(), Definition{}, "$r", nil, t.TempDir())
	require.Error(t, err)

	var resErr *Error
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "empty command", resErr.Detail)
}

func TestResolverFunc(t *testing.T) {
	def := writeScript(t, `printf '{"value":"adapted"}\n'`)

	fn := newTestRunner().ResolverFunc(def, "$r", t.TempDir())
	value, err := fn(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "adapted", value)
}
