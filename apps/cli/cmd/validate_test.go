package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/treq/packages/core/parser"
	"github.com/abdul-hamid-achik/treq/packages/plugin"
)

func writeRequestFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "api.http")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// linterDefinition records the input it was dispatched with and emits
// the given diagnostics.
func linterDefinition(seen *plugin.ValidateInput, diags ...plugin.Diagnostic) *plugin.Definition {
	return &plugin.Definition{
		Name: "linter",
		Hooks: map[plugin.HookName]any{
			plugin.HookValidate: plugin.ValidateHook(func(ctx context.Context, in *plugin.ValidateInput, out *plugin.ValidateOutput) error {
				*seen = *in
				out.Diagnostics = append(out.Diagnostics, diags...)
				return nil
			}),
		},
	}
}

func TestValidateFile_DispatchesValidateHooks(t *testing.T) {
	m := plugin.NewManager(zerolog.Nop(), t.TempDir())

	var seen plugin.ValidateInput
	warning := plugin.Diagnostic{
		Severity: plugin.SeverityWarning,
		Code:     "no-content-type",
		Message:  "POST without a Content-Type header",
		Range:    plugin.Range{Start: plugin.Position{Line: 2, Column: 1}},
	}
	_, err := m.Register(linterDefinition(&seen, warning), plugin.SourceInline, nil)
	require.NoError(t, err)

	content := "# @name getUser\nGET http://example.test/users/1\n"
	path := writeRequestFile(t, content)

	report, err := validateFile(context.Background(), m, path)
	require.NoError(t, err)

	require.NoError(t, report.parseErr)
	require.Len(t, report.diagnostics, 1)
	assert.Equal(t, warning, report.diagnostics[0])
	assert.False(t, report.failed(), "warnings alone do not fail validation")

	assert.Equal(t, content, seen.Content)
	assert.Equal(t, path, seen.Path)
	assert.Equal(t, parser.LineOffsets(content), seen.LinePositions)
	require.NotNil(t, seen.Ctx)
}

func TestValidateFile_ErrorDiagnosticFails(t *testing.T) {
	m := plugin.NewManager(zerolog.Nop(), t.TempDir())

	var seen plugin.ValidateInput
	_, err := m.Register(linterDefinition(&seen, plugin.Diagnostic{
		Severity: plugin.SeverityError,
		Code:     "insecure-url",
		Message:  "plain http URL",
	}), plugin.SourceInline, nil)
	require.NoError(t, err)

	path := writeRequestFile(t, "GET http://example.test/\n")

	report, err := validateFile(context.Background(), m, path)
	require.NoError(t, err)

	require.NoError(t, report.parseErr)
	assert.True(t, report.failed())
}

func TestValidateFile_ParseErrorStillRunsHooks(t *testing.T) {
	m := plugin.NewManager(zerolog.Nop(), t.TempDir())

	var seen plugin.ValidateInput
	_, err := m.Register(linterDefinition(&seen), plugin.SourceInline, nil)
	require.NoError(t, err)

	content := "FETCH http://example.test/\n"
	path := writeRequestFile(t, content)

	report, err := validateFile(context.Background(), m, path)
	require.NoError(t, err)

	require.Error(t, report.parseErr)
	assert.Contains(t, report.parseErr.Error(), "unknown method")
	assert.True(t, report.failed())
	assert.Equal(t, content, seen.Content, "hooks still see unparseable content")
}

func TestValidateFile_MissingFile(t *testing.T) {
	m := plugin.NewManager(zerolog.Nop(), t.TempDir())

	_, err := validateFile(context.Background(), m, filepath.Join(t.TempDir(), "missing.http"))
	require.Error(t, err)
}
