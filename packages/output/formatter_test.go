package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/treq/packages/core/parser"
	"github.com/abdul-hamid-achik/treq/packages/core/pipeline"
	treqhttp "github.com/abdul-hamid-achik/treq/packages/http"
	"github.com/abdul-hamid-achik/treq/packages/stats"
)

func sampleResults() []*pipeline.FileResult {
	return []*pipeline.FileResult{
		{
			Request:  &parser.Request{Name: "getUser", Method: "GET", URL: "http://example.test/users/1"},
			RunID:    "run-1",
			Response: &treqhttp.Response{StatusCode: 200, Status: "200 OK", Headers: map[string]string{}},
			Duration: 12 * time.Millisecond,
		},
		{
			Request:  &parser.Request{Method: "POST", URL: "http://example.test/users"},
			RunID:    "run-2",
			Err:      errors.New("connection refused"),
			Duration: 3 * time.Millisecond,
		},
		{
			Request:    &parser.Request{Name: "flaky", Method: "GET", URL: "http://example.test/flaky"},
			Skipped:    true,
			SkipReason: "upstream is down",
		},
	}
}

func sampleSummary() *stats.Summary {
	r := stats.NewRecorder()
	r.Record("getUser", 12*time.Millisecond, nil)
	r.Record("POST http://example.test/users", 3*time.Millisecond, errors.New("connection refused"))
	return r.Summary()
}

func TestNewFormatter(t *testing.T) {
	for _, format := range []Format{FormatConsole, FormatJSON, FormatJUnit, FormatTAP, ""} {
		f, err := NewFormatter(format)
		require.NoError(t, err, "format %q", format)
		assert.NotNil(t, f)
	}

	_, err := NewFormatter("yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown output format "yaml"`)
}

func TestConsoleFormatter(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer

	f := NewConsoleFormatter(WithWriter(&buf))
	f.FileResults("api.http", sampleResults())
	require.NoError(t, f.Flush(sampleSummary()))

	out := buf.String()
	assert.Contains(t, out, "PASS  getUser 200")
	assert.Contains(t, out, "FAIL  POST http://example.test/users: connection refused")
	assert.Contains(t, out, "SKIP  flaky (upstream is down)")
	assert.Contains(t, out, "2 requests, 1 passed, 1 failed")
}

func TestConsoleFormatter_EmptySummary(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(WithWriter(&buf))
	require.NoError(t, f.Flush(stats.NewRecorder().Summary()))
	assert.Empty(t, buf.String())
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer

	f := NewJSONFormatter(WithWriter(&buf))
	f.FileResults("api.http", sampleResults())
	require.NoError(t, f.Flush(sampleSummary()))

	var report JSONReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))

	assert.Equal(t, int64(2), report.Summary.Total)
	assert.Equal(t, int64(1), report.Summary.Passed)
	assert.Equal(t, int64(1), report.Summary.Failed)

	require.Len(t, report.Runs, 3)
	assert.Equal(t, "getUser", report.Runs[0].Name)
	assert.Equal(t, "api.http", report.Runs[0].File)
	assert.Equal(t, 200, report.Runs[0].Status)
	assert.Equal(t, "connection refused", report.Runs[1].Error)
	assert.True(t, report.Runs[2].Skipped)
	assert.Equal(t, "upstream is down", report.Runs[2].SkipReason)
}

func TestJUnitFormatter(t *testing.T) {
	var buf bytes.Buffer

	f := NewJUnitFormatter(WithWriter(&buf))
	f.FileResults("api.http", sampleResults())
	require.NoError(t, f.Flush(sampleSummary()))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out, `<testsuites name="treq" tests="3" errors="1" skipped="1"`)
	assert.Contains(t, out, `<testsuite name="api.http"`)
	assert.Contains(t, out, `<testcase name="getUser" classname="api.http"`)
	assert.Contains(t, out, `<error message="connection refused" type="RequestError"`)
	assert.Contains(t, out, `<skipped message="upstream is down"`)
}

func TestTAPFormatter(t *testing.T) {
	var buf bytes.Buffer

	f := NewTAPFormatter(WithWriter(&buf))
	f.FileResults("api.http", sampleResults())
	require.NoError(t, f.Flush(sampleSummary()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "TAP version 13", lines[0])
	assert.Equal(t, "1..3", lines[1])
	assert.Equal(t, "ok 1 - getUser", lines[2])
	assert.Equal(t, "not ok 2 - POST http://example.test/users", lines[3])
	assert.Contains(t, buf.String(), "ok 3 - flaky # SKIP upstream is down")
	assert.Contains(t, buf.String(), "message: connection refused")
	assert.Contains(t, buf.String(), "severity: error")
}
