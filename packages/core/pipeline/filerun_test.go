package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/treq/packages/core/parser"
	"github.com/abdul-hamid-achik/treq/packages/plugin"
)

func testFile(requests ...*parser.Request) *parser.File {
	return &parser.File{
		Path:      "suite.http",
		Variables: map[string]string{},
		Requests:  requests,
	}
}

func TestRunFile_AllRequestsSucceed(t *testing.T) {
	m := newTestManager(t)
	transport := &fakeTransport{}
	p := New(m, transport)

	file := testFile(
		parsedRequest("GET", "http://example.test/a"),
		parsedRequest("GET", "http://example.test/b"),
	)

	results, err := p.RunFile(context.Background(), file, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.NoError(t, res.Err)
		assert.Equal(t, 200, res.Response.StatusCode)
		assert.NotEmpty(t, res.RunID)
	}
	assert.NotEqual(t, results[0].RunID, results[1].RunID)
}

func TestRunFile_SharedFlowScope(t *testing.T) {
	m := newTestManager(t)

	var flowIDs []string
	_, err := m.Register(&plugin.Definition{
		Name: "observer",
		Hooks: map[plugin.HookName]any{
			plugin.HookRequestBefore: plugin.RequestBeforeHook(func(ctx context.Context, in *plugin.HookInput, out *plugin.RequestOutput) error {
				flowIDs = append(flowIDs, in.Ctx.FlowID)
				return nil
			}),
		},
	}, plugin.SourceInline, nil)
	require.NoError(t, err)

	p := New(m, &fakeTransport{})
	file := testFile(
		parsedRequest("GET", "http://example.test/a"),
		parsedRequest("GET", "http://example.test/b"),
	)

	results, err := p.RunFile(context.Background(), file, nil)
	require.NoError(t, err)

	require.Len(t, flowIDs, 2)
	assert.NotEmpty(t, flowIDs[0])
	assert.Equal(t, flowIDs[0], flowIDs[1], "every request in a file shares one flow")

	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, flowIDs[0], res.FlowID)
	}
}

func TestRunFile_SkipMetadata(t *testing.T) {
	m := newTestManager(t)
	transport := &fakeTransport{}
	p := New(m, transport)

	skipped := parsedRequest("GET", "http://example.test/flaky")
	skipped.Skip = "upstream is down"

	file := testFile(skipped, parsedRequest("GET", "http://example.test/ok"))

	results, err := p.RunFile(context.Background(), file, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].Skipped)
	assert.Equal(t, "upstream is down", results[0].SkipReason)
	assert.Nil(t, results[0].Response)

	assert.False(t, results[1].Skipped)
	assert.Len(t, transport.requests, 1, "skipped requests never reach the transport")
}

func TestRunFile_BailStopsAtFirstFailure(t *testing.T) {
	m := newTestManager(t)
	transport := &fakeTransport{errs: []error{errors.New("connection refused")}}
	p := New(m, transport)

	file := testFile(
		parsedRequest("GET", "http://example.test/a"),
		parsedRequest("GET", "http://example.test/b"),
	)

	results, err := p.RunFile(context.Background(), file, &FileRunOptions{Bail: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
}

func TestRunFile_ContinuesWithoutBail(t *testing.T) {
	m := newTestManager(t)
	transport := &fakeTransport{errs: []error{errors.New("connection refused")}}
	p := New(m, transport)

	file := testFile(
		parsedRequest("GET", "http://example.test/a"),
		parsedRequest("GET", "http://example.test/b"),
	)

	results, err := p.RunFile(context.Background(), file, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)
}

func TestRunFile_PerRequestRetryOverridesDefault(t *testing.T) {
	m := newTestManager(t)

	var budgets []int
	_, err := m.Register(&plugin.Definition{
		Name: "observer",
		Hooks: map[plugin.HookName]any{
			plugin.HookRequestBefore: plugin.RequestBeforeHook(func(ctx context.Context, in *plugin.HookInput, out *plugin.RequestOutput) error {
				budgets = append(budgets, in.Ctx.MaxRetries)
				return nil
			}),
		},
	}, plugin.SourceInline, nil)
	require.NoError(t, err)

	p := New(m, &fakeTransport{})

	stubborn := parsedRequest("GET", "http://example.test/b")
	stubborn.MaxRetries = 5

	file := testFile(parsedRequest("GET", "http://example.test/a"), stubborn)

	_, err = p.RunFile(context.Background(), file, &FileRunOptions{MaxRetries: 2})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5}, budgets)
}

func TestRunFile_VariablesMergeUnderFileDeclarations(t *testing.T) {
	m := newTestManager(t)
	transport := &fakeTransport{}
	p := New(m, transport)

	file := testFile(parsedRequest("GET", "{{baseUrl}}/users/{{id}}"))
	file.Variables = map[string]string{"baseUrl": "http://file.test"}

	opts := &FileRunOptions{Variables: map[string]any{
		"baseUrl": "http://cli.test",
		"id":      "42",
	}}

	results, err := p.RunFile(context.Background(), file, opts)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	require.Len(t, transport.requests, 1)
	assert.Equal(t, "http://file.test/users/42", transport.requests[0].URL)
}

func TestRunFile_CancelledContext(t *testing.T) {
	m := newTestManager(t)
	p := New(m, &fakeTransport{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	file := testFile(
		parsedRequest("GET", "http://example.test/a"),
		parsedRequest("GET", "http://example.test/b"),
	)

	results, err := p.RunFile(ctx, file, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, len(results), 2)
}
