package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), ".treq", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deeply", "nested", "history.db")
	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopening an existing database must not fail on the schema.
	store, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestRecordAndListRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.RecordRun(ctx, &Run{
			RunID:       fmt.Sprintf("run-%d", i),
			FlowID:      "flow-1",
			RequestName: "getUser",
			Method:      "GET",
			URL:         "http://example.test/users/1",
			Status:      200,
			DurationMs:  int64(10 + i),
		}))
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// Newest first.
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Equal(t, "run-1", runs[1].RunID)
	assert.Equal(t, "flow-1", runs[0].FlowID)
	assert.Equal(t, int64(12), runs[0].DurationMs)
	assert.False(t, runs[0].CreatedAt.IsZero())
}

func TestListRuns_DefaultLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		require.NoError(t, store.RecordRun(ctx, &Run{
			RunID:       fmt.Sprintf("run-%d", i),
			RequestName: "ping",
			Method:      "GET",
			URL:         "http://example.test/ping",
		}))
	}

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 20)
}

func TestRecordRun_FailedRequest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordRun(ctx, &Run{
		RunID:       "run-err",
		RequestName: "flaky",
		Method:      "GET",
		URL:         "http://example.test/flaky",
		Error:       "connection refused",
	}))

	runs, err := store.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "connection refused", runs[0].Error)
	assert.Zero(t, runs[0].Status)
}

func TestRecordAndListReports(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordReport(ctx, "auth#default", "run-1", "getUser", 2, map[string]any{"signed": true}))
	require.NoError(t, store.RecordReport(ctx, "auth#default", "run-1", "getUser", 1, "token refreshed"))
	require.NoError(t, store.RecordReport(ctx, "metrics#default", "run-2", "", 1, 42))

	reports, err := store.ReportsForRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, reports, 2)

	// Ordered by seq regardless of insertion order.
	assert.Equal(t, 1, reports[0].Seq)
	assert.Equal(t, `"token refreshed"`, reports[0].Data)
	assert.Equal(t, 2, reports[1].Seq)
	assert.JSONEq(t, `{"signed":true}`, reports[1].Data)
	assert.Equal(t, "auth#default", reports[0].PluginName)
	assert.Equal(t, "getUser", reports[0].RequestName)

	other, err := store.ReportsForRun(ctx, "run-2")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, "42", other[0].Data)
}

func TestReportsForRun_Empty(t *testing.T) {
	store := newTestStore(t)

	reports, err := store.ReportsForRun(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestRecordReport_UnencodableData(t *testing.T) {
	store := newTestStore(t)

	err := store.RecordReport(context.Background(), "bad#default", "run-1", "", 1, func() {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encoding report data")
}
