package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docindex-mcp/internal/storage"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func setupTracker(t *testing.T) (*Tracker, *storage.SQLiteStorage, *fakeClock) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(storage.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
	return New(store, WithClock(clock.Now)), store, clock
}

func TestBeginRun(t *testing.T) {
	tr, store, clock := setupTracker(t)
	ctx := context.Background()

	run, err := tr.BeginRun(ctx, "Documents/notes", 12)
	require.NoError(t, err)
	assert.Equal(t, storage.RunInProgress, run.Status)

	got, err := store.GetRun(ctx, "Documents/notes")
	require.NoError(t, err)
	assert.Equal(t, 12, got.TotalFiles)
	assert.Zero(t, got.SuccessCount)
	assert.Zero(t, got.ErrorCount)
	assert.True(t, got.CreatedAt.Equal(clock.t))
	assert.True(t, got.UpdatedAt.Equal(clock.t))
}

func TestCompleteRun_PreservesCreatedAt(t *testing.T) {
	tr, _, clock := setupTracker(t)
	ctx := context.Background()

	started := clock.t
	_, err := tr.BeginRun(ctx, "Documents/notes", 3)
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	run, err := tr.CompleteRun(ctx, "Documents/notes", 2, 1)
	require.NoError(t, err)

	assert.Equal(t, storage.RunComplete, run.Status)
	assert.Equal(t, 3, run.TotalFiles)
	assert.Equal(t, 2, run.SuccessCount)
	assert.Equal(t, 1, run.ErrorCount)
	assert.Greater(t, run.IndexSizeBytes, int64(0))

	stored, err := tr.Run(ctx, "Documents/notes")
	require.NoError(t, err)
	assert.True(t, stored.CreatedAt.Equal(started))
	assert.True(t, stored.UpdatedAt.Equal(clock.t))
}

func TestCompleteRun_WithoutBegin(t *testing.T) {
	tr, _, _ := setupTracker(t)

	run, err := tr.CompleteRun(context.Background(), "adhoc", 4, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, run.TotalFiles)
	assert.Equal(t, storage.RunComplete, run.Status)
}

func TestRerunOverwritesRow(t *testing.T) {
	tr, _, clock := setupTracker(t)
	ctx := context.Background()

	_, err := tr.BeginRun(ctx, "docs", 10)
	require.NoError(t, err)
	_, err = tr.CompleteRun(ctx, "docs", 10, 0)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = tr.BeginRun(ctx, "docs", 4)
	require.NoError(t, err)
	_, err = tr.CompleteRun(ctx, "docs", 3, 1)
	require.NoError(t, err)

	runs, err := tr.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 4, runs[0].TotalFiles)
	assert.Equal(t, 3, runs[0].SuccessCount)
}

func TestRuns_MostRecentFirst(t *testing.T) {
	tr, _, clock := setupTracker(t)
	ctx := context.Background()

	for _, path := range []string{"old", "middle", "new"} {
		_, err := tr.BeginRun(ctx, path, 0)
		require.NoError(t, err)
		clock.Advance(time.Second)
	}
	// Completing "old" makes it the most recently updated
	_, err := tr.CompleteRun(ctx, "old", 0, 0)
	require.NoError(t, err)

	runs, err := tr.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "old", runs[0].Path)
	assert.Equal(t, "new", runs[1].Path)
	assert.Equal(t, "middle", runs[2].Path)
}

func TestStaleRuns(t *testing.T) {
	tr, _, _ := setupTracker(t)
	ctx := context.Background()

	_, err := tr.BeginRun(ctx, "finished", 1)
	require.NoError(t, err)
	_, err = tr.CompleteRun(ctx, "finished", 1, 0)
	require.NoError(t, err)
	_, err = tr.BeginRun(ctx, "crashed", 5)
	require.NoError(t, err)

	stale, err := tr.StaleRuns(ctx)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "crashed", stale[0].Path)
}

func TestOverview(t *testing.T) {
	tr, store, _ := setupTracker(t)
	ctx := context.Background()

	_, err := tr.BeginRun(ctx, "docs", 2)
	require.NoError(t, err)
	require.NoError(t, store.InsertContent(ctx, &storage.ContentRecord{ID: "/docs/a.txt", FileName: "a.txt", Ext: "txt", Content: "a", DirLabel: "docs"}))
	require.NoError(t, store.InsertError(ctx, &storage.ErrorRecord{DirLabel: "docs", FileName: "b.pdf", Message: "broken", Classification: "extraction_failure"}))
	_, err = tr.CompleteRun(ctx, "docs", 1, 1)
	require.NoError(t, err)

	ov, err := tr.Overview(ctx)
	require.NoError(t, err)
	require.Len(t, ov.Runs, 1)
	require.Len(t, ov.Errors, 1)
	assert.Equal(t, "b.pdf", ov.Errors[0].FileName)
	assert.Greater(t, ov.SizeBytes, int64(0))
	require.NotNil(t, ov.Sync)
	assert.True(t, ov.Sync.InSync())
	assert.Equal(t, 1, ov.Sync.ContentRows)
}

func TestOverview_ClosedStore(t *testing.T) {
	tr, store, _ := setupTracker(t)
	require.NoError(t, store.Close())

	_, err := tr.Overview(context.Background())
	assert.Error(t, err)
}
