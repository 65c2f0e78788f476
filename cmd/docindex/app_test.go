package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docindex-mcp/internal/config"
	"github.com/dshills/docindex-mcp/internal/indexer"
	"github.com/dshills/docindex-mcp/internal/storage"
)

func testApp(t *testing.T) *app {
	t.Helper()

	store, err := storage.NewSQLiteStorage(storage.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{
		Database: config.DatabaseConfig{Path: storage.MemoryPath},
		Index:    config.IndexConfig{Extensions: []string{"txt", "md", "docx"}},
		Search: config.SearchConfig{
			CacheSize: 16,
			CacheTTL:  time.Minute,
			PageChars: 5,
		},
	}
	return newApp(cfg, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, body := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return dir
}

func TestResolveExtensions(t *testing.T) {
	ctx := context.Background()
	a := testApp(t)

	exts, err := a.resolveExtensions(ctx, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"txt", "md", "docx"}, exts, "config default before anything is saved")

	exts, err = a.resolveExtensions(ctx, []string{".PDF", " txt"}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"pdf", "txt"}, exts)

	exts, err = a.resolveExtensions(ctx, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"pdf", "txt"}, exts, "saved list is reused")

	exts, err = a.resolveExtensions(ctx, []string{""}, true)
	require.NoError(t, err)
	assert.Empty(t, exts)

	exts, err = a.resolveExtensions(ctx, nil, false)
	require.NoError(t, err)
	assert.Empty(t, exts, "an empty saved list still means every file")
}

func TestResolveExtensions_UnreadableSetting(t *testing.T) {
	ctx := context.Background()
	a := testApp(t)
	require.NoError(t, a.store.SetSetting(ctx, settingExtensions, "not json"))

	exts, err := a.resolveExtensions(ctx, nil, false)
	require.NoError(t, err)
	assert.Equal(t, a.cfg.Index.Extensions, exts)
}

func TestCommandsEndToEnd(t *testing.T) {
	ctx := context.Background()
	a := testApp(t)
	dir := writeTree(t, map[string]string{
		"notes/alpha.txt": "abcdefghij",
		"notes/beta.md":   "timeout while reading",
		"notes/gamma.txt": "another timeout",
		"broken.docx":     "not a zip archive",
		"skip.csv":        "timeout,1",
	})

	root, err := indexer.OpenRoot(dir)
	require.NoError(t, err)

	var progress, out bytes.Buffer
	stats, err := a.index(ctx, root, a.cfg.Index.Extensions, &progress)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 4, stats.TotalFiles)
	assert.Equal(t, 3, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Contains(t, progress.String(), "Scanning "+dir)
	assert.Contains(t, progress.String(), "4/4 files")

	printStats(&out, stats)
	assert.Contains(t, out.String(), "4 total, 3 indexed, 1 failed")
	assert.Contains(t, out.String(), "docindex errors")

	t.Run("search", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, a.search(ctx, &buf, "", "bet", "timeout", 0))
		assert.Contains(t, buf.String(), "beta.md")
		assert.Contains(t, buf.String(), "1 hits (match")
		assert.NotContains(t, buf.String(), "gamma.txt")

		buf.Reset()
		assert.ErrorIs(t, a.search(ctx, &buf, "", "", "", 0), errNoQuery)
	})

	t.Run("search limit", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, a.search(ctx, &buf, `content:"timeout"`, "", "", 1))
		assert.Contains(t, buf.String(), "2 hits (match")
		assert.Contains(t, buf.String(), ", showing 1")
		assert.NotContains(t, buf.String(), "skip.csv")
	})

	t.Run("show", func(t *testing.T) {
		id := filepath.Join(dir, "notes", "alpha.txt")
		var buf bytes.Buffer
		require.NoError(t, a.show(ctx, &buf, id, 2))
		assert.Equal(t, "fghij\n-- page 2 of 3 --\n", buf.String())

		assert.Error(t, a.show(ctx, &buf, id, 9))
		assert.ErrorIs(t, a.show(ctx, &buf, filepath.Join(dir, "missing.txt"), 1), storage.ErrNotFound)
	})

	t.Run("status", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, a.status(ctx, &buf))
		assert.Contains(t, buf.String(), root.RunPath())
		assert.Contains(t, buf.String(), "complete")
		assert.Contains(t, buf.String(), "Extraction errors: 1")
		assert.Contains(t, buf.String(), "in sync (3 documents)")
	})

	t.Run("errors", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, a.listErrors(ctx, &buf))
		assert.Contains(t, buf.String(), "broken.docx")
		assert.Contains(t, buf.String(), string(indexer.ExtractionFailure))
	})

	t.Run("favorites", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, a.listFavorites(ctx, &buf))
		assert.Contains(t, buf.String(), "No favorites.")

		id := filepath.Join(dir, "notes", "beta.md")
		require.NoError(t, a.store.AddFavorite(ctx, id))

		buf.Reset()
		require.NoError(t, a.listFavorites(ctx, &buf))
		assert.Contains(t, buf.String(), "beta.md")

		require.NoError(t, a.store.RemoveFavorite(ctx, id))
		buf.Reset()
		require.NoError(t, a.listFavorites(ctx, &buf))
		assert.Contains(t, buf.String(), "No favorites.")
	})
}

func TestStatus_Empty(t *testing.T) {
	a := testApp(t)
	var buf bytes.Buffer
	require.NoError(t, a.status(context.Background(), &buf))
	assert.Contains(t, buf.String(), "Nothing indexed yet")
	assert.Contains(t, buf.String(), "in sync (0 documents)")
}

func TestRunStatus(t *testing.T) {
	inProgress := &storage.IndexRun{Status: storage.RunInProgress}
	assert.Equal(t, "interrupted", runStatus(inProgress, false))
	assert.Equal(t, "in_progress", runStatus(inProgress, true))
	assert.Equal(t, "complete", runStatus(&storage.IndexRun{Status: storage.RunComplete}, false))
}

func TestDescribeExtensions(t *testing.T) {
	assert.Equal(t, "all files", describeExtensions(nil))
	assert.Equal(t, "pdf, txt", describeExtensions([]string{"pdf", "txt"}))
}

func TestStatus_InterruptedRun(t *testing.T) {
	ctx := context.Background()
	a := testApp(t)
	_, err := a.tracker.BeginRun(ctx, "Documents/old", 12)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, a.status(ctx, &buf))
	assert.Contains(t, buf.String(), "Documents/old")
	assert.Contains(t, buf.String(), "interrupted")
	assert.Contains(t, buf.String(), "1 interrupted run(s)")
}
