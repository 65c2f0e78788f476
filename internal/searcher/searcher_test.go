package searcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dshills/docindex-mcp/internal/metrics"
	"github.com/dshills/docindex-mcp/internal/storage"
)

// setupTestSearcher creates a searcher over an in-memory store holding a
// small mixed-language corpus
func setupTestSearcher(t *testing.T, opts ...Option) (*Searcher, storage.Storage) {
	t.Helper()

	store, err := storage.NewSQLiteStorage(storage.MemoryPath)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	docs := []*storage.ContentRecord{
		{ID: "/docs/logs/app.log", FileName: "app.log", Ext: "log", DirLabel: "logs", Content: "startup ok\nan error occurred\n"},
		{ID: "/docs/logs/logrotate.txt", FileName: "logrotate.txt", Ext: "txt", DirLabel: "logs", Content: "rotation error at midnight\n"},
		{ID: "/docs/notes/todo.md", FileName: "todo.md", Ext: "md", DirLabel: "notes", Content: "fix the error handling\n"},
		{ID: "/docs/cn/日志.txt", FileName: "日志.txt", Ext: "txt", DirLabel: "cn", Content: "系统出现错误\n"},
		{ID: "/docs/cn/说明.txt", FileName: "说明.txt", Ext: "txt", DirLabel: "cn", Content: "没有错误\n"},
		{ID: "/docs/cn/报告日志.md", FileName: "报告日志.md", Ext: "md", DirLabel: "cn", Content: "一切正常\n"},
	}
	ctx := context.Background()
	for _, doc := range docs {
		if err := store.InsertContent(ctx, doc); err != nil {
			t.Fatalf("failed to insert %s: %v", doc.ID, err)
		}
	}

	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewSearcher(store, opts...), store
}

func hitIDs(hits []Hit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	sort.Strings(ids)
	return ids
}

func TestSearch_TokenMatch(t *testing.T) {
	s, _ := setupTestSearcher(t)

	resp, err := s.Search(context.Background(), `content:error AND file_name:log*`)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if resp.Mode != ModeMatch {
		t.Errorf("expected match mode, got %s", resp.Mode)
	}

	got := hitIDs(resp.Hits)
	want := []string{"/docs/logs/app.log", "/docs/logs/logrotate.txt"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("hits = %v, want %v", got, want)
	}
	for _, h := range resp.Hits {
		if h.DirLabel != "logs" {
			t.Errorf("hit %s has dir label %q", h.ID, h.DirLabel)
		}
	}
}

func TestSearch_SubstringMode(t *testing.T) {
	s, _ := setupTestSearcher(t)

	resp, err := s.Search(context.Background(), `content:"错误" AND file_name:"日志"`)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if resp.Mode != ModeSubstring {
		t.Errorf("expected substring mode, got %s", resp.Mode)
	}
	if len(resp.Hits) != 1 || resp.Hits[0].ID != "/docs/cn/日志.txt" {
		t.Errorf("expected only 日志.txt, got %v", hitIDs(resp.Hits))
	}
}

func TestSearch_SubstringSingleField(t *testing.T) {
	s, _ := setupTestSearcher(t)

	resp, err := s.Search(context.Background(), `file_name:"日志"*`)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	got := hitIDs(resp.Hits)
	want := []string{"/docs/cn/报告日志.md", "/docs/cn/日志.txt"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("hits = %v, want %v", got, want)
	}
}

func TestSearch_SubstringWithoutKeywords(t *testing.T) {
	s, _ := setupTestSearcher(t)

	resp, err := s.Search(context.Background(), `标题:"错误"`)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if resp.Hits == nil || len(resp.Hits) != 0 {
		t.Errorf("expected empty non-nil hits, got %#v", resp.Hits)
	}
	if resp.Mode != ModeSubstring {
		t.Errorf("expected substring mode, got %s", resp.Mode)
	}
}

func TestSearch_MalformedQuery(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s, _ := setupTestSearcher(t, WithMetrics(m))

	resp, err := s.Search(context.Background(), `content:"unterminated`)
	if !errors.Is(err, ErrMalformedQuery) {
		t.Fatalf("expected ErrMalformedQuery, got %v", err)
	}
	if resp == nil || resp.Hits == nil || len(resp.Hits) != 0 {
		t.Errorf("expected an empty result alongside the error, got %#v", resp)
	}
	if got := testutil.ToFloat64(m.SearchQueries.WithLabelValues(metrics.SearchError)); got != 1 {
		t.Errorf("expected 1 failed search recorded, got %v", got)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	s, _ := setupTestSearcher(t)

	resp, err := s.Search(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(resp.Hits) != 0 {
		t.Errorf("expected no hits, got %d", len(resp.Hits))
	}
}

func TestSearch_CacheAndInvalidation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s, store := setupTestSearcher(t, WithMetrics(m))
	ctx := context.Background()
	query := `content:"midnight"`

	first, err := s.Search(ctx, query)
	if err != nil {
		t.Fatalf("first search failed: %v", err)
	}
	if first.CacheHit {
		t.Error("first search should miss the cache")
	}

	second, err := s.Search(ctx, query)
	if err != nil {
		t.Fatalf("second search failed: %v", err)
	}
	if !second.CacheHit {
		t.Error("second search should hit the cache")
	}
	if len(second.Hits) != len(first.Hits) {
		t.Errorf("cached hits differ: %d vs %d", len(second.Hits), len(first.Hits))
	}

	// mutating a returned response must not leak into the cache
	second.Hits[0].ID = "tampered"

	if err := store.InsertContent(ctx, &storage.ContentRecord{
		ID: "/docs/late.txt", FileName: "late.txt", Ext: "txt", DirLabel: "docs", Content: "midnight snack",
	}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	third, err := s.Search(ctx, query)
	if err != nil {
		t.Fatalf("third search failed: %v", err)
	}
	if third.CacheHit {
		t.Error("a content write should invalidate cached results")
	}
	if len(third.Hits) != 2 {
		t.Errorf("expected 2 hits after insert, got %d", len(third.Hits))
	}
	for _, h := range third.Hits {
		if h.ID == "tampered" {
			t.Error("cached response was mutated through a returned copy")
		}
	}

	if got := testutil.ToFloat64(m.CacheHits); got != 1 {
		t.Errorf("cache hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CacheMisses); got != 2 {
		t.Errorf("cache misses = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SearchQueries.WithLabelValues(string(ModeMatch))); got != 2 {
		t.Errorf("match queries = %v, want 2", got)
	}
}

func TestSearch_CacheExpiry(t *testing.T) {
	s, _ := setupTestSearcher(t, WithCacheTTL(time.Nanosecond))
	ctx := context.Background()

	if _, err := s.Search(ctx, `content:error`); err != nil {
		t.Fatalf("search failed: %v", err)
	}
	time.Sleep(time.Millisecond)

	resp, err := s.Search(ctx, `content:error`)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if resp.CacheHit {
		t.Error("expired entry should not be served")
	}
}

func TestSearch_CacheBounded(t *testing.T) {
	s, _ := setupTestSearcher(t, WithCacheSize(2))
	ctx := context.Background()

	for _, q := range []string{`content:error`, `content:startup`, `content:rotation`} {
		if _, err := s.Search(ctx, q); err != nil {
			t.Fatalf("search %q failed: %v", q, err)
		}
	}
	if n := s.CacheLen(); n != 2 {
		t.Errorf("cache holds %d entries, want 2", n)
	}

	s.InvalidateCache()
	if n := s.CacheLen(); n != 0 {
		t.Errorf("cache holds %d entries after invalidation", n)
	}
}

func TestSearchFields(t *testing.T) {
	s, _ := setupTestSearcher(t)

	resp, err := s.SearchFields(context.Background(), "todo", "error")
	if err != nil {
		t.Fatalf("SearchFields failed: %v", err)
	}
	if len(resp.Hits) != 1 || resp.Hits[0].FileName != "todo.md" {
		t.Errorf("expected todo.md, got %v", hitIDs(resp.Hits))
	}
	if !resp.Query.FileNamePrefix {
		t.Error("file name should be matched as a prefix")
	}
}

func TestPreview(t *testing.T) {
	s, store := setupTestSearcher(t, WithPageChars(4))
	ctx := context.Background()

	if err := store.InsertContent(ctx, &storage.ContentRecord{
		ID: "/docs/long.txt", FileName: "long.txt", Ext: "txt", DirLabel: "docs", Content: "abcdefghij",
	}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	page, err := s.Preview(ctx, "/docs/long.txt", 1)
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if page.Text != "efgh" || page.Total != 3 || page.Index != 1 {
		t.Errorf("unexpected page: %+v", page)
	}

	if _, err := s.Preview(ctx, "/docs/long.txt", 3); !errors.Is(err, ErrPageOutOfRange) {
		t.Errorf("expected ErrPageOutOfRange, got %v", err)
	}
	if _, err := s.Preview(ctx, "/docs/missing.txt", 0); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNewSearcher_Defaults(t *testing.T) {
	s, _ := setupTestSearcher(t, WithCacheSize(0), WithPageChars(-1), WithCacheTTL(-time.Second))

	if s.cacheSize != DefaultCacheSize {
		t.Errorf("cache size = %d, want %d", s.cacheSize, DefaultCacheSize)
	}
	if s.PageChars() != DefaultPageChars {
		t.Errorf("page chars = %d, want %d", s.PageChars(), DefaultPageChars)
	}
	if s.ttl != DefaultCacheTTL {
		t.Errorf("ttl = %v, want %v", s.ttl, DefaultCacheTTL)
	}
}

func TestSearchFields_QuotedCJKKeyword(t *testing.T) {
	s, store := setupTestSearcher(t)
	ctx := context.Background()
	if err := store.InsertContent(ctx, &storage.ContentRecord{
		ID: "/docs/cn/对话.txt", FileName: "对话.txt", Ext: "txt", DirLabel: "cn", Content: `他说 "你好" 了`,
	}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	resp, err := s.SearchFields(ctx, "", `说 "你好"`)
	if err != nil {
		t.Fatalf("SearchFields failed: %v", err)
	}
	if resp.Mode != ModeSubstring {
		t.Errorf("expected substring mode, got %s", resp.Mode)
	}
	if resp.Query.ContentKeyword != `说 "你好"` {
		t.Errorf("keyword = %q", resp.Query.ContentKeyword)
	}
	if ids := hitIDs(resp.Hits); len(ids) != 1 || ids[0] != "/docs/cn/对话.txt" {
		t.Errorf("expected the quoted document, got %v", ids)
	}
}

func TestSearch_CacheSeesOtherConnections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	reader, err := storage.NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	t.Cleanup(func() { _ = reader.Close() })
	writer, err := storage.NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	t.Cleanup(func() { _ = writer.Close() })

	s := NewSearcher(reader, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	ctx := context.Background()
	query := `content:"lantern"`

	first, err := s.Search(ctx, query)
	if err != nil {
		t.Fatalf("first search failed: %v", err)
	}
	if len(first.Hits) != 0 {
		t.Fatalf("expected no hits before the write, got %d", len(first.Hits))
	}

	if err := writer.InsertContent(ctx, &storage.ContentRecord{
		ID: "/docs/lamp.txt", FileName: "lamp.txt", Ext: "txt", DirLabel: "docs", Content: "a paper lantern",
	}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	second, err := s.Search(ctx, query)
	if err != nil {
		t.Fatalf("second search failed: %v", err)
	}
	if second.CacheHit {
		t.Error("a commit from another connection should invalidate cached results")
	}
	if len(second.Hits) != 1 {
		t.Errorf("expected 1 hit after the write, got %d", len(second.Hits))
	}
}
