package searcher

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/docindex-mcp/internal/metrics"
	"github.com/dshills/docindex-mcp/internal/storage"
)

const (
	DefaultCacheSize = 1000
	DefaultCacheTTL  = 5 * time.Minute
	DefaultPageChars = 2000
)

var (
	// ErrMalformedQuery wraps search engine failures caused by the query text
	ErrMalformedQuery = errors.New("malformed query")

	// ErrPageOutOfRange is returned by Preview for a page past the document
	ErrPageOutOfRange = errors.New("page out of range")
)

// Mode is how a query was resolved
type Mode string

const (
	ModeMatch     Mode = "match"     // FTS5 token match against the search index
	ModeSubstring Mode = "substring" // literal containment against stored text
)

// ModeFor routes queries containing CJK text to substring matching
func ModeFor(raw string) Mode {
	if ContainsCJK(raw) {
		return ModeSubstring
	}
	return ModeMatch
}

// Hit is one matching document
type Hit struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
	DirLabel string `json:"dir_label"`
	Ext      string `json:"ext"`
}

// Response contains search results and metadata
type Response struct {
	Hits     []Hit
	Mode     Mode
	Query    Query
	CacheHit bool
	Duration time.Duration
}

// Page is one slice of a document's text
type Page struct {
	ID    string
	Index int
	Total int
	Text  string
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// Searcher resolves queries against the store and caches the results.
// Cached entries are keyed by the store's content version, so any content
// write makes earlier results unreachable.
type Searcher struct {
	storage   storage.Storage
	cache     *lru.Cache[[32]byte, *cacheEntry]
	cacheMu   sync.RWMutex
	cacheSize int
	ttl       time.Duration
	pageChars int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Option configures a Searcher
type Option func(*Searcher)

// WithCacheSize bounds the number of cached queries
func WithCacheSize(n int) Option {
	return func(s *Searcher) {
		if n > 0 {
			s.cacheSize = n
		}
	}
}

// WithCacheTTL sets how long cached results live; zero keeps them until evicted
func WithCacheTTL(d time.Duration) Option {
	return func(s *Searcher) {
		if d >= 0 {
			s.ttl = d
		}
	}
}

// WithPageChars sets the preview page length in runes
func WithPageChars(n int) Option {
	return func(s *Searcher) {
		if n > 0 {
			s.pageChars = n
		}
	}
}

// WithMetrics records query counts, latency and cache use on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Searcher) {
		s.metrics = m
	}
}

// WithLogger sets the searcher's logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSearcher creates a Searcher reading from store
func NewSearcher(store storage.Storage, opts ...Option) *Searcher {
	s := &Searcher{
		storage:   store,
		cacheSize: DefaultCacheSize,
		ttl:       DefaultCacheTTL,
		pageChars: DefaultPageChars,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	cache, err := lru.New[[32]byte, *cacheEntry](s.cacheSize)
	if err != nil {
		// only possible for a non-positive size, which the options reject
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	s.cache = cache
	return s
}

// Search resolves raw. Queries with CJK text are matched as substrings of
// the stored content and file name; everything else is passed to the
// search index as an FTS5 MATCH expression. On an engine error the response
// holds an empty hit list and the error wraps ErrMalformedQuery.
func (s *Searcher) Search(ctx context.Context, raw string) (*Response, error) {
	start := time.Now()
	q := ParseQuery(raw)
	mode := ModeFor(raw)

	// data_version catches commits from other processes sharing the file
	dataVersion, dvErr := s.storage.DataVersion(ctx)
	if dvErr != nil {
		s.logger.Debug("cache bypassed", "error", dvErr)
	}
	key := computeQueryHash(raw, s.storage.ContentVersion(), dataVersion)
	if dvErr == nil {
		if cached := s.checkCache(key); cached != nil {
			s.metrics.ObserveCache(true)
			cached.CacheHit = true
			cached.Duration = time.Since(start)
			return cached, nil
		}
		s.metrics.ObserveCache(false)
	}

	resp := &Response{Hits: []Hit{}, Mode: mode, Query: q}

	var rows []storage.ContentHit
	var err error
	switch {
	case mode == ModeSubstring && q.Empty():
		// nothing to match; no query is run
	case mode == ModeSubstring:
		rows, err = s.storage.SubstringContent(ctx, q.ContentKeyword, q.FileNameKeyword)
	case strings.TrimSpace(raw) == "":
		// an empty MATCH expression is a syntax error in FTS5
	default:
		rows, err = s.storage.MatchContent(ctx, raw)
	}

	resp.Duration = time.Since(start)
	if err != nil {
		s.metrics.ObserveSearch(metrics.SearchError, resp.Duration, 0)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return resp, ctxErr
		}
		s.logger.Debug("search failed", "query", raw, "mode", mode, "error", err)
		return resp, fmt.Errorf("%w: %w", ErrMalformedQuery, err)
	}

	for _, row := range rows {
		resp.Hits = append(resp.Hits, Hit(row))
	}
	s.metrics.ObserveSearch(string(mode), resp.Duration, len(resp.Hits))
	s.logger.Debug("search complete", "query", raw, "mode", mode, "hits", len(resp.Hits), "duration", resp.Duration)

	if dvErr == nil {
		s.storeInCache(key, resp)
	}
	return resp, nil
}

// SearchFields builds a query from a file name and content keyword and
// resolves it
func (s *Searcher) SearchFields(ctx context.Context, fileName, content string) (*Response, error) {
	return s.Search(ctx, BuildQuery(fileName, content))
}

// Preview returns page (zero-based) of the document stored under id
func (s *Searcher) Preview(ctx context.Context, id string, page int) (*Page, error) {
	content, err := s.storage.GetContentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	pages := Paginate(content, s.pageChars)
	if page < 0 || page >= len(pages) {
		return nil, fmt.Errorf("%w: page %d of %d", ErrPageOutOfRange, page, len(pages))
	}
	return &Page{
		ID:    id,
		Index: page,
		Total: len(pages),
		Text:  pages[page],
	}, nil
}

// PageChars returns the preview page length in runes
func (s *Searcher) PageChars() int {
	return s.pageChars
}

// InvalidateCache drops every cached result
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen returns the number of cached queries
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}

func (s *Searcher) checkCache(key [32]byte) *Response {
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(key)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}

	if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		s.cacheMu.Lock()
		s.cache.Remove(key)
		s.cacheMu.Unlock()
		return nil
	}

	response := copyResponse(entry.response)
	s.cacheMu.RUnlock()
	return response
}

func (s *Searcher) storeInCache(key [32]byte, response *Response) {
	entry := &cacheEntry{response: copyResponse(response)}
	if s.ttl > 0 {
		entry.expiresAt = time.Now().Add(s.ttl)
	}

	s.cacheMu.Lock()
	s.cache.Add(key, entry)
	s.cacheMu.Unlock()
}

func copyResponse(src *Response) *Response {
	dst := *src
	dst.Hits = make([]Hit, len(src.Hits))
	copy(dst.Hits, src.Hits)
	return &dst
}

// computeQueryHash keys a query to the store versions it was resolved against
func computeQueryHash(raw string, version uint64, dataVersion int64) [32]byte {
	buf := make([]byte, 16, 16+len(raw))
	binary.BigEndian.PutUint64(buf, version)
	binary.BigEndian.PutUint64(buf[8:], uint64(dataVersion))
	buf = append(buf, raw...)
	return sha256.Sum256(buf)
}
