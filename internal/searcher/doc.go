// Package searcher resolves document queries against the index store.
//
// A query is a string of clauses joined by the AND token:
//
//	content:"connection refused" AND file_name:"server"*
//
// Either clause may be missing. BuildQuery produces this form from a file
// name and a content keyword.
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store,
//	    searcher.WithCacheSize(1000),
//	    searcher.WithCacheTTL(5*time.Minute),
//	)
//
//	resp, err := s.Search(ctx, searcher.BuildQuery("server", "refused"))
//	if errors.Is(err, searcher.ErrMalformedQuery) {
//	    // resp.Hits is empty; the engine rejected the expression
//	}
//	for _, hit := range resp.Hits {
//	    fmt.Println(hit.DirLabel, hit.FileName)
//	}
//
// # Resolution Modes
//
// Match mode (ModeMatch) hands the raw string to the FTS5 index, so prefix
// stars, quoted phrases and boolean operators follow FTS5 syntax. Results
// come back in engine order.
//
// The default FTS5 tokenizer does not split CJK text into words, so a query
// holding any CJK unified ideograph is resolved in substring mode
// (ModeSubstring) instead. Its content and file name keywords are matched
// as literal substrings of the stored text and ANDed. A CJK query with
// neither keyword returns no hits without touching the store.
//
// # Caching
//
// Responses are kept in an LRU cache keyed by the query text and the store's
// content version. Any content write changes the version, so a cached
// response is never served for a newer index. Entries also expire after the
// configured TTL.
//
// # Preview
//
// Preview returns one page of a stored document. Pages are Paginate slices
// of DefaultPageChars runes unless WithPageChars says otherwise.
package searcher
