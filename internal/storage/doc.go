// Package storage provides SQLite-based persistence for indexed documents.
//
// The storage layer manages:
//   - Index runs, one row per indexed root
//   - An append-only audit trail of scanned files
//   - Metadata for successfully extracted files
//   - Extraction errors
//   - Document text and its FTS5 search index
//   - Settings and favorites
//
// # Database Schema
//
// Tables:
//   - index_runs: Run statistics keyed by canonical root path
//   - scanned_files: Every file a run visited
//   - indexed_files: Size, timestamps and a debug copy of extracted text
//   - index_errors: Failed files with their classification
//   - contents: Canonical document text, keyed by row_key
//   - contents_fts: FTS5 index over content, file_name and ext (rowid = row_key)
//   - settings: Name/value pairs
//   - favorites: Copies of saved documents
//
// # Search Index Synchronisation
//
// contents_fts has no triggers. InsertContent, UpdateContent, DeleteContent
// and DeleteContentByID write both tables inside one transaction:
//
//   - insert: contents row, then an index entry with rowid = row_key
//   - update: delete the index entry, update contents, insert a new entry
//   - delete: delete the index entry, then the contents row
//
// A reader therefore never sees a contents row without its entry or the
// reverse. CheckSync reports any drift for health checks.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("/home/me/.docindex/docindex.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	rec := &storage.ContentRecord{ID: "/docs/a.txt", FileName: "a.txt", Ext: "txt", Content: "hello"}
//	if err := store.InsertContent(ctx, rec); err != nil {
//	    return err
//	}
//	hits, err := store.MatchContent(ctx, `content:hello`)
//
// # Transactions
//
// Group a document with its metadata:
//
//	tx, err := store.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	_ = tx.InsertContent(ctx, rec)
//	_ = tx.InsertIndexedFile(ctx, meta)
//
//	if err := tx.Commit(); err != nil {
//	    return err
//	}
//
// # Concurrency
//
// The database runs in WAL mode with a single pooled connection, so writers
// are serialised and readers wait for the current statement. Every method on
// a Tx runs on that transaction.
//
// # Build Modes
//
// The default build uses modernc.org/sqlite (no cgo). Building with
// -tags "sqlite_cgo,sqlite_fts5" switches to github.com/mattn/go-sqlite3.
package storage
