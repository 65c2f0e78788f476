package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrNestedTx is returned when BeginTx is called on a transaction
	ErrNestedTx = errors.New("nested transactions not supported")
)

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db   *sql.DB
	path string

	// version is bumped after every committed content write
	version atomic.Uint64
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// One connection serialises writers; readers queue behind it
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// ContentVersion returns a counter that changes whenever committed content changes
func (s *SQLiteStorage) ContentVersion() uint64 {
	return s.version.Load()
}

// dataVersionWithQuerier reads PRAGMA data_version on the querier's connection
func (s *SQLiteStorage) dataVersionWithQuerier(ctx context.Context, q querier) (int64, error) {
	var v int64
	if err := q.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read data version: %w", err)
	}
	return v, nil
}

// DataVersion changes when another connection, possibly in another
// process, commits to the database. Commits on this store's own
// connection are tracked by ContentVersion instead.
func (s *SQLiteStorage) DataVersion(ctx context.Context) (int64, error) {
	return s.dataVersionWithQuerier(ctx, s.querier())
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// withTx runs fn inside a transaction that commits only if fn succeeds
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Run operations

// upsertRunWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertRunWithQuerier(ctx context.Context, q querier, run *IndexRun) error {
	query := `
		INSERT INTO index_runs (path, total_files, success_count, error_count,
		                        index_size_bytes, created_at, updated_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			total_files = excluded.total_files,
			success_count = excluded.success_count,
			error_count = excluded.error_count,
			index_size_bytes = excluded.index_size_bytes,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			status = excluded.status
	`
	_, err := q.ExecContext(ctx, query,
		run.Path, run.TotalFiles, run.SuccessCount, run.ErrorCount,
		run.IndexSizeBytes, toMillis(run.CreatedAt), toMillis(run.UpdatedAt), int(run.Status))
	if err != nil {
		return fmt.Errorf("failed to upsert run %s: %w", run.Path, err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertRun(ctx context.Context, run *IndexRun) error {
	return s.upsertRunWithQuerier(ctx, s.querier(), run)
}

const runColumns = `path, total_files, success_count, error_count, index_size_bytes,
		       created_at, updated_at, status`

func scanRun(row interface{ Scan(...interface{}) error }) (*IndexRun, error) {
	var run IndexRun
	var createdAt, updatedAt int64
	var status int
	if err := row.Scan(&run.Path, &run.TotalFiles, &run.SuccessCount, &run.ErrorCount,
		&run.IndexSizeBytes, &createdAt, &updatedAt, &status); err != nil {
		return nil, err
	}
	run.CreatedAt = fromMillis(createdAt)
	run.UpdatedAt = fromMillis(updatedAt)
	run.Status = RunStatus(status)
	return &run, nil
}

// getRunWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getRunWithQuerier(ctx context.Context, q querier, path string) (*IndexRun, error) {
	query := `SELECT ` + runColumns + ` FROM index_runs WHERE path = ?`
	run, err := scanRun(q.QueryRowContext(ctx, query, path))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStorage) GetRun(ctx context.Context, path string) (*IndexRun, error) {
	return s.getRunWithQuerier(ctx, s.querier(), path)
}

// listRunsWithQuerier returns runs most recently updated first
func (s *SQLiteStorage) listRunsWithQuerier(ctx context.Context, q querier) ([]*IndexRun, error) {
	query := `SELECT ` + runColumns + ` FROM index_runs ORDER BY updated_at DESC, path`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	runs := make([]*IndexRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStorage) ListRuns(ctx context.Context) ([]*IndexRun, error) {
	return s.listRunsWithQuerier(ctx, s.querier())
}

// File record operations

// insertScannedFileWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) insertScannedFileWithQuerier(ctx context.Context, q querier, rec *ScannedFileRecord) error {
	_, err := q.ExecContext(ctx, `INSERT INTO scanned_files (file_name, dir_label) VALUES (?, ?)`,
		rec.FileName, rec.DirLabel)
	if err != nil {
		return fmt.Errorf("failed to insert scanned file: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) InsertScannedFile(ctx context.Context, rec *ScannedFileRecord) error {
	return s.insertScannedFileWithQuerier(ctx, s.querier(), rec)
}

// insertIndexedFileWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) insertIndexedFileWithQuerier(ctx context.Context, q querier, rec *IndexedFileRecord) error {
	query := `
		INSERT INTO indexed_files (id, file_name, content, size_bytes, ext, modified_at,
		                           created_at, dir_label, query_frequency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	result, err := q.ExecContext(ctx, query,
		rec.ID, rec.FileName, rec.Content, rec.SizeBytes, rec.Ext,
		toMillis(rec.ModifiedAt), toMillis(rec.CreatedAt), rec.DirLabel, rec.QueryFrequency)
	if err != nil {
		return fmt.Errorf("failed to insert indexed file: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	rec.InternalID = id
	return nil
}

func (s *SQLiteStorage) InsertIndexedFile(ctx context.Context, rec *IndexedFileRecord) error {
	return s.insertIndexedFileWithQuerier(ctx, s.querier(), rec)
}

// listIndexedFilesWithQuerier returns indexed files in insertion order
func (s *SQLiteStorage) listIndexedFilesWithQuerier(ctx context.Context, q querier) ([]*IndexedFileRecord, error) {
	query := `
		SELECT internal_id, id, file_name, COALESCE(content, ''), size_bytes, ext,
		       modified_at, created_at, dir_label, query_frequency
		FROM indexed_files
		ORDER BY internal_id
	`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	files := make([]*IndexedFileRecord, 0)
	for rows.Next() {
		var rec IndexedFileRecord
		var modifiedAt, createdAt int64
		if err := rows.Scan(&rec.InternalID, &rec.ID, &rec.FileName, &rec.Content, &rec.SizeBytes,
			&rec.Ext, &modifiedAt, &createdAt, &rec.DirLabel, &rec.QueryFrequency); err != nil {
			return nil, err
		}
		rec.ModifiedAt = fromMillis(modifiedAt)
		rec.CreatedAt = fromMillis(createdAt)
		files = append(files, &rec)
	}
	return files, rows.Err()
}

func (s *SQLiteStorage) ListIndexedFiles(ctx context.Context) ([]*IndexedFileRecord, error) {
	return s.listIndexedFilesWithQuerier(ctx, s.querier())
}

// insertErrorWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) insertErrorWithQuerier(ctx context.Context, q querier, rec *ErrorRecord) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO index_errors (dir_label, file_name, message, classification) VALUES (?, ?, ?, ?)`,
		rec.DirLabel, rec.FileName, rec.Message, rec.Classification)
	if err != nil {
		return fmt.Errorf("failed to insert error record: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) InsertError(ctx context.Context, rec *ErrorRecord) error {
	return s.insertErrorWithQuerier(ctx, s.querier(), rec)
}

// listErrorsWithQuerier returns error records most recent first
func (s *SQLiteStorage) listErrorsWithQuerier(ctx context.Context, q querier) ([]*ErrorRecord, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT dir_label, file_name, message, classification FROM index_errors ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	records := make([]*ErrorRecord, 0)
	for rows.Next() {
		var rec ErrorRecord
		if err := rows.Scan(&rec.DirLabel, &rec.FileName, &rec.Message, &rec.Classification); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStorage) ListErrors(ctx context.Context) ([]*ErrorRecord, error) {
	return s.listErrorsWithQuerier(ctx, s.querier())
}

// Content operations
//
// contents and contents_fts are only ever written together, inside one
// transaction, so the row_key sets of both tables stay identical.

// insertContentWithQuerier inserts the contents row and its search index entry
func (s *SQLiteStorage) insertContentWithQuerier(ctx context.Context, q querier, rec *ContentRecord) error {
	result, err := q.ExecContext(ctx,
		`INSERT INTO contents (id, content, file_name, ext, dir_label) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Content, rec.FileName, rec.Ext, rec.DirLabel)
	if err != nil {
		return fmt.Errorf("failed to insert content: %w", err)
	}
	rowKey, err := result.LastInsertId()
	if err != nil {
		return err
	}
	if err := insertIndexEntry(ctx, q, rowKey, rec); err != nil {
		return err
	}
	rec.RowKey = rowKey
	return nil
}

func (s *SQLiteStorage) InsertContent(ctx context.Context, rec *ContentRecord) error {
	err := s.withTx(ctx, func(q querier) error {
		return s.insertContentWithQuerier(ctx, q, rec)
	})
	if err == nil {
		s.version.Add(1)
	}
	return err
}

// updateContentWithQuerier replaces the contents row, deleting and recreating its index entry
func (s *SQLiteStorage) updateContentWithQuerier(ctx context.Context, q querier, rec *ContentRecord) error {
	if err := deleteIndexEntry(ctx, q, rec.RowKey); err != nil {
		return err
	}
	result, err := q.ExecContext(ctx,
		`UPDATE contents SET id = ?, content = ?, file_name = ?, ext = ?, dir_label = ? WHERE row_key = ?`,
		rec.ID, rec.Content, rec.FileName, rec.Ext, rec.DirLabel, rec.RowKey)
	if err != nil {
		return fmt.Errorf("failed to update content: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return insertIndexEntry(ctx, q, rec.RowKey, rec)
}

func (s *SQLiteStorage) UpdateContent(ctx context.Context, rec *ContentRecord) error {
	err := s.withTx(ctx, func(q querier) error {
		return s.updateContentWithQuerier(ctx, q, rec)
	})
	if err == nil {
		s.version.Add(1)
	}
	return err
}

// deleteContentWithQuerier removes the index entry first, then the contents row
func (s *SQLiteStorage) deleteContentWithQuerier(ctx context.Context, q querier, rowKey int64) error {
	if err := deleteIndexEntry(ctx, q, rowKey); err != nil {
		return err
	}
	result, err := q.ExecContext(ctx, `DELETE FROM contents WHERE row_key = ?`, rowKey)
	if err != nil {
		return fmt.Errorf("failed to delete content: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) DeleteContent(ctx context.Context, rowKey int64) error {
	err := s.withTx(ctx, func(q querier) error {
		return s.deleteContentWithQuerier(ctx, q, rowKey)
	})
	if err == nil {
		s.version.Add(1)
	}
	return err
}

// deleteContentByIDWithQuerier removes every contents row stored under id
func (s *SQLiteStorage) deleteContentByIDWithQuerier(ctx context.Context, q querier, id string) (int, error) {
	rows, err := q.QueryContext(ctx, `SELECT row_key FROM contents WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	var rowKeys []int64
	for rows.Next() {
		var rowKey int64
		if err := rows.Scan(&rowKey); err != nil {
			_ = rows.Close()
			return 0, err
		}
		rowKeys = append(rowKeys, rowKey)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, err
	}
	_ = rows.Close()

	for _, rowKey := range rowKeys {
		if err := s.deleteContentWithQuerier(ctx, q, rowKey); err != nil {
			return 0, err
		}
	}
	return len(rowKeys), nil
}

func (s *SQLiteStorage) DeleteContentByID(ctx context.Context, id string) (int, error) {
	var deleted int
	err := s.withTx(ctx, func(q querier) error {
		var err error
		deleted, err = s.deleteContentByIDWithQuerier(ctx, q, id)
		return err
	})
	if err == nil && deleted > 0 {
		s.version.Add(1)
	}
	return deleted, err
}

func insertIndexEntry(ctx context.Context, q querier, rowKey int64, rec *ContentRecord) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO contents_fts (rowid, content, file_name, ext) VALUES (?, ?, ?, ?)`,
		rowKey, rec.Content, rec.FileName, rec.Ext)
	if err != nil {
		return fmt.Errorf("failed to insert search index entry: %w", err)
	}
	return nil
}

func deleteIndexEntry(ctx context.Context, q querier, rowKey int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM contents_fts WHERE rowid = ?`, rowKey); err != nil {
		return fmt.Errorf("failed to delete search index entry: %w", err)
	}
	return nil
}

// getContentByIDWithQuerier returns the text of the newest contents row for id
func (s *SQLiteStorage) getContentByIDWithQuerier(ctx context.Context, q querier, id string) (string, error) {
	var content string
	err := q.QueryRowContext(ctx,
		`SELECT content FROM contents WHERE id = ? ORDER BY row_key DESC LIMIT 1`, id).Scan(&content)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return content, nil
}

func (s *SQLiteStorage) GetContentByID(ctx context.Context, id string) (string, error) {
	return s.getContentByIDWithQuerier(ctx, s.querier(), id)
}

// getContentWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getContentWithQuerier(ctx context.Context, q querier, rowKey int64) (*ContentRecord, error) {
	var rec ContentRecord
	err := q.QueryRowContext(ctx,
		`SELECT row_key, id, content, file_name, ext, dir_label FROM contents WHERE row_key = ?`, rowKey).Scan(
		&rec.RowKey, &rec.ID, &rec.Content, &rec.FileName, &rec.Ext, &rec.DirLabel)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStorage) GetContent(ctx context.Context, rowKey int64) (*ContentRecord, error) {
	return s.getContentWithQuerier(ctx, s.querier(), rowKey)
}

// Search operations

// matchContentWithQuerier runs expr as an FTS5 MATCH expression joined back to contents
func (s *SQLiteStorage) matchContentWithQuerier(ctx context.Context, q querier, expr string) ([]ContentHit, error) {
	query := `
		SELECT c.id, c.file_name, c.dir_label, c.ext
		FROM contents_fts
		JOIN contents c ON c.row_key = contents_fts.rowid
		WHERE contents_fts MATCH ?
	`
	return collectHits(q.QueryContext(ctx, query, expr))
}

func (s *SQLiteStorage) MatchContent(ctx context.Context, expr string) ([]ContentHit, error) {
	return s.matchContentWithQuerier(ctx, s.querier(), expr)
}

// substringContentWithQuerier ANDs a LIKE containment predicate per non-empty keyword
func (s *SQLiteStorage) substringContentWithQuerier(ctx context.Context, q querier, contentKeyword, fileNameKeyword string) ([]ContentHit, error) {
	contentKeyword = strings.TrimSpace(contentKeyword)
	fileNameKeyword = strings.TrimSpace(fileNameKeyword)
	if contentKeyword == "" && fileNameKeyword == "" {
		return []ContentHit{}, nil
	}

	var where []string
	var args []interface{}
	if contentKeyword != "" {
		where = append(where, `content LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(contentKeyword)+"%")
	}
	if fileNameKeyword != "" {
		where = append(where, `file_name LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(fileNameKeyword)+"%")
	}

	query := `SELECT id, file_name, dir_label, ext FROM contents WHERE ` + strings.Join(where, " AND ")
	return collectHits(q.QueryContext(ctx, query, args...))
}

func (s *SQLiteStorage) SubstringContent(ctx context.Context, contentKeyword, fileNameKeyword string) ([]ContentHit, error) {
	return s.substringContentWithQuerier(ctx, s.querier(), contentKeyword, fileNameKeyword)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// collectHits drains rows into a non-nil slice. FTS5 syntax errors can
// surface on the first Next, so rows.Err is part of the result.
func collectHits(rows *sql.Rows, err error) ([]ContentHit, error) {
	if err != nil {
		return []ContentHit{}, err
	}
	defer func() { _ = rows.Close() }()

	hits := make([]ContentHit, 0)
	for rows.Next() {
		var h ContentHit
		if err := rows.Scan(&h.ID, &h.FileName, &h.DirLabel, &h.Ext); err != nil {
			return []ContentHit{}, err
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return []ContentHit{}, err
	}
	return hits, nil
}

// Settings operations

// getSettingWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getSettingWithQuerier(ctx context.Context, q querier, name string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM settings WHERE name = ?`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *SQLiteStorage) GetSetting(ctx context.Context, name string) (string, error) {
	return s.getSettingWithQuerier(ctx, s.querier(), name)
}

// setSettingWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) setSettingWithQuerier(ctx context.Context, q querier, name, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO settings (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value
	`, name, value)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteStorage) SetSetting(ctx context.Context, name, value string) error {
	return s.setSettingWithQuerier(ctx, s.querier(), name, value)
}

// Favorite operations

// addFavoriteWithQuerier copies the newest contents row for id into favorites
func (s *SQLiteStorage) addFavoriteWithQuerier(ctx context.Context, q querier, id string) error {
	var rec ContentRecord
	err := q.QueryRowContext(ctx, `
		SELECT id, content, file_name, ext, dir_label FROM contents
		WHERE id = ? ORDER BY row_key DESC LIMIT 1
	`, id).Scan(&rec.ID, &rec.Content, &rec.FileName, &rec.Ext, &rec.DirLabel)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT OR IGNORE INTO favorites (id, content, file_name, ext, dir_label, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Content, rec.FileName, rec.Ext, rec.DirLabel, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to add favorite: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) AddFavorite(ctx context.Context, id string) error {
	return s.addFavoriteWithQuerier(ctx, s.querier(), id)
}

// listFavoritesWithQuerier returns favorites newest first
func (s *SQLiteStorage) listFavoritesWithQuerier(ctx context.Context, q querier) ([]*ContentRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT row_key, id, content, file_name, ext, dir_label FROM favorites
		ORDER BY created_at DESC, row_key DESC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	favorites := make([]*ContentRecord, 0)
	for rows.Next() {
		var rec ContentRecord
		if err := rows.Scan(&rec.RowKey, &rec.ID, &rec.Content, &rec.FileName, &rec.Ext, &rec.DirLabel); err != nil {
			return nil, err
		}
		favorites = append(favorites, &rec)
	}
	return favorites, rows.Err()
}

func (s *SQLiteStorage) ListFavorites(ctx context.Context) ([]*ContentRecord, error) {
	return s.listFavoritesWithQuerier(ctx, s.querier())
}

// removeFavoriteWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) removeFavoriteWithQuerier(ctx context.Context, q querier, id string) error {
	result, err := q.ExecContext(ctx, `DELETE FROM favorites WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove favorite: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) RemoveFavorite(ctx context.Context, id string) error {
	return s.removeFavoriteWithQuerier(ctx, s.querier(), id)
}

// Status operations

// sizeBytesWithQuerier uses page accounting, falling back to the file length
func (s *SQLiteStorage) sizeBytesWithQuerier(ctx context.Context, q querier) (int64, error) {
	var pageCount, pageSize int64
	if err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		if err := q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err == nil && pageCount*pageSize > 0 {
			return pageCount * pageSize, nil
		}
	}

	if s.path == "" || s.path == MemoryPath {
		return 0, nil
	}
	info, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat database file: %w", err)
	}
	return info.Size(), nil
}

func (s *SQLiteStorage) SizeBytes(ctx context.Context) (int64, error) {
	return s.sizeBytesWithQuerier(ctx, s.querier())
}

// checkSyncWithQuerier counts rows that exist on only one side, or differ
func (s *SQLiteStorage) checkSyncWithQuerier(ctx context.Context, q querier) (*SyncReport, error) {
	report := &SyncReport{}
	checks := []struct {
		dst   *int
		query string
	}{
		{&report.ContentRows, `SELECT COUNT(*) FROM contents`},
		{&report.IndexRows, `SELECT COUNT(*) FROM contents_fts`},
		{&report.MissingIndex, `
			SELECT COUNT(*) FROM contents c
			WHERE NOT EXISTS (SELECT 1 FROM contents_fts f WHERE f.rowid = c.row_key)`},
		{&report.OrphanedIndex, `
			SELECT COUNT(*) FROM contents_fts f
			WHERE NOT EXISTS (SELECT 1 FROM contents c WHERE c.row_key = f.rowid)`},
		{&report.MismatchedRows, `
			SELECT COUNT(*) FROM contents c
			JOIN contents_fts f ON f.rowid = c.row_key
			WHERE f.content IS NOT c.content OR f.file_name IS NOT c.file_name OR f.ext IS NOT c.ext`},
	}
	for _, check := range checks {
		if err := q.QueryRowContext(ctx, check.query).Scan(check.dst); err != nil {
			return nil, fmt.Errorf("failed to check index sync: %w", err)
		}
	}
	return report, nil
}

func (s *SQLiteStorage) CheckSync(ctx context.Context) (*SyncReport, error) {
	return s.checkSyncWithQuerier(ctx, s.querier())
}

// sqliteTx wraps a SQL transaction. Every method runs on the transaction so
// callers can group writes; using s.db here would block on the single connection.
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage

	contentWritten bool
}

func (t *sqliteTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return err
	}
	if t.contentWritten {
		t.storage.version.Add(1)
	}
	return nil
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

func (t *sqliteTx) UpsertRun(ctx context.Context, run *IndexRun) error {
	return t.storage.upsertRunWithQuerier(ctx, t.querier(), run)
}

func (t *sqliteTx) GetRun(ctx context.Context, path string) (*IndexRun, error) {
	return t.storage.getRunWithQuerier(ctx, t.querier(), path)
}

func (t *sqliteTx) ListRuns(ctx context.Context) ([]*IndexRun, error) {
	return t.storage.listRunsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) InsertScannedFile(ctx context.Context, rec *ScannedFileRecord) error {
	return t.storage.insertScannedFileWithQuerier(ctx, t.querier(), rec)
}

func (t *sqliteTx) InsertIndexedFile(ctx context.Context, rec *IndexedFileRecord) error {
	return t.storage.insertIndexedFileWithQuerier(ctx, t.querier(), rec)
}

func (t *sqliteTx) ListIndexedFiles(ctx context.Context) ([]*IndexedFileRecord, error) {
	return t.storage.listIndexedFilesWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) InsertError(ctx context.Context, rec *ErrorRecord) error {
	return t.storage.insertErrorWithQuerier(ctx, t.querier(), rec)
}

func (t *sqliteTx) ListErrors(ctx context.Context) ([]*ErrorRecord, error) {
	return t.storage.listErrorsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) InsertContent(ctx context.Context, rec *ContentRecord) error {
	if err := t.storage.insertContentWithQuerier(ctx, t.querier(), rec); err != nil {
		return err
	}
	t.contentWritten = true
	return nil
}

func (t *sqliteTx) GetContentByID(ctx context.Context, id string) (string, error) {
	return t.storage.getContentByIDWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) GetContent(ctx context.Context, rowKey int64) (*ContentRecord, error) {
	return t.storage.getContentWithQuerier(ctx, t.querier(), rowKey)
}

func (t *sqliteTx) UpdateContent(ctx context.Context, rec *ContentRecord) error {
	if err := t.storage.updateContentWithQuerier(ctx, t.querier(), rec); err != nil {
		return err
	}
	t.contentWritten = true
	return nil
}

func (t *sqliteTx) DeleteContent(ctx context.Context, rowKey int64) error {
	if err := t.storage.deleteContentWithQuerier(ctx, t.querier(), rowKey); err != nil {
		return err
	}
	t.contentWritten = true
	return nil
}

func (t *sqliteTx) DeleteContentByID(ctx context.Context, id string) (int, error) {
	deleted, err := t.storage.deleteContentByIDWithQuerier(ctx, t.querier(), id)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		t.contentWritten = true
	}
	return deleted, nil
}

func (t *sqliteTx) MatchContent(ctx context.Context, expr string) ([]ContentHit, error) {
	return t.storage.matchContentWithQuerier(ctx, t.querier(), expr)
}

func (t *sqliteTx) SubstringContent(ctx context.Context, contentKeyword, fileNameKeyword string) ([]ContentHit, error) {
	return t.storage.substringContentWithQuerier(ctx, t.querier(), contentKeyword, fileNameKeyword)
}

func (t *sqliteTx) GetSetting(ctx context.Context, name string) (string, error) {
	return t.storage.getSettingWithQuerier(ctx, t.querier(), name)
}

func (t *sqliteTx) SetSetting(ctx context.Context, name, value string) error {
	return t.storage.setSettingWithQuerier(ctx, t.querier(), name, value)
}

func (t *sqliteTx) AddFavorite(ctx context.Context, id string) error {
	return t.storage.addFavoriteWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) ListFavorites(ctx context.Context) ([]*ContentRecord, error) {
	return t.storage.listFavoritesWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) RemoveFavorite(ctx context.Context, id string) error {
	return t.storage.removeFavoriteWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) SizeBytes(ctx context.Context) (int64, error) {
	return t.storage.sizeBytesWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) CheckSync(ctx context.Context) (*SyncReport, error) {
	return t.storage.checkSyncWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) ContentVersion() uint64 {
	return t.storage.ContentVersion()
}

func (t *sqliteTx) DataVersion(ctx context.Context) (int64, error) {
	return t.storage.dataVersionWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, ErrNestedTx
}
