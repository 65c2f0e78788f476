package storage

import (
	"context"
	"time"
)

// Storage defines the interface for persisting indexed documents and run metadata
type Storage interface {
	// Run operations
	UpsertRun(ctx context.Context, run *IndexRun) error
	GetRun(ctx context.Context, path string) (*IndexRun, error)
	ListRuns(ctx context.Context) ([]*IndexRun, error)

	// File record operations
	InsertScannedFile(ctx context.Context, rec *ScannedFileRecord) error
	InsertIndexedFile(ctx context.Context, rec *IndexedFileRecord) error
	ListIndexedFiles(ctx context.Context) ([]*IndexedFileRecord, error)
	InsertError(ctx context.Context, rec *ErrorRecord) error
	ListErrors(ctx context.Context) ([]*ErrorRecord, error)

	// Content operations; each keeps the search index in step with contents
	InsertContent(ctx context.Context, rec *ContentRecord) error
	GetContentByID(ctx context.Context, id string) (string, error)
	GetContent(ctx context.Context, rowKey int64) (*ContentRecord, error)
	UpdateContent(ctx context.Context, rec *ContentRecord) error
	DeleteContent(ctx context.Context, rowKey int64) error
	DeleteContentByID(ctx context.Context, id string) (int, error)

	// Search operations
	MatchContent(ctx context.Context, expr string) ([]ContentHit, error)
	SubstringContent(ctx context.Context, contentKeyword, fileNameKeyword string) ([]ContentHit, error)

	// Settings operations
	GetSetting(ctx context.Context, name string) (string, error)
	SetSetting(ctx context.Context, name, value string) error

	// Favorite operations
	AddFavorite(ctx context.Context, id string) error
	ListFavorites(ctx context.Context) ([]*ContentRecord, error)
	RemoveFavorite(ctx context.Context, id string) error

	// Status operations
	SizeBytes(ctx context.Context) (int64, error)
	CheckSync(ctx context.Context) (*SyncReport, error)
	ContentVersion() uint64
	DataVersion(ctx context.Context) (int64, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// RunStatus is the lifecycle state of an IndexRun
type RunStatus int

const (
	RunInProgress RunStatus = 0
	RunComplete   RunStatus = 1
)

func (s RunStatus) String() string {
	switch s {
	case RunInProgress:
		return "in_progress"
	case RunComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// IndexRun is one indexing pass over one root, keyed by its canonical path
type IndexRun struct {
	Path           string
	TotalFiles     int
	SuccessCount   int
	ErrorCount     int
	IndexSizeBytes int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Status         RunStatus
}

// ScannedFileRecord is the audit row written for every visited file
type ScannedFileRecord struct {
	FileName string
	DirLabel string
}

// IndexedFileRecord holds metadata for a successfully extracted file
type IndexedFileRecord struct {
	InternalID     int64
	ID             string
	FileName       string
	Content        string
	SizeBytes      int64
	Ext            string
	ModifiedAt     time.Time
	CreatedAt      time.Time
	DirLabel       string
	QueryFrequency int
}

// ErrorRecord is a file that failed extraction
type ErrorRecord struct {
	DirLabel       string
	FileName       string
	Message        string
	Classification string
}

// ContentRecord is the canonical text body of one indexed file
type ContentRecord struct {
	RowKey   int64
	ID       string
	Content  string
	FileName string
	Ext      string
	DirLabel string
}

// ContentHit is a search result row
type ContentHit struct {
	ID       string
	FileName string
	DirLabel string
	Ext      string
}

// SyncReport counts rows that break the contents/search index correspondence
type SyncReport struct {
	ContentRows    int
	IndexRows      int
	MissingIndex   int // contents rows with no search index entry
	OrphanedIndex  int // search index entries with no contents row
	MismatchedRows int // entries whose text differs from the contents row
}

// InSync reports whether both sides hold exactly the same rows
func (r *SyncReport) InSync() bool {
	return r.MissingIndex == 0 && r.OrphanedIndex == 0 && r.MismatchedRows == 0
}
