package ns

import (
	"context"
	"io"
	"time"
)

// UserRepository persists user credentials.
// Find methods return nil, nil when the user does not exist.
type UserRepository interface {
	FindUser(ctx context.Context, uid string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	// UpdateUserKey replaces the stored key hash. It returns an error wrapping
	// ErrAuthUserUnknown when uid does not exist.
	UpdateUserKey(ctx context.Context, uid, keyHash string, rotatedAt time.Time) error
	ListUsers(ctx context.Context) ([]*User, error)
}

// ExpiryCursor is a position in the expiry ordering of the index.
type ExpiryCursor struct {
	ExpiresAt time.Time
	Category  Category
	Filename  string
}

// FileIndex persists file records keyed by (category, filename).
type FileIndex interface {
	// FindFile returns nil, nil when no record exists.
	FindFile(ctx context.Context, category Category, filename string) (*FileRecord, error)
	// UpsertFile inserts the record or replaces every column of an existing one.
	UpsertFile(ctx context.Context, rec *FileRecord) error
	DeleteFile(ctx context.Context, category Category, filename string) error
	// ListExpired returns up to limit records whose expiry is at or before now,
	// ordered by (expiry, category, filename). A non-nil after resumes past
	// that position.
	ListExpired(ctx context.Context, now time.Time, after *ExpiryCursor, limit int) ([]*FileRecord, error)
	ListFilesByOwner(ctx context.Context, uid string) ([]*FileRecord, error)
}

// SweepLog records expiration sweep runs.
type SweepLog interface {
	StartSweepRun(ctx context.Context, startedAt time.Time) (*SweepRun, error)
	FinishSweepRun(ctx context.Context, id int64, finishedAt time.Time, status string, purged, failed int) error
	ListSweepRuns(ctx context.Context, limit int) ([]*SweepRun, error)
}

// Database is the full persistence surface used by the application.
type Database interface {
	UserRepository
	FileIndex
	SweepLog

	// CheckMigrations returns an error unless the schema is at the latest version.
	CheckMigrations() error
	// BackupTo writes a consistent copy of the database to path.
	BackupTo(path string) error
	Close() error
}

// Storage holds file bytes, addressed by category and filename.
type Storage interface {
	// Put atomically writes exactly size bytes from r. Readers never observe a
	// partially written file.
	Put(category Category, filename string, r io.Reader, size int64) error
	// Open returns an error matching fs.ErrNotExist when the file is absent.
	Open(category Category, filename string) (io.ReadCloser, error)
	// Remove deletes the file. Removing an absent file is not an error.
	Remove(category Category, filename string) error
	Exists(category Category, filename string) (bool, error)
	// RelPath is the slash-separated path of the file below the storage root,
	// including shard directories. It is also the public URL path.
	RelPath(category Category, filename string) string
}

// CachePurger invalidates cached copies of public URLs at an edge cache.
type CachePurger interface {
	Purge(ctx context.Context, urls []string) error
}

// NopPurger is a CachePurger that does nothing.
type NopPurger struct{}

func (NopPurger) Purge(context.Context, []string) error { return nil }
