package ns

import "time"

// User is a provisioned account. Only the hash of the issued API key is kept.
type User struct {
	UID       string
	KeyHash   string
	CreatedAt time.Time
	RotatedAt *time.Time
}

// FileRecord is the index entry for one stored file. It is the source of
// truth; the bytes on disk are derived from it.
type FileRecord struct {
	Category  Category
	Filename  string // name + "." + extension
	OwnerUID  string
	Checksum  string // hex SHA-256 of the full content
	Size      int64
	CreatedAt time.Time
	ExpiresAt *time.Time // nil never expires
}

// Name returns the filename without its extension.
func (r *FileRecord) Name() string {
	for i := len(r.Filename) - 1; i >= 0; i-- {
		if r.Filename[i] == '.' {
			return r.Filename[:i]
		}
	}
	return r.Filename
}

// Expired reports whether the record is past its expiry at now.
func (r *FileRecord) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// Sweep run statuses.
const (
	SweepRunning = "running"
	SweepSuccess = "success"
	SweepPartial = "partial"
	SweepError   = "error"
)

// SweepRun is the persisted log entry for one expiration sweep.
type SweepRun struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Purged     int
	Failed     int
}
