package ns

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"
)

// FileStoreConfig holds the upload policy of a FileStore.
type FileStoreConfig struct {
	BaseURL    string
	DefaultTTL time.Duration // applied when a request has no TTL; zero never expires
	MaxTTL     time.Duration // requested TTLs are clamped to this; zero is unlimited
}

// StoreRequest describes one upload.
type StoreRequest struct {
	UID      string
	FileType string
	Body     io.Reader
	Size     int64 // declared length or UnknownSize
	TTL      time.Duration
}

// StoredFile is the result of a successful Store.
type StoredFile struct {
	Name         string
	Filename     string
	Category     Category
	Path         string
	URL          string
	Size         int64
	ExpiresAt    *time.Time
	Deduplicated bool
}

// FileStore admits, names, writes and indexes uploaded files. Operations on
// the same filename are serialized.
type FileStore struct {
	index     FileIndex
	storage   Storage
	validator *ContentValidator
	purger    CachePurger
	cfg       FileStoreConfig
	logger    Logger
	clock     Clock
	locks     *KeyedMutex
}

func NewFileStore(index FileIndex, storage Storage, validator *ContentValidator, purger CachePurger, cfg FileStoreConfig, logger Logger, clock Clock) *FileStore {
	if purger == nil {
		purger = NopPurger{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &FileStore{
		index:     index,
		storage:   storage,
		validator: validator,
		purger:    purger,
		cfg:       cfg,
		logger:    logger,
		clock:     clock,
		locks:     NewKeyedMutex(),
	}
}

// Store admits and persists an upload. Uploading bytes that are already
// stored returns the existing name without a second record.
func (s *FileStore) Store(ctx context.Context, req StoreRequest) (*StoredFile, error) {
	if err := s.validator.Admit(req.FileType, req.Size); err != nil {
		return nil, err
	}
	ext := NormalizeExtension(req.FileType)
	category, _ := ExtensionCategory(ext)

	data, err := readLimited(req.Body, s.validator.MaxSize())
	if err != nil {
		return nil, err
	}
	if req.Size != UnknownSize && int64(len(data)) != req.Size {
		return nil, rejectf("declared size %d but received %d bytes", req.Size, len(data))
	}

	name := DeriveName(data, category)
	filename := name + "." + ext
	checksum := checksumHex(data)
	// The index keeps whole seconds; the result must match what Lookup reads.
	now := s.clock.Now().Truncate(time.Second)
	expiresAt := s.expiry(now, req.TTL)

	unlock := s.locks.Lock(lockKey(category, filename))
	defer unlock()

	existing, err := s.index.FindFile(ctx, category, filename)
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", filename, err)
	}

	result := &StoredFile{
		Name:     name,
		Filename: filename,
		Category: category,
		Path:     s.storage.RelPath(category, filename),
		Size:     int64(len(data)),
	}
	result.URL = s.url(result.Path)

	if existing != nil && !existing.Expired(now) {
		if existing.Checksum != checksum || existing.Size != int64(len(data)) {
			s.logger.Warn("naming conflict", "filename", filename, "category", category)
			return nil, fmt.Errorf("%w: %s", ErrNamingConflict, filename)
		}
		if err := s.ensureBytes(category, filename, data); err != nil {
			return nil, err
		}
		result.Deduplicated = true
		result.ExpiresAt = existing.ExpiresAt
		if existing.OwnerUID != req.UID {
			// Another owner's file; leave its record alone.
			return result, nil
		}
		existing.ExpiresAt = expiresAt
		if err := s.index.UpsertFile(ctx, existing); err != nil {
			return nil, fmt.Errorf("refreshing %s: %w", filename, err)
		}
		result.ExpiresAt = expiresAt
		return result, nil
	}

	if err := s.put(category, filename, data); err != nil {
		return nil, err
	}
	rec := &FileRecord{
		Category:  category,
		Filename:  filename,
		OwnerUID:  req.UID,
		Checksum:  checksum,
		Size:      int64(len(data)),
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	if err := s.index.UpsertFile(ctx, rec); err != nil {
		return nil, fmt.Errorf("indexing %s: %w", filename, err)
	}

	s.logger.Info("file stored", "filename", filename, "category", category, "size", rec.Size, "owner", req.UID)
	result.ExpiresAt = expiresAt
	return result, nil
}

// Delete removes a file owned by uid. The index record is only removed after
// the bytes are gone, so a failed delete can be retried.
func (s *FileStore) Delete(ctx context.Context, uid, filename string) error {
	category, ok := FilenameCategory(filename)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, filename)
	}

	unlock := s.locks.Lock(lockKey(category, filename))
	defer unlock()

	rec, err := s.index.FindFile(ctx, category, filename)
	if err != nil {
		return fmt.Errorf("looking up %s: %w", filename, err)
	}
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	if rec.OwnerUID != uid {
		return fmt.Errorf("%w: %s", ErrForbidden, filename)
	}

	if err := s.purge(ctx, rec); err != nil {
		return err
	}
	s.logger.Info("file deleted", "filename", filename, "category", category, "owner", uid)
	s.NotifyPurged(ctx, []string{s.url(s.storage.RelPath(category, filename))})
	return nil
}

// Purge deletes an expired record and its bytes without an ownership check.
// It reports false when the record is gone or was refreshed since it was
// listed.
func (s *FileStore) Purge(ctx context.Context, rec *FileRecord) (bool, error) {
	unlock := s.locks.Lock(lockKey(rec.Category, rec.Filename))
	defer unlock()

	cur, err := s.index.FindFile(ctx, rec.Category, rec.Filename)
	if err != nil {
		return false, fmt.Errorf("looking up %s: %w", rec.Filename, err)
	}
	if cur == nil || !cur.Expired(s.clock.Now()) {
		return false, nil
	}
	if err := s.purge(ctx, cur); err != nil {
		return false, err
	}
	return true, nil
}

func (s *FileStore) purge(ctx context.Context, rec *FileRecord) error {
	if err := s.remove(rec.Category, rec.Filename); err != nil {
		return err
	}
	if err := s.index.DeleteFile(ctx, rec.Category, rec.Filename); err != nil {
		return fmt.Errorf("unindexing %s: %w", rec.Filename, err)
	}
	return nil
}

// Lookup returns the record for a servable file. Missing and expired files
// both return ErrNotFound.
func (s *FileStore) Lookup(ctx context.Context, filename string) (*FileRecord, error) {
	category, ok := FilenameCategory(filename)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	rec, err := s.index.FindFile(ctx, category, filename)
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", filename, err)
	}
	if rec == nil || rec.Expired(s.clock.Now()) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	return rec, nil
}

// Open returns the bytes of a servable file. The caller closes the reader.
func (s *FileStore) Open(ctx context.Context, filename string) (io.ReadCloser, *FileRecord, error) {
	rec, err := s.Lookup(ctx, filename)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.storage.Open(rec.Category, rec.Filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("indexed file missing from storage", "filename", rec.Filename, "category", rec.Category)
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, filename)
		}
		return nil, nil, &OpError{Op: "open", Category: rec.Category, Filename: rec.Filename, Err: err}
	}
	return rc, rec, nil
}

// ListOwned returns every record owned by uid.
func (s *FileStore) ListOwned(ctx context.Context, uid string) ([]*FileRecord, error) {
	return s.index.ListFilesByOwner(ctx, uid)
}

// URL returns the public URL of a stored file.
func (s *FileStore) URL(rec *FileRecord) string {
	return s.url(s.RelPath(rec))
}

// RelPath returns the sharded path of a stored file, which is also its URL
// path.
func (s *FileStore) RelPath(rec *FileRecord) string {
	return s.storage.RelPath(rec.Category, rec.Filename)
}

// NotifyPurged tells the cache purger that urls are gone. Failures are logged
// and never returned.
func (s *FileStore) NotifyPurged(ctx context.Context, urls []string) {
	if len(urls) == 0 {
		return
	}
	if err := s.purger.Purge(ctx, urls); err != nil {
		s.logger.Warn("cache purge failed", "urls", len(urls), "error", err)
	}
}

func (s *FileStore) expiry(now time.Time, ttl time.Duration) *time.Time {
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}
	if s.cfg.MaxTTL > 0 && ttl > s.cfg.MaxTTL {
		ttl = s.cfg.MaxTTL
	}
	if ttl <= 0 {
		return nil
	}
	t := now.Add(ttl)
	return &t
}

func (s *FileStore) url(relPath string) string {
	return s.cfg.BaseURL + "/" + relPath
}

// ensureBytes rewrites a deduplicated file whose bytes went missing.
func (s *FileStore) ensureBytes(category Category, filename string, data []byte) error {
	ok, err := s.storage.Exists(category, filename)
	if err != nil {
		return &OpError{Op: "stat", Category: category, Filename: filename, Err: err}
	}
	if ok {
		return nil
	}
	s.logger.Warn("rewriting missing file", "filename", filename, "category", category)
	return s.put(category, filename, data)
}

// put writes data, retrying once.
func (s *FileStore) put(category Category, filename string, data []byte) error {
	err := s.storage.Put(category, filename, bytes.NewReader(data), int64(len(data)))
	if err == nil {
		return nil
	}
	s.logger.Warn("write failed, retrying", "filename", filename, "category", category, "error", err)
	if err = s.storage.Put(category, filename, bytes.NewReader(data), int64(len(data))); err != nil {
		s.logger.Error("write failed", "filename", filename, "category", category, "op", "put", "error", err)
		return &OpError{Op: "put", Category: category, Filename: filename, Err: err}
	}
	return nil
}

// remove deletes the bytes, retrying once.
func (s *FileStore) remove(category Category, filename string) error {
	err := s.storage.Remove(category, filename)
	if err == nil {
		return nil
	}
	s.logger.Warn("remove failed, retrying", "filename", filename, "category", category, "error", err)
	if err = s.storage.Remove(category, filename); err != nil {
		s.logger.Error("remove failed", "filename", filename, "category", category, "op", "remove", "error", err)
		return &OpError{Op: "remove", Category: category, Filename: filename, Err: err}
	}
	return nil
}

// readLimited reads r fully, rejecting content larger than max without
// buffering more than max+1 bytes.
func readLimited(r io.Reader, max int64) ([]byte, error) {
	if r == nil {
		return nil, rejectf("missing body")
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if int64(len(data)) > max {
		return nil, &ValidationError{Reason: "file exceeds maximum upload size", TooLarge: true}
	}
	return data, nil
}

func checksumHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func lockKey(category Category, filename string) string {
	return string(category) + "/" + filename
}
