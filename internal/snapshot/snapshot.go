package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"noteshare-go/internal/ns"
)

// KeySuffix ends every snapshot key: a zstd stream sealed by the Encryptor.
const KeySuffix = ".db.zst.age"

// Backuper writes a consistent copy of the index database to a path.
type Backuper interface {
	BackupTo(path string) error
}

// Result describes one written snapshot.
type Result struct {
	Key       string
	Size      int64 // bytes stored at the target
	IndexSize int64 // bytes of the uncompressed index
	CreatedAt time.Time
}

// Snapshotter copies the index, compresses and encrypts the copy, and writes
// it to a Target. Files themselves are not included.
type Snapshotter struct {
	db        Backuper
	encryptor ns.Encryptor
	target    Target
	prefix    string
	tmpDir    string
	logger    ns.Logger
	clock     ns.Clock
}

// NewSnapshotter creates a Snapshotter. Temporary files go to tmpDir, or the
// system default when empty.
func NewSnapshotter(db Backuper, encryptor ns.Encryptor, target Target, prefix, tmpDir string, logger ns.Logger, clock ns.Clock) *Snapshotter {
	return &Snapshotter{
		db:        db,
		encryptor: encryptor,
		target:    target,
		prefix:    prefix,
		tmpDir:    tmpDir,
		logger:    logger,
		clock:     clock,
	}
}

// Key returns the target key of a snapshot taken at t.
func (s *Snapshotter) Key(t time.Time) string {
	return s.prefix + "index-" + t.UTC().Format("20060102T150405Z") + KeySuffix
}

// Create writes a new snapshot and returns its key.
func (s *Snapshotter) Create(ctx context.Context) (*Result, error) {
	work, err := os.MkdirTemp(s.tmpDir, "noteshare-snapshot-*")
	if err != nil {
		return nil, fmt.Errorf("creating work directory: %w", err)
	}
	defer os.RemoveAll(work)

	now := s.clock.Now()
	indexPath := filepath.Join(work, "index.db")
	if err := s.db.BackupTo(indexPath); err != nil {
		return nil, err
	}
	info, err := os.Stat(indexPath)
	if err != nil {
		return nil, fmt.Errorf("stat index copy: %w", err)
	}

	sealedPath := filepath.Join(work, "index"+KeySuffix)
	if err := s.seal(indexPath, sealedPath); err != nil {
		return nil, err
	}

	sealed, err := os.Open(sealedPath)
	if err != nil {
		return nil, fmt.Errorf("opening sealed snapshot: %w", err)
	}
	defer sealed.Close()
	sealedInfo, err := sealed.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat sealed snapshot: %w", err)
	}

	key := s.Key(now)
	if err := s.target.Put(ctx, key, sealed, sealedInfo.Size()); err != nil {
		return nil, fmt.Errorf("writing snapshot %s: %w", key, err)
	}

	s.logger.Info("index snapshot written", "key", key, "index_bytes", info.Size(), "stored_bytes", sealedInfo.Size())
	return &Result{
		Key:       key,
		Size:      sealedInfo.Size(),
		IndexSize: info.Size(),
		CreatedAt: now,
	}, nil
}

// seal compresses src with zstd and encrypts the stream into dst.
func (s *Snapshotter) seal(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening index copy: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating sealed snapshot: %w", err)
	}
	defer out.Close()

	pr, pw := io.Pipe()
	go func() {
		enc, err := zstd.NewWriter(pw, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(enc, in); err != nil {
			enc.Close()
			pw.CloseWithError(fmt.Errorf("compressing index: %w", err))
			return
		}
		pw.CloseWithError(enc.Close())
	}()

	if err := s.encryptor.Encrypt(pr, out); err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("encrypting snapshot: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing sealed snapshot: %w", err)
	}
	return nil
}

// Restore fetches the snapshot under key, decrypts and decompresses it, and
// writes the index database to destPath. destPath must not exist.
func (s *Snapshotter) Restore(ctx context.Context, key string, dec ns.DecryptionContext, destPath string) error {
	if !strings.HasSuffix(path.Base(key), KeySuffix) {
		return fmt.Errorf("not a snapshot key: %s", key)
	}

	work, err := os.MkdirTemp(s.tmpDir, "noteshare-restore-*")
	if err != nil {
		return fmt.Errorf("creating work directory: %w", err)
	}
	defer os.RemoveAll(work)

	sealedPath := filepath.Join(work, "index"+KeySuffix)
	sealed, err := os.Create(sealedPath)
	if err != nil {
		return fmt.Errorf("creating download file: %w", err)
	}
	if err := s.target.Get(ctx, key, sealed); err != nil {
		sealed.Close()
		return err
	}
	if _, err := sealed.Seek(0, io.SeekStart); err != nil {
		sealed.Close()
		return fmt.Errorf("rewinding download: %w", err)
	}
	defer sealed.Close()

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating restored index: %w", err)
	}
	if err := Open(sealed, dec, out); err != nil {
		out.Close()
		os.Remove(destPath)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("closing restored index: %w", err)
	}

	s.logger.Info("index snapshot restored", "key", key, "path", destPath)
	return nil
}

// Open decrypts and decompresses a sealed snapshot read from r into w.
func Open(r io.Reader, dec ns.DecryptionContext, w io.Writer) error {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(dec.Decrypt(r, pw))
	}()
	defer pr.Close()

	zr, err := zstd.NewReader(pr)
	if err != nil {
		return fmt.Errorf("opening zstd stream: %w", err)
	}
	defer zr.Close()

	if _, err := io.Copy(w, zr); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}
	return nil
}
