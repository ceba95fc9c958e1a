package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"noteshare-go/internal/ns"
)

// FileSystemStorage stores files under a root directory:
//
//	<root>/
//	  notes/<shards>/<name>.html
//	  css/<shards>/<name>.css
//	  files/<shards>/<name>.<ext>
type FileSystemStorage struct {
	root  string
	depth int
}

// NewFileSystemStorage creates the category directories under root.
func NewFileSystemStorage(root string, depth int) (*FileSystemStorage, error) {
	if err := ValidateShardDepth(depth); err != nil {
		return nil, err
	}
	for _, c := range ns.Categories {
		if err := os.MkdirAll(filepath.Join(root, string(c)), 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", c, err)
		}
	}
	return &FileSystemStorage{root: root, depth: depth}, nil
}

// Root returns the storage root directory.
func (s *FileSystemStorage) Root() string { return s.root }

func (s *FileSystemStorage) Put(category ns.Category, filename string, r io.Reader, size int64) error {
	dest := ResolvePath(s.root, category, filename, s.depth)
	if err := EnsureDir(dest); err != nil {
		return err
	}
	return writeFile(dest, r, size)
}

func (s *FileSystemStorage) Open(category ns.Category, filename string) (io.ReadCloser, error) {
	f, err := os.Open(ResolvePath(s.root, category, filename, s.depth))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filename, err)
	}
	return f, nil
}

func (s *FileSystemStorage) Remove(category ns.Category, filename string) error {
	err := os.Remove(ResolvePath(s.root, category, filename, s.depth))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", filename, err)
	}
	return nil
}

func (s *FileSystemStorage) Exists(category ns.Category, filename string) (bool, error) {
	_, err := os.Stat(ResolvePath(s.root, category, filename, s.depth))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", filename, err)
}

func (s *FileSystemStorage) RelPath(category ns.Category, filename string) string {
	return RelPath(category, filename, s.depth)
}

// ValidateSetup verifies that the category directories are accessible.
func (s *FileSystemStorage) ValidateSetup() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("storage root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root is not a directory: %s", s.root)
	}
	for _, c := range ns.Categories {
		dir := filepath.Join(s.root, string(c))
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("storage directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("storage path is not a directory: %s", dir)
		}
	}
	return nil
}

// writeFile writes r to destPath through a temp file in the same directory
// and an atomic rename.
func writeFile(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

var _ ns.Storage = (*FileSystemStorage)(nil)
