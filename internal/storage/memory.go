package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"

	"noteshare-go/internal/ns"
)

// ErrInjected is returned by MemoryStorage operations set to fail.
var ErrInjected = errors.New("injected storage failure")

// MemoryStorage keeps files in memory. It is safe for concurrent use and can
// be told to fail upcoming writes or removals.
type MemoryStorage struct {
	depth int

	mu          sync.RWMutex
	files       map[string][]byte // rel path -> content
	failPuts    int
	failRemoves int
	stuck       map[string]bool // rel path -> Remove always fails
	puts        int
}

func NewMemoryStorage(depth int) *MemoryStorage {
	return &MemoryStorage{
		depth: depth,
		files: make(map[string][]byte),
		stuck: make(map[string]bool),
	}
}

func (m *MemoryStorage) Put(category ns.Category, filename string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.failPuts > 0 {
		m.failPuts--
		return ErrInjected
	}
	m.files[m.RelPath(category, filename)] = data
	return nil
}

func (m *MemoryStorage) Open(category ns.Category, filename string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[m.RelPath(category, filename)]
	if !ok {
		return nil, fmt.Errorf("opening %s: %w", filename, fs.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryStorage) Remove(category ns.Category, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rel := m.RelPath(category, filename)
	if m.stuck[rel] {
		return ErrInjected
	}
	if m.failRemoves > 0 {
		m.failRemoves--
		return ErrInjected
	}
	delete(m.files, rel)
	return nil
}

func (m *MemoryStorage) Exists(category ns.Category, filename string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[m.RelPath(category, filename)]
	return ok, nil
}

func (m *MemoryStorage) RelPath(category ns.Category, filename string) string {
	return RelPath(category, filename, m.depth)
}

// FailPuts makes the next n Put calls fail with ErrInjected.
func (m *MemoryStorage) FailPuts(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPuts = n
}

// FailRemoves makes the next n Remove calls fail with ErrInjected.
func (m *MemoryStorage) FailRemoves(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRemoves = n
}

// FailRemovesOf makes every Remove of the given file fail with ErrInjected.
func (m *MemoryStorage) FailRemovesOf(category ns.Category, filename string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stuck[m.RelPath(category, filename)] = true
}

// PutCount returns the number of Put calls seen, including failed ones.
func (m *MemoryStorage) PutCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}

// Len returns the number of stored files.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

// ValidateSetup always succeeds for in-memory storage.
func (m *MemoryStorage) ValidateSetup() error {
	return nil
}

var _ ns.Storage = (*MemoryStorage)(nil)
