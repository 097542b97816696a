package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Backend is the persistence port for the fact store. The file backend is
// the production implementation; the memory backend serves tests and
// environments without a profile directory.
type Backend interface {
	// Load returns the stored document, or (nil, nil) when none exists yet.
	Load() ([]byte, error)

	// Save replaces the stored document atomically.
	Save(data []byte) error

	// Path returns the document's filesystem path, or "" when the backend
	// is not file-based. Watchers use it to observe cross-process writes.
	Path() string
}

// FileBackend persists the store document as a single JSON file inside a
// profile directory.
type FileBackend struct {
	path string
}

// NewFileBackend creates a file backend rooted at dir, creating the
// directory if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create profile directory: %w", err)
	}
	return &FileBackend{path: filepath.Join(dir, "store.json")}, nil
}

// Load reads the store document from disk.
func (b *FileBackend) Load() ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Save writes the document to a temp file and renames it into place, so
// concurrent readers and file watchers never observe a torn document.
func (b *FileBackend) Save(data []byte) error {
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, b.path)
}

// Path returns the document path.
func (b *FileBackend) Path() string { return b.path }

// MemoryBackend keeps the document in memory.
type MemoryBackend struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend { return &MemoryBackend{} }

// Load returns the current document.
func (b *MemoryBackend) Load() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return nil, nil
	}
	cp := make([]byte, len(b.data))
	copy(cp, b.data)
	return cp, nil
}

// Save replaces the current document.
func (b *MemoryBackend) Save(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = make([]byte, len(data))
	copy(b.data, data)
	return nil
}

// Path returns "" since there is no file to watch.
func (b *MemoryBackend) Path() string { return "" }
