package memory

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store persists the long-term tier. Save always receives the full sequence
// and replaces whatever was stored before.
type Store interface {
	Load() ([]Item, error)
	Save(items []Item) error
	Path() string
	Close() error
}

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// OpenStore opens the store for backend at path.
func OpenStore(backend, path string) (Store, error) {
	switch backend {
	case "", BackendJSON:
		return NewJSONFileStore(path), nil
	case BackendSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
	}
}

// JSONFileStore keeps long-term memory as a pretty-printed JSON array.
type JSONFileStore struct {
	path   string
	mu     sync.Mutex
	digest [sha256.Size]byte
	known  bool
}

// NewJSONFileStore creates a store backed by the file at path. The file is
// created on first Save.
func NewJSONFileStore(path string) *JSONFileStore {
	return &JSONFileStore{path: path}
}

// Path returns the backing file path.
func (s *JSONFileStore) Path() string {
	return s.path
}

// Load reads every record. A missing file is an empty store.
func (s *JSONFileStore) Load() ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return []Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read memory file: %w", err)
	}
	s.remember(data)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrStoreCorrupt, s.path)
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

// Save writes items through a temporary file and an atomic rename.
func (s *JSONFileStore) Save(items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if items == nil {
		items = []Item{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal memory: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create memory directory: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	s.remember(data)
	return nil
}

func (s *JSONFileStore) remember(data []byte) {
	s.digest = sha256.Sum256(data)
	s.known = true
}

// ModifiedExternally reports whether the file no longer holds what this store
// last read or wrote.
func (s *JSONFileStore) ModifiedExternally() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s.known, nil
	}
	if err != nil {
		return false, err
	}
	return !s.known || sha256.Sum256(data) != s.digest, nil
}

// Close is a no-op for file stores.
func (s *JSONFileStore) Close() error {
	return nil
}
