// Package nv persists the small amount of state that must survive a reset.
package nv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// StartupOptions are flags consulted by the stack on the next boot.
type StartupOptions uint8

const (
	// StartupDefaultConfig restores every setting to its default.
	StartupDefaultConfig StartupOptions = 0x01
	// StartupDefaultNetworkState discards network state, forcing a fresh join.
	StartupDefaultNetworkState StartupOptions = 0x02
)

// Store persists startup options.
type Store interface {
	WriteStartupOptions(opts StartupOptions) error
	ReadStartupOptions() (StartupOptions, error)
}

type record struct {
	Startup StartupOptions `cbor:"1,keyasint"`
}

// FileStore keeps a CBOR record in a single file, replaced atomically.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The parent directory is
// created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) WriteStartupOptions(opts StartupOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := cbor.Marshal(record{Startup: opts})
	if err != nil {
		return fmt.Errorf("encode nv record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create nv dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write nv record: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("commit nv record: %w", err)
	}
	return nil
}

// ReadStartupOptions returns zero if nothing has been written yet.
func (s *FileStore) ReadStartupOptions() (StartupOptions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read nv record: %w", err)
	}
	var r record
	if err := cbor.Unmarshal(b, &r); err != nil {
		return 0, fmt.Errorf("decode nv record: %w", err)
	}
	return r.Startup, nil
}

// MemStore keeps startup options in memory for testing.
type MemStore struct {
	mu   sync.Mutex
	opts StartupOptions

	// Writes holds every value written, in order.
	Writes []StartupOptions

	// WriteError, if set, will be returned by WriteStartupOptions.
	WriteError error
}

func (m *MemStore) WriteStartupOptions(opts StartupOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteError != nil {
		return m.WriteError
	}
	m.opts = opts
	m.Writes = append(m.Writes, opts)
	return nil
}

func (m *MemStore) ReadStartupOptions() (StartupOptions, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts, nil
}
