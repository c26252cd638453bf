package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Manifest is the durable deferred-cleanup log of temp directories that
// could not be deleted immediately. It survives process restarts; a separate
// cleanup pass consumes and shrinks it. The full read-modify-write cycle is
// serialized under one lock to avoid corruption under concurrent writers.
type Manifest struct {
	mu   sync.Mutex
	path string

	// OnRecord, when set, is called once for each directory newly appended.
	OnRecord func(dir string)
}

// NewManifest creates a manifest backed by the given file path.
func NewManifest(path string) *Manifest {
	return &Manifest{path: path}
}

// Record appends dir to the manifest if not already present.
func (m *Manifest) Record(dir string) error {
	if dir == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	dirs := m.read()
	for _, d := range dirs {
		if d == dir {
			return nil
		}
	}
	if err := m.write(append(dirs, dir)); err != nil {
		return err
	}
	if m.OnRecord != nil {
		m.OnRecord(dir)
	}
	return nil
}

// CleanupBatch deletes up to n recorded directories, removing the successes
// from the manifest. Directories that fail to delete stay recorded.
func (m *Manifest) CleanupBatch(n int) (deleted, failed []string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dirs := m.read()
	todo := dirs
	if n > 0 && len(todo) > n {
		todo = dirs[:n]
	}
	for _, d := range todo {
		if rmErr := os.RemoveAll(d); rmErr != nil {
			failed = append(failed, d)
		} else {
			deleted = append(deleted, d)
		}
	}

	remaining := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if !containsString(deleted, d) {
			remaining = append(remaining, d)
		}
	}
	if err := m.write(remaining); err != nil {
		return deleted, failed, err
	}
	return deleted, failed, nil
}

// Pending returns the directories currently recorded.
func (m *Manifest) Pending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read()
}

// read returns the recorded directories, treating a missing or corrupt
// manifest as empty.
func (m *Manifest) read() []string {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return nil
	}
	var dirs []string
	if err := json.Unmarshal(raw, &dirs); err != nil {
		return nil
	}
	return dirs
}

// write replaces the manifest contents atomically (temp file + rename).
func (m *Manifest) write(dirs []string) error {
	raw, err := json.MarshalIndent(dirs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cleanup manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write cleanup manifest: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replace cleanup manifest: %w", err)
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
