package state

// inspector_state.go
//
// YAML-backed state kept between runs: the most recently inspected patches
// and the last export directory. The State value is not synchronized;
// callers guard concurrent access.

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// RecentLimit caps the recent patch list.
const RecentLimit = 10

// State is the persisted inspector state.
type State struct {
	StateVersion  int       `yaml:"stateVersion"`
	SavedAt       time.Time `yaml:"savedAt"`
	LastServer    string    `yaml:"lastServer,omitempty"`
	LastExportDir string    `yaml:"lastExportDir,omitempty"`
	RecentPatches []string  `yaml:"recentPatches"`
}

// Store defines pluggable storage behaviour.
type Store interface {
	Load(path string) (*State, error)
	Save(st *State, path string) error
}

// FilesystemStore is the default disk-backed implementation.
type FilesystemStore struct{}

// Load implements Store.Load.
func (FilesystemStore) Load(path string) (*State, error) {
	return Load(path)
}

// Save implements Store.Save.
func (FilesystemStore) Save(st *State, path string) error {
	return Save(st, path)
}

// NewDefaultState creates an empty state.
func NewDefaultState() *State {
	return &State{
		StateVersion:  1,
		SavedAt:       time.Now().UTC(),
		RecentPatches: []string{},
	}
}

// Load reads the state at path, returning defaults if the file is missing.
// An empty path selects DefaultPath.
func Load(path string) (*State, error) {
	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultState(), nil
		}
		return nil, fmt.Errorf("state: read failed: %w", err)
	}
	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("state: parse failed: %w", err)
	}
	normalize(&st)
	return &st, nil
}

// Save persists the state atomically to disk.
func Save(st *State, path string) error {
	if st == nil {
		return errors.New("state: nil State")
	}
	if path == "" {
		path = DefaultPath()
	}
	st.SavedAt = time.Now().UTC()

	out, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("state: marshal failed: %w", err)
	}
	if err := writeFileAtomic(path, out); err != nil {
		return fmt.Errorf("state: %w", err)
	}
	return nil
}

// writeFileAtomic replaces path with data through a 0600 temp file in the
// same directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("mkdir failed: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("temp create failed: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("temp write failed: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		return fmt.Errorf("chmod failed: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close failed: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomic rename failed: %w", err)
	}
	return nil
}

// DefaultPath returns the OS-specific default path for the state file.
func DefaultPath() string {
	return filepath.Join(userStateDir(), "patchinspect", "state.yaml")
}

func userStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".config")
	}
	return "."
}

func normalize(st *State) {
	if st.StateVersion <= 0 {
		st.StateVersion = 1
	}
	if st.RecentPatches == nil {
		st.RecentPatches = []string{}
	}
	if len(st.RecentPatches) > RecentLimit {
		st.RecentPatches = st.RecentPatches[:RecentLimit]
	}
}

// AddRecentPatch moves p to the front of the recent list (de-duped,
// size-limited).
func (s *State) AddRecentPatch(p string, maxItems int) {
	if p == "" {
		return
	}
	filtered := make([]string, 0, len(s.RecentPatches)+1)
	for _, existing := range s.RecentPatches {
		if existing != p {
			filtered = append(filtered, existing)
		}
	}
	s.RecentPatches = append([]string{p}, filtered...)
	if maxItems > 0 && len(s.RecentPatches) > maxItems {
		s.RecentPatches = s.RecentPatches[:maxItems]
	}
}

// WriteTo writes the YAML representation to w.
func (s *State) WriteTo(w io.Writer) (int64, error) {
	out, err := yaml.Marshal(s)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(out)
	return int64(n), err
}
