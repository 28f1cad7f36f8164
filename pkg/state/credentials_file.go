package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileCredentialStore keeps tokens in a 0600 YAML file. The file is read on
// every call, so edits made by another process are picked up.
type FileCredentialStore struct {
	path string
	mu   sync.Mutex
}

type credentialFile struct {
	Tokens map[string]string `yaml:"tokens"`
}

// NewFileCredentialStore creates a store backed by path. An empty path
// selects DefaultCredentialsPath.
func NewFileCredentialStore(path string) *FileCredentialStore {
	if path == "" {
		path = DefaultCredentialsPath()
	}
	return &FileCredentialStore{path: path}
}

// DefaultCredentialsPath returns the per-user token file location.
func DefaultCredentialsPath() string {
	return filepath.Join(userStateDir(), "patchinspect", "credentials.yaml")
}

// Path returns the backing file.
func (s *FileCredentialStore) Path() string {
	return s.path
}

func (s *FileCredentialStore) read() (map[string]string, error) {
	data, err := os.ReadFile(filepath.Clean(s.path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("credentials: read failed: %w", err)
	}
	var f credentialFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("credentials: parse failed: %w", err)
	}
	if f.Tokens == nil {
		f.Tokens = map[string]string{}
	}
	return f.Tokens, nil
}

func (s *FileCredentialStore) write(tokens map[string]string) error {
	out, err := yaml.Marshal(credentialFile{Tokens: tokens})
	if err != nil {
		return fmt.Errorf("credentials: marshal failed: %w", err)
	}
	if err := writeFileAtomic(s.path, out); err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	return nil
}

// SetToken stores or updates the token for key.
func (s *FileCredentialStore) SetToken(key, token string) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.read()
	if err != nil {
		return err
	}
	tokens[key] = token
	return s.write(tokens)
}

// GetToken returns the token for key or ErrCredentialNotFound.
func (s *FileCredentialStore) GetToken(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.read()
	if err != nil {
		return "", err
	}
	v, ok := tokens[key]
	if !ok {
		return "", ErrCredentialNotFound
	}
	return v, nil
}

// DeleteToken removes the token for key; missing keys are ignored.
func (s *FileCredentialStore) DeleteToken(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := tokens[key]; !ok {
		return nil
	}
	delete(tokens, key)
	return s.write(tokens)
}

// ListKeys returns the stored keys in sorted order.
func (s *FileCredentialStore) ListKeys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(tokens))
	for k := range tokens {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}
