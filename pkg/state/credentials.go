// Package state holds the inspector's credentials and the small amount of
// state persisted between runs.
package state

// credentials.go
//
// Token storage and resolution for remote server connections.
//
// Server names are used as keys. The authorization token is stored under
// AuthorizationKey. Never log a raw token; pass it through RedactToken.

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/greg-hellings/patchinspect/pkg/config"
)

// AuthorizationKey is the credential store key of the authorization token.
const AuthorizationKey = "authorization"

// CredentialStore defines the contract for token persistence.
type CredentialStore interface {
	// SetToken stores or updates a token for a given key.
	SetToken(key string, token string) error
	// GetToken retrieves a token. Returns ErrCredentialNotFound if missing.
	GetToken(key string) (string, error)
	// DeleteToken removes a stored token (idempotent).
	DeleteToken(key string) error
	// ListKeys returns the keys that have tokens stored.
	ListKeys() ([]string, error)
}

// ErrCredentialNotFound is returned when a token for a key does not exist.
var ErrCredentialNotFound = errors.New("credential not found")

// ErrNoServerSelected is returned when no server is configured or selected.
var ErrNoServerSelected = errors.New("no server selected")

// InMemoryCredentialStore is a thread-safe, volatile implementation.
type InMemoryCredentialStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewInMemoryCredentialStore creates an empty store.
func NewInMemoryCredentialStore() *InMemoryCredentialStore {
	return &InMemoryCredentialStore{
		tokens: make(map[string]string),
	}
}

// SetToken stores or updates the token for key.
func (s *InMemoryCredentialStore) SetToken(key string, token string) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[key] = token
	return nil
}

// GetToken returns the token for key or ErrCredentialNotFound.
func (s *InMemoryCredentialStore) GetToken(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.tokens[key]
	if !ok {
		return "", ErrCredentialNotFound
	}
	return v, nil
}

// DeleteToken removes the token for key; missing keys are ignored.
func (s *InMemoryCredentialStore) DeleteToken(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, key)
	return nil
}

// ListKeys returns all keys that currently have tokens.
func (s *InMemoryCredentialStore) ListKeys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tokens))
	for k := range s.tokens {
		out = append(out, k)
	}
	return out, nil
}

// FallbackCredentialStore composes a primary store and a fallback.
// Reads prefer primary; writes attempt primary then fallback if primary fails.
type FallbackCredentialStore struct {
	primary  CredentialStore
	fallback CredentialStore
}

// NewFallbackCredentialStore creates a layered store.
// If primary is nil, fallback is used for all operations.
func NewFallbackCredentialStore(primary, fallback CredentialStore) *FallbackCredentialStore {
	if fallback == nil {
		fallback = NewInMemoryCredentialStore()
	}
	return &FallbackCredentialStore{primary: primary, fallback: fallback}
}

// SetToken writes the token, preferring the primary store.
func (f *FallbackCredentialStore) SetToken(key, token string) error {
	if f.primary != nil {
		if err := f.primary.SetToken(key, token); err == nil {
			return nil
		}
	}
	return f.fallback.SetToken(key, token)
}

// GetToken retrieves a token preferring the primary store; non-not-found
// primary errors are wrapped and returned.
func (f *FallbackCredentialStore) GetToken(key string) (string, error) {
	if f.primary != nil {
		if v, err := f.primary.GetToken(key); err == nil {
			return v, nil
		} else if !errors.Is(err, ErrCredentialNotFound) {
			return "", fmt.Errorf("primary get token: %w", err)
		}
	}
	return f.fallback.GetToken(key)
}

// DeleteToken removes key from both layers.
func (f *FallbackCredentialStore) DeleteToken(key string) error {
	var primaryErr error
	if f.primary != nil {
		primaryErr = f.primary.DeleteToken(key)
	}
	fallbackErr := f.fallback.DeleteToken(key)
	if primaryErr != nil && !errors.Is(primaryErr, ErrCredentialNotFound) {
		return primaryErr
	}
	if fallbackErr != nil && !errors.Is(fallbackErr, ErrCredentialNotFound) {
		return fallbackErr
	}
	return nil
}

// ListKeys merges keys from both layers, de-duplicated.
func (f *FallbackCredentialStore) ListKeys() ([]string, error) {
	seen := map[string]struct{}{}
	var out []string

	addAll := func(list []string, err error) error {
		if err != nil {
			return err
		}
		for _, p := range list {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				out = append(out, p)
			}
		}
		return nil
	}

	if f.primary != nil {
		if err := addAll(f.primary.ListKeys()); err != nil {
			return nil, fmt.Errorf("primary list keys: %w", err)
		}
	}
	if err := addAll(f.fallback.ListKeys()); err != nil {
		return nil, fmt.Errorf("fallback list keys: %w", err)
	}

	return out, nil
}

// EnvName returns the environment variable holding the token for key,
// e.g. PATCHINSPECT_DEV_SERVER_TOKEN for "dev-server".
func EnvName(key string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, key)
	return "PATCHINSPECT_" + mapped + "_TOKEN"
}

// ResolveToken returns the token for key.
// Lookup order:
//  1. Environment variable EnvName(key)
//  2. fromConfig, the value set in the configuration file
//  3. CredentialStore (if provided)
//
// It returns an empty string if none is found.
func ResolveToken(key, fromConfig string, cs CredentialStore) (string, error) {
	if key == "" {
		return "", errors.New("key cannot be empty")
	}

	if v := strings.TrimSpace(os.Getenv(EnvName(key))); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(fromConfig); v != "" {
		return v, nil
	}
	if cs != nil {
		if tok, err := cs.GetToken(key); err == nil && strings.TrimSpace(tok) != "" {
			return tok, nil
		} else if err != nil && !errors.Is(err, ErrCredentialNotFound) {
			return "", fmt.Errorf("credential store failure: %w", err)
		}
	}

	return "", nil
}

// Connection is the currently selected remote server with its tokens
// resolved.
type Connection struct {
	Server             string
	Address            string
	Environment        string
	ConnectionToken    string
	AuthorizationToken string
}

// ResolveConnection picks the server named override, or the configured
// selection, and resolves its tokens.
func ResolveConnection(cfg *config.Config, override string, cs CredentialStore) (Connection, error) {
	if cfg == nil {
		return Connection{}, ErrNoServerSelected
	}
	name := override
	if name == "" {
		name = cfg.Selected
	}
	if name == "" {
		return Connection{}, ErrNoServerSelected
	}
	srv, ok := cfg.Server(name)
	if !ok {
		return Connection{}, fmt.Errorf("%w: unknown server %q", ErrNoServerSelected, name)
	}

	connTok, err := ResolveToken(srv.Name, srv.Token, cs)
	if err != nil {
		return Connection{}, err
	}
	authTok, err := ResolveToken(AuthorizationKey, cfg.AuthorizationToken, cs)
	if err != nil {
		return Connection{}, err
	}
	return Connection{
		Server:             srv.Name,
		Address:            srv.Address,
		Environment:        srv.Environment,
		ConnectionToken:    connTok,
		AuthorizationToken: authTok,
	}, nil
}

// RedactToken safely redacts a token for logging purposes.
func RedactToken(tok string) string {
	if tok == "" {
		return ""
	}
	if len(tok) <= 4 {
		return "***"
	}
	return tok[:4] + "***"
}
