// Package source resolves patch references to local files. Plain paths pass
// through unchanged; github: and gitlab: references are downloaded from the
// hosting provider into a local cache first.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedReference is returned for malformed or unknown references.
var ErrUnsupportedReference = errors.New("unsupported patch reference")

// Provider identifiers used as reference prefixes.
const (
	ProviderGitHub = "github"
	ProviderGitLab = "gitlab"
)

// Reference identifies a patch file stored in a hosted repository.
//
//	github:owner/repo/path/to/file.ptm@ref
//	gitlab:group/project/path/to/file.ptm@ref
//	gitlab:group/subgroup/project//path/to/file.ptm@ref
//
// The ref is optional and defaults to the repository's default branch. For
// GitLab a "//" separates a nested project path from the file path.
type Reference struct {
	Provider string
	Owner    string
	Repo     string
	Path     string
	Ref      string
}

// Project returns the "owner/repo" project path.
func (r Reference) Project() string {
	return r.Owner + "/" + r.Repo
}

func (r Reference) String() string {
	s := fmt.Sprintf("%s:%s/%s", r.Provider, r.Project(), r.Path)
	if r.Ref != "" {
		s += "@" + r.Ref
	}
	return s
}

// IsReference reports whether arg uses a provider prefix.
func IsReference(arg string) bool {
	return strings.HasPrefix(arg, ProviderGitHub+":") || strings.HasPrefix(arg, ProviderGitLab+":")
}

// Parse parses a provider reference.
func Parse(arg string) (Reference, error) {
	provider, rest, ok := strings.Cut(arg, ":")
	if !ok || (provider != ProviderGitHub && provider != ProviderGitLab) {
		return Reference{}, fmt.Errorf("%w: %q", ErrUnsupportedReference, arg)
	}

	ref := Reference{Provider: provider}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		ref.Ref = rest[at+1:]
		rest = rest[:at]
	}

	var project string
	if provider == ProviderGitLab && strings.Contains(rest, "//") {
		project, ref.Path, _ = strings.Cut(rest, "//")
	} else {
		parts := strings.SplitN(rest, "/", 3)
		if len(parts) == 3 {
			project, ref.Path = parts[0]+"/"+parts[1], parts[2]
		}
	}
	slash := strings.LastIndex(project, "/")
	if slash <= 0 || slash == len(project)-1 || ref.Path == "" || strings.HasSuffix(ref.Path, "/") {
		return Reference{}, fmt.Errorf("%w: %q", ErrUnsupportedReference, arg)
	}
	ref.Owner, ref.Repo = project[:slash], project[slash+1:]
	for _, part := range []string{ref.Owner, ref.Repo, ref.Path} {
		if !cleanSegments(part) {
			return Reference{}, fmt.Errorf("%w: %q", ErrUnsupportedReference, arg)
		}
	}
	return ref, nil
}

// cleanSegments rejects empty, "." and ".." path segments and backslashes.
func cleanSegments(p string) bool {
	if strings.Contains(p, "\\") {
		return false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// Fetcher downloads the raw content of a referenced file.
type Fetcher interface {
	Fetch(ctx context.Context, ref Reference) ([]byte, error)
}

// Resolver maps patch arguments to local paths.
type Resolver struct {
	cacheDir string
	fetchers map[string]Fetcher
	logger   *slog.Logger
}

// NewResolver creates a resolver caching downloads under cacheDir. An empty
// cacheDir selects DefaultCacheDir.
func NewResolver(cacheDir string) *Resolver {
	if cacheDir == "" {
		cacheDir = DefaultCacheDir()
	}
	return &Resolver{
		cacheDir: cacheDir,
		fetchers: map[string]Fetcher{},
		logger:   slog.Default(),
	}
}

// Register installs the fetcher used for provider.
func (r *Resolver) Register(provider string, f Fetcher) *Resolver {
	r.fetchers[provider] = f
	return r
}

// DefaultCacheDir returns the per-user download cache.
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil || dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "patchinspect", "sources")
}

// Resolve returns a local path for arg, downloading it when arg is a
// provider reference.
func (r *Resolver) Resolve(ctx context.Context, arg string) (string, error) {
	if !IsReference(arg) {
		return arg, nil
	}
	ref, err := Parse(arg)
	if err != nil {
		return "", err
	}
	f, ok := r.fetchers[ref.Provider]
	if !ok {
		return "", fmt.Errorf("%w: no %s access configured", ErrUnsupportedReference, ref.Provider)
	}

	dest, err := r.cachePath(ref)
	if err != nil {
		return "", err
	}
	data, err := f.Fetch(ctx, ref)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to cache %s: %w", ref, err)
	}
	r.logger.Info("Fetched patch", "reference", ref.String(), "path", dest, "bytes", len(data))
	return dest, nil
}

func (r *Resolver) cachePath(ref Reference) (string, error) {
	gitRef := ref.Ref
	if gitRef == "" {
		gitRef = "_default"
	}
	elems := []string{r.cacheDir, ref.Provider}
	elems = append(elems, strings.Split(ref.Owner, "/")...)
	elems = append(elems, ref.Repo, sanitize(gitRef))
	elems = append(elems, strings.Split(ref.Path, "/")...)
	dest := filepath.Join(elems...)

	rel, err := filepath.Rel(filepath.Clean(r.cacheDir), dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s escapes the cache directory", ErrUnsupportedReference, ref)
	}
	return dest, nil
}

// sanitize keeps a ref usable as a single path element.
func sanitize(s string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
}
