package source

import (
	"context"
	"fmt"
	"io"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// GitHubContentsService abstracts the subset of repository operations used.
type GitHubContentsService interface {
	DownloadContents(ctx context.Context, owner, repo, filepath string, opts *github.RepositoryContentGetOptions) (io.ReadCloser, *github.Response, error)
}

// GitHubFetcher downloads files through the GitHub contents API.
type GitHubFetcher struct {
	repos GitHubContentsService
}

// NewGitHubFetcher creates a fetcher. Without a token only public
// repositories are reachable; a BaseURL targets GitHub Enterprise.
func NewGitHubFetcher(token, baseURL string) (*GitHubFetcher, error) {
	var client *github.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		client = github.NewClient(oauth2.NewClient(context.Background(), ts))
	} else {
		client = github.NewClient(nil)
	}

	if baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to set GitHub Enterprise URL: %w", err)
		}
	}
	return &GitHubFetcher{repos: client.Repositories}, nil
}

// NewGitHubFetcherWithService injects the contents service, for tests.
func NewGitHubFetcherWithService(repos GitHubContentsService) *GitHubFetcher {
	return &GitHubFetcher{repos: repos}
}

// Fetch implements Fetcher.
func (g *GitHubFetcher) Fetch(ctx context.Context, ref Reference) ([]byte, error) {
	opts := &github.RepositoryContentGetOptions{}
	if ref.Ref != "" {
		opts.Ref = ref.Ref
	}

	rc, _, err := g.repos.DownloadContents(ctx, ref.Owner, ref.Repo, ref.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s from GitHub: %w", ref, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from GitHub: %w", ref, err)
	}
	return data, nil
}
