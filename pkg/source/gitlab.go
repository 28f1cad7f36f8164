package source

import (
	"context"
	"fmt"

	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// GitLabFilesService abstracts the subset of repository file operations used.
type GitLabFilesService interface {
	GetRawFile(pid interface{}, fileName string, opt *gitlab.GetRawFileOptions, options ...gitlab.RequestOptionFunc) ([]byte, *gitlab.Response, error)
}

// GitLabFetcher downloads files through the GitLab repository files API.
type GitLabFetcher struct {
	files GitLabFilesService
}

// NewGitLabFetcher creates a fetcher. A BaseURL targets a self-hosted
// instance.
func NewGitLabFetcher(token, baseURL string) (*GitLabFetcher, error) {
	opts := []gitlab.ClientOptionFunc{}
	if baseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(baseURL))
	}

	client, err := gitlab.NewClient(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}
	return &GitLabFetcher{files: client.RepositoryFiles}, nil
}

// NewGitLabFetcherWithService injects the files service, for tests.
func NewGitLabFetcherWithService(files GitLabFilesService) *GitLabFetcher {
	return &GitLabFetcher{files: files}
}

// Fetch implements Fetcher.
func (g *GitLabFetcher) Fetch(ctx context.Context, ref Reference) ([]byte, error) {
	opt := &gitlab.GetRawFileOptions{}
	if ref.Ref != "" {
		opt.Ref = gitlab.Ptr(ref.Ref)
	}

	data, _, err := g.files.GetRawFile(ref.Project(), ref.Path, opt, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to download %s from GitLab: %w", ref, err)
	}
	return data, nil
}
