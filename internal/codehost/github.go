package codehost

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v45/github"
	"golang.org/x/oauth2"
)

// GitHubClient is a Client backed by the GitHub REST API.
type GitHubClient struct {
	gh *github.Client
}

// NewGitHubClient builds a GitHubClient authenticated with a personal
// access token or installation token. An empty token yields an
// unauthenticated client, subject to GitHub's anonymous rate limits.
func NewGitHubClient(token string) *GitHubClient {
	var hc *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(context.Background(), ts)
	}
	return &GitHubClient{gh: github.NewClient(hc)}
}

// FetchFile implements Client using the Contents API.
func (c *GitHubClient) FetchFile(ctx context.Context, owner, repo, path, ref string) (string, error) {
	fileContent, _, resp, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return "", ErrFileNotFound
	}
	if err != nil {
		return "", fmt.Errorf("fetch %s/%s/%s@%s: %w", owner, repo, path, ref, err)
	}
	if fileContent == nil {
		return "", ErrFileNotFound
	}

	content, err := fileContent.GetContent()
	if err != nil {
		return "", fmt.Errorf("decode content for %s: %w", path, err)
	}
	return content, nil
}

// RepoMetadata implements Client using the Repositories.Get API.
func (c *GitHubClient) RepoMetadata(ctx context.Context, owner, repo string) (*RepoMeta, error) {
	r, _, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("get repo metadata %s/%s: %w", owner, repo, err)
	}
	return &RepoMeta{
		ID:            r.GetID(),
		Owner:         owner,
		Name:          repo,
		DefaultBranch: r.GetDefaultBranch(),
	}, nil
}

// ListTree implements Client using the recursive Git Trees API.
func (c *GitHubClient) ListTree(ctx context.Context, owner, repo, ref string) ([]TreeEntry, error) {
	tree, _, err := c.gh.Git.GetTree(ctx, owner, repo, ref, true)
	if err != nil {
		return nil, fmt.Errorf("list tree %s/%s@%s: %w", owner, repo, ref, err)
	}

	entries := make([]TreeEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		if e.GetType() != "blob" {
			continue
		}
		entries = append(entries, TreeEntry{Path: e.GetPath(), Size: int64(e.GetSize())})
	}
	return entries, nil
}
