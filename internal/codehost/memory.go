package codehost

import "context"

// InMemoryClient is a Client test double holding a fixed set of files and
// repo metadata, keyed by "{owner}/{repo}".
type InMemoryClient struct {
	Repos map[string]RepoMeta
	Files map[string]map[string]string // "{owner}/{repo}" -> path -> content
}

// NewInMemoryClient returns an empty InMemoryClient ready for test setup.
func NewInMemoryClient() *InMemoryClient {
	return &InMemoryClient{
		Repos: make(map[string]RepoMeta),
		Files: make(map[string]map[string]string),
	}
}

// AddFile registers path's content for owner/repo.
func (c *InMemoryClient) AddFile(owner, repo, path, content string) {
	key := owner + "/" + repo
	if c.Files[key] == nil {
		c.Files[key] = make(map[string]string)
	}
	c.Files[key][path] = content
}

// SetRepo registers repo metadata for owner/repo.
func (c *InMemoryClient) SetRepo(owner, repo string, meta RepoMeta) {
	c.Repos[owner+"/"+repo] = meta
}

// FetchFile implements Client.
func (c *InMemoryClient) FetchFile(ctx context.Context, owner, repo, path, ref string) (string, error) {
	files, ok := c.Files[owner+"/"+repo]
	if !ok {
		return "", ErrFileNotFound
	}
	content, ok := files[path]
	if !ok {
		return "", ErrFileNotFound
	}
	return content, nil
}

// RepoMetadata implements Client.
func (c *InMemoryClient) RepoMetadata(ctx context.Context, owner, repo string) (*RepoMeta, error) {
	meta, ok := c.Repos[owner+"/"+repo]
	if !ok {
		return &RepoMeta{Owner: owner, Name: repo, DefaultBranch: "main"}, nil
	}
	return &meta, nil
}

// ListTree implements Client, returning every registered file for
// owner/repo regardless of ref.
func (c *InMemoryClient) ListTree(ctx context.Context, owner, repo, ref string) ([]TreeEntry, error) {
	files := c.Files[owner+"/"+repo]
	entries := make([]TreeEntry, 0, len(files))
	for path, content := range files {
		entries = append(entries, TreeEntry{Path: path, Size: int64(len(content))})
	}
	return entries, nil
}
