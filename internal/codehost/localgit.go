package codehost

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/sourcelens/codekb/internal/security"
)

// LocalGitClient is a Client backed by local clones on disk, for
// self-hosted or offline use where no GitHub token is configured. Each
// repo is expected at BaseDir/{owner}/{repo}.
type LocalGitClient struct {
	BaseDir string
}

// NewLocalGitClient returns a LocalGitClient rooted at baseDir.
func NewLocalGitClient(baseDir string) *LocalGitClient {
	return &LocalGitClient{BaseDir: baseDir}
}

func (c *LocalGitClient) open(owner, repo string) (*git.Repository, error) {
	path, err := security.SafeJoin(c.BaseDir, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("resolve local repo path for %s/%s: %w", owner, repo, err)
	}
	r, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("open local repo %s: %w", path, err)
	}
	return r, nil
}

func (c *LocalGitClient) resolveCommit(r *git.Repository, ref string) (*plumbing.Hash, error) {
	hash, err := r.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return nil, fmt.Errorf("resolve ref %q: %w", ref, err)
	}
	return hash, nil
}

// FetchFile implements Client by reading the blob for path out of ref's
// tree.
func (c *LocalGitClient) FetchFile(ctx context.Context, owner, repo, path, ref string) (string, error) {
	r, err := c.open(owner, repo)
	if err != nil {
		return "", err
	}
	hash, err := c.resolveCommit(r, ref)
	if err != nil {
		return "", err
	}
	commit, err := r.CommitObject(*hash)
	if err != nil {
		return "", fmt.Errorf("load commit %s: %w", hash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return "", fmt.Errorf("load tree for %s: %w", hash, err)
	}

	f, err := tree.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) || errors.Is(err, plumbing.ErrObjectNotFound) {
			return "", ErrFileNotFound
		}
		return "", fmt.Errorf("load file %s: %w", path, err)
	}

	rc, err := f.Reader()
	if err != nil {
		return "", fmt.Errorf("open reader for %s: %w", path, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(content), nil
}

// RepoMetadata implements Client. The id is always 0 for local repos;
// callers resolving a local repo into a store.Repo are expected to
// synthesize an id the same way URL ingestion does.
func (c *LocalGitClient) RepoMetadata(ctx context.Context, owner, repo string) (*RepoMeta, error) {
	r, err := c.open(owner, repo)
	if err != nil {
		return nil, err
	}
	head, err := r.Head()
	if err != nil {
		return nil, fmt.Errorf("read HEAD for %s/%s: %w", owner, repo, err)
	}
	return &RepoMeta{Owner: owner, Name: repo, DefaultBranch: head.Name().Short()}, nil
}

// ListTree implements Client by walking ref's tree recursively.
func (c *LocalGitClient) ListTree(ctx context.Context, owner, repo, ref string) ([]TreeEntry, error) {
	r, err := c.open(owner, repo)
	if err != nil {
		return nil, err
	}
	hash, err := c.resolveCommit(r, ref)
	if err != nil {
		return nil, err
	}
	commit, err := r.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", hash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("load tree for %s: %w", hash, err)
	}

	var entries []TreeEntry
	walker := tree.Files()
	defer walker.Close()
	for {
		f, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("walk tree: %w", err)
		}
		entries = append(entries, TreeEntry{Path: f.Name, Size: f.Size})
	}
	return entries, nil
}
