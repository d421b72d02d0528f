// Package codehost abstracts fetching file content, repository metadata,
// and file trees from a code hosting backend, so the indexer and
// ingestion pipeline can run against GitHub, a local git clone, or an
// in-memory fake interchangeably.
package codehost

import (
	"context"
	"errors"
)

// ErrFileNotFound is returned by FetchFile when path does not exist at ref.
var ErrFileNotFound = errors.New("codehost: file not found")

// RepoMeta is minimal repository metadata needed to seed a store.Repo row.
type RepoMeta struct {
	ID            int64
	Owner         string
	Name          string
	DefaultBranch string
}

// TreeEntry is a single blob entry from a recursive tree listing.
type TreeEntry struct {
	Path string
	Size int64
}

// Client fetches file content, repo metadata, and file trees from a code
// host at a given owner/repo/ref. Implementations must treat ref as
// either a branch name or a commit SHA.
type Client interface {
	// FetchFile returns the raw content of path at ref, or ErrFileNotFound
	// if it does not exist.
	FetchFile(ctx context.Context, owner, repo, path, ref string) (string, error)

	// RepoMetadata returns the repository's id, owner, name, and default
	// branch.
	RepoMetadata(ctx context.Context, owner, repo string) (*RepoMeta, error)

	// ListTree recursively lists every blob (file) path in the repository
	// at ref.
	ListTree(ctx context.Context, owner, repo, ref string) ([]TreeEntry, error)
}
