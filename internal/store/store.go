// Package store defines the knowledge-base data model (Repo, KBFile,
// KBChunk) and the Store interface used by the indexer, ingestion, and
// retrieval components. See internal/store/sqlite for the concrete
// SQLite-backed implementation.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("store: not found")

// Repo is a code host repository tracked for knowledge-base indexing. ID
// may be the code host's real integer id (GitHub) or a deterministic
// synthetic id for sources with no native integer id (URL ingestion).
type Repo struct {
	ID            int64
	Owner         string
	Name          string
	DefaultBranch string
	UpdatedAt     time.Time
}

// KBFile is a single file tracked within a Repo, uniquely identified by
// (RepoID, Path).
type KBFile struct {
	ID        int64
	RepoID    int64
	Path      string
	CommitSHA string
	SHA256    string
	UpdatedAt time.Time
}

// KBChunk is a searchable, line-ranged slice of a KBFile's content.
type KBChunk struct {
	ID        int64
	RepoID    int64
	FileID    int64
	Path      string
	CommitSHA string
	StartLine int
	EndLine   int
	Content   string
	UpdatedAt time.Time
}

// RetrievedChunk is a KBChunk joined with its owning repo's owner/name,
// carrying the relevance score assigned by whichever retrieval stage
// produced it. Citation format:
// "{owner}/{name}/{path}@{commit_sha}:{start_line}-{end_line}".
type RetrievedChunk struct {
	ID        int64
	RepoOwner string
	RepoName  string
	Path      string
	CommitSHA string
	StartLine int
	EndLine   int
	Content   string
	Score     float64
}

// Store is the persistence interface for the knowledge base. Implementations
// must make (RepoID, Path) upserts idempotent so at-least-once task delivery
// converges to a single row per file.
type Store interface {
	// WithTx runs fn against a view of the store scoped to a single
	// transaction: committed when fn returns nil, rolled back otherwise.
	// Handlers wrap their whole write sequence in one call so a failure
	// partway through leaves no half-written state for a retry to trip
	// over. Nested calls join the enclosing transaction.
	WithTx(ctx context.Context, fn func(Store) error) error

	// GetOrCreateRepo looks up a repo by id, falling back to (owner, name),
	// inserting with the given attributes only when both lookups miss. The
	// returned row's id is authoritative for child foreign keys.
	GetOrCreateRepo(ctx context.Context, id int64, owner, name, defaultBranch string) (*Repo, error)

	// GetFileByPath returns the KBFile for (repoID, path), or ErrNotFound.
	GetFileByPath(ctx context.Context, repoID int64, path string) (*KBFile, error)

	// UpsertFile inserts a new KBFile or updates an existing one matched by
	// (RepoID, Path), returning the row's id.
	UpsertFile(ctx context.Context, f *KBFile) (int64, error)

	// DeleteFile removes a KBFile by id. Its chunks are expected to be
	// deleted by the caller (or cascade, for implementations that support
	// foreign keys) before or as part of this call.
	DeleteFile(ctx context.Context, fileID int64) error

	// DeleteChunksByFileID removes all KBChunk rows for a file.
	DeleteChunksByFileID(ctx context.Context, fileID int64) error

	// InsertChunks bulk-inserts chunks, joining the enclosing WithTx
	// transaction when there is one and opening its own otherwise.
	InsertChunks(ctx context.Context, chunks []KBChunk) error

	// HasAnyChunks reports whether the knowledge base holds at least one
	// chunk, used to distinguish an empty store from a query with no hits.
	HasAnyChunks(ctx context.Context) (bool, error)

	// SearchFTSAnd runs conjunctive/phrase full-text search, best match
	// first (the SQLite implementation ranks by FTS5's bm25()).
	SearchFTSAnd(ctx context.Context, query string, limit int) ([]RetrievedChunk, error)

	// SearchFTSOr runs disjunctive full-text search across query terms.
	SearchFTSOr(ctx context.Context, query string, limit int) ([]RetrievedChunk, error)

	// SearchTrigram ranks chunks by trigram similarity of their file's path
	// to query, filtering out scores at or below threshold.
	SearchTrigram(ctx context.Context, query string, limit int, threshold float64) ([]RetrievedChunk, error)

	Close() error
}
