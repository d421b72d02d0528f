// Package indexer orchestrates the file ingestion flow: denylist check,
// content fetch, hash comparison, chunking, and database upsert.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sourcelens/codekb/internal/chunker"
	"github.com/sourcelens/codekb/internal/codehost"
	"github.com/sourcelens/codekb/internal/denylist"
	"github.com/sourcelens/codekb/internal/store"
)

// Status is the outcome of IndexFile/DeleteFile.
type Status string

const (
	StatusSkippedDenylist Status = "skipped_denylist"
	StatusSkippedNotFound Status = "skipped_not_found"
	StatusSkippedSize     Status = "skipped_size"
	StatusUnchanged       Status = "unchanged"
	StatusIndexed         Status = "indexed"
	StatusDeleted         Status = "deleted"
	StatusNotFound        Status = "not_found"
)

// Result reports the outcome of indexing or deleting a single file.
type Result struct {
	Status Status
	Chunks int
}

// Indexer coordinates codehost fetches with store writes.
type Indexer struct {
	Store    store.Store
	Code     codehost.Client
	Logger   *slog.Logger
	MinLines int
	MaxLines int
}

// New returns an Indexer with the default chunk-size bounds.
func New(s store.Store, code codehost.Client, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{Store: s, Code: code, Logger: logger, MinLines: chunker.DefaultMinLines, MaxLines: chunker.DefaultMaxLines}
}

// IndexFile fetches path at commitSHA from the code host, chunks it, and
// upserts the resulting KBFile/KBChunk rows. actualRepoID follows the
// GetOrCreateRepo-returned id, so this reconciles regardless of whether
// repoID was a real code-host id or a previously synthesized one.
func (ix *Indexer) IndexFile(ctx context.Context, owner, repo string, repoID int64, path, commitSHA string) (Result, error) {
	repoRow, err := ix.Store.GetOrCreateRepo(ctx, repoID, owner, repo, "")
	if err != nil {
		return Result{}, fmt.Errorf("get or create repo %d: %w", repoID, err)
	}
	actualRepoID := repoRow.ID

	if denylist.IsDenied(path, nil) {
		ix.Logger.Debug("skipping denied path", "path", path)
		return Result{Status: StatusSkippedDenylist}, nil
	}

	content, err := ix.Code.FetchFile(ctx, owner, repo, path, commitSHA)
	if errors.Is(err, codehost.ErrFileNotFound) {
		ix.Logger.Debug("file not found", "path", path, "commit_sha", commitSHA)
		return Result{Status: StatusSkippedNotFound}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s/%s/%s@%s: %w", owner, repo, path, commitSHA, err)
	}

	size := int64(len(content))
	if denylist.IsDenied(path, &size) {
		ix.Logger.Debug("skipping oversized file", "path", path, "size_bytes", size)
		return Result{Status: StatusSkippedSize}, nil
	}

	sum := sha256.Sum256([]byte(content))
	contentHash := hex.EncodeToString(sum[:])

	// One unit of work for the whole lookup/delete/upsert/insert sequence:
	// a failure partway through must not leave the file row claiming the
	// new hash with no chunks behind it, or every retry would see
	// "unchanged" and skip regeneration forever.
	var result Result
	err = ix.Store.WithTx(ctx, func(st store.Store) error {
		existing, err := st.GetFileByPath(ctx, actualRepoID, path)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("lookup existing file %s: %w", path, err)
		}

		var fileID int64
		if existing != nil {
			if existing.SHA256 == contentHash {
				existing.CommitSHA = commitSHA
				if _, err := st.UpsertFile(ctx, existing); err != nil {
					return fmt.Errorf("update unchanged file %s: %w", path, err)
				}
				result = Result{Status: StatusUnchanged}
				return nil
			}

			if err := st.DeleteChunksByFileID(ctx, existing.ID); err != nil {
				return fmt.Errorf("delete stale chunks for %s: %w", path, err)
			}
			existing.SHA256 = contentHash
			existing.CommitSHA = commitSHA
			fileID, err = st.UpsertFile(ctx, existing)
			if err != nil {
				return fmt.Errorf("update file %s: %w", path, err)
			}
		} else {
			fileID, err = st.UpsertFile(ctx, &store.KBFile{
				RepoID: actualRepoID, Path: path, CommitSHA: commitSHA, SHA256: contentHash,
			})
			if err != nil {
				return fmt.Errorf("insert file %s: %w", path, err)
			}
		}

		chunks := chunker.ChunkFile(content, path, ix.MinLines, ix.MaxLines)
		kbChunks := make([]store.KBChunk, len(chunks))
		for i, c := range chunks {
			kbChunks[i] = store.KBChunk{
				RepoID: actualRepoID, FileID: fileID, Path: path, CommitSHA: commitSHA,
				StartLine: c.StartLine, EndLine: c.EndLine, Content: c.Content,
			}
		}
		if err := st.InsertChunks(ctx, kbChunks); err != nil {
			return fmt.Errorf("insert chunks for %s: %w", path, err)
		}
		result = Result{Status: StatusIndexed, Chunks: len(chunks)}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if result.Status == StatusIndexed {
		ix.Logger.Info("file indexed", "path", path, "chunks", result.Chunks)
	}
	return result, nil
}

// DeleteFile removes path's KBFile and its chunks from repoID's knowledge
// base.
func (ix *Indexer) DeleteFile(ctx context.Context, repoID int64, path string) (Result, error) {
	var result Result
	err := ix.Store.WithTx(ctx, func(st store.Store) error {
		existing, err := st.GetFileByPath(ctx, repoID, path)
		if errors.Is(err, store.ErrNotFound) {
			result = Result{Status: StatusNotFound}
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup file %s: %w", path, err)
		}

		if err := st.DeleteChunksByFileID(ctx, existing.ID); err != nil {
			return fmt.Errorf("delete chunks for %s: %w", path, err)
		}
		if err := st.DeleteFile(ctx, existing.ID); err != nil {
			return fmt.Errorf("delete file %s: %w", path, err)
		}
		result = Result{Status: StatusDeleted}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if result.Status == StatusDeleted {
		ix.Logger.Info("file deleted", "path", path, "repo_id", repoID)
	}
	return result, nil
}
