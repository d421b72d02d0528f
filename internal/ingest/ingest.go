// Package ingest implements the three ways work enters the knowledge base:
// GitHub push webhooks, admin-triggered repo sync/backfill, and ad hoc URL
// ingestion. Webhook and sync paths enqueue index/delete jobs onto a
// taskqueue.Queue for asynchronous, at-least-once delivery; URL ingestion
// runs the indexer path synchronously since there is no commit to track.
package ingest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sourcelens/codekb/internal/chunker"
	"github.com/sourcelens/codekb/internal/codehost"
	"github.com/sourcelens/codekb/internal/denylist"
	"github.com/sourcelens/codekb/internal/store"
	"github.com/sourcelens/codekb/internal/taskqueue"
)

// IndexFileTaskPayload is the JSON body enqueued for each file that needs
// (re)indexing, consumed by the httpapi /tasks/index-file handler.
type IndexFileTaskPayload struct {
	RepoID    int64  `json:"repo_id"`
	RepoOwner string `json:"repo_owner"`
	RepoName  string `json:"repo_name"`
	Path      string `json:"path"`
	CommitSHA string `json:"commit_sha"`
}

// DeleteFileTaskPayload is the JSON body enqueued for each file removed
// from a repository, consumed by the httpapi /tasks/delete-file handler.
type DeleteFileTaskPayload struct {
	RepoID    int64  `json:"repo_id"`
	RepoOwner string `json:"repo_owner"`
	RepoName  string `json:"repo_name"`
	Path      string `json:"path"`
}

// CommitAuthor identifies the author of a single pushed commit.
type CommitAuthor struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Commit is a single commit from a GitHub push event payload.
type Commit struct {
	ID        string       `json:"id"`
	Message   string       `json:"message"`
	Timestamp string       `json:"timestamp"`
	Added     []string     `json:"added"`
	Modified  []string     `json:"modified"`
	Removed   []string     `json:"removed"`
	Author    CommitAuthor `json:"author"`
}

// RepositoryOwner is the owner field of a push event's repository object.
type RepositoryOwner struct {
	Login string `json:"login"`
	Name  string `json:"name"`
}

// Repository is the repository field of a GitHub push event payload.
type Repository struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	FullName      string          `json:"full_name"`
	Owner         RepositoryOwner `json:"owner"`
	DefaultBranch string          `json:"default_branch"`
}

// PushEvent is a GitHub "push" webhook payload, covering the fields the
// dispatcher needs to decide which files to (re)index or delete.
type PushEvent struct {
	Ref        string     `json:"ref"`
	Before     string     `json:"before"`
	After      string     `json:"after"`
	Created    bool       `json:"created"`
	Deleted    bool       `json:"deleted"`
	Forced     bool       `json:"forced"`
	Repository Repository `json:"repository"`
	Commits    []Commit   `json:"commits"`
}

// repoOwnerLogin prefers the owner's login, falling back to its name.
func (r Repository) repoOwnerLogin() string {
	if r.Owner.Login != "" {
		return r.Owner.Login
	}
	return r.Owner.Name
}

// VerifySignature reports whether signatureHeader (the raw
// "X-Hub-Signature-256" header value, e.g. "sha256=...") matches the
// HMAC-SHA256 of body under secret. Uses a constant-time compare to avoid
// leaking timing information about the expected signature.
func VerifySignature(secret []byte, body []byte, signatureHeader string) bool {
	const prefix = "sha256="
	if len(signatureHeader) <= len(prefix) || signatureHeader[:len(prefix)] != prefix {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := prefix + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}

// PushResult reports how many jobs a push event produced.
type PushResult struct {
	TasksEnqueued int
}

// SyncResult reports the outcome of a full repository sync.
type SyncResult struct {
	RepoID               int64
	FilesFound           int
	TasksEnqueued        int
	FilesSkippedDenylist int
}

// RepoRef identifies a single repository for a batched backfill request.
type RepoRef struct {
	Owner string
	Repo  string
	Ref   string
}

// BackfillRepoResult is one repository's outcome within a Backfill call.
// Error is non-empty (and the rest of the fields zero) when that repo's
// sync failed; a single repo's failure never aborts the batch.
type BackfillRepoResult struct {
	Owner                string
	Repo                 string
	Status               string
	FilesFound           int
	TasksEnqueued        int
	FilesSkippedDenylist int
	Error                string
}

// BackfillResult aggregates per-repo outcomes across a batched backfill.
type BackfillResult struct {
	Results            []BackfillRepoResult
	TotalTasksEnqueued int
}

// IngestURLResult reports how many chunks a URL ingestion produced.
type IngestURLResult struct {
	Status string
	Chunks int
}

// Dispatcher wires the task queue, code host, and store together to
// implement push-event dispatch, repo sync, backfill, and URL ingestion.
type Dispatcher struct {
	Queue         taskqueue.Queue
	Code          codehost.Client
	Store         store.Store
	Logger        *slog.Logger
	IndexTaskURL  string
	DeleteTaskURL string
	MinLines      int
	MaxLines      int
}

// New returns a Dispatcher that posts index/delete jobs to indexTaskURL and
// deleteTaskURL respectively.
func New(q taskqueue.Queue, code codehost.Client, s store.Store, logger *slog.Logger, indexTaskURL, deleteTaskURL string) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		Queue: q, Code: code, Store: s, Logger: logger,
		IndexTaskURL: indexTaskURL, DeleteTaskURL: deleteTaskURL,
		MinLines: chunker.DefaultMinLines, MaxLines: chunker.DefaultMaxLines,
	}
}

// DispatchPush enqueues index jobs for every added/modified file and
// delete jobs for every removed file across a push event's commits. A
// branch deletion (event.Deleted) enqueues nothing: its zero-sha revision
// carries no content changes.
func (d *Dispatcher) DispatchPush(ctx context.Context, event PushEvent) (PushResult, error) {
	if event.Deleted {
		return PushResult{TasksEnqueued: 0}, nil
	}

	owner := event.Repository.repoOwnerLogin()
	repo := event.Repository.Name
	repoID := event.Repository.ID

	enqueued := 0
	for _, commit := range event.Commits {
		for _, path := range append(append([]string{}, commit.Added...), commit.Modified...) {
			if _, err := d.Queue.Enqueue(ctx, d.IndexTaskURL, IndexFileTaskPayload{
				RepoID: repoID, RepoOwner: owner, RepoName: repo, Path: path, CommitSHA: event.After,
			}); err != nil {
				return PushResult{}, fmt.Errorf("enqueue index task for %s: %w", path, err)
			}
			enqueued++
		}
		for _, path := range commit.Removed {
			if _, err := d.Queue.Enqueue(ctx, d.DeleteTaskURL, DeleteFileTaskPayload{
				RepoID: repoID, RepoOwner: owner, RepoName: repo, Path: path,
			}); err != nil {
				return PushResult{}, fmt.Errorf("enqueue delete task for %s: %w", path, err)
			}
			enqueued++
		}
	}

	d.Logger.Info("push event dispatched", "owner", owner, "repo", repo, "tasks_enqueued", enqueued)
	return PushResult{TasksEnqueued: enqueued}, nil
}

// SyncRepo lists every file in owner/repo at ref and enqueues an index job
// for each path that survives the denylist.
func (d *Dispatcher) SyncRepo(ctx context.Context, owner, repo, ref string) (SyncResult, error) {
	meta, err := d.Code.RepoMetadata(ctx, owner, repo)
	if err != nil {
		return SyncResult{}, fmt.Errorf("fetch repo metadata for %s/%s: %w", owner, repo, err)
	}
	if ref == "" {
		ref = meta.DefaultBranch
	}

	entries, err := d.Code.ListTree(ctx, owner, repo, ref)
	if err != nil {
		return SyncResult{}, fmt.Errorf("list tree for %s/%s@%s: %w", owner, repo, ref, err)
	}

	repoID := meta.ID
	if repoID == 0 {
		repoID = SyntheticRepoID(owner, repo)
	}

	result := SyncResult{RepoID: repoID, FilesFound: len(entries)}
	for _, entry := range entries {
		size := entry.Size
		if denylist.IsDenied(entry.Path, &size) {
			result.FilesSkippedDenylist++
			continue
		}
		if _, err := d.Queue.Enqueue(ctx, d.IndexTaskURL, IndexFileTaskPayload{
			RepoID: repoID, RepoOwner: owner, RepoName: repo, Path: entry.Path, CommitSHA: ref,
		}); err != nil {
			return SyncResult{}, fmt.Errorf("enqueue index task for %s: %w", entry.Path, err)
		}
		result.TasksEnqueued++
	}

	d.Logger.Info("repo sync dispatched", "owner", owner, "repo", repo,
		"files_found", result.FilesFound, "tasks_enqueued", result.TasksEnqueued)
	return result, nil
}

// Backfill runs SyncRepo across a batch of repositories, isolating each
// repo's failure so one bad entry doesn't abort the rest.
func (d *Dispatcher) Backfill(ctx context.Context, items []RepoRef) BackfillResult {
	var out BackfillResult
	for _, item := range items {
		sync, err := d.SyncRepo(ctx, item.Owner, item.Repo, item.Ref)
		if err != nil {
			out.Results = append(out.Results, BackfillRepoResult{
				Owner: item.Owner, Repo: item.Repo, Status: "error", Error: err.Error(),
			})
			d.Logger.Error("backfill repo failed", "owner", item.Owner, "repo", item.Repo, "error", err)
			continue
		}
		out.Results = append(out.Results, BackfillRepoResult{
			Owner: item.Owner, Repo: item.Repo, Status: "accepted",
			FilesFound: sync.FilesFound, TasksEnqueued: sync.TasksEnqueued,
			FilesSkippedDenylist: sync.FilesSkippedDenylist,
		})
		out.TotalTasksEnqueued += sync.TasksEnqueued
	}
	return out
}

// IngestURL fetches content directly (bypassing the task queue, since there
// is no commit history to reconcile against) and indexes it as a single
// file under a synthetic repo keyed by owner/repo.
func (d *Dispatcher) IngestURL(ctx context.Context, fetchText func(ctx context.Context) (string, error), owner, repo, path string) (IngestURLResult, error) {
	text, err := fetchText(ctx)
	if err != nil {
		return IngestURLResult{}, fmt.Errorf("fetch url content: %w", err)
	}

	repoID := SyntheticRepoID(owner, repo)
	repoRow, err := d.Store.GetOrCreateRepo(ctx, repoID, owner, repo, "")
	if err != nil {
		return IngestURLResult{}, fmt.Errorf("get or create repo %s/%s: %w", owner, repo, err)
	}

	sum := sha256.Sum256([]byte(text))
	contentHash := hex.EncodeToString(sum[:])
	commitSHA := contentHash[:40]

	// Same single unit of work as the indexer: the file row must never
	// commit with the new hash unless its chunks committed with it.
	var result IngestURLResult
	err = d.Store.WithTx(ctx, func(st store.Store) error {
		existing, err := st.GetFileByPath(ctx, repoRow.ID, path)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("lookup existing file %s: %w", path, err)
		}

		var fileID int64
		if existing != nil && existing.SHA256 == contentHash {
			existing.CommitSHA = commitSHA
			if _, err := st.UpsertFile(ctx, existing); err != nil {
				return fmt.Errorf("update unchanged file %s: %w", path, err)
			}
			result = IngestURLResult{Status: "unchanged"}
			return nil
		}
		if existing != nil {
			if err := st.DeleteChunksByFileID(ctx, existing.ID); err != nil {
				return fmt.Errorf("delete stale chunks for %s: %w", path, err)
			}
			existing.SHA256 = contentHash
			existing.CommitSHA = commitSHA
			fileID, err = st.UpsertFile(ctx, existing)
		} else {
			fileID, err = st.UpsertFile(ctx, &store.KBFile{
				RepoID: repoRow.ID, Path: path, CommitSHA: commitSHA, SHA256: contentHash,
			})
		}
		if err != nil {
			return fmt.Errorf("upsert file %s: %w", path, err)
		}

		minLines, maxLines := d.MinLines, d.MaxLines
		if minLines == 0 {
			minLines, maxLines = chunker.DefaultMinLines, chunker.DefaultMaxLines
		}
		chunks := chunker.ChunkFile(text, path, minLines, maxLines)
		kbChunks := make([]store.KBChunk, len(chunks))
		for i, c := range chunks {
			kbChunks[i] = store.KBChunk{
				RepoID: repoRow.ID, FileID: fileID, Path: path, CommitSHA: commitSHA,
				StartLine: c.StartLine, EndLine: c.EndLine, Content: c.Content,
			}
		}
		if err := st.InsertChunks(ctx, kbChunks); err != nil {
			return fmt.Errorf("insert chunks for %s: %w", path, err)
		}
		result = IngestURLResult{Status: "indexed", Chunks: len(chunks)}
		return nil
	})
	if err != nil {
		return IngestURLResult{}, err
	}

	if result.Status == "indexed" {
		d.Logger.Info("url ingested", "owner", owner, "repo", repo, "path", path, "chunks", result.Chunks)
	}
	return result, nil
}
