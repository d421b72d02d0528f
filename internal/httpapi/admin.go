package httpapi

import (
	"context"
	"net/http"

	"github.com/sourcelens/codekb/internal/ingest"
)

// handleAdminSyncRepo implements POST /admin/sync-repo: lists a
// repository's tree at ref (default branch if omitted) and enqueues an
// index job per surviving path.
func (s *Server) handleAdminSyncRepo(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Owner string `json:"owner"`
		Repo  string `json:"repo"`
		Ref   string `json:"ref"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	if payload.Owner == "" || payload.Repo == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "owner and repo are required")
		return
	}

	result, err := s.Dispatcher.SyncRepo(r.Context(), payload.Owner, payload.Repo, payload.Ref)
	if err != nil {
		s.reportInternalError(r, "/admin/sync-repo", "sync_repo_error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"repo_id":                result.RepoID,
		"files_found":            result.FilesFound,
		"tasks_enqueued":         result.TasksEnqueued,
		"files_skipped_denylist": result.FilesSkippedDenylist,
	})
}

// handleAdminBackfill implements POST /admin/backfill: runs sync across a
// batch of repositories, isolating each repo's failure from the rest.
func (s *Server) handleAdminBackfill(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Repos []struct {
			Owner string `json:"owner"`
			Repo  string `json:"repo"`
			Ref   string `json:"ref"`
		} `json:"repos"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	if len(payload.Repos) == 0 {
		writeDetail(w, http.StatusUnprocessableEntity, "repos must not be empty")
		return
	}

	refs := make([]ingest.RepoRef, len(payload.Repos))
	for i, item := range payload.Repos {
		refs[i] = ingest.RepoRef{Owner: item.Owner, Repo: item.Repo, Ref: item.Ref}
	}

	result := s.Dispatcher.Backfill(r.Context(), refs)
	writeJSON(w, http.StatusOK, map[string]any{
		"results":              result.Results,
		"total_tasks_enqueued": result.TotalTasksEnqueued,
	})
}

// handleAdminIngestURL implements POST /admin/ingest-url: fetches a URL's
// text content directly and indexes it under a synthetic repo.
func (s *Server) handleAdminIngestURL(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		URL       string `json:"url"`
		RepoOwner string `json:"repo_owner"`
		RepoName  string `json:"repo_name"`
		Path      string `json:"path"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	if payload.URL == "" || payload.RepoOwner == "" || payload.RepoName == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "url, repo_owner, and repo_name are required")
		return
	}

	path := payload.Path
	if path == "" {
		derived, err := ingest.DerivePathFromURL(payload.URL)
		if err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "unable to derive path from url")
			return
		}
		path = derived
	}

	fetch := s.FetchText
	if fetch == nil {
		fetch = ingest.NewFetchURLClient().Fetch
	}

	result, err := s.Dispatcher.IngestURL(r.Context(), func(ctx context.Context) (string, error) {
		return fetch(ctx, payload.URL)
	}, payload.RepoOwner, payload.RepoName, path)
	if err != nil {
		s.reportInternalError(r, "/admin/ingest-url", "ingest_url_error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": result.Status,
		"chunks": result.Chunks,
	})
}
