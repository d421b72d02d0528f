package httpapi

import "net/http"

// handleTaskIndexFile implements POST /tasks/index-file: (re)index a
// single file, reconciling the caller's repo_id via the store's
// GetOrCreateRepo lookup.
func (s *Server) handleTaskIndexFile(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RepoID    int64  `json:"repo_id"`
		RepoOwner string `json:"repo_owner"`
		RepoName  string `json:"repo_name"`
		Path      string `json:"path"`
		CommitSHA string `json:"commit_sha"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}

	result, err := s.Indexer.IndexFile(r.Context(), payload.RepoOwner, payload.RepoName, payload.RepoID, payload.Path, payload.CommitSHA)
	if err != nil {
		s.reportInternalError(r, "/tasks/index-file", "index_file_error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": result.Status,
		"chunks": result.Chunks,
	})
}

// handleTaskDeleteFile implements POST /tasks/delete-file: remove a
// file and its chunks from the index.
func (s *Server) handleTaskDeleteFile(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RepoID    int64  `json:"repo_id"`
		RepoOwner string `json:"repo_owner"`
		RepoName  string `json:"repo_name"`
		Path      string `json:"path"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}

	result, err := s.Indexer.DeleteFile(r.Context(), payload.RepoID, payload.Path)
	if err != nil {
		s.reportInternalError(r, "/tasks/delete-file", "delete_file_error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": result.Status,
	})
}
