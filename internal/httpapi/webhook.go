package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/sourcelens/codekb/internal/ingest"
)

// handleWebhookGitHub implements POST /webhooks/github: verify the
// X-Hub-Signature-256 HMAC, parse the push payload, and dispatch one job
// per changed/removed path.
func (s *Server) handleWebhookGitHub(w http.ResponseWriter, r *http.Request) {
	sig := r.Header.Get("X-Hub-Signature-256")
	if sig == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "missing X-Hub-Signature-256 header")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "unable to read request body")
		return
	}
	defer r.Body.Close()

	if !ingest.VerifySignature(s.WebhookSecret, body, sig) {
		writeDetail(w, http.StatusUnauthorized, "invalid webhook signature")
		return
	}

	var event ingest.PushEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "malformed push payload")
		return
	}

	result, err := s.Dispatcher.DispatchPush(r.Context(), event)
	if err != nil {
		s.reportInternalError(r, "/webhooks/github", "webhook_dispatch_error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":         "accepted",
		"tasks_enqueued": result.TasksEnqueued,
	})
}
