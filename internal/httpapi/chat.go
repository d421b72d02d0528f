package httpapi

import (
	"net/http"
	"unicode/utf8"
)

const (
	minQuestionLength = 1
	maxQuestionLength = 1000
)

// handleChat implements POST /chat: retrieve, score confidence, call the
// model, verify citations, and return the response policy's result.
// LLM call and response-parse errors never reach this handler: the
// orchestrator turns them into a low-confidence answer. Retrieval and
// store errors are returned by Answer and become the uniform 500 envelope.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Question string `json:"question"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}

	length := utf8.RuneCountInString(payload.Question)
	if length < minQuestionLength || length > maxQuestionLength {
		writeDetail(w, http.StatusUnprocessableEntity, "question must be between 1 and 1000 characters")
		return
	}

	resp, err := s.Orchestrator.Answer(r.Context(), payload.Question)
	if err != nil {
		s.reportInternalError(r, "/chat", "chat_answer_error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
