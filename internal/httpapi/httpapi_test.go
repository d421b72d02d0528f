package httpapi_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcelens/codekb/internal/codehost"
	"github.com/sourcelens/codekb/internal/httpapi"
	"github.com/sourcelens/codekb/internal/indexer"
	"github.com/sourcelens/codekb/internal/ingest"
	"github.com/sourcelens/codekb/internal/llm"
	"github.com/sourcelens/codekb/internal/rag"
	"github.com/sourcelens/codekb/internal/retrieval"
	"github.com/sourcelens/codekb/internal/store/sqlite"
	"github.com/sourcelens/codekb/internal/taskqueue"
)

const webhookSecret = "shh-its-a-secret"

func newTestServer(t *testing.T) (*httpapi.Server, *sqlite.Store, *codehost.InMemoryClient, *llm.InMemoryClient) {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	code := codehost.NewInMemoryClient()
	queue := taskqueue.NewInMemoryQueue()
	llmClient := llm.NewInMemoryClient()

	ix := indexer.New(s, code, nil)
	dispatcher := ingest.New(queue, code, s, nil, "/tasks/index-file", "/tasks/delete-file")
	retriever := retrieval.New(s)
	orchestrator := rag.New(retriever, s, llmClient, nil)

	server := &httpapi.Server{
		Indexer:       ix,
		Dispatcher:    dispatcher,
		Orchestrator:  orchestrator,
		Store:         s,
		Logger:        nil,
		WebhookSecret: []byte(webhookSecret),
	}
	return server, s, code, llmClient
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestHandleWebhookGitHub_MissingSignatureIs422(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleWebhookGitHub_BadSignatureIs401(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	body := []byte(`{"repository":{"id":1,"name":"repo","owner":{"login":"acme"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256="+strings.Repeat("0", 64))
	rec := httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleWebhookGitHub_ValidPushEnqueuesTasks(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	body := []byte(`{
		"ref": "refs/heads/main",
		"after": "deadbeef",
		"repository": {"id": 42, "name": "repo", "owner": {"login": "acme"}, "default_branch": "main"},
		"commits": [{"id": "deadbeef", "added": ["docs/a.md"], "modified": [], "removed": ["docs/old.md"]}]
	}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign(body))
	rec := httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decodeBody(t, rec)
	assert.EqualValues(t, 2, resp["tasks_enqueued"])
}

func TestHandleAdminSyncRepo_IndexesEverySurvivingFile(t *testing.T) {
	server, store, code, _ := newTestServer(t)
	code.AddFile("acme", "repo", "src/main.go", "package main\n")
	code.AddFile("acme", "repo", "vendor/ignored.go", "package vendor\n")
	code.SetRepo("acme", "repo", codehost.RepoMeta{ID: 7, Owner: "acme", Name: "repo", DefaultBranch: "main"})

	body, _ := json.Marshal(map[string]string{"owner": "acme", "repo": "repo"})
	req := httptest.NewRequest(http.MethodPost, "/admin/sync-repo", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Drain the in-memory queue by running index tasks directly through the
	// indexer, mirroring what a task worker would do.
	ctx := context.Background()
	_, err := server.Indexer.IndexFile(ctx, "acme", "repo", 7, "src/main.go", "main")
	require.NoError(t, err)

	has, err := store.HasAnyChunks(ctx)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestHandleAdminBackfill_EmptyReposIs422(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]any{"repos": []any{}})
	req := httptest.NewRequest(http.MethodPost, "/admin/backfill", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleChat_EmptyKnowledgeBaseReturnsFixedMessage(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"question": "how does indexing work?"})
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	assert.Contains(t, resp["answer"], "No repositories have been indexed yet")
	assert.Equal(t, "low", resp["confidence"])
}

func TestHandleChat_QuestionTooLongIs422(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"question": strings.Repeat("a", 1001)})
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleChat_EmptyQuestionIs422(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"question": ""})
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleWebhookGitHub_MalformedJSONAfterValidSignatureIs422(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	body := []byte(`not json`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign(body))
	rec := httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleAdminIngestURL_FetchesAndIndexes(t *testing.T) {
	server, store, _, _ := newTestServer(t)
	server.FetchText = func(ctx context.Context, url string) (string, error) {
		return strings.Repeat("# Title\ncontent line\n", 20), nil
	}

	body, _ := json.Marshal(map[string]string{
		"url":        "https://example.com/docs/guide",
		"repo_owner": "docs",
		"repo_name":  "site",
	})
	req := httptest.NewRequest(http.MethodPost, "/admin/ingest-url", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "indexed", decodeBody(t, rec)["status"])

	has, err := store.HasAnyChunks(context.Background())
	require.NoError(t, err)
	assert.True(t, has)
}

func TestHandleAdminIngestURL_MissingFieldsIs422(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"url": "https://example.com/x"})
	req := httptest.NewRequest(http.MethodPost, "/admin/ingest-url", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandler_RecoversPanicToUniform500(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	server.Orchestrator = nil // force a panic inside the chat handler

	body, _ := json.Marshal(map[string]string{"question": "boom"})
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decodeBody(t, rec)["detail"])
}

func TestHandleTaskDeleteFile_Roundtrip(t *testing.T) {
	server, store, code, _ := newTestServer(t)
	code.AddFile("acme", "repo", "README.md", strings.Repeat("# Title\ncontent line\n", 20))

	indexBody, _ := json.Marshal(map[string]any{
		"repo_id": 9, "repo_owner": "acme", "repo_name": "repo", "path": "README.md", "commit_sha": "abc123",
	})
	indexReq := httptest.NewRequest(http.MethodPost, "/tasks/index-file", bytes.NewReader(indexBody))
	indexRec := httptest.NewRecorder()
	server.Mux().ServeHTTP(indexRec, indexReq)
	require.Equal(t, http.StatusOK, indexRec.Code)

	deleteBody, _ := json.Marshal(map[string]any{"repo_id": 9, "path": "README.md"})
	req := httptest.NewRequest(http.MethodPost, "/tasks/delete-file", bytes.NewReader(deleteBody))
	rec := httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "deleted", decodeBody(t, rec)["status"])

	has, err := store.HasAnyChunks(context.Background())
	require.NoError(t, err)
	assert.False(t, has)
}

func TestHandleTaskIndexFile_Roundtrip(t *testing.T) {
	server, store, code, _ := newTestServer(t)
	code.AddFile("acme", "repo", "README.md", strings.Repeat("# Title\ncontent line\n", 20))

	body, _ := json.Marshal(map[string]any{
		"repo_id": 9, "repo_owner": "acme", "repo_name": "repo", "path": "README.md", "commit_sha": "abc123",
	})
	req := httptest.NewRequest(http.MethodPost, "/tasks/index-file", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "indexed", decodeBody(t, rec)["status"])

	has, err := store.HasAnyChunks(context.Background())
	require.NoError(t, err)
	assert.True(t, has)
}
