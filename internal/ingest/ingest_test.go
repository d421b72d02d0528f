package ingest_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcelens/codekb/internal/codehost"
	"github.com/sourcelens/codekb/internal/ingest"
	"github.com/sourcelens/codekb/internal/store/sqlite"
	"github.com/sourcelens/codekb/internal/taskqueue"
)

func validSigFor(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newHarness(t *testing.T) (*taskqueue.InMemoryQueue, *codehost.InMemoryClient, *sqlite.Store, *ingest.Dispatcher) {
	t.Helper()
	q := taskqueue.NewInMemoryQueue()
	code := codehost.NewInMemoryClient()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	d := ingest.New(q, code, s, nil, "/tasks/index-file", "/tasks/delete-file")
	return q, code, s, d
}

func TestVerifySignature(t *testing.T) {
	secret := []byte("shh")
	body := []byte(`{"hello":"world"}`)

	// Computed independently via hmac-sha256(secret, body).
	valid := ingest.VerifySignature(secret, body, validSigFor(secret, body))
	assert.True(t, valid)

	assert.False(t, ingest.VerifySignature(secret, body, "sha256=deadbeef"))
	assert.False(t, ingest.VerifySignature(secret, body, "not-even-prefixed"))
}

func TestDispatchPush_BranchDeletionEnqueuesNothing(t *testing.T) {
	q, _, _, d := newHarness(t)
	res, err := d.DispatchPush(context.Background(), ingest.PushEvent{Deleted: true})
	require.NoError(t, err)
	assert.Equal(t, 0, res.TasksEnqueued)
	assert.Empty(t, q.Tasks())
}

func TestDispatchPush_EnqueuesIndexAndDeleteTasks(t *testing.T) {
	q, _, _, d := newHarness(t)
	event := ingest.PushEvent{
		After: "deadbeef",
		Repository: ingest.Repository{
			ID: 42, Name: "widgets",
			Owner: ingest.RepositoryOwner{Login: "acme"},
		},
		Commits: []ingest.Commit{
			{Added: []string{"src/new.go"}, Modified: []string{"src/main.go"}, Removed: []string{"src/old.go"}},
		},
	}

	res, err := d.DispatchPush(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, 3, res.TasksEnqueued)

	tasks := q.Tasks()
	require.Len(t, tasks, 3)
	assert.Equal(t, "/tasks/index-file", tasks[0].URL)
	assert.Equal(t, ingest.IndexFileTaskPayload{RepoID: 42, RepoOwner: "acme", RepoName: "widgets", Path: "src/new.go", CommitSHA: "deadbeef"}, tasks[0].Payload)
	assert.Equal(t, "/tasks/delete-file", tasks[2].URL)
	assert.Equal(t, ingest.DeleteFileTaskPayload{RepoID: 42, RepoOwner: "acme", RepoName: "widgets", Path: "src/old.go"}, tasks[2].Payload)
}

func TestSyncRepo_SkipsDenylistedPaths(t *testing.T) {
	q, code, _, d := newHarness(t)
	code.SetRepo("acme", "widgets", codehost.RepoMeta{ID: 7, Owner: "acme", Name: "widgets", DefaultBranch: "main"})
	code.AddFile("acme", "widgets", "src/main.go", "package main")
	code.AddFile("acme", "widgets", "node_modules/dep/index.js", "console.log(1)")

	res, err := d.SyncRepo(context.Background(), "acme", "widgets", "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.FilesFound)
	assert.Equal(t, 1, res.TasksEnqueued)
	assert.Equal(t, 1, res.FilesSkippedDenylist)
	assert.Len(t, q.Tasks(), 1)
}

func TestSyncRepo_ReportsCountsAndTargetsIndexEndpoint(t *testing.T) {
	q, code, _, d := newHarness(t)
	code.SetRepo("testowner", "testrepo", codehost.RepoMeta{ID: 11, Owner: "testowner", Name: "testrepo", DefaultBranch: "main"})
	code.AddFile("testowner", "testrepo", "src/main.py", "print('hi')\n")
	code.AddFile("testowner", "testrepo", "README.md", "# readme\n")
	code.AddFile("testowner", "testrepo", "image.png", "\x89PNG")

	res, err := d.SyncRepo(context.Background(), "testowner", "testrepo", "main")
	require.NoError(t, err)
	assert.Equal(t, 3, res.FilesFound)
	assert.Equal(t, 2, res.TasksEnqueued)
	assert.Equal(t, 1, res.FilesSkippedDenylist)

	paths := make(map[string]bool)
	for _, task := range q.Tasks() {
		require.Equal(t, "/tasks/index-file", task.URL)
		paths[task.Payload.(ingest.IndexFileTaskPayload).Path] = true
	}
	assert.True(t, paths["src/main.py"])
	assert.True(t, paths["README.md"])
}

func TestBackfill_UnknownRepoAcceptedWithNoFiles(t *testing.T) {
	_, code, _, d := newHarness(t)
	code.SetRepo("acme", "widgets", codehost.RepoMeta{ID: 7, Owner: "acme", Name: "widgets", DefaultBranch: "main"})
	code.AddFile("acme", "widgets", "src/main.go", "package main")

	items := []ingest.RepoRef{
		{Owner: "acme", Repo: "widgets"},
		{Owner: "acme", Repo: "missing"},
	}
	result := d.Backfill(context.Background(), items)
	require.Len(t, result.Results, 2)
	assert.Equal(t, "accepted", result.Results[0].Status)
	assert.Equal(t, "accepted", result.Results[1].Status)
	assert.Equal(t, 0, result.Results[1].FilesFound)
	assert.Equal(t, 1, result.TotalTasksEnqueued)
}

func TestIngestURL_InsertsChunksOnFirstIngest(t *testing.T) {
	_, _, s, d := newHarness(t)
	fetch := func(ctx context.Context) (string, error) { return strings.Repeat("hello world\n", 5), nil }

	res, err := d.IngestURL(context.Background(), fetch, "acme", "docs", "index")
	require.NoError(t, err)
	assert.Equal(t, "indexed", res.Status)
	assert.Greater(t, res.Chunks, 0)

	repoID := ingest.SyntheticRepoID("acme", "docs")
	file, err := s.GetFileByPath(context.Background(), repoID, "index")
	require.NoError(t, err)
	assert.Equal(t, "index", file.Path)
}

func TestIngestURL_UnchangedContentSkipsRechunk(t *testing.T) {
	_, _, _, d := newHarness(t)
	fetch := func(ctx context.Context) (string, error) { return "same content\n", nil }

	_, err := d.IngestURL(context.Background(), fetch, "acme", "docs", "index")
	require.NoError(t, err)

	res, err := d.IngestURL(context.Background(), fetch, "acme", "docs", "index")
	require.NoError(t, err)
	assert.Equal(t, "unchanged", res.Status)
}

func TestSyntheticRepoID_IsDeterministic(t *testing.T) {
	a := ingest.SyntheticRepoID("acme", "widgets")
	b := ingest.SyntheticRepoID("acme", "widgets")
	c := ingest.SyntheticRepoID("acme", "gadgets")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.GreaterOrEqual(t, a, int64(0))
}

func TestExtractTextFromHTML_SkipsScriptAndStyle(t *testing.T) {
	doc := `<html><head><style>.a{color:red}</style></head>
<body><script>alert(1)</script><p>Hello world</p><noscript>no js</noscript></body></html>`

	text, err := ingest.ExtractTextFromHTML(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Contains(t, text, "Hello world")
	assert.NotContains(t, text, "alert(1)")
	assert.NotContains(t, text, "color:red")
	assert.NotContains(t, text, "no js")
}

func TestDerivePathFromURL(t *testing.T) {
	path, err := ingest.DerivePathFromURL("https://example.com/docs/guide")
	require.NoError(t, err)
	assert.Equal(t, "docs/guide", path)

	path, err = ingest.DerivePathFromURL("https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "index", path)
}
