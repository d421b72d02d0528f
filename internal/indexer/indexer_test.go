package indexer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcelens/codekb/internal/codehost"
	"github.com/sourcelens/codekb/internal/indexer"
	"github.com/sourcelens/codekb/internal/store/sqlite"
)

func newHarness(t *testing.T) (*indexer.Indexer, *codehost.InMemoryClient, *sqlite.Store) {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	code := codehost.NewInMemoryClient()
	return indexer.New(s, code, nil), code, s
}

func TestIndexFile_NewFileIsIndexed(t *testing.T) {
	ctx := context.Background()
	ix, code, _ := newHarness(t)
	code.AddFile("acme", "widgets", "src/main.go", "package main\n\nfunc main() {}\n")

	res, err := ix.IndexFile(ctx, "acme", "widgets", 1, "src/main.go", "sha1")
	require.NoError(t, err)
	assert.Equal(t, indexer.StatusIndexed, res.Status)
	assert.Equal(t, 1, res.Chunks)
}

func TestIndexFile_DenylistedPathIsSkipped(t *testing.T) {
	ctx := context.Background()
	ix, code, _ := newHarness(t)
	code.AddFile("acme", "widgets", "vendor/lib.go", "package lib\n")

	res, err := ix.IndexFile(ctx, "acme", "widgets", 1, "vendor/lib.go", "sha1")
	require.NoError(t, err)
	assert.Equal(t, indexer.StatusSkippedDenylist, res.Status)
}

func TestIndexFile_MissingFileIsSkipped(t *testing.T) {
	ctx := context.Background()
	ix, _, _ := newHarness(t)

	res, err := ix.IndexFile(ctx, "acme", "widgets", 1, "missing.go", "sha1")
	require.NoError(t, err)
	assert.Equal(t, indexer.StatusSkippedNotFound, res.Status)
}

func TestIndexFile_UnchangedContentSkipsRechunk(t *testing.T) {
	ctx := context.Background()
	ix, code, s := newHarness(t)
	code.AddFile("acme", "widgets", "src/main.go", "package main\n")

	_, err := ix.IndexFile(ctx, "acme", "widgets", 1, "src/main.go", "sha1")
	require.NoError(t, err)

	res, err := ix.IndexFile(ctx, "acme", "widgets", 1, "src/main.go", "sha2")
	require.NoError(t, err)
	assert.Equal(t, indexer.StatusUnchanged, res.Status)

	// The commit sha advances even when the content hash is identical.
	file, err := s.GetFileByPath(ctx, 1, "src/main.go")
	require.NoError(t, err)
	assert.Equal(t, "sha2", file.CommitSHA)
}

func TestIndexFile_ChangedContentReplacesChunks(t *testing.T) {
	ctx := context.Background()
	ix, code, s := newHarness(t)
	code.AddFile("acme", "widgets", "src/main.go", "package main\n")
	_, err := ix.IndexFile(ctx, "acme", "widgets", 1, "src/main.go", "sha1")
	require.NoError(t, err)

	code.AddFile("acme", "widgets", "src/main.go", "package main\n\nfunc main() {}\n")
	res, err := ix.IndexFile(ctx, "acme", "widgets", 1, "src/main.go", "sha2")
	require.NoError(t, err)
	assert.Equal(t, indexer.StatusIndexed, res.Status)

	// Only the regenerated chunk set survives, all carrying the new sha.
	chunks, err := s.SearchFTSOr(ctx, "main package", 50)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, "sha2", c.CommitSHA)
	}
}

func TestIndexFile_ReconcilesSyntheticRepoID(t *testing.T) {
	ctx := context.Background()
	ix, code, s := newHarness(t)
	code.AddFile("acme", "widgets", "src/main.go", "package main\n")

	// First index under a synthesized id; a later call carrying the real
	// code-host id must land on the existing row, not create a second repo.
	_, err := ix.IndexFile(ctx, "acme", "widgets", 12345, "src/main.go", "sha1")
	require.NoError(t, err)
	_, err = ix.IndexFile(ctx, "acme", "widgets", 42, "src/main.go", "sha2")
	require.NoError(t, err)

	file, err := s.GetFileByPath(ctx, 12345, "src/main.go")
	require.NoError(t, err)
	assert.Equal(t, int64(12345), file.RepoID)
}

func TestDeleteFile(t *testing.T) {
	ctx := context.Background()
	ix, code, _ := newHarness(t)
	code.AddFile("acme", "widgets", "src/main.go", "package main\n")
	_, err := ix.IndexFile(ctx, "acme", "widgets", 1, "src/main.go", "sha1")
	require.NoError(t, err)

	res, err := ix.DeleteFile(ctx, 1, "src/main.go")
	require.NoError(t, err)
	assert.Equal(t, indexer.StatusDeleted, res.Status)

	res, err = ix.DeleteFile(ctx, 1, "src/main.go")
	require.NoError(t, err)
	assert.Equal(t, indexer.StatusNotFound, res.Status)
}
