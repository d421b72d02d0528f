package sqlite_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcelens/codekb/internal/store"
	"github.com/sourcelens/codekb/internal/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetOrCreateRepo(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r1, err := s.GetOrCreateRepo(ctx, 42, "acme", "widgets", "main")
	require.NoError(t, err)
	assert.Equal(t, int64(42), r1.ID)
	assert.Equal(t, "main", r1.DefaultBranch)

	r2, err := s.GetOrCreateRepo(ctx, 42, "ignored", "ignored", "main")
	require.NoError(t, err)
	assert.Equal(t, "acme", r2.Owner)
	assert.Equal(t, "widgets", r2.Name)
}

func TestUpsertFileAndChunksRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetOrCreateRepo(ctx, 1, "acme", "widgets", "main")
	require.NoError(t, err)

	fileID, err := s.UpsertFile(ctx, &store.KBFile{
		RepoID: 1, Path: "src/main.go", CommitSHA: "abc123", SHA256: "deadbeef",
	})
	require.NoError(t, err)
	assert.NotZero(t, fileID)

	err = s.InsertChunks(ctx, []store.KBChunk{
		{RepoID: 1, FileID: fileID, Path: "src/main.go", CommitSHA: "abc123", StartLine: 1, EndLine: 10, Content: "package main\n\nfunc main() {}\n"},
	})
	require.NoError(t, err)

	has, err := s.HasAnyChunks(ctx)
	require.NoError(t, err)
	assert.True(t, has)

	got, err := s.GetFileByPath(ctx, 1, "src/main.go")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.CommitSHA)

	_, err = s.GetFileByPath(ctx, 1, "nope.go")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWithTx_RollsBackEverythingOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetOrCreateRepo(ctx, 1, "acme", "widgets", "main")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithTx(ctx, func(st store.Store) error {
		fileID, err := st.UpsertFile(ctx, &store.KBFile{RepoID: 1, Path: "src/a.go", CommitSHA: "sha1", SHA256: "h1"})
		if err != nil {
			return err
		}
		if err := st.InsertChunks(ctx, []store.KBChunk{
			{RepoID: 1, FileID: fileID, Path: "src/a.go", CommitSHA: "sha1", StartLine: 1, EndLine: 1, Content: "package a"},
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetFileByPath(ctx, 1, "src/a.go")
	assert.ErrorIs(t, err, store.ErrNotFound)
	has, err := s.HasAnyChunks(ctx)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetOrCreateRepo(ctx, 1, "acme", "widgets", "main")
	require.NoError(t, err)

	err = s.WithTx(ctx, func(st store.Store) error {
		fileID, err := st.UpsertFile(ctx, &store.KBFile{RepoID: 1, Path: "src/a.go", CommitSHA: "sha1", SHA256: "h1"})
		if err != nil {
			return err
		}
		return st.InsertChunks(ctx, []store.KBChunk{
			{RepoID: 1, FileID: fileID, Path: "src/a.go", CommitSHA: "sha1", StartLine: 1, EndLine: 1, Content: "package a"},
		})
	})
	require.NoError(t, err)

	file, err := s.GetFileByPath(ctx, 1, "src/a.go")
	require.NoError(t, err)
	assert.Equal(t, "h1", file.SHA256)
	has, err := s.HasAnyChunks(ctx)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestSearchFTSAndFindsMatchingContent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetOrCreateRepo(ctx, 1, "acme", "widgets", "main")
	require.NoError(t, err)
	fileID, err := s.UpsertFile(ctx, &store.KBFile{RepoID: 1, Path: "src/auth.go", CommitSHA: "sha1", SHA256: "h1"})
	require.NoError(t, err)
	require.NoError(t, s.InsertChunks(ctx, []store.KBChunk{
		{RepoID: 1, FileID: fileID, Path: "src/auth.go", CommitSHA: "sha1", StartLine: 1, EndLine: 5, Content: "func ValidateToken(token string) error { return nil }"},
	}))

	results, err := s.SearchFTSAnd(ctx, "ValidateToken", 12)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "acme", results[0].RepoOwner)
	assert.Equal(t, "src/auth.go", results[0].Path)
}

func TestSearchFTSAndQuotedPhraseRequiresAdjacency(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetOrCreateRepo(ctx, 1, "acme", "widgets", "main")
	require.NoError(t, err)
	fileID, err := s.UpsertFile(ctx, &store.KBFile{RepoID: 1, Path: "docs/notes.md", CommitSHA: "sha1", SHA256: "h1"})
	require.NoError(t, err)
	require.NoError(t, s.InsertChunks(ctx, []store.KBChunk{
		{RepoID: 1, FileID: fileID, Path: "docs/notes.md", CommitSHA: "sha1", StartLine: 1, EndLine: 1, Content: "the token validation flow starts here"},
		{RepoID: 1, FileID: fileID, Path: "docs/notes.md", CommitSHA: "sha1", StartLine: 2, EndLine: 2, Content: "validation of each token happens later"},
	}))

	results, err := s.SearchFTSAnd(ctx, `"token validation"`, 12)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].StartLine)
}

func TestSearchTrigramMatchesOnPath(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetOrCreateRepo(ctx, 1, "acme", "widgets", "main")
	require.NoError(t, err)
	fileID, err := s.UpsertFile(ctx, &store.KBFile{RepoID: 1, Path: "internal/auth/middleware.go", CommitSHA: "sha1", SHA256: "h1"})
	require.NoError(t, err)
	require.NoError(t, s.InsertChunks(ctx, []store.KBChunk{
		{RepoID: 1, FileID: fileID, Path: "internal/auth/middleware.go", CommitSHA: "sha1", StartLine: 1, EndLine: 5, Content: "unrelated text with no overlap"},
	}))

	results, err := s.SearchTrigram(ctx, "auth/middleware.go", 12, 0.15)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Greater(t, results[0].Score, 0.15)
}
