package rag_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcelens/codekb/internal/codehost"
	"github.com/sourcelens/codekb/internal/indexer"
	"github.com/sourcelens/codekb/internal/llm"
	"github.com/sourcelens/codekb/internal/rag"
	"github.com/sourcelens/codekb/internal/retrieval"
	"github.com/sourcelens/codekb/internal/store/sqlite"
)

func newHarness(t *testing.T) (*sqlite.Store, *codehost.InMemoryClient, *llm.InMemoryClient, *rag.Orchestrator) {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	code := codehost.NewInMemoryClient()
	lc := llm.NewInMemoryClient()
	o := rag.New(retrieval.New(s), s, lc, nil)
	return s, code, lc, o
}

func TestAnswer_EmptyStoreReturnsFixedMessage(t *testing.T) {
	_, _, _, o := newHarness(t)
	resp, err := o.Answer(context.Background(), "how does auth work?")
	require.NoError(t, err)
	assert.Equal(t, "low", resp.Confidence)
	assert.Empty(t, resp.Citations)
}

func TestAnswer_NonEmptyStoreNoMatchReturnsFixedMessage(t *testing.T) {
	ctx := context.Background()
	s, code, _, o := newHarness(t)
	code.AddFile("acme", "widgets", "src/main.go", "package main\n\nfunc main() {}\n")
	ix := indexer.New(s, code, nil)
	_, err := ix.IndexFile(ctx, "acme", "widgets", 1, "src/main.go", "sha1")
	require.NoError(t, err)

	resp, err := o.Answer(ctx, "zzyyxx nonexistent query term")
	require.NoError(t, err)
	assert.Equal(t, "low", resp.Confidence)
}

func TestAnswer_VerifiesCitationsAgainstRetrievedChunks(t *testing.T) {
	ctx := context.Background()
	s, code, lc, o := newHarness(t)
	code.AddFile("acme", "widgets", "src/auth.go", "func ValidateToken(token string) error { return nil }")
	ix := indexer.New(s, code, nil)
	_, err := ix.IndexFile(ctx, "acme", "widgets", 1, "src/auth.go", "sha1")
	require.NoError(t, err)

	validSource := "acme/widgets/src/auth.go@sha1:1-1"
	lc.Enqueue(fmt.Sprintf(
		`{"answer":"Use ValidateToken.","citations":[{"source":%q,"relevance":"defines validation"},{"source":"fake/fake/fake.go@zzz:1-1","relevance":"hallucinated"}],"needs_clarification":false,"clarifying_question":null}`,
		validSource,
	))

	resp, err := o.Answer(ctx, "ValidateToken")
	require.NoError(t, err)
	require.Len(t, resp.Citations, 1)
	assert.Equal(t, validSource, resp.Citations[0].Source)
}

func TestAnswer_LLMErrorReturnsGracefulLowConfidence(t *testing.T) {
	ctx := context.Background()
	s, code, _, o := newHarness(t)
	code.AddFile("acme", "widgets", "src/auth.go", "func ValidateToken(token string) error { return nil }")
	ix := indexer.New(s, code, nil)
	_, err := ix.IndexFile(ctx, "acme", "widgets", 1, "src/auth.go", "sha1")
	require.NoError(t, err)

	o.LLM = brokenLLM{}
	resp, err := o.Answer(ctx, "ValidateToken")
	require.NoError(t, err)
	assert.Equal(t, "low", resp.Confidence)
	assert.Empty(t, resp.Citations)
}

type brokenLLM struct{}

func (brokenLLM) Generate(ctx context.Context, systemPrompt, userContent string) (string, error) {
	return "", assert.AnError
}
