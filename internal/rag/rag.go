// Package rag implements the chat orchestrator: retrieve chunks, compute a
// retrieval-only confidence score, assemble LLM context, call the model,
// and mechanically verify its citations before anything reaches the user.
package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sourcelens/codekb/internal/llm"
	"github.com/sourcelens/codekb/internal/retrieval"
	"github.com/sourcelens/codekb/internal/store"
)

// Confidence levels, derived purely from retrieval signals, never from
// the LLM's own assessment.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

const (
	minChunksForHighConfidence = 3
	highScoreThreshold         = 0.1
)

var (
	msgNoRepositoriesIndexed = "I don't know. No repositories have been indexed yet. Use /admin/sync-repo to index a repository first."
	msgNoRelevantContent     = "I don't know. Could you provide more details about what you're looking for?"
	msgLLMError              = "I'm sorry, I encountered an error processing your question. Please try again."
)

// Response is the chat endpoint's result.
type Response struct {
	Answer     string     `json:"answer"`
	Citations  []Citation `json:"citations"`
	Confidence string     `json:"confidence"`
}

// Citation is a verified citation surfaced to the user.
type Citation struct {
	Source    string `json:"source"`
	Relevance string `json:"relevance"`
}

// Orchestrator runs the full chat pipeline.
type Orchestrator struct {
	Retriever *retrieval.Retriever
	Store     store.Store
	LLM       llm.Client
	Logger    *slog.Logger
}

// New returns an Orchestrator wired to the given retriever, store (used
// only to distinguish an empty knowledge base from an empty retrieval),
// and LLM client.
func New(r *retrieval.Retriever, s store.Store, c llm.Client, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{Retriever: r, Store: s, LLM: c, Logger: logger}
}

// Answer runs the orchestration: retrieve -> confidence -> context ->
// LLM -> verify -> respond.
func (o *Orchestrator) Answer(ctx context.Context, question string) (*Response, error) {
	chunks, err := o.Retriever.Retrieve(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("retrieve chunks: %w", err)
	}

	if len(chunks) == 0 {
		hasAny, err := o.Store.HasAnyChunks(ctx)
		if err != nil {
			return nil, fmt.Errorf("check knowledge base state: %w", err)
		}
		if !hasAny {
			return &Response{Answer: msgNoRepositoriesIndexed, Citations: []Citation{}, Confidence: ConfidenceLow}, nil
		}
		return &Response{Answer: msgNoRelevantContent, Citations: []Citation{}, Confidence: ConfidenceLow}, nil
	}

	confidence := computeConfidence(chunks)
	contextBlock := buildContext(chunks)

	userContent := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextBlock, question)
	raw, err := o.LLM.Generate(ctx, llm.SystemPrompt, userContent)
	if err != nil {
		o.Logger.Error("llm generation failed", "error", err)
		return &Response{Answer: msgLLMError, Citations: []Citation{}, Confidence: ConfidenceLow}, nil
	}

	var llmResp llm.Response
	if err := json.Unmarshal([]byte(raw), &llmResp); err != nil {
		o.Logger.Error("llm response parse failed", "error", err)
		return &Response{Answer: msgLLMError, Citations: []Citation{}, Confidence: ConfidenceLow}, nil
	}

	verified := verifyCitations(llmResp.Citations, chunks)

	if llmResp.NeedsClarification {
		return &Response{Answer: llmResp.Answer, Citations: verified, Confidence: ConfidenceLow}, nil
	}
	if len(verified) == 0 {
		return &Response{Answer: llmResp.Answer, Citations: []Citation{}, Confidence: ConfidenceLow}, nil
	}

	return &Response{Answer: llmResp.Answer, Citations: verified, Confidence: confidence}, nil
}

// computeConfidence derives confidence purely from retrieval signals: chunk
// count and the top-ranked chunk's score.
func computeConfidence(chunks []store.RetrievedChunk) string {
	if len(chunks) == 0 {
		return ConfidenceLow
	}
	hasEnoughChunks := len(chunks) >= minChunksForHighConfidence
	hasHighScore := chunks[0].Score >= highScoreThreshold

	switch {
	case hasEnoughChunks && hasHighScore:
		return ConfidenceHigh
	case hasEnoughChunks || hasHighScore:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// buildContext formats retrieved chunks into the context block passed to
// the LLM, one "--- CHUNK: ... ---" header followed by its content, joined
// by a blank line.
func buildContext(chunks []store.RetrievedChunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		header := fmt.Sprintf("--- CHUNK: %s ---", citationSource(c))
		parts[i] = header + "\n" + c.Content
	}
	return strings.Join(parts, "\n\n")
}

// citationSource formats a chunk's stable, user-visible citation source
// string: owner/repo/path@sha:start_line-end_line.
func citationSource(c store.RetrievedChunk) string {
	return fmt.Sprintf("%s/%s/%s@%s:%d-%d", c.RepoOwner, c.RepoName, c.Path, c.CommitSHA, c.StartLine, c.EndLine)
}

// verifyCitations mechanically drops any LLM-claimed citation whose source
// does not match a chunk actually retrieved for this request. This is
// the system's only defense against hallucinated citations.
func verifyCitations(claimed []llm.Citation, chunks []store.RetrievedChunk) []Citation {
	valid := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		valid[citationSource(c)] = true
	}

	verified := make([]Citation, 0, len(claimed))
	for _, cit := range claimed {
		if valid[cit.Source] {
			verified = append(verified, Citation{Source: cit.Source, Relevance: cit.Relevance})
		}
	}
	return verified
}
