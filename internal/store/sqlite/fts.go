package sqlite

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sourcelens/codekb/internal/store"
)

// SearchFTSAnd implements store.Store: conjunctive/phrase FTS5 search,
// ranked by bm25(), ascending by rank (FTS5's bm25 is more negative for
// better matches) and normalized to a [0, 1] score.
func (s *Store) SearchFTSAnd(ctx context.Context, query string, limit int) ([]store.RetrievedChunk, error) {
	ftsQuery := buildAndQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}
	return s.runFTSQuery(ctx, ftsQuery, limit)
}

// SearchFTSOr implements store.Store: disjunctive FTS5 search across the
// individual words of query, used only as a fallback when SearchFTSAnd
// returns zero results.
func (s *Store) SearchFTSOr(ctx context.Context, query string, limit int) ([]store.RetrievedChunk, error) {
	ftsQuery := buildOrQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}
	return s.runFTSQuery(ctx, ftsQuery, limit)
}

func (s *Store) runFTSQuery(ctx context.Context, ftsQuery string, limit int) ([]store.RetrievedChunk, error) {
	if limit <= 0 {
		limit = 12
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT c.id, r.owner, r.name, c.path, c.commit_sha, c.start_line, c.end_line, c.content,
		       bm25(kb_chunks_fts) AS rank
		FROM kb_chunks_fts
		JOIN kb_chunks c ON c.id = kb_chunks_fts.rowid
		JOIN repos r ON r.id = c.repo_id
		WHERE kb_chunks_fts MATCH ?
		ORDER BY rank ASC
		LIMIT ?`, ftsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("execute fts query: %w", err)
	}
	defer rows.Close()

	var results []store.RetrievedChunk
	for rows.Next() {
		var rc store.RetrievedChunk
		var rank float64
		if err := rows.Scan(&rc.ID, &rc.RepoOwner, &rc.RepoName, &rc.Path, &rc.CommitSHA, &rc.StartLine, &rc.EndLine, &rc.Content, &rank); err != nil {
			return nil, fmt.Errorf("scan fts result: %w", err)
		}
		rc.Score = normalizeRank(rank)
		results = append(results, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fts results: %w", err)
	}
	return results, nil
}

var wordRE = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// buildAndQuery builds an FTS5 query string joining query's terms with the
// implicit AND behavior FTS5 applies to space-separated terms. A
// double-quoted span in the query becomes a single FTS5 phrase, so its
// words must appear adjacent and in order; everything else is split into
// individual terms.
func buildAndQuery(query string) string {
	var parts []string
	for i, segment := range strings.Split(query, `"`) {
		words := wordRE.FindAllString(segment, -1)
		if len(words) == 0 {
			continue
		}
		if i%2 == 1 {
			parts = append(parts, fmt.Sprintf("%q", strings.Join(words, " ")))
			continue
		}
		for _, w := range words {
			parts = append(parts, fmt.Sprintf("%q", w))
		}
	}
	return strings.Join(parts, " ")
}

// buildOrQuery builds an FTS5 query string joining query's words with OR,
// deduplicated, preserving first-seen order.
func buildOrQuery(query string) string {
	words := extractWords(query)
	if len(words) == 0 {
		return ""
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = fmt.Sprintf("%q", w)
	}
	return strings.Join(quoted, " OR ")
}

// extractWords pulls alphanumeric/underscore words out of query,
// deduplicated, preserving first-seen order.
func extractWords(query string) []string {
	matches := wordRE.FindAllString(query, -1)
	seen := make(map[string]bool, len(matches))
	words := make([]string, 0, len(matches))
	for _, w := range matches {
		lw := strings.ToLower(w)
		if !seen[lw] {
			seen[lw] = true
			words = append(words, w)
		}
	}
	return words
}

// normalizeRank converts FTS5's bm25 rank (more negative is a better match)
// into a [0, 1] score where higher is better.
func normalizeRank(rank float64) float64 {
	score := -rank
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	return score / 10.0
}
