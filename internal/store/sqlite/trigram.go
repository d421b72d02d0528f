package sqlite

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sourcelens/codekb/internal/store"
)

// SearchTrigram implements store.Store: ranks chunks by trigram similarity
// of their file's path to query, mirroring pg_trgm's similarity() function
// (which this driver has no native equivalent for: modernc.org/sqlite
// ships no trigram similarity scalar function, only a trigram FTS5
// tokenizer for matching, not scoring). Computed in Go as the Jaccard
// index over each string's padded 3-gram set, scored against KBFile.path
// so every chunk of a file shares its file's similarity.
func (s *Store) SearchTrigram(ctx context.Context, query string, limit int, threshold float64) ([]store.RetrievedChunk, error) {
	if limit <= 0 {
		limit = 12
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT c.id, r.owner, r.name, c.path, c.commit_sha, c.start_line, c.end_line, c.content, f.path
		FROM kb_chunks c
		JOIN kb_files f ON f.id = c.file_id
		JOIN repos r ON r.id = c.repo_id`)
	if err != nil {
		return nil, fmt.Errorf("execute trigram scan: %w", err)
	}
	defer rows.Close()

	queryTrigrams := trigramSet(query)

	type scored struct {
		chunk store.RetrievedChunk
		score float64
	}
	var candidates []scored

	for rows.Next() {
		var rc store.RetrievedChunk
		var filePath string
		if err := rows.Scan(&rc.ID, &rc.RepoOwner, &rc.RepoName, &rc.Path, &rc.CommitSHA, &rc.StartLine, &rc.EndLine, &rc.Content, &filePath); err != nil {
			return nil, fmt.Errorf("scan trigram candidate: %w", err)
		}
		sim := similarity(queryTrigrams, trigramSet(filePath))
		if sim > threshold {
			rc.Score = sim
			candidates = append(candidates, scored{chunk: rc, score: sim})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trigram candidates: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	results := make([]store.RetrievedChunk, len(candidates))
	for i, c := range candidates {
		results[i] = c.chunk
	}
	return results, nil
}

// trigramSet returns the set of padded, lowercased 3-grams of s, matching
// pg_trgm's convention of padding with two leading spaces and one
// trailing space so prefixes and suffixes carry distinct trigrams.
func trigramSet(s string) map[string]bool {
	padded := "  " + strings.ToLower(s) + " "
	runes := []rune(padded)
	set := make(map[string]bool)
	for i := 0; i+3 <= len(runes); i++ {
		set[string(runes[i:i+3])] = true
	}
	return set
}

// similarity is the Jaccard index of two trigram sets, matching pg_trgm's
// similarity() semantics: |A ∩ B| / |A ∪ B|.
func similarity(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for t := range a {
		if b[t] {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}
