// Package retrieval implements the three-stage cascading chunk search:
// conjunctive FTS, disjunctive FTS fallback, and trigram-on-path fallback.
package retrieval

import (
	"context"
	"fmt"

	"github.com/sourcelens/codekb/internal/store"
)

// The stage2 fallback fires only when stage1 returns zero results; stage3
// fires when stage1 (or stage2) leaves the result set short of
// MinFTSResults. The merged result set is capped at MaxChunks.
const (
	MinFTSResults = 3
	MaxChunks     = 12
	TrigramThresh = 0.15
)

// Retriever runs the cascading search against a store.Store.
type Retriever struct {
	Store         store.Store
	MinFTSResults int
	MaxChunks     int
	TrigramThresh float64
}

// New returns a Retriever configured with the default thresholds.
func New(s store.Store) *Retriever {
	return &Retriever{Store: s, MinFTSResults: MinFTSResults, MaxChunks: MaxChunks, TrigramThresh: TrigramThresh}
}

// Retrieve runs stage1 (AND FTS); if that returns zero results, stage2 (OR
// FTS); if the combined result set is still short of MinFTSResults, also
// runs stage3 (trigram-on-path), merging in any chunks not already present
// by id. The final list is capped at MaxChunks.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]store.RetrievedChunk, error) {
	max := r.MaxChunks
	if max <= 0 {
		max = MaxChunks
	}

	results, err := r.Store.SearchFTSAnd(ctx, query, max)
	if err != nil {
		return nil, fmt.Errorf("stage1 fts search: %w", err)
	}

	if len(results) == 0 {
		results, err = r.Store.SearchFTSOr(ctx, query, max)
		if err != nil {
			return nil, fmt.Errorf("stage2 fts-or search: %w", err)
		}
	}

	minFTS := r.MinFTSResults
	if minFTS <= 0 {
		minFTS = MinFTSResults
	}

	if len(results) < minFTS {
		threshold := r.TrigramThresh
		if threshold <= 0 {
			threshold = TrigramThresh
		}
		trigramResults, err := r.Store.SearchTrigram(ctx, query, max, threshold)
		if err != nil {
			return nil, fmt.Errorf("stage3 trigram search: %w", err)
		}

		seen := make(map[int64]bool, len(results))
		for _, c := range results {
			seen[c.ID] = true
		}
		for _, c := range trigramResults {
			if len(results) >= max {
				break
			}
			if seen[c.ID] {
				continue
			}
			results = append(results, c)
			seen[c.ID] = true
		}
	}

	if len(results) > max {
		results = results[:max]
	}
	return results, nil
}
