package document

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// DefaultLimit is the number of chunks returned when the caller passes a
// non-positive limit.
const DefaultLimit = 3

// Ranked is a chunk with its relevance score for one query.
type Ranked struct {
	Chunk
	Score int `json:"score"`
}

// Ranker orders a document's chunks by relevance to a query.
type Ranker struct {
	store  Store
	scorer RelevanceScorer
	logger *slog.Logger
}

// NewRanker returns a Ranker. A nil scorer selects SubstringScorer.
func NewRanker(store Store, scorer RelevanceScorer) *Ranker {
	if scorer == nil {
		scorer = SubstringScorer{}
	}
	return &Ranker{
		store:  store,
		scorer: scorer,
		logger: slog.Default().With("component", "ranker"),
	}
}

// Rank returns at most limit chunks of documentID by descending score. Ties
// keep chunk order. An unknown document yields an empty result.
func (r *Ranker) Rank(ctx context.Context, documentID, query string, limit int) ([]Ranked, error) {
	chunks, err := r.store.Get(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("ranking %s: %w", documentID, err)
	}
	ranked := Score(chunks, QueryTokens(query), r.scorer)
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	r.logger.Debug("chunks ranked",
		"document_id", documentID,
		"candidates", len(chunks),
		"returned", len(ranked),
	)
	return ranked, nil
}

// Score scores every chunk and stable-sorts them by descending score.
func Score(chunks []Chunk, queryTokens []string, scorer RelevanceScorer) []Ranked {
	ranked := make([]Ranked, len(chunks))
	for i, c := range chunks {
		ranked[i] = Ranked{Chunk: c, Score: scorer.Score(queryTokens, c.Content)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}
