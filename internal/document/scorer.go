package document

import (
	"fmt"
	"strings"

	"github.com/esgpulse/esg-analytics/internal/tokenizer"
)

// RelevanceScorer scores chunk content against query tokens.
type RelevanceScorer interface {
	Score(queryTokens []string, content string) int
}

// QueryTokens lower-cases the query and splits it on whitespace.
func QueryTokens(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// SubstringScorer counts query tokens that occur anywhere in the lower-cased
// content. Matching is not word-bounded: "esg" matches "esgb". Repeated query
// tokens count once per occurrence in the query.
type SubstringScorer struct{}

func (SubstringScorer) Score(queryTokens []string, content string) int {
	lower := strings.ToLower(content)
	score := 0
	for _, tok := range queryTokens {
		if strings.Contains(lower, tok) {
			score++
		}
	}
	return score
}

// TermScorer matches whole stemmed terms, so "board" no longer matches
// "dashboard" and "emissions" matches "emission".
type TermScorer struct{}

func (TermScorer) Score(queryTokens []string, content string) int {
	terms := make(map[string]struct{})
	for _, term := range tokenizer.Terms(content) {
		terms[term] = struct{}{}
	}
	score := 0
	for _, tok := range queryTokens {
		for _, term := range tokenizer.Terms(tok) {
			if _, ok := terms[term]; ok {
				score++
			}
		}
	}
	return score
}

// ScorerByName resolves the scorer names accepted in configuration.
func ScorerByName(name string) (RelevanceScorer, error) {
	switch name {
	case "", "substring":
		return SubstringScorer{}, nil
	case "term":
		return TermScorer{}, nil
	default:
		return nil, fmt.Errorf("unknown relevance scorer %q", name)
	}
}
