// Package tokenizer normalises report text into comparable terms: it
// lower-cases, splits on non-alphanumeric boundaries, removes stop words and
// applies a suffix-stripping stemmer.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "does": {}, "not": {}, "no": {}, "so": {}, "can": {},
	"our": {}, "we": {}, "how": {}, "about": {}, "any": {},
}

type suffixRule struct {
	suffix      string
	replacement string
	minLen      int
}

// pluralRules run before the derivational rules so a singular and its plural
// reach the same stem. "ss", "us" and "is" endings are not plurals.
var pluralRules = []suffixRule{
	{"sses", "ss", 2},
	{"ies", "y", 2},
	{"ss", "ss", 2},
	{"us", "us", 2},
	{"is", "is", 2},
	{"s", "", 3},
}

// Longer suffixes come first so "ational" wins over "al"-style endings.
var derivationalRules = []suffixRule{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"ying", "y", 2},
	{"ing", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
}

// Token is a normalised term and its position among the kept terms.
type Token struct {
	Term     string
	Position int
}

// Tokenize breaks text into stemmed, lower-cased tokens with stop words and
// single-character words removed.
func Tokenize(text string) []Token {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words))
	for _, word := range words {
		if utf8.RuneCountInString(word) < 2 {
			continue
		}
		if _, isStop := stopWords[word]; isStop {
			continue
		}
		term := Stem(word)
		if term == "" {
			continue
		}
		tokens = append(tokens, Token{Term: term, Position: len(tokens)})
	}
	return tokens
}

// Terms returns only the terms of Tokenize(text), in order.
func Terms(text string) []string {
	tokens := Tokenize(text)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	return terms
}

// Stem strips a plural ending, then the first matching derivational suffix,
// and repeats until the word stops changing. No rule lengthens a word, so the
// loop ends and Stem(Stem(w)) == Stem(w).
func Stem(word string) string {
	for {
		next := strip(strip(word, pluralRules), derivationalRules)
		if next == word {
			return word
		}
		word = next
	}
}

// strip applies the first rule whose suffix matches and whose remainder keeps
// the rule's minimum length.
func strip(word string, rules []suffixRule) string {
	for _, rule := range rules {
		if !strings.HasSuffix(word, rule.suffix) {
			continue
		}
		stemmed := word[:len(word)-len(rule.suffix)] + rule.replacement
		if utf8.RuneCountInString(stemmed) >= rule.minLen {
			return stemmed
		}
	}
	return word
}
