// Package document splits extracted report text into sentence-bounded chunks,
// stores them per document and ranks them against free-text queries.
package document

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize is the chunk length, in characters, used when the caller
// passes a non-positive size.
const DefaultChunkSize = 500

// chunksPerPage approximates pagination: three chunks count as one page.
const chunksPerPage = 3

// Section names assigned to chunks.
const (
	SectionExecutiveSummary = "Executive Summary"
	SectionEnvironmental    = "Environmental"
	SectionSocial           = "Social"
	SectionGovernance       = "Governance"
	SectionRiskCompliance   = "Risk & Compliance"
	SectionGeneral          = "General"
)

var sentenceBoundary = regexp.MustCompile(`[.!?]+`)

// sectionRules are checked in order; the first rule with a matching keyword wins.
var sectionRules = []struct {
	section  string
	keywords []string
}{
	{SectionExecutiveSummary, []string{"executive summary", "overview"}},
	{SectionEnvironmental, []string{"environmental", "climate"}},
	{SectionSocial, []string{"social", "community"}},
	{SectionGovernance, []string{"governance", "board"}},
	{SectionRiskCompliance, []string{"risk", "compliance"}},
}

// Metadata describes where a chunk came from.
type Metadata struct {
	Page      int    `json:"page"`
	Section   string `json:"section"`
	Timestamp string `json:"timestamp"`
}

// Chunk is an immutable, sentence-bounded slice of a document.
type Chunk struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// ChunkID returns the identifier of the index-th chunk of a document.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}

// PageFor returns the approximate page number of the index-th chunk.
func PageFor(index int) int {
	return index/chunksPerPage + 1
}

// SplitSentences splits text on runs of '.', '!' and '?'. Terminators are
// dropped, sentences are trimmed and empty ones discarded.
func SplitSentences(text string) []string {
	parts := sentenceBoundary.Split(text, -1)
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// SplitChunks greedily packs sentences, joined by a single space, into chunks
// of at most size characters. A sentence is never split, so a sentence longer
// than size becomes a chunk of its own.
func SplitChunks(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var (
		chunks  []string
		current strings.Builder
		length  int
	)
	for _, sentence := range SplitSentences(text) {
		n := utf8.RuneCountInString(sentence)
		if length > 0 && length+1+n > size {
			chunks = append(chunks, current.String())
			current.Reset()
			length = 0
		}
		if length > 0 {
			current.WriteByte(' ')
			length++
		}
		current.WriteString(sentence)
		length += n
	}
	if length > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// DetectSection classifies content by case-insensitive keyword match.
func DetectSection(content string) string {
	lower := strings.ToLower(content)
	for _, rule := range sectionRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.section
			}
		}
	}
	return SectionGeneral
}
